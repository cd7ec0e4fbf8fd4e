package bootstrap

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zenGate-Global/seletor-hub/apps/cli/cmd/clienv"
	"github.com/zenGate-Global/seletor-hub/platform/go/persistence"
)

// Command applies the hub schema and seeds systems and super administrators.
// Every step is idempotent, so the command can run on every deploy.
func Command() *cobra.Command {
	var (
		systems     []string
		superAdmins []string
	)

	c := &cobra.Command{
		Use:   "bootstrap",
		Short: "Create the hub tables and seed systems and super administrators",
		Example: `  seletor-hub bootstrap \
    --system futebol=Futebol --system basquete=Basquete \
    --super-admin ops@example.com`,
		RunE: func(cmd *cobra.Command, args []string) error {
			seeds, err := parseSystems(systems)
			if err != nil {
				return err
			}

			v, _ := cmd.Flags().GetBool("verbose")
			env, err := clienv.Open(cmd.Context(), v)
			if err != nil {
				return err
			}
			defer env.Close()

			if err := run(cmd.Context(), env.Pool, seeds, superAdmins); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Bootstrap complete. Systems: %d | Super admins: %d\n", len(seeds), len(superAdmins))
			return nil
		},
	}

	c.Flags().StringArrayVar(&systems, "system", nil, "System to ensure as slug=Display Name[:order] (repeatable)")
	c.Flags().StringArrayVar(&superAdmins, "super-admin", nil, "Email granted super administrator rights (repeatable)")

	return c
}

func run(ctx context.Context, db persistence.DB, seeds []persistence.SystemRecord, superAdmins []string) error {
	if err := persistence.BootstrapHubSchema(ctx, db); err != nil {
		return err
	}

	systemStore := persistence.NewSystemStore(db)
	for _, seed := range seeds {
		if _, err := systemStore.Ensure(ctx, seed); err != nil {
			return fmt.Errorf("ensure system %q: %w", seed.Slug, err)
		}
	}

	userStore := persistence.NewUserStore(db)
	for _, email := range superAdmins {
		email = strings.ToLower(strings.TrimSpace(email))
		if email == "" {
			continue
		}
		if err := userStore.GrantSuperAdmin(ctx, email); err != nil {
			return fmt.Errorf("grant super admin %q: %w", email, err)
		}
	}
	return nil
}

// parseSystems reads "slug=Display Name" entries with an optional ":order" suffix.
func parseSystems(raw []string) ([]persistence.SystemRecord, error) {
	out := make([]persistence.SystemRecord, 0, len(raw))
	for i, entry := range raw {
		rawSlug, name, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --system %q: expected slug=Display Name", entry)
		}
		slug, err := persistence.NormalizeSystemSlug(rawSlug)
		if err != nil {
			return nil, fmt.Errorf("invalid --system %q: %w", entry, err)
		}

		order := i + 1
		if head, tail, found := strings.Cut(name, ":"); found {
			n, err := strconv.Atoi(strings.TrimSpace(tail))
			if err != nil {
				return nil, fmt.Errorf("invalid --system %q: order must be an integer", entry)
			}
			name, order = head, n
		}

		name = strings.TrimSpace(name)
		if name == "" {
			name = slug
		}
		out = append(out, persistence.SystemRecord{Slug: slug, DisplayName: name, DisplayOrder: order})
	}
	return out, nil
}
