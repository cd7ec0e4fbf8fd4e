package tenantcmd

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/zenGate-Global/seletor-hub/apps/cli/cmd/clienv"
	"github.com/zenGate-Global/seletor-hub/domains/tenants/be/service"
)

// Command groups tenant lifecycle helpers.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Tenant lifecycle (provision, teardown, apply-template)",
	}

	cmd.AddCommand(provisionCommand(), teardownCommand(), applyTemplateCommand())
	return cmd
}

func provisionCommand() *cobra.Command {
	var (
		in      service.ProvisionInput
		logoURL string
		color   string
		welcome string
	)

	c := &cobra.Command{
		Use:   "provision",
		Short: "Create a tenant database, apply the schema template and register it in the hub",
		RunE: func(cmd *cobra.Command, args []string) error {
			in.LogoURL = strPtrOrNil(logoURL)
			in.PrimaryColor = strPtrOrNil(color)
			in.WelcomeMessage = strPtrOrNil(welcome)

			env, err := clienv.Open(cmd.Context(), verbose(cmd))
			if err != nil {
				return err
			}
			defer env.Close()

			res, err := env.Tenants().Provision(cmd.Context(), in)
			if err != nil {
				return fmt.Errorf("provision tenant %q: %w", in.Slug, err)
			}
			printProvision(cmd.OutOrStdout(), res)
			return nil
		},
	}

	c.Flags().StringVar(&in.Slug, "slug", "", "Tenant slug (lowercase letters, digits and hyphens)")
	c.Flags().StringVar(&in.DisplayName, "name", "", "Display name (defaults to the slug)")
	c.Flags().StringVar(&in.SystemSlug, "system", "", "Slug of the system the tenant belongs to")
	c.Flags().StringVar(&in.Host, "host", "", "Tenant database host (defaults to TENANT_DB_HOST)")
	c.Flags().StringVar(&in.TemplatePath, "template", "", "Schema template file (defaults to TENANT_TEMPLATE_PATH or the built-in template)")
	c.Flags().BoolVar(&in.AllowRegistration, "allow-registration", true, "Let users join without approval")
	c.Flags().StringVar(&logoURL, "logo-url", "", "Logo URL shown in the catalog")
	c.Flags().StringVar(&color, "primary-color", "", "Brand color, e.g. #00AA55")
	c.Flags().StringVar(&welcome, "welcome-message", "", "Message shown to new members")

	_ = c.MarkFlagRequired("slug")
	_ = c.MarkFlagRequired("system")

	return c
}

func teardownCommand() *cobra.Command {
	var (
		tenantID string
		database string
		host     string
	)

	c := &cobra.Command{
		Use:   "teardown",
		Short: "Drop a tenant database (and unregister it when --id is given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if (tenantID == "") == (database == "") {
				return errors.New("exactly one of --id or --database is required")
			}
			var id uuid.UUID
			if tenantID != "" {
				parsed, err := uuid.Parse(tenantID)
				if err != nil {
					return fmt.Errorf("invalid tenant id: %w", err)
				}
				id = parsed
			}

			env, err := clienv.Open(cmd.Context(), verbose(cmd))
			if err != nil {
				return err
			}
			defer env.Close()

			svc := env.Tenants()
			if id != uuid.Nil {
				t, err := svc.TeardownTenant(cmd.Context(), id)
				if err != nil {
					return fmt.Errorf("teardown tenant: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Tenant %s removed; database %s dropped.\n", t.Slug, t.DatabaseName)
				return nil
			}

			if err := svc.Teardown(cmd.Context(), host, database); err != nil {
				return fmt.Errorf("drop database %q: %w", database, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Database %s dropped.\n", database)
			return nil
		},
	}

	c.Flags().StringVar(&tenantID, "id", "", "Hub id of a registered tenant")
	c.Flags().StringVar(&database, "database", "", "Physical database to drop without touching the hub")
	c.Flags().StringVar(&host, "host", "", "Database host for --database (defaults to TENANT_DB_HOST)")
	c.MarkFlagsMutuallyExclusive("id", "database")

	return c
}

func applyTemplateCommand() *cobra.Command {
	var (
		database string
		host     string
		template string
	)

	c := &cobra.Command{
		Use:   "apply-template",
		Short: "Apply a schema template to an existing tenant database",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := clienv.Open(cmd.Context(), verbose(cmd))
			if err != nil {
				return err
			}
			defer env.Close()

			res, err := env.Tenants().ApplyTemplateToExistingDatabase(cmd.Context(), host, database, template)
			if err != nil {
				return fmt.Errorf("apply template to %q: %w", database, err)
			}
			printTemplate(cmd.OutOrStdout(), res)
			return nil
		},
	}

	c.Flags().StringVar(&database, "database", "", "Tenant database name")
	c.Flags().StringVar(&host, "host", "", "Database host (defaults to TENANT_DB_HOST)")
	c.Flags().StringVar(&template, "template", "", "Schema template file (defaults to TENANT_TEMPLATE_PATH or the built-in template)")
	_ = c.MarkFlagRequired("database")

	return c
}

func printProvision(w io.Writer, res service.ProvisionResult) {
	t := res.Tenant
	switch {
	case res.AlreadyProvisioned:
		fmt.Fprintf(w, "Tenant %s already provisioned (%s, database %s).\n", t.Slug, t.ID, t.DatabaseName)
		return
	case res.DatabaseCreated:
		fmt.Fprintf(w, "Database %s created.\n", t.DatabaseName)
	default:
		fmt.Fprintf(w, "Database %s already existed; template applied in place.\n", t.DatabaseName)
	}
	printTemplate(w, res.Template)
	fmt.Fprintf(w, "Tenant %s registered (%s).\n", t.Slug, t.ID)
}

func printTemplate(w io.Writer, res service.TemplateResult) {
	fmt.Fprintf(w, "Template applied to %s: %d statements (%d tables, %d other, %d foreign keys).\n",
		res.Database, res.Total(), res.CreateTable, res.Statements, res.ForeignKeys)
}

func verbose(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("verbose")
	return v
}

func strPtrOrNil(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
