package root

import (
	"context"

	"github.com/zenGate-Global/seletor-hub/apps/cli/cmd/bootstrap"
	tenantcmd "github.com/zenGate-Global/seletor-hub/apps/cli/cmd/tenant"
)

func init() {
	Root().AddCommand(bootstrap.Command())
	Root().AddCommand(tenantcmd.Command())
}

// Execute runs the CLI; ctx is cancelled on interrupt.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}
