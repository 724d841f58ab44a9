package switchpharmacy

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/openkcm/session-client/internal/business"
	"github.com/openkcm/session-client/internal/cmdutils"
	"github.com/openkcm/session-client/internal/config"
)

func Cmd(buildInfo string) *cobra.Command {
	var cmd *cobra.Command
	cmd = cmdutils.CobraCommand(
		"switch-pharmacy <pharmacy-id>",
		"Switch the active pharmacy",
		"Moves the session of a tenant user to another pharmacy.",
		buildInfo,
		cmdutils.RunAsJob,
		func(ctx context.Context, cfg *config.Config, args []string) error {
			return business.SwitchPharmacyMain(ctx, cfg, cmd.OutOrStdout(), args[0])
		},
	)
	cmd.Args = cobra.ExactArgs(1)

	return cmd
}
