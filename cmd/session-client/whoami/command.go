package whoami

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
		"whoami",
		"Show the logged in user",
		"Shows the stored user, its pharmacy and the actions its grants allow.",
		buildInfo,
		cmdutils.RunAsJob,
		func(ctx context.Context, cfg *config.Config, _ []string) error {
			return business.WhoAmIMain(ctx, cfg, cmd.OutOrStdout())
		},
	)

	return cmd
}
