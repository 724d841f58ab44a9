package keepalive

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
		"keepalive",
		"Keep the session alive",
		"Refreshes the stored session ahead of its expiry until interrupted or the session ends.",
		buildInfo,
		cmdutils.RunWithTelemetry,
		func(ctx context.Context, cfg *config.Config, _ []string) error {
			return business.KeepAliveMain(ctx, cfg, cmd.OutOrStdout())
		},
	)

	return cmd
}
