package request

import (
	"context"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/openkcm/session-client/internal/business"
	"github.com/openkcm/session-client/internal/cmdutils"
	"github.com/openkcm/session-client/internal/config"
)

func Cmd(buildInfo string) *cobra.Command {
	var method, data string

	var cmd *cobra.Command
	cmd = cmdutils.CobraCommand(
		"request <path>",
		"Send an authenticated request",
		"Sends a request with the stored session. An expired access token is "+
			"refreshed and the request replayed once.",
		buildInfo,
		cmdutils.RunWithTelemetry,
		func(ctx context.Context, cfg *config.Config, args []string) error {
			return business.RequestMain(ctx, cfg, cmd.OutOrStdout(), strings.ToUpper(method), args[0], data)
		},
	)
	cmd.Args = cobra.ExactArgs(1)

	cmd.Flags().StringVarP(&method, "method", "X", http.MethodGet, "HTTP method")
	cmd.Flags().StringVarP(&data, "data", "d", "", "JSON request body")

	return cmd
}
