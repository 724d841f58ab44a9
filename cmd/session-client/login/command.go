package login

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/openkcm/session-client/internal/business"
	"github.com/openkcm/session-client/internal/cmdutils"
	"github.com/openkcm/session-client/internal/config"
	"github.com/openkcm/session-client/pkg/credential"
)

func Cmd(buildInfo string) *cobra.Command {
	var creds credential.Credentials

	var cmd *cobra.Command
	cmd = cmdutils.CobraCommand(
		"login",
		"Log in and store the session",
		"Logs in with email and password as the configured user category. "+
			"The password is read from "+business.PasswordEnv+" when the flag is omitted.",
		buildInfo,
		cmdutils.RunAsJob,
		func(ctx context.Context, cfg *config.Config, _ []string) error {
			return business.LoginMain(ctx, cfg, cmd.OutOrStdout(), creds)
		},
	)

	cmd.Flags().StringVar(&creds.Email, "email", "", "email address")
	cmd.Flags().StringVar(&creds.Password, "password", "", "password")

	return cmd
}
