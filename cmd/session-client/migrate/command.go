package migrate

import (
	"github.com/spf13/cobra"

	"github.com/openkcm/session-client/internal/business"
	"github.com/openkcm/session-client/internal/cmdutils"
)

func Cmd(buildInfo string) *cobra.Command {
	return cmdutils.CobraCommand(
		"migrate",
		"Session Client migrations",
		"Creates the session table used by the postgres storage.",
		buildInfo,
		cmdutils.RunWithTelemetry,
		business.MigrateMain,
	)
}
