package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Prajanya-g/lvl.ai/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version.String("analytics-api"))
	},
}
