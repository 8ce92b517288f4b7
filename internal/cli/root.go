package cli

import (
	"github.com/spf13/cobra"
)

func NewRootCmd(version string) *cobra.Command {
	root := &cobra.Command{
		Use:          "vendorrisk",
		Short:        "vendorrisk - vendor security risk simulation",
		Version:      version,
		SilenceUsage: true,
	}
	root.AddCommand(newServeCmd(version), newSimulateCmd(), newResidualCmd())
	return root
}

func Execute(version string) {
	cobra.CheckErr(NewRootCmd(version).Execute())
}
