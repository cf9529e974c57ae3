package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	var root = &cobra.Command{
		Use:          "deepresearch",
		Short:        "Multi-phase web research with cited reports",
		SilenceUsage: true,
	}

	root.AddCommand(serveCMD(), migrateCMD(), researchCMD(), tokenCMD())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
