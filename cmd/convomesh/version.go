package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/convomesh/convomesh"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of convomesh",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("convomesh version %s\n", convomesh.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
