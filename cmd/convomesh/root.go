package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "convomesh",
	Short: "Convomesh is a route-driven conversation engine",
	Long:  `Convomesh orchestrates multi-turn conversations: routes declare what to collect and when they apply, the engine picks the active route and step each turn, and the pipeline generates replies with tool calling and field extraction.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "convomesh.yaml", "Path to the configuration file")
}
