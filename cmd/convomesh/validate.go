package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/convomesh/convomesh/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configuration for consistency",
	Long:  `Loads the configuration, builds every route, and verifies step graphs, end markers, and field declarations. Reports the first problem found.`,
	Run: func(cmd *cobra.Command, args []string) {
		configPath, _ := cmd.Flags().GetString("config")
		if err := runValidate(configPath); err != nil {
			fmt.Printf("Validation failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Configuration is valid.")
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	specs, err := cfg.RouteSpecs()
	if err != nil {
		return err
	}
	routes, err := config.BuildRoutes(specs, nil)
	if err != nil {
		return err
	}
	fmt.Printf("loaded %d route(s):\n", len(routes))
	for _, r := range routes {
		fmt.Printf("  %s (%d steps, requires %v)\n", r.ID(), len(r.Steps()), r.RequiredFields())
	}
	return nil
}
