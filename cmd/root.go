// Package cmd holds the procure-agent command line.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information (set at build time)
var version = "dev"

var cfgPath string

var rootCmd = &cobra.Command{
	Use:           "procure-agent",
	Short:         "采购招投标智能问答服务",
	Long:          "procure-agent classifies procurement questions, assembles an intent-specific prompt and answers through the configured model provider.",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default config/app.yaml)")
	rootCmd.AddCommand(serveCmd, classifyCmd, versionCmd)
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
