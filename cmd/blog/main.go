package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	envPrefix  string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "blog",
		Short:         "Blog storage tool",
		Long:          "Manage users, blogs and comments stored in a relational database",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "blog.yaml", "Config file (yaml, json, toml, ini)")
	rootCmd.PersistentFlags().StringVar(&envPrefix, "env-prefix", "BLOG", "Environment variable prefix")

	rootCmd.AddCommand(
		initCmd(),
		userCmd(),
		blogCmd(),
		commentCmd(),
		statsCmd(),
	)

	return rootCmd
}
