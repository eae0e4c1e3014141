// Package main はAPIサーバーのエントリーポイントです。
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "bookflow",
	Short: "BookFlow is a library management API",
	Long: `A library management REST API for books, authors, users and loans.
Running without a subcommand starts the HTTP server.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveCmd.RunE(cmd, args)
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(serveCmd, migrateCmd, hashPasswordCmd)
}
