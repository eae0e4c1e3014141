package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/yourusername/bookflow/internal/config"
	"github.com/yourusername/bookflow/internal/database"
	"github.com/yourusername/bookflow/internal/logger"
	"github.com/yourusername/bookflow/internal/password"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		logger.SetupDefault(os.Stdout, cfg.LogLevel)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runServer(ctx, cfg)
	},
}

var migrateCmd = &cobra.Command{
	Use:       "migrate [up|down]",
	Short:     "Apply or roll back the database schema",
	Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"up", "down"},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		logger.SetupDefault(os.Stderr, cfg.LogLevel)
		if cfg.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required")
		}

		direction := "up"
		if len(args) == 1 {
			direction = args[0]
		}
		if direction == "down" {
			if err := database.RollbackMigrations(cfg.DatabaseURL); err != nil {
				return err
			}
		} else if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "migrations %s: done\n", direction)
		return nil
	},
}

var hashPasswordCmd = &cobra.Command{
	Use:   "hash-password [password]",
	Short: "Print the bcrypt hash of a password (reads stdin when no argument is given)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cost, err := cmd.Flags().GetInt("cost")
		if err != nil {
			return err
		}

		raw := ""
		if len(args) == 1 {
			raw = args[0]
		} else {
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("read password: %w", err)
			}
			raw = strings.TrimRight(line, "\r\n")
		}
		if raw == "" {
			return errors.New("password must not be empty")
		}

		hash, err := password.NewHasher(cost).Hash(raw)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), hash)
		return nil
	},
}

func init() {
	hashPasswordCmd.Flags().Int("cost", password.DefaultCost, "bcrypt cost")
}
