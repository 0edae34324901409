package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dolt-y/deepseek-ai-h5/config"
	"github.com/dolt-y/deepseek-ai-h5/pkg/logger"
	"github.com/dolt-y/deepseek-ai-h5/services/chat-service/internal/infrastructure/persistence/db"
	"github.com/dolt-y/deepseek-ai-h5/services/chat-service/internal/middleware"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the chat tables and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(configPath)
		if err != nil {
			return err
		}
		log, err := logger.New(cfg.Log)
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()

		gdb, err := db.InitGorm(cfg.Postgres)
		if err != nil {
			return err
		}
		if sqlDB, err := gdb.DB(); err == nil {
			defer sqlDB.Close()
		}
		if err := db.Migrate(gdb); err != nil {
			return err
		}
		log.Info("migration finished", zap.String("database", cfg.Postgres.DBName))
		return nil
	},
}

var (
	tokenUser string
	tokenTTL  time.Duration
)

// tokenCmd mints a development token signed with auth.jwt_secret.
var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Print a bearer token for a user id",
	RunE: func(cmd *cobra.Command, args []string) error {
		if tokenUser == "" {
			return fmt.Errorf("--user is required")
		}
		cfg, err := config.LoadConfig(configPath)
		if err != nil {
			return err
		}
		token, err := middleware.IssueToken(cfg.Auth.JwtSecret, tokenUser, tokenTTL)
		if err != nil {
			return fmt.Errorf("sign token: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVarP(&tokenUser, "user", "u", "", "user id to embed in the token")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
}
