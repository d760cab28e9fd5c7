package main

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"github.com/dtambussi/fanout/internal/config"
	"github.com/dtambussi/fanout/internal/migrate"
	"github.com/dtambussi/fanout/internal/repository"
)

func init() {
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateStatusCmd)
	rootCmd.AddCommand(migrateCmd)
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply or inspect database migrations",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply every not-yet-applied migration",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := connectForMigration()
		if err != nil {
			return err
		}
		defer db.Close()
		return migrate.Up(db.DB)
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back the most recently applied migration",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := connectForMigration()
		if err != nil {
			return err
		}
		defer db.Close()
		return migrate.Down(db.DB)
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the applied/pending state of every migration",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := connectForMigration()
		if err != nil {
			return err
		}
		defer db.Close()
		return migrate.Status(db.DB)
	},
}

func connectForMigration() (*sqlx.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	db, err := repository.Connect(cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	return db, nil
}
