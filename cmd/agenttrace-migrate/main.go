// cmd/agenttrace-migrate/main.go
package main

import (
	"fmt"
	"os"

	"github.com/golang-migrate/migrate/v4"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	internal_storage "github.com/shreyachakravarty07/AgentTrace/internal/storage"
	"github.com/shreyachakravarty07/AgentTrace/migrations"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{Use: "agenttrace-migrate"}

// openMigrator connects to the database named by the flags, falling back to
// the DB_* environment variables for PostgreSQL.
func openMigrator(cmd *cobra.Command) (*migrate.Migrate, *internal_storage.SQLStore, error) {
	// Load .env if present
	if err := godotenv.Load(); err != nil {
		fmt.Printf("No .env file found or failed to load: %v. Using flags.\n", err)
	}

	driver, _ := cmd.Flags().GetString("driver")
	connStr, _ := cmd.Flags().GetString("db")
	if connStr == "" && driver == internal_storage.PostgresDriver {
		dbUsername := os.Getenv("DB_USERNAME")
		dbPassword := os.Getenv("DB_PASSWORD")
		dbHost := os.Getenv("DB_HOST")
		dbPort := os.Getenv("DB_PORT")
		dbName := os.Getenv("DB_NAME")
		if dbUsername == "" || dbPassword == "" || dbHost == "" || dbPort == "" || dbName == "" {
			return nil, nil, errors.New("--db flag or complete DB_* env vars (DB_USERNAME, DB_PASSWORD, DB_HOST, DB_PORT, DB_NAME) required")
		}
		connStr = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
			dbUsername, dbPassword, dbHost, dbPort, dbName)
	}
	if connStr == "" {
		return nil, nil, errors.Errorf("--db flag required for driver %q", driver)
	}

	store, err := internal_storage.NewSQLStore(driver, connStr)
	if err != nil {
		return nil, nil, err
	}
	m, err := migrations.New(store.DB().DB, driver)
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	return m, store, nil
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply all pending database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		m, store, err := openMigrator(cmd)
		if err != nil {
			return err
		}
		defer store.Close()
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return errors.Wrap(err, "failed to apply migrations")
		}
		fmt.Println("Migrations applied successfully")
		return nil
	},
}

var downCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back the most recent migration",
	RunE: func(cmd *cobra.Command, args []string) error {
		m, store, err := openMigrator(cmd)
		if err != nil {
			return err
		}
		defer store.Close()
		if err := m.Steps(-1); err != nil {
			return errors.Wrap(err, "failed to roll back migration")
		}
		fmt.Println("Rolled back one migration")
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the current schema version",
	RunE: func(cmd *cobra.Command, args []string) error {
		m, store, err := openMigrator(cmd)
		if err != nil {
			return err
		}
		defer store.Close()
		version, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			fmt.Println("No migrations applied")
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Printf("Version %d (dirty: %t)\n", version, dirty)
		return nil
	},
}

func main() {
	rootCmd.PersistentFlags().String("db", "", "Database connection string (optional for postgres if DB_* env vars are set)")
	rootCmd.PersistentFlags().String("driver", internal_storage.PostgresDriver, "Database driver (postgres or sqlite)")
	rootCmd.AddCommand(migrateCmd, downCmd, versionCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
