package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Prajanya-g/lvl.ai/internal/postgres"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
	Long: `Connect to PostgreSQL and apply the embedded schema migrations that have
not been applied yet.

Reads the DSN from --postgres-dsn flag, POSTGRES_DSN env var, or config file.`,
	RunE: runMigrate,
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	dsn := viper.GetString("postgres_dsn")
	if dsn == "" {
		return errors.New("postgres_dsn is not set")
	}
	logger := buildLogger(viper.GetString("log_level"), "analytics-api")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := postgres.NewPool(ctx, dsn)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	applied, err := postgres.Migrate(ctx, pool, logger)
	if err != nil {
		return err
	}
	for _, f := range applied {
		fmt.Fprintf(cmd.OutOrStdout(), "applied %s\n", f)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "migrations complete")
	return nil
}
