package cli

import (
	"log/slog"

	"github.com/spf13/cobra"

	"quiz-client/internal/infra/postgres"
)

// newMigrateCmd creates the kv_entries schema used by the postgres storage driver.
func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations for postgres storage",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd, opts)
			if err != nil {
				return err
			}
			defer rt.Close()

			applied, err := postgres.Migrate(cmd.Context(), rt.cfg.Postgres.URL)
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				rt.log.Info("database already up to date")
				return nil
			}
			rt.log.Info("migrations applied", slog.Any("migrations", applied))
			return nil
		},
	}
}
