// migrate runs DB migrations from embedded SQL; use with ./scripts/migrate.sh or go run ./cmd/migrate.
package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"bizlens/backend/internal/config"
	"bizlens/backend/internal/db/migrate"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "migrate",
		Short:         "Apply or roll back the BizLens schema",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(
		directionCmd("up", "Apply all pending migrations"),
		directionCmd("down", "Roll back every migration"),
		stepsCmd(),
		versionCmd(),
	)
	return root
}

func dsn() (string, error) {
	cfg, err := config.Load()
	if err != nil {
		return "", err
	}
	if cfg.DatabaseURL == "" {
		return "", errors.New("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}
	return cfg.DatabaseURL, nil
}

// ignoreNoChange treats "already at target version" as success.
func ignoreNoChange(cmd *cobra.Command, err error) error {
	if errors.Is(err, migrate.ErrNoChange) {
		cmd.Println("no change")
		return nil
	}
	return err
}

func directionCmd(direction, short string) *cobra.Command {
	return &cobra.Command{
		Use:   direction,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			url, err := dsn()
			if err != nil {
				return err
			}
			return ignoreNoChange(cmd, migrate.Run(url, direction))
		},
	}
}

func stepsCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "steps N",
		Short:   "Apply N migrations (negative N rolls back)",
		Example: "  migrate steps 1\n  migrate steps -- -1",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[0])
			if err != nil || n == 0 {
				return fmt.Errorf("steps: %q is not a non-zero integer", args[0])
			}
			url, err := dsn()
			if err != nil {
				return err
			}
			return ignoreNoChange(cmd, migrate.Steps(url, n))
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the applied schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			url, err := dsn()
			if err != nil {
				return err
			}
			st, err := migrate.Version(url)
			if err != nil {
				return err
			}
			if st.Empty {
				cmd.Println("no migrations applied")
				return nil
			}
			cmd.Printf("version %d (dirty: %t)\n", st.Version, st.Dirty)
			return nil
		},
	}
}
