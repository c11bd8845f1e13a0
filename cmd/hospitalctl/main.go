package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/hospital/appointment-scheduling/internal/appointment"
	"github.com/hospital/appointment-scheduling/internal/auth"
	"github.com/hospital/appointment-scheduling/internal/config"
	"github.com/hospital/appointment-scheduling/internal/db"
	"github.com/hospital/appointment-scheduling/internal/logging"
	"github.com/hospital/appointment-scheduling/internal/metrics"
	redisclient "github.com/hospital/appointment-scheduling/internal/redis"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "hospitalctl",
		Short:        "Operate the appointment scheduling service",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(sweepCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func connect(ctx context.Context) (config.Config, *pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, err
	}
	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, pool, nil
}

// migrationFiles uses --dir when given and the embedded schema otherwise.
func migrationFiles(cmd *cobra.Command) fs.FS {
	if dir, _ := cmd.Flags().GetString("dir"); dir != "" {
		return os.DirFS(dir)
	}
	return db.Migrations()
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			_, pool, err := connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			count, err := db.NewMigrator(pool, migrationFiles(cmd)).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "", "Read migrations from this directory instead of the built-in set")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			_, pool, err := connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, migrationFiles(cmd)).Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Fprintf(out, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "", "Read migrations from this directory instead of the built-in set")
	cmd.AddCommand(statusCmd)

	return cmd
}

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Mark every appointment still awaiting acknowledgement as delayed",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()

			cfg, pool, err := connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
			if err != nil {
				return err
			}
			defer rdb.Close()

			svc := appointment.NewService(
				appointment.NewPgRepository(pool),
				redisclient.NewRedisSlotLocker(rdb, cfg.LockTTL),
				cfg,
				appointment.WithLogger(logging.New(cfg.Env, cfg.LogLevel, "hospitalctl")),
				appointment.WithMetrics(metrics.New()),
			)

			n, err := svc.SweepDelayed(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Delayed %d appointment(s).\n", n)
			return nil
		},
	}
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for local testing",
		RunE: func(cmd *cobra.Command, args []string) error {
			sub, _ := cmd.Flags().GetString("sub")
			roleName, _ := cmd.Flags().GetString("role")
			verified, _ := cmd.Flags().GetBool("verified")
			ttl, _ := cmd.Flags().GetDuration("ttl")

			id, err := uuid.Parse(sub)
			if err != nil {
				return fmt.Errorf("--sub must be a UUID: %w", err)
			}
			role, ok := auth.ParseRole(roleName)
			if !ok {
				return fmt.Errorf("unknown role %q", roleName)
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			tok, err := auth.NewTokens([]byte(cfg.JWTSecret), cfg.JWTIssuer).
				Issue(auth.Caller{UserID: id, Role: role, EmailVerified: verified}, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().String("sub", "", "User ID the token is issued for")
	cmd.Flags().String("role", "patient", "admin, staff, doctor, nurse or patient")
	cmd.Flags().Bool("verified", true, "Whether the user's email is verified")
	cmd.Flags().Duration("ttl", 24*time.Hour, "Token lifetime")
	_ = cmd.MarkFlagRequired("sub")
	return cmd
}
