package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/tech-arch1tect/fuelqr/app"
	"github.com/tech-arch1tect/fuelqr/config"
	"github.com/tech-arch1tect/fuelqr/database"
	"github.com/tech-arch1tect/fuelqr/services/jwt"
	"github.com/tech-arch1tect/fuelqr/services/logging"
	"github.com/tech-arch1tect/fuelqr/services/qrsession"
	"github.com/tech-arch1tect/fuelqr/services/secretbox"
	"github.com/tech-arch1tect/fuelqr/services/totp"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "fuelqr",
		Short:        "One-time QR authorization for fuel dispensing",
		SilenceUsage: true,
	}

	root.AddCommand(serveCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(purgeCmd())
	root.AddCommand(tokenCmd())
	root.AddCommand(keygenCmd())

	return root
}

func loadConfig() (*config.Config, error) {
	cfg := &config.Config{}
	if err := config.LoadConfig(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := app.NewApp().WithAutoConfig().Build()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return application.Run(ctx)
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			cfg.Database.AutoMigrate = true

			logger, err := logging.NewLoggingService(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			if _, err := database.ProvideDatabase(*cfg, database.WithModels(app.Models()...), logger); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Migrated %d model(s) on %s.\n", len(app.Models()), cfg.Database.Driver)
			return nil
		},
	}
}

func purgeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete QR sessions that expired before the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			retention, _ := cmd.Flags().GetDuration("retention")

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if retention <= 0 {
				retention = cfg.QR.PurgeRetention
			}

			logger, err := logging.NewLoggingService(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			db, err := database.ProvideDatabase(*cfg, nil, logger)
			if err != nil {
				return err
			}

			sessions, err := qrsession.NewService(cfg, db, totp.NewService(cfg.QR.TOTPInterval, logger), nil, logger)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()

			removed, err := sessions.PurgeExpired(ctx, retention)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d expired QR session(s).\n", removed)
			return nil
		},
	}
	cmd.Flags().Duration("retention", 0, "Keep sessions that expired within this window (defaults to QR_PURGE_RETENTION)")
	return cmd
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a role token for an owner, pump or administrator",
		RunE: func(cmd *cobra.Command, args []string) error {
			subject, _ := cmd.Flags().GetString("subject")
			role, _ := cmd.Flags().GetString("role")
			ttl, _ := cmd.Flags().GetDuration("ttl")

			if subject == "" {
				return fmt.Errorf("--subject is required")
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			token, err := jwt.NewService(cfg, nil).GenerateToken(subject, jwt.Role(role), ttl)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().String("subject", "", "cor_id, pump id or administrator name")
	cmd.Flags().String("role", string(jwt.RoleOwner), "owner, pump or admin")
	cmd.Flags().Duration("ttl", 24*time.Hour, "Token lifetime")
	return cmd
}

func keygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Print fresh keys and secrets as environment assignments",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			for _, name := range []string{"ENCRYPTION_KEY", "JWT_SECRET_KEY", "QR_TIMESTAMP_KEY"} {
				key, err := secretbox.GenerateKey()
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s=%s\n", name, key)
			}

			secret, err := totp.GenerateSecret("fuelqr", "qr")
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "QR_TOTP_SECRET=%s\n", secret)
			return nil
		},
	}
}
