package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dukerupert/picky/internal/backend"
	"github.com/dukerupert/picky/internal/backup"
	"github.com/dukerupert/picky/internal/secrets"
)

const (
	s3AccessKeySecret = "s3-access-key"
	s3SecretKeySecret = "s3-secret-key"
)

func newBackupManager(ctx context.Context, b backend.Backend, provider secrets.Provider) (*backup.Manager, error) {
	passphrase, err := secrets.Optional(ctx, provider, cfg.Backup.PassphraseSecret)
	if err != nil {
		return nil, err
	}
	accessKey, err := secrets.Optional(ctx, provider, s3AccessKeySecret)
	if err != nil {
		return nil, err
	}
	secretKey, err := secrets.Optional(ctx, provider, s3SecretKeySecret)
	if err != nil {
		return nil, err
	}

	return backup.NewManager(backup.Config{
		S3: backup.S3Config{
			Endpoint:  cfg.Backup.Endpoint,
			Bucket:    cfg.Backup.Bucket,
			Region:    cfg.Backup.Region,
			AccessKey: accessKey,
			SecretKey: secretKey,
		},
		Prefix:   cfg.Backup.Prefix,
		Interval: cfg.Backup.Interval,
		Keep:     cfg.Backup.Keep,
	}, b, passphrase, logger), nil
}

// withBackupManager opens the configured backend and a backup manager over
// it for the duration of fn.
func withBackupManager(ctx context.Context, fn func(*backup.Manager) error) error {
	provider, err := secretsProvider(cfg)
	if err != nil {
		return err
	}
	b, err := openBackend(ctx, cfg.Backend, cfg, provider)
	if err != nil {
		return err
	}
	defer b.Close()

	mgr, err := newBackupManager(ctx, b, provider)
	if err != nil {
		return err
	}
	return fn(mgr)
}

func newBackupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Upload an encrypted snapshot of all lists to S3",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackupManager(cmd.Context(), func(m *backup.Manager) error {
				key, err := m.RunNow(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), key)
				return nil
			})
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List stored backups, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackupManager(cmd.Context(), func(m *backup.Manager) error {
				keys, err := m.List(cmd.Context())
				if err != nil {
					return err
				}
				for _, k := range keys {
					fmt.Fprintln(cmd.OutOrStdout(), k)
				}
				return nil
			})
		},
	})
	return cmd
}

func newRestoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore [key]",
		Short: "Replace all lists with a backup (the latest if no key is given)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var key string
			if len(args) == 1 {
				key = args[0]
			}
			return withBackupManager(cmd.Context(), func(m *backup.Manager) error {
				snap, err := m.Restore(cmd.Context(), key)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Restored %d items from %s\n", snap.Count(), snap.CreatedAt.Format("2006-01-02 15:04:05"))
				return nil
			})
		},
	}
}
