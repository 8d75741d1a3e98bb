// Command publisherd is the thin external entry point wrapping the
// upload engine: a cobra CLI exposing `run` and `delete-all`, mirroring
// PublishManager.start/delete_all from
// original_source/publisher/worker/managers/base.py. The HTTP
// ingress/job-queue layer that would normally invoke this sits outside
// this repo's scope (see SPEC_FULL.md §1); this binary is the piece that
// remains.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/sitehost/publisher/internal/backend"
	ftpbackend "github.com/sitehost/publisher/internal/backend/ftp"
	sftpbackend "github.com/sitehost/publisher/internal/backend/sftp"
	"github.com/sitehost/publisher/internal/collector"
	"github.com/sitehost/publisher/internal/config"
	"github.com/sitehost/publisher/internal/engine"
	"github.com/sitehost/publisher/internal/fserrors"
	"github.com/sitehost/publisher/internal/plog"
)

var (
	configPath   string
	recoveryPath string
	verbose      bool
)

// verboseFlags is built directly on pflag (rather than through cobra's
// embedded copy) so --verbose is available before cobra's own flag
// parsing runs, matching the rclone CLI's pattern of a pflag.FlagSet
// seeded from os.Args for early logging setup.
var verboseFlags = pflag.NewFlagSet("publisherd-early", pflag.ContinueOnError)

func main() {
	verboseFlags.BoolVar(&verbose, "verbose", false, "enable debug logging")
	verboseFlags.ParseErrorsWhitelist.UnknownFlags = true
	_ = verboseFlags.Parse(os.Args[1:])
	if verbose {
		logrus.StandardLogger().SetLevel(logrus.DebugLevel)
	}

	root := &cobra.Command{
		Use:   "publisherd",
		Short: "Manifest-based incremental site publisher",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to the job's TOML config file")
	root.PersistentFlags().BoolVar(&verbose, "verbose", verbose, "enable debug logging")
	_ = root.MarkPersistentFlagRequired("config")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Publish the local site tree to the configured remote",
		RunE:  runRun,
	}
	runCmd.Flags().StringVar(&recoveryPath, "recovery", "", "path to a recovery blob from a previous failed run")

	deleteAllCmd := &cobra.Command{
		Use:   "delete-all",
		Short: "Erase the entire configured remote destination",
		RunE:  runDeleteAll,
	}

	root.AddCommand(runCmd, deleteAllCmd)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadJob(cfg *config.Config) (*engine.Job, error) {
	var b backend.Backend
	switch cfg.Backend {
	case config.BackendFTP, config.BackendFTPS:
		opts := ftpbackend.Options{
			Host:        cfg.Host,
			Port:        cfg.Port,
			User:        cfg.User,
			Pass:        cfg.Pass,
			ExplicitTLS: cfg.Backend == config.BackendFTPS,
		}
		b = backend.WithRetry(ftpbackend.NewBoosted(opts), "ftp:"+cfg.Host)
	case config.BackendSFTP:
		opts := sftpbackend.Options{
			Host:     cfg.Host,
			Port:     cfg.Port,
			User:     cfg.User,
			Pass:     cfg.SFTP.Pass,
			UseAgent: cfg.SFTP.UseAgent,
		}
		if cfg.SFTP.KeyFile != "" {
			pem, err := os.ReadFile(cfg.SFTP.KeyFile)
			if err != nil {
				return nil, fmt.Errorf("read key file: %w", err)
			}
			opts.KeyPEM = pem
			opts.KeyPassphrase = cfg.SFTP.KeyPassphrase
		}
		b = backend.WithRetry(sftpbackend.New(opts), "sftp:"+cfg.Host)
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}

	return &engine.Job{
		Backend:   b,
		LocalRoot: cfg.LocalRoot,
		Writeable: cfg.Writeable,
		Cache:     cfg.Cache,
		Permissions: engine.PermissionMap{
			Default:   cfg.Permissions.Default,
			Writeable: cfg.Permissions.Writeable,
			Cache:     cfg.Permissions.Cache,
		},
		UploadConcurrency: cfg.UploadConcurrency,
		OnPhase: func(p engine.Phase) {
			plog.Infof(plog.Named("publisherd"), "phase: %s", p)
		},
		OnProgress: func(p engine.Progress) {
			plog.Debugf(plog.Named("publisherd"), "progress: %.1f%%", p.Percent*100)
		},
	}, nil
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx := context.Background()

	if cfg.ArchiveURL != "" {
		c := &collector.Collector{}
		if err := c.Collect(ctx, cfg.ArchiveURL, cfg.LocalRoot); err != nil {
			return fmt.Errorf("collect archive: %w", err)
		}
	}

	job, err := loadJob(cfg)
	if err != nil {
		return err
	}

	var recovery *engine.RecoveryState
	if recoveryPath != "" {
		data, err := os.ReadFile(recoveryPath)
		if err != nil {
			return fmt.Errorf("read recovery blob: %w", err)
		}
		recovery, err = engine.ParseRecovery(data)
		if err != nil {
			return fmt.Errorf("parse recovery blob: %w", err)
		}
	}

	err = job.Start(ctx, recovery)
	if err != nil {
		var retryErr *fserrors.RetryError
		if errors.As(err, &retryErr) {
			nextPath := recoveryPath
			if nextPath == "" {
				nextPath = configPath + ".recovery"
			}
			if werr := os.WriteFile(nextPath, retryErr.Blob, 0o600); werr != nil {
				return fmt.Errorf("publish failed (%v) and recovery blob could not be written: %w", err, werr)
			}
			return fmt.Errorf("publish failed, recovery blob written to %s: %w", nextPath, err)
		}
		return err
	}
	return nil
}

func runDeleteAll(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	job, err := loadJob(cfg)
	if err != nil {
		return err
	}
	return job.DeleteAll(context.Background())
}
