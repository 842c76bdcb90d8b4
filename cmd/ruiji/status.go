package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hyperjump/ruiji/internal/cli"
	"github.com/hyperjump/ruiji/internal/config"
	"github.com/hyperjump/ruiji/internal/index"
	"github.com/hyperjump/ruiji/internal/models"
	"github.com/hyperjump/ruiji/internal/storage"
)

func newStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show index status and configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, opts)
		},
	}
}

func runStatus(cmd *cobra.Command, opts *rootOptions) error {
	format, err := opts.outputFormat()
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(cmd)
	defer cancel()

	var status *models.StatusResponse
	if opts.serverURL != "" {
		status, err = cli.NewClient(opts.serverURL).Status(ctx)
		if err != nil {
			return remoteError("status", opts.serverURL, err)
		}
	} else {
		cfg, _, logger, err := opts.setup()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()
		c, err := initializeComponents(cfg, logger)
		if err != nil {
			return err
		}
		defer c.Close()
		openIndex(ctx, c, logger)
		status = localStatus(cfg, c.Manager, logger)
	}
	return cli.WriteStatus(cmd.OutOrStdout(), status, format)
}

// localStatus builds the status report the server's /api/status returns.
func localStatus(cfg *config.Config, manager *index.Manager, logger *zap.Logger) *models.StatusResponse {
	status := &models.StatusResponse{
		Index:       manager.Stats(),
		Config:      cfg.Summary(),
		WatchedDirs: cfg.Watch.Directories,
	}
	if n, err := storage.DiskUsageBytes(cfg.StoragePaths()...); err == nil {
		status.DiskUsageBytes = n
	} else {
		logger.Warn("status: disk usage failed", zap.Error(err))
	}
	return status
}
