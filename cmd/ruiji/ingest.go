package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/hyperjump/ruiji/internal/cli"
	"github.com/hyperjump/ruiji/internal/indexer"
	"github.com/hyperjump/ruiji/internal/models"
	rjerr "github.com/hyperjump/ruiji/pkg/errors"
)

// ingestBatchSize bounds each request in --server mode.
const ingestBatchSize = 500

func newIngestCmd(opts *rootOptions) *cobra.Command {
	var (
		exts      []string
		jsonLines bool
		stdinFmt  string
	)
	cmd := &cobra.Command{
		Use:   "ingest [flags] <file-or-directory>...",
		Short: "Embed and index item files",
		Long: `Embed and index items from JSON, JSON Lines or CSV files.

A file holds a JSON array of items, an object with an "items" array, one item per
line (.jsonl), or a CSV table with a header row (.csv) whose uniq_id, title,
description and categories columns fill the item and whose cells become its metadata.
Directories are walked recursively for the configured extensions.
Use "-" to read items from stdin in the format given by --input-format.`,
		Example: `  ruiji ingest catalogue.json
  ruiji ingest products.csv
  ruiji ingest ./drops --ext .jsonl
  cat items.json | ruiji ingest -
  cat products.csv | ruiji ingest - --input-format csv`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if jsonLines {
				stdinFmt = string(indexer.FormatJSONLines)
			}
			format, err := indexer.ParseFormat(stdinFmt)
			if err != nil {
				return err
			}
			return runIngest(cmd, opts, args, exts, format)
		},
	}
	cmd.Flags().StringSliceVar(&exts, "ext", nil, "file extensions to ingest from directories (default from config)")
	cmd.Flags().StringVar(&stdinFmt, "input-format", "json", "stdin item format: json, jsonl or csv")
	cmd.Flags().BoolVar(&jsonLines, "jsonl", false, "stdin holds one item per line (same as --input-format jsonl)")
	return cmd
}

func runIngest(cmd *cobra.Command, opts *rootOptions, paths, exts []string, stdinFormat indexer.Format) error {
	format, err := opts.outputFormat()
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(cmd)
	defer cancel()

	stdinItems := func() ([]models.ItemInput, error) {
		return readStdinItems(cmd.InOrStdin(), stdinFormat)
	}
	var ingest func(ctx context.Context, path string, exts []string) (*models.UpsertResult, error)
	if opts.serverURL != "" {
		client := cli.NewClient(opts.serverURL)
		if len(exts) == 0 {
			exts = []string{".json", ".jsonl", ".csv"}
		}
		ingest = func(ctx context.Context, path string, exts []string) (*models.UpsertResult, error) {
			return ingestRemote(ctx, client, stdinItems, path, exts)
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
		if len(exts) == 0 {
			exts = cfg.Watch.Extensions
		}
		ingest = func(ctx context.Context, path string, exts []string) (*models.UpsertResult, error) {
			return ingestLocal(ctx, c.Indexer, stdinItems, path, exts)
		}
	}

	total := &models.UpsertResult{}
	for _, path := range paths {
		res, err := ingest(ctx, path, indexer.NormalizeExtensions(exts))
		if err != nil {
			if opts.serverURL != "" {
				return remoteError("ingest "+path, opts.serverURL, err)
			}
			return fmt.Errorf("ingest %s: %w", path, err)
		}
		total.Merge(res)
	}
	return cli.WriteIngestResult(cmd.OutOrStdout(), total, format)
}

func ingestLocal(ctx context.Context, idx *indexer.Indexer, stdin func() ([]models.ItemInput, error), path string, exts []string) (*models.UpsertResult, error) {
	if path == "-" {
		items, err := stdin()
		if err != nil {
			return nil, err
		}
		return idx.Ingest(ctx, items)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return idx.IngestDirectory(ctx, path, exts)
	}
	// A file named explicitly is ingested whatever its extension.
	return idx.IngestFile(ctx, path, nil)
}

func ingestRemote(ctx context.Context, client *cli.Client, stdin func() ([]models.ItemInput, error), path string, exts []string) (*models.UpsertResult, error) {
	if path == "-" {
		items, err := stdin()
		if err != nil {
			return nil, err
		}
		return sendBatches(ctx, client, items)
	}
	files, err := itemFiles(path, exts)
	if err != nil {
		return nil, err
	}
	total := &models.UpsertResult{}
	for _, f := range files {
		items, err := indexer.ReadItems(f)
		if err != nil {
			return nil, rjerr.Wrap(err, rjerr.CodeIngestBatchInvalid, "read item file", rjerr.Field("path", f))
		}
		if len(items) == 0 {
			continue
		}
		res, err := sendBatches(ctx, client, items)
		if err != nil {
			return nil, err
		}
		total.Merge(res)
	}
	return total, nil
}

func sendBatches(ctx context.Context, client *cli.Client, items []models.ItemInput) (*models.UpsertResult, error) {
	total := &models.UpsertResult{}
	for start := 0; start < len(items); start += ingestBatchSize {
		end := min(start+ingestBatchSize, len(items))
		res, err := client.Ingest(ctx, items[start:end])
		if err != nil {
			return nil, err
		}
		total.Merge(res)
	}
	return total, nil
}

// itemFiles returns path itself for a file, or the files under a directory whose
// extension is in exts.
func itemFiles(path string, exts []string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}
	var files []string
	err = filepath.WalkDir(path, func(p string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || !indexer.MatchExtension(p, exts) {
			return nil
		}
		files = append(files, p)
		return nil
	})
	return files, err
}

func readStdinItems(r io.Reader, format indexer.Format) ([]models.ItemInput, error) {
	items, err := indexer.DecodeItems(r, format)
	if err != nil {
		return nil, rjerr.Wrap(err, rjerr.CodeIngestBatchInvalid, "parse stdin items")
	}
	return items, nil
}
