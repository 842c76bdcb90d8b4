package indexer

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	gojson "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/hyperjump/ruiji/internal/models"
	rjerr "github.com/hyperjump/ruiji/pkg/errors"
)

// fileStamp is what IngestFile compares to skip unchanged files.
type fileStamp struct {
	mtime int64
	size  int64
}

// Format names an item file encoding.
type Format string

const (
	// FormatJSON is a JSON array of items or an object with an "items" array.
	FormatJSON Format = "json"
	// FormatJSONLines holds one JSON item per line.
	FormatJSONLines Format = "jsonl"
	// FormatCSV is a table with a header row, one item per row.
	FormatCSV Format = "csv"
)

// ParseFormat maps a format name to a Format. The empty string means JSON.
func ParseFormat(name string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), "."))); f {
	case "":
		return FormatJSON, nil
	case FormatJSON, FormatJSONLines, FormatCSV:
		return f, nil
	default:
		return "", fmt.Errorf("unknown item format: %s (supported: json, jsonl, csv)", name)
	}
}

// FormatOf picks the format for path from its extension. Unknown extensions are JSON.
func FormatOf(path string) Format {
	if f, err := ParseFormat(filepath.Ext(path)); err == nil {
		return f
	}
	return FormatJSON
}

// ReadItems decodes an item file in the format its extension names.
func ReadItems(path string) ([]models.ItemInput, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return DecodeItems(f, FormatOf(path))
}

// DecodeItems decodes items from r.
func DecodeItems(r io.Reader, format Format) ([]models.ItemInput, error) {
	switch format {
	case FormatJSONLines:
		return decodeLines(r)
	case FormatCSV:
		return decodeCSV(r)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return decodeDocument(data)
}

func decodeLines(r io.Reader) ([]models.ItemInput, error) {
	var items []models.ItemInput
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		b := bytes.TrimSpace(sc.Bytes())
		if len(b) == 0 {
			continue
		}
		var it models.ItemInput
		if err := gojson.Unmarshal(b, &it); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		items = append(items, it)
	}
	return items, sc.Err()
}

func decodeDocument(data []byte) ([]models.ItemInput, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}
	if data[0] == '[' {
		var items []models.ItemInput
		if err := gojson.Unmarshal(data, &items); err != nil {
			return nil, err
		}
		return items, nil
	}
	var req models.IngestRequest
	if err := gojson.Unmarshal(data, &req); err != nil {
		return nil, err
	}
	return req.Items, nil
}

// IngestFile reads an item file and ingests it. If allowedExts is non-empty, the file's
// extension must be in the list (case-insensitive). A file already ingested with the
// same mtime and size is skipped and returns a nil result.
func (idx *Indexer) IngestFile(ctx context.Context, path string, allowedExts []string) (*models.UpsertResult, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	if !MatchExtension(absPath, allowedExts) {
		return nil, rjerr.Errorf(rjerr.CodeIngestBatchInvalid, "extension %q not in allowed list", filepath.Ext(absPath))
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("not a regular file: %s", absPath)
	}
	stamp := fileStamp{mtime: info.ModTime().UnixNano(), size: info.Size()}
	idx.mu.Lock()
	prev, seen := idx.files[absPath]
	idx.mu.Unlock()
	if seen && prev == stamp {
		idx.logger.Debug("indexer skipping unchanged file", zap.String("path", absPath))
		return nil, nil
	}

	items, err := ReadItems(absPath)
	if err != nil {
		return nil, rjerr.Wrap(err, rjerr.CodeIngestBatchInvalid, "read item file", rjerr.Field("path", absPath))
	}
	result, err := idx.Ingest(ctx, items)
	if err != nil {
		return nil, err
	}

	idx.mu.Lock()
	idx.files[absPath] = stamp
	idx.mu.Unlock()
	idx.logger.Info("item file ingested",
		zap.String("path", absPath),
		zap.Int("accepted", result.Accepted),
		zap.Int("rejected", result.Rejected))
	return result, nil
}

// IngestDirectory walks dir recursively and ingests each regular file whose extension is
// in allowedExts (all files when empty). Files that fail are logged and skipped. Returns
// the merged result of the ingested files.
func (idx *Indexer) IngestDirectory(ctx context.Context, dir string, allowedExts []string) (*models.UpsertResult, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absDir)
	if err != nil {
		return nil, fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", absDir)
	}
	total := &models.UpsertResult{}
	err = filepath.WalkDir(absDir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if !MatchExtension(path, allowedExts) {
			return nil
		}
		// Resolve symlinks so we only ingest regular files
		finfo, statErr := os.Stat(path)
		if statErr != nil || !finfo.Mode().IsRegular() {
			return nil
		}
		res, ingestErr := idx.IngestFile(ctx, path, allowedExts)
		if ingestErr != nil {
			idx.logger.Warn("item file skipped", zap.String("path", path), zap.Error(ingestErr))
			return nil
		}
		total.Merge(res)
		return nil
	})
	return total, err
}
