package vectorstore

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	gojson "github.com/goccy/go-json"
	"github.com/hyperjump/ruiji/internal/vector"
	"github.com/hyperjump/ruiji/pkg/utils"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, name)
}

// loadArtifacts reads the matrix and index map. Both missing means a fresh store
// (nil matrix, nil error). Anything unreadable, or a row count that disagrees with the
// index map, is an error.
func (s *Store) loadArtifacts() (*vector.Matrix, []string, error) {
	matrixPath, mapPath := s.path(MatrixFile), s.path(IndexMapFile)
	haveMatrix, haveMap := utils.FileExists(matrixPath), utils.FileExists(mapPath)
	if !haveMatrix && !haveMap {
		return nil, nil, nil
	}
	if !haveMatrix || !haveMap {
		return nil, nil, fmt.Errorf("incomplete store: %s present=%t, %s present=%t",
			MatrixFile, haveMatrix, IndexMapFile, haveMap)
	}

	f, err := os.Open(matrixPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", MatrixFile, err)
	}
	defer f.Close()
	matrix, err := vector.DecodeMatrix(bufio.NewReaderSize(f, 256*1024))
	if err != nil {
		return nil, nil, fmt.Errorf("decode %s: %w", MatrixFile, err)
	}

	data, err := os.ReadFile(mapPath)
	if err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", IndexMapFile, err)
	}
	var ids []string
	if err := gojson.Unmarshal(data, &ids); err != nil {
		return nil, nil, fmt.Errorf("decode %s: %w", IndexMapFile, err)
	}
	if len(ids) != matrix.Rows() {
		return nil, nil, fmt.Errorf("%s has %d rows but %s has %d entries",
			MatrixFile, matrix.Rows(), IndexMapFile, len(ids))
	}
	return matrix, ids, nil
}

// openIndex loads the persisted similarity index for matrix, rebuilding it when the
// artifact is missing, unreadable or ahead of the matrix, and linking any rows it lacks.
func (s *Store) openIndex(ctx context.Context, matrix *vector.Matrix) (vector.Index, error) {
	idx, err := vector.NewIndex(s.indexType, matrix, s.hnsw)
	if err != nil {
		return nil, fmt.Errorf("create %s index: %w", s.indexType, err)
	}

	name := vector.ArtifactName(s.indexType)
	if name != "" {
		if err := idx.Load(s.path(name)); err != nil {
			s.logger.Warn("similarity index unreadable, rebuilding from embeddings",
				zap.String("file", name), zap.Error(err))
			_ = idx.Close()
			return s.rebuildIndex(ctx, matrix)
		}
	} else if err := idx.Load(""); err != nil {
		_ = idx.Close()
		return nil, err
	}

	if idx.Len() > matrix.Rows() {
		s.logger.Warn("similarity index ahead of embeddings, rebuilding",
			zap.Int("index_rows", idx.Len()), zap.Int("rows", matrix.Rows()))
		_ = idx.Close()
		return s.rebuildIndex(ctx, matrix)
	}
	if missing := matrix.Rows() - idx.Len(); missing > 0 {
		if name != "" {
			s.logger.Info("linking embeddings missing from similarity index", zap.Int("rows", missing))
		}
		if err := idx.Add(ctx, rowsFrom(matrix, idx.Len())); err != nil {
			_ = idx.Close()
			return nil, fmt.Errorf("index stored embeddings: %w", err)
		}
	}
	return idx, nil
}

func (s *Store) rebuildIndex(ctx context.Context, matrix *vector.Matrix) (vector.Index, error) {
	idx, err := vector.NewIndex(s.indexType, matrix, s.hnsw)
	if err != nil {
		return nil, fmt.Errorf("create %s index: %w", s.indexType, err)
	}
	if err := idx.Add(ctx, rowsFrom(matrix, 0)); err != nil {
		_ = idx.Close()
		return nil, fmt.Errorf("rebuild %s index: %w", s.indexType, err)
	}
	return idx, nil
}

func rowsFrom(m *vector.Matrix, from int) [][]float32 {
	rows := make([][]float32, 0, m.Rows()-from)
	for i := from; i < m.Rows(); i++ {
		rows = append(rows, m.Row(i))
	}
	return rows
}

// persistLocked stages every artifact to a temp file in parallel, then renames them into
// place: similarity index first, then matrix, then index map. A crash between renames
// can leave the matrix and index map disagreeing; Init detects that and starts empty.
func (s *Store) persistLocked(ctx context.Context) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}

	type staged struct {
		final string
		tmp   string
	}
	var (
		indexStage, matrixStage, mapStage staged
	)

	g, gctx := errgroup.WithContext(ctx)
	if name := vector.ArtifactName(s.indexType); name != "" {
		indexStage.final = s.path(name)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			tmp, err := s.stageIndex(indexStage.final)
			indexStage.tmp = tmp
			return err
		})
	}
	matrixStage.final = s.path(MatrixFile)
	g.Go(func() error {
		if err := gctx.Err(); err != nil {
			return err
		}
		tmp, err := utils.StageFile(matrixStage.final, func(w io.Writer) error {
			return s.matrix.Encode(w, s.compression)
		})
		matrixStage.tmp = tmp
		return err
	})
	mapStage.final = s.path(IndexMapFile)
	g.Go(func() error {
		if err := gctx.Err(); err != nil {
			return err
		}
		tmp, err := utils.StageFile(mapStage.final, func(w io.Writer) error {
			return gojson.NewEncoder(w).Encode(s.ids)
		})
		mapStage.tmp = tmp
		return err
	})

	stages := []*staged{&indexStage, &matrixStage, &mapStage}
	cleanup := func() {
		for _, st := range stages {
			if st.tmp != "" {
				_ = os.Remove(st.tmp)
			}
		}
	}
	if err := g.Wait(); err != nil {
		cleanup()
		return err
	}

	var errs []error
	for _, st := range stages {
		if st.tmp == "" {
			continue
		}
		if err := os.Rename(st.tmp, st.final); err != nil {
			errs = append(errs, fmt.Errorf("rename %s: %w", filepath.Base(st.final), err))
			continue
		}
		st.tmp = ""
	}
	cleanup()
	utils.SyncDir(s.dir)
	return errors.Join(errs...)
}

// stageIndex saves the similarity index to a fresh temp file beside path.
func (s *Store) stageIndex(path string) (string, error) {
	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmp := f.Name()
	_ = f.Close()
	if err := s.index.Save(tmp); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("save %s index: %w", s.index.Type(), err)
	}
	return tmp, nil
}
