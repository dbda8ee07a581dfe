// Package intake implements the first pipeline stage: discovering files in
// the batch source directory and recording one ingest item per unique
// content hash.
package intake

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"github.com/enliterate-io/enliterate/internal/models"
	"github.com/enliterate-io/enliterate/internal/pipeline/core"
	"github.com/enliterate-io/enliterate/internal/pipeline/shared"
)

// Stage discovers files and creates ingest items.
type Stage struct {
	shared.BaseStage
}

// New creates the intake stage job.
func New(deps core.Dependencies) *Stage {
	return &Stage{BaseStage: shared.NewBaseStage(models.StageName(models.StageIntake), models.StageIntake, deps)}
}

// Execute walks the batch source directory. Re-runs are idempotent: items
// already recorded for a content hash are skipped, so a crashed intake picks
// up where it left off.
func (s *Stage) Execute(ctx context.Context, run *models.PipelineRun, batch *models.IngestBatch) (*core.Result, error) {
	result := core.NewResult()
	root := batch.SourceDescriptor
	if root == "" {
		return nil, core.Errorf(core.KindInvalidInput, s.StageIndex, "batch %s has no source descriptor", batch.ID)
	}
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return nil, core.Errorf(core.KindInvalidInput, s.StageIndex, "batch source %q is not a readable directory", root)
	}

	if err := s.Deps.Batches.UpdateStatus(ctx, batch.ID, models.BatchStatusTriaging); err != nil {
		return nil, core.WrapError(s.StageIndex, err)
	}

	maxSize := s.Deps.Config.Pipeline.MaxItemSizeBytes
	pause := s.PauseCheck(run.ID)

	err = filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		if paused, perr := pause(ctx); perr == nil && paused {
			return shared.ErrPaused
		}

		fi, err := entry.Info()
		if err != nil {
			return err
		}
		if maxSize > 0 && fi.Size() > maxSize {
			s.Logger.Warn("skipping oversized item",
				slog.String("path", path), slog.Int64("size", fi.Size()))
			result.Add("items_skipped", 1)
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		sum := sha256.Sum256(content)
		hash := hex.EncodeToString(sum[:])

		exists, err := s.Deps.Items.ExistsByHash(ctx, batch.ID, hash)
		if err != nil {
			return err
		}
		if exists {
			result.Add("items_duplicate", 1)
			return nil
		}

		item := &models.IngestItem{
			BatchID:       batch.ID,
			SourcePath:    path,
			ContentHash:   hash,
			SizeBytes:     fi.Size(),
			MIMEType:      detectMIME(path, content),
			Content:       string(content),
			ContentSample: models.SampleOf(string(content)),
			TriageStatus:  models.StageStatusPending,
		}
		if err := s.Deps.Items.Create(ctx, item); err != nil {
			return err
		}
		result.Add("items_created", 1)
		return nil
	})
	if err != nil {
		if err == shared.ErrPaused {
			return result, err
		}
		return result, core.WrapError(s.StageIndex, fmt.Errorf("walking batch source: %w", err))
	}

	result.ItemsUpdated = int(result.Get("items_created"))
	return result, nil
}

func detectMIME(path string, content []byte) string {
	if byExt := mime.TypeByExtension(filepath.Ext(path)); byExt != "" {
		return byExt
	}
	return http.DetectContentType(content)
}
