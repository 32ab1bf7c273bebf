package stagedetail

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"ditatrack/internal/progress"
	"ditatrack/internal/status"
)

// Source returns raw stage payloads; *status.Client implements it.
type Source interface {
	StageDetailRaw(ctx context.Context, jobID string, idx progress.StageIndex) ([]byte, error)
}

// Loader fetches stage payloads on demand. It never touches job state.
type Loader struct {
	Source Source
	Logger *slog.Logger
}

// Load fetches, validates and decodes the payload of stage idx. Payloads
// that do not match the stage schema fail with a decode FetchError.
func (l Loader) Load(ctx context.Context, jobID string, idx progress.StageIndex) (Detail, error) {
	const op = "load stage detail"
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if l.Source == nil {
		return Detail{}, fmt.Errorf("%s: no source configured", op)
	}
	if !idx.Valid() {
		return Detail{}, fmt.Errorf("%s: invalid stage %d", op, idx)
	}

	raw, err := l.Source.StageDetailRaw(ctx, jobID, idx)
	if err != nil {
		logger.Warn("stage detail fetch failed", "job_id", jobID, "stage", int(idx), "error", err)
		return Detail{}, err
	}
	if err := validate(idx, raw); err != nil {
		logger.Warn("stage detail rejected", "job_id", jobID, "stage", int(idx), "error", err)
		return Detail{}, &status.FetchError{Op: op, Kind: status.KindDecode, Err: err}
	}
	d, err := decode(jobID, idx, raw)
	if err != nil {
		return Detail{}, &status.FetchError{Op: op, Kind: status.KindDecode, Err: err}
	}
	logger.Debug("stage detail loaded", "job_id", jobID, "stage", int(idx), "bytes", len(raw))
	return d, nil
}

func validate(idx progress.StageIndex, raw []byte) error {
	schema, err := schemaFor(idx)
	if err != nil {
		return err
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("payload does not match %s schema: %w", idx.Layer(), err)
	}
	return nil
}
