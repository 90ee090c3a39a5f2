// Package coordinator orchestrates the lifecycle of one transcription
// request: validate, save, normalize, infer, respond — with temp-file
// cleanup guaranteed on every exit path.
package coordinator

import (
	"context"
	"log/slog"
	"time"

	"github.com/openasr/parakeetd/internal/apierrors"
	"github.com/openasr/parakeetd/internal/audio"
	"github.com/openasr/parakeetd/internal/models"
	"github.com/openasr/parakeetd/internal/requestctx"
)

// Inspector reads audio metadata.
type Inspector interface {
	Inspect(ctx context.Context, path string) (audio.Metadata, error)
}

// Normalizer transcodes audio into the engine's required format.
type Normalizer interface {
	Convert(ctx context.Context, inputPath string) (string, error)
}

// Store persists and releases request-scoped temp files.
type Store interface {
	Save(content []byte, desiredName string) (string, error)
	Cleanup(path string)
}

// Transcriber is the engine surface the coordinator needs.
type Transcriber interface {
	Transcribe(ctx context.Context, paths []string, batchSize int) ([]string, error)
}

// Metrics receives per-request observations. Implementations must accept
// a nil receiver; the coordinator works without one.
type Metrics interface {
	RecordTranscription(status string, duration time.Duration, audioSeconds float64)
	RecordNormalization(needed bool)
}

// Coordinator wires the collaborators for the request pipeline.
type Coordinator struct {
	store      Store
	inspector  Inspector
	normalizer Normalizer
	engine     Transcriber
	metrics    Metrics
	maxBytes   int64
	logger     *slog.Logger
}

// New constructs a coordinator. metrics may be nil.
func New(store Store, inspector Inspector, normalizer Normalizer, engine Transcriber, metrics Metrics, maxBytes int64, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		store:      store,
		inspector:  inspector,
		normalizer: normalizer,
		engine:     engine,
		metrics:    metrics,
		maxBytes:   maxBytes,
		logger:     logger,
	}
}

// Handle runs the full pipeline for one upload. Validation failures
// short-circuit before any temp file exists; once files exist, the
// deferred cleanup releases every created path exactly once regardless of
// which step failed, and identical upload/converted paths are only
// deleted once.
func (c *Coordinator) Handle(ctx context.Context, content []byte, filename string, params models.TranscriptionParams) (models.TranscriptionResponse, error) {
	start := time.Now()
	requestID := requestctx.RequestID(ctx)

	safeName := audio.SanitizeFilename(filename)

	ext, err := audio.ValidateExtension(safeName)
	if err != nil {
		return models.TranscriptionResponse{}, err
	}
	if err := audio.ValidateSize(int64(len(content)), c.maxBytes); err != nil {
		return models.TranscriptionResponse{}, err
	}

	uploadPath, err := c.store.Save(content, safeName)
	if err != nil {
		return models.TranscriptionResponse{}, err
	}

	var tempPaths []string
	tempPaths = append(tempPaths, uploadPath)
	defer func() {
		seen := make(map[string]struct{}, len(tempPaths))
		for _, p := range tempPaths {
			if _, dup := seen[p]; dup {
				continue
			}
			seen[p] = struct{}{}
			c.store.Cleanup(p)
		}
	}()

	resp, meta, err := c.process(ctx, uploadPath, ext, &tempPaths)
	c.observe(err, time.Since(start), meta.DurationSeconds)
	if err != nil {
		return models.TranscriptionResponse{}, err
	}

	c.logger.Info("transcription complete",
		"request_id", requestID,
		"model", params.Model,
		"filename", safeName,
		"audio_seconds", meta.DurationSeconds,
		"text_length", len(resp.Text),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return resp, nil
}

// process covers the steps that run after temp files exist. Additional
// temp paths it creates are appended to tempPaths so the caller's deferred
// cleanup owns them even when a later step fails.
func (c *Coordinator) process(ctx context.Context, uploadPath, ext string, tempPaths *[]string) (models.TranscriptionResponse, audio.Metadata, error) {
	meta, err := c.inspector.Inspect(ctx, uploadPath)
	if err != nil {
		return models.TranscriptionResponse{}, audio.Metadata{}, err
	}

	inferPath := uploadPath
	needsNorm := audio.NeedsNormalization(ext, meta)
	if c.metrics != nil {
		c.metrics.RecordNormalization(needsNorm)
	}
	if needsNorm {
		converted, err := c.normalizer.Convert(ctx, uploadPath)
		if converted != "" {
			*tempPaths = append(*tempPaths, converted)
		}
		if err != nil {
			return models.TranscriptionResponse{}, meta, err
		}
		inferPath = converted
	}

	texts, err := c.engine.Transcribe(ctx, []string{inferPath}, 1)
	if err != nil {
		if _, typed := apierrors.As(err); !typed {
			err = apierrors.Model("Transcription failed", err)
		}
		return models.TranscriptionResponse{}, meta, err
	}

	text := ""
	if len(texts) > 0 {
		text = texts[0]
	}
	return models.NewTranscriptionResponse(text), meta, nil
}

func (c *Coordinator) observe(err error, elapsed time.Duration, audioSeconds float64) {
	if c.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.metrics.RecordTranscription(status, elapsed, audioSeconds)
}
