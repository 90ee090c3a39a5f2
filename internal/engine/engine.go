// Package engine owns the loaded speech-to-text model. Exactly one Engine
// exists per process; it is constructed in main and injected into the
// request path so tests can substitute a fake backend.
package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/openasr/parakeetd/internal/apierrors"
)

// State is the engine lifecycle state.
type State int32

const (
	StateUnloaded State = iota
	StateLoading
	StateReady
	StateUnloading
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateUnloading:
		return "unloading"
	default:
		return "unloaded"
	}
}

// Backend is the model runtime boundary. Infer returns the runtime's raw
// result payload, whose shape is not stable across runtime versions; the
// engine normalizes it exactly once.
type Backend interface {
	Load(ctx context.Context) error
	Infer(ctx context.Context, paths []string, batchSize int) (json.RawMessage, error)
	Unload(ctx context.Context) error
}

// Config carries engine construction options.
type Config struct {
	ModelName string
	// WarmupDir holds fixture audio files used for the post-load warmup
	// pass. Empty or missing directory means warmup is skipped.
	WarmupDir string
}

// Engine wraps a Backend with the load/unload state machine and a stable
// transcription contract.
type Engine struct {
	backend Backend
	cfg     Config
	logger  *slog.Logger

	mu         sync.RWMutex
	state      atomic.Int32
	lastWarmup WarmupOutcome
}

// New constructs an unloaded engine.
func New(backend Backend, cfg Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{backend: backend, cfg: cfg, logger: logger}
}

// State returns a snapshot of the lifecycle state. The state is read
// atomically, so it never blocks behind an in-progress load or unload.
// The snapshot can go stale immediately; callers must still handle
// ModelNotLoadedError from Transcribe.
func (e *Engine) State() State {
	return State(e.state.Load())
}

func (e *Engine) setState(s State) {
	e.state.Store(int32(s))
}

// IsLoaded reports whether the engine is READY. Snapshot semantics apply.
func (e *Engine) IsLoaded() bool { return e.State() == StateReady }

// Load brings the model into memory. It is idempotent: a call while READY
// returns immediately, and concurrent callers serialize on the state lock
// so the underlying load executes exactly once. On failure the state
// reverts to UNLOADED so a later explicit retry is possible.
func (e *Engine) Load(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.State() == StateReady {
		e.logger.Info("model already loaded", "model", e.cfg.ModelName)
		return nil
	}

	e.setState(StateLoading)
	e.logger.Info("loading model", "model", e.cfg.ModelName)

	if err := e.backend.Load(ctx); err != nil {
		e.setState(StateUnloaded)
		return apierrors.Model("Failed to load model '"+e.cfg.ModelName+"'", err)
	}

	outcome := e.warmupLocked(ctx)
	e.lastWarmup = outcome
	switch outcome.Status {
	case WarmupSucceeded:
		e.logger.Info("model warmup completed", "files", outcome.Files)
	case WarmupSkipped:
		e.logger.Info("model warmup skipped, no fixture files found", "dir", e.cfg.WarmupDir)
	case WarmupFailed:
		e.logger.Warn("model warmup failed (non-critical)", "error", outcome.Err)
	}

	// READY is published last so requests keep failing fast until warmup
	// has run too.
	e.setState(StateReady)
	e.logger.Info("model loaded", "model", e.cfg.ModelName)
	return nil
}

// Transcribe converts the audio at each path to text, returning one string
// per input in input order. A non-READY engine fails immediately with
// ModelNotLoadedError; the call never waits for an in-progress load. The
// READY re-check and the backend call happen under the same read lock so a
// concurrent Unload cannot interleave.
func (e *Engine) Transcribe(ctx context.Context, paths []string, batchSize int) ([]string, error) {
	if len(paths) == 0 {
		return nil, nil
	}
	if batchSize <= 0 {
		batchSize = 1
	}

	// Atomic gate: Load holds the write lock for the whole backend load
	// plus warmup, so acquiring the read lock here would block callers
	// behind it instead of failing fast.
	if e.State() != StateReady {
		return nil, apierrors.NotLoaded()
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.State() != StateReady {
		return nil, apierrors.NotLoaded()
	}
	return e.inferLocked(ctx, paths, batchSize)
}

// inferLocked runs the backend call and normalization. Callers must hold
// e.mu in at least read mode with state == READY.
func (e *Engine) inferLocked(ctx context.Context, paths []string, batchSize int) ([]string, error) {
	raw, err := e.backend.Infer(ctx, paths, batchSize)
	if err != nil {
		return nil, apierrors.Model("Transcription failed", err)
	}
	texts, err := NormalizeOutput(raw, len(paths))
	if err != nil {
		return nil, apierrors.Model("Transcription produced an unreadable result", err)
	}
	return texts, nil
}

// Unload releases the model. Only meaningful from READY; an already
// unloaded engine is a no-op. In-flight transcriptions finish first since
// they hold the read lock.
func (e *Engine) Unload(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.State() == StateUnloaded {
		return nil
	}

	e.setState(StateUnloading)
	e.logger.Info("unloading model", "model", e.cfg.ModelName)

	err := e.backend.Unload(ctx)
	e.setState(StateUnloaded)
	if err != nil {
		return apierrors.Model("Failed to unload model", err)
	}
	e.logger.Info("model unloaded", "model", e.cfg.ModelName)
	return nil
}

// LastWarmup returns the outcome of the most recent post-load warmup.
func (e *Engine) LastWarmup() WarmupOutcome {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastWarmup
}

// WarmupStatus classifies the post-load warmup pass.
type WarmupStatus int

const (
	WarmupSkipped WarmupStatus = iota
	WarmupSucceeded
	WarmupFailed
)

func (s WarmupStatus) String() string {
	switch s {
	case WarmupSucceeded:
		return "succeeded"
	case WarmupFailed:
		return "failed"
	default:
		return "skipped"
	}
}

// WarmupOutcome records what the warmup pass did. It is logged, never
// propagated: a failed warmup does not revert READY.
type WarmupOutcome struct {
	Status WarmupStatus
	Files  int
	Err    error
}

func (e *Engine) warmupLocked(ctx context.Context) WarmupOutcome {
	if e.cfg.WarmupDir == "" {
		return WarmupOutcome{Status: WarmupSkipped}
	}
	entries, err := os.ReadDir(e.cfg.WarmupDir)
	if err != nil {
		return WarmupOutcome{Status: WarmupSkipped}
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch filepath.Ext(entry.Name()) {
		case ".wav", ".flac":
			files = append(files, filepath.Join(e.cfg.WarmupDir, entry.Name()))
		}
	}
	if len(files) == 0 {
		return WarmupOutcome{Status: WarmupSkipped}
	}

	if _, err := e.inferLocked(ctx, files, 1); err != nil {
		return WarmupOutcome{Status: WarmupFailed, Files: len(files), Err: err}
	}
	return WarmupOutcome{Status: WarmupSucceeded, Files: len(files)}
}
