package audio

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/openasr/parakeetd/internal/apierrors"
	"github.com/openasr/parakeetd/internal/procexec"
)

// Normalizer converts arbitrary input audio into the engine's required
// format (mono, 16 kHz, signed 16-bit little-endian PCM wav) by invoking
// ffmpeg. Output always goes to a fresh path; the input is never touched.
type Normalizer struct {
	ffmpegBin string
	timeout   time.Duration
	logger    *slog.Logger
}

// NewNormalizer builds a normalizer. ffmpegBin defaults to "ffmpeg" on
// PATH when empty.
func NewNormalizer(ffmpegBin string, timeout time.Duration, logger *slog.Logger) *Normalizer {
	if ffmpegBin == "" {
		ffmpegBin = "ffmpeg"
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{ffmpegBin: ffmpegBin, timeout: timeout, logger: logger}
}

// Convert transcodes inputPath and returns the converted file's path,
// which lives next to the input inside the managed temp directory. A
// non-zero ffmpeg exit becomes a ProcessingError carrying the stderr tail.
func (n *Normalizer) Convert(ctx context.Context, inputPath string) (string, error) {
	ext := filepath.Ext(inputPath)
	outputPath := strings.TrimSuffix(inputPath, ext) + "_converted." + TargetFormat

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	start := time.Now()
	result, err := procexec.Run(ctx, procexec.Command{
		Binary: n.ffmpegBin,
		Args: []string{
			"-i", inputPath,
			"-ar", strconv.Itoa(TargetSampleRate),
			"-ac", strconv.Itoa(TargetChannels),
			"-c:a", "pcm_s16le",
			"-y",
			outputPath,
		},
	})
	if err != nil {
		msg := "Audio conversion failed"
		if result != nil {
			if tail := result.StderrTail(5); tail != "" {
				msg = fmt.Sprintf("Audio conversion failed: %s", tail)
			}
		}
		// Return the output path so the caller can clean up a partial file.
		return outputPath, apierrors.Processing(msg, err)
	}

	n.logger.Info("converted audio",
		"input", inputPath,
		"output", outputPath,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return outputPath, nil
}
