// Package pipeline assigns stable sequential identities to images, copies
// them into the output directory and creates the paired tag files. Every
// operation is idempotent under re-invocation so a crashed or restarted
// session picks up exactly where it left off.
package pipeline

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/widyatma/loratag/internal/observability"
)

const (
	copyAttempts   = 3
	copyRetryDelay = 500 * time.Millisecond
)

// Result holds the output paths for one processed image.
type Result struct {
	// DestPath is the renamed copy under the output directory.
	DestPath string
	// TagPath is the paired .txt tag file next to the copy.
	TagPath string
}

// Processor runs the file-processing pipeline for one output directory.
type Processor struct {
	outputDir string
	prefix    string
	logger    zerolog.Logger
	sleep     func(time.Duration)
}

// NewProcessor creates a pipeline processor. The output directory is created
// on first use.
func NewProcessor(outputDir, prefix string, logger zerolog.Logger) *Processor {
	observability.EnsureRegistered()
	return &Processor{
		outputDir: outputDir,
		prefix:    prefix,
		logger:    logger.With().Str("component", "pipeline").Logger(),
		sleep:     time.Sleep,
	}
}

// OutputDir returns the processor's output directory.
func (p *Processor) OutputDir() string {
	return p.outputDir
}

// Process assigns original its renamed identity, copies the bytes and
// ensures the paired tag file exists. existing is mutated: a new key is
// recorded as <output-base>/<filename>.
//
// Idempotency: a known key whose destination is still on disk returns the
// recorded paths without I/O. A known key whose destination vanished is
// regenerated under the SAME recorded filename so sequence numbers are never
// leaked.
func (p *Processor) Process(original string, existing map[string]string) (Result, error) {
	start := time.Now()

	key, err := filepath.Abs(original)
	if err != nil {
		key = original
	}

	if recorded, ok := existing[key]; ok {
		dest := filepath.Join(p.outputDir, filepath.Base(recorded))
		tagPath := tagFileFor(dest)
		if fileExists(dest) {
			return Result{DestPath: dest, TagPath: tagPath}, nil
		}
		// Destination vanished from disk; regenerate in place.
		p.logger.Warn().
			Str("original", key).
			Str("dest", dest).
			Msg("Recorded destination missing, regenerating under the same name")
		if err := p.materialize(key, dest); err != nil {
			return Result{}, err
		}
		return Result{DestPath: dest, TagPath: tagPath}, nil
	}

	filename := UniqueFilename(key, p.prefix, existing, p.outputDir, DefaultPadding)
	dest := filepath.Join(p.outputDir, filename)

	if err := p.materialize(key, dest); err != nil {
		return Result{}, err
	}

	existing[key] = filepath.Join(filepath.Base(p.outputDir), filename)
	observability.RecordImageProcessed(time.Since(start))

	p.logger.Debug().
		Str("original", key).
		Str("dest", dest).
		Msg("Image processed")

	return Result{DestPath: dest, TagPath: tagFileFor(dest)}, nil
}

// materialize copies the source into place and ensures the paired tag file.
func (p *Processor) materialize(src, dest string) error {
	if err := os.MkdirAll(p.outputDir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	if !fileExists(dest) {
		if err := p.CopyWithRetry(src, dest); err != nil {
			return err
		}
	}

	tagPath := tagFileFor(dest)
	if !fileExists(tagPath) {
		if err := os.WriteFile(tagPath, nil, 0o644); err != nil {
			return fmt.Errorf("create tag file %s: %w", tagPath, err)
		}
	}
	return nil
}

// CopyWithRetry copies src to dest preserving mode and modification time,
// retrying transient I/O errors a bounded number of times. Missing-file and
// permission errors fail immediately. Exhausting the retries returns
// ErrFatalIO scoped to this one file.
func (p *Processor) CopyWithRetry(src, dest string) error {
	var lastErr error
	for attempt := 1; attempt <= copyAttempts; attempt++ {
		lastErr = copyPreserving(src, dest)
		if lastErr == nil {
			return nil
		}
		if !retryable(lastErr) {
			return lastErr
		}
		if attempt < copyAttempts {
			p.logger.Warn().
				Err(lastErr).
				Str("src", src).
				Int("attempt", attempt).
				Int("max", copyAttempts).
				Msg("Copy failed, retrying")
			p.sleep(copyRetryDelay)
		}
	}
	return fmt.Errorf("%w: copy %s after %d attempts: %v", ErrFatalIO, src, copyAttempts, lastErr)
}

func copyPreserving(src, dest string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode())
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dest)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(dest)
		return err
	}

	// Preserve timestamps like a metadata-aware copy would.
	return os.Chtimes(dest, time.Now(), info.ModTime())
}

// tagFileFor swaps the image extension for .txt.
func tagFileFor(imagePath string) string {
	ext := filepath.Ext(imagePath)
	return strings.TrimSuffix(imagePath, ext) + ".txt"
}
