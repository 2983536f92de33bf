// Package assemble concatenates synthesized chunks into one MP3 artifact on local scratch storage.
package assemble

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/book-expert/logger"
	"github.com/book-expert/podcast-service/internal/dialogue"
	"github.com/dustin/go-humanize"
	"github.com/gofrs/flock"
	"github.com/google/uuid"
)

const (
	// DefaultMaxAge is how long a scratch artifact survives before a later run sweeps it.
	DefaultMaxAge = 24 * time.Hour

	artifactGlob   = "*.mp3"
	artifactSuffix = ".mp3"
	sweepLockName  = ".sweep.lock"

	filePermissions = 0o600
	dirPermissions  = 0o750
)

// Static errors.
var (
	ErrChunkCountMismatch = errors.New("chunk count does not match dialogue lines")
	ErrScratchDirEmpty    = errors.New("scratch directory cannot be empty")
)

// Artifact is the assembled audio and its transcript.
type Artifact struct {
	Path       string
	Audio      []byte
	Transcript string
}

// Assembler writes artifacts into a scratch directory and sweeps stale ones.
type Assembler struct {
	scratchDir string
	maxAge     time.Duration
	now        func() time.Time
	log        *logger.Logger
}

// Option customizes an Assembler.
type Option func(*Assembler)

// WithMaxAge overrides the sweep threshold.
func WithMaxAge(maxAge time.Duration) Option {
	return func(a *Assembler) {
		if maxAge > 0 {
			a.maxAge = maxAge
		}
	}
}

// WithClock overrides the time source used by the sweep.
func WithClock(now func() time.Time) Option {
	return func(a *Assembler) {
		if now != nil {
			a.now = now
		}
	}
}

// New creates an Assembler writing to scratchDir.
func New(scratchDir string, log *logger.Logger, opts ...Option) (*Assembler, error) {
	if scratchDir == "" {
		return nil, ErrScratchDirEmpty
	}

	err := os.MkdirAll(scratchDir, dirPermissions)
	if err != nil {
		return nil, fmt.Errorf("failed to create scratch directory: %w", err)
	}

	assembler := &Assembler{
		scratchDir: scratchDir,
		maxAge:     DefaultMaxAge,
		now:        time.Now,
		log:        log,
	}
	for _, opt := range opts {
		opt(assembler)
	}

	return assembler, nil
}

// Assemble concatenates chunks in order, builds the transcript from d and writes the audio to
// a uniquely named file. Stale artifacts are swept afterwards; sweep failures are only logged.
func (a *Assembler) Assemble(chunks [][]byte, d *dialogue.Dialogue) (*Artifact, error) {
	if d == nil || len(chunks) != len(d.Lines) {
		lines := 0
		if d != nil {
			lines = len(d.Lines)
		}

		return nil, fmt.Errorf("%w: %d chunks, %d lines", ErrChunkCountMismatch, len(chunks), lines)
	}

	audio := bytes.Join(chunks, nil)
	path := filepath.Join(a.scratchDir, uuid.NewString()+artifactSuffix)

	err := os.WriteFile(path, audio, filePermissions)
	if err != nil {
		return nil, fmt.Errorf("failed to write artifact: %w", err)
	}

	a.log.Info("Assembled %s from %d chunks: %s", humanize.Bytes(uint64(len(audio))), len(chunks), path)

	removed, err := a.Sweep()
	if err != nil {
		a.log.Warn("Scratch sweep failed: %v", err)
	} else if removed > 0 {
		a.log.Info("Swept %d stale artifacts from %s", removed, a.scratchDir)
	}

	return &Artifact{
		Path:       path,
		Audio:      audio,
		Transcript: dialogue.Transcript(d.Lines),
	}, nil
}

// Sweep removes scratch artifacts older than the max age and returns how many were removed.
// Concurrent sweeps in other workers sharing the directory are skipped, not awaited.
func (a *Assembler) Sweep() (int, error) {
	lock := flock.New(filepath.Join(a.scratchDir, sweepLockName))

	locked, err := lock.TryLock()
	if err != nil {
		return 0, fmt.Errorf("acquire sweep lock: %w", err)
	}

	if !locked {
		return 0, nil
	}

	defer func() {
		_ = lock.Unlock()
	}()

	matches, err := doublestar.Glob(os.DirFS(a.scratchDir), artifactGlob)
	if err != nil {
		return 0, fmt.Errorf("glob scratch directory: %w", err)
	}

	cutoff := a.now().Add(-a.maxAge)
	removed := 0

	for _, name := range matches {
		path := filepath.Join(a.scratchDir, name)

		info, statErr := os.Stat(path)
		if statErr != nil {
			continue
		}

		if !info.ModTime().Before(cutoff) {
			continue
		}

		removeErr := os.Remove(path)
		if removeErr != nil && !errors.Is(removeErr, fs.ErrNotExist) {
			a.log.Warn("Failed to remove stale artifact %s: %v", path, removeErr)

			continue
		}

		removed++
	}

	return removed, nil
}
