package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/widyatma/loratag/internal/observability"
)

// ErrSaveFailed marks persistence failures. The in-memory state is untouched
// when it is returned; callers may retry on the next save cycle.
var ErrSaveFailed = errors.New("session save failed")

// QuarantineSuffix is appended to an unparsable session file when it is
// renamed aside instead of being deleted.
const QuarantineSuffix = ".corrupted"

// DefaultAutoSaveInterval gates unforced saves.
const DefaultAutoSaveInterval = 60 * time.Second

// Store owns the mutable session state. All mutation goes through its lock;
// the coarse single mutex is a deliberate v1 choice (one human operator tags
// one image at a time) and is the stated scalability ceiling of the system.
type Store struct {
	path             string
	mu               sync.Mutex
	state            *State
	autoSaveInterval time.Duration
	lastSave         time.Time
	now              func() time.Time
	logger           zerolog.Logger
}

// New loads the session from path or creates a fresh one. A missing file
// yields a fresh default. An unparsable file is quarantined with the
// .corrupted suffix and replaced by a fresh default; data loss is logged,
// never raised as fatal.
func New(path string, logger zerolog.Logger) *Store {
	observability.EnsureRegistered()

	s := &Store{
		path:             path,
		autoSaveInterval: DefaultAutoSaveInterval,
		now:              time.Now,
		logger:           logger.With().Str("component", "session").Logger(),
	}
	s.state = s.load()
	s.lastSave = s.now()
	return s
}

func (s *Store) load() *State {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.logger.Info().Str("path", s.path).Msg("No session file found, creating new session")
		} else {
			s.logger.Error().Err(err).Str("path", s.path).Msg("Failed to read session file, creating new session")
		}
		return NewState()
	}

	state := NewState()
	if err := json.Unmarshal(data, state); err != nil {
		quarantine := s.path + QuarantineSuffix
		if renameErr := os.Rename(s.path, quarantine); renameErr != nil {
			s.logger.Error().Err(renameErr).Str("path", s.path).Msg("Failed to quarantine corrupt session file")
		} else {
			s.logger.Warn().
				Err(err).
				Str("path", s.path).
				Str("quarantine", quarantine).
				Msg("Session file is corrupt, quarantined and starting fresh")
		}
		return NewState()
	}

	if state.ProcessedImages == nil {
		state.ProcessedImages = make(map[string]string)
	}
	if state.Tags == nil {
		state.Tags = []string{}
	}
	if state.Version == "" {
		state.Version = CurrentVersion
	}

	s.logger.Info().
		Str("path", s.path).
		Int("processed", len(state.ProcessedImages)).
		Msg("Loaded existing session")
	return state
}

// SetAutoSaveInterval adjusts the gate for unforced saves.
func (s *Store) SetAutoSaveInterval(d time.Duration) error {
	if d < time.Second {
		return fmt.Errorf("auto-save interval must be at least 1 second, got %s", d)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.autoSaveInterval = d
	return nil
}

// Save persists the state. Unforced saves are skipped while the auto-save
// interval has not elapsed since the last successful save. The previous file
// is moved to a .bak sibling and the new content lands via a temporary file
// and an atomic rename, all under the state lock so no mutator can observe a
// torn write.
func (s *Store) Save(force bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if !force && now.Sub(s.lastSave) < s.autoSaveInterval {
		return nil
	}

	start := time.Now()
	err := s.writeLocked(now)
	observability.RecordSessionSave(time.Since(start), err == nil)
	if err != nil {
		s.logger.Error().Err(err).Str("path", s.path).Msg("Failed to save session state")
		return fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}

	s.lastSave = now
	s.logger.Debug().Str("path", s.path).Msg("Session state saved")
	return nil
}

func (s *Store) writeLocked(now time.Time) error {
	s.state.touch(now)

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create session directory: %w", err)
	}

	data, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session state: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write temp session file: %w", err)
	}

	if _, err := os.Stat(s.path); err == nil {
		if err := os.Rename(s.path, s.path+".bak"); err != nil {
			os.Remove(tmpPath)
			return fmt.Errorf("back up session file: %w", err)
		}
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace session file: %w", err)
	}

	return nil
}

// UpdateProcessedImage records the renamed copy for an original image and
// recomputes the processed count before releasing the lock.
func (s *Store) UpdateProcessedImage(original, renamed string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.ProcessedImages[original] = renamed
	s.state.Stats.ProcessedImages = len(s.state.ProcessedImages)
}

// ProcessedImages returns a copy of the processed-image map.
func (s *Store) ProcessedImages() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := make(map[string]string, len(s.state.ProcessedImages))
	for k, v := range s.state.ProcessedImages {
		cp[k] = v
	}
	return cp
}

// SetCurrentPosition records the image last viewed or edited. A nil position
// clears it.
func (s *Store) SetCurrentPosition(position *string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if position == nil {
		s.state.CurrentPosition = nil
		return
	}
	pos := *position
	s.state.CurrentPosition = &pos
}

// UpdateTags replaces the mirrored tag list wholesale.
func (s *Store) UpdateTags(tags []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.Tags = append([]string(nil), tags...)
}

// AddTag appends a tag unless it is already present.
func (s *Store) AddTag(tag string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.state.Tags {
		if existing == tag {
			return
		}
	}
	s.state.Tags = append(s.state.Tags, tag)
}

// RemoveTag removes a tag if present.
func (s *Store) RemoveTag(tag string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, existing := range s.state.Tags {
		if existing == tag {
			s.state.Tags = append(s.state.Tags[:i], s.state.Tags[i+1:]...)
			return
		}
	}
}

// UpdateStats updates the provided counters; nil arguments leave the current
// value in place.
func (s *Store) UpdateStats(totalImages, processedImages *int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if totalImages != nil {
		s.state.Stats.TotalImages = *totalImages
	}
	if processedImages != nil {
		s.state.Stats.ProcessedImages = *processedImages
	}
}

// Snapshot returns a deep copy of the current state. Broadcast and other slow
// I/O always work from snapshots so the lock is never held across the wire.
func (s *Store) Snapshot() *State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state.clone()
}

// Path returns the session file path.
func (s *Store) Path() string {
	return s.path
}
