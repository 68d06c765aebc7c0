package session

import "time"

// TimestampLayout is the wall-clock format persisted in session files.
const TimestampLayout = "2006-01-02T15:04:05"

// CurrentVersion is written into every new session file.
const CurrentVersion = "1.0"

// Stats tracks aggregate progress counters for a session.
type Stats struct {
	TotalImages     int `json:"total_images"`
	ProcessedImages int `json:"processed_images"`
}

// State is the durable record of tagging progress for one input directory.
// ProcessedImages maps the canonical absolute path of an original image to the
// relative path of its renamed copy under the output directory.
type State struct {
	ProcessedImages map[string]string `json:"processed_images"`
	CurrentPosition *string           `json:"current_position"`
	Tags            []string          `json:"tags"`
	LastUpdated     string            `json:"last_updated"`
	Version         string            `json:"version"`
	Stats           Stats             `json:"stats"`
}

// NewState returns an empty session state.
func NewState() *State {
	return &State{
		ProcessedImages: make(map[string]string),
		Tags:            []string{},
		LastUpdated:     time.Now().Format(TimestampLayout),
		Version:         CurrentVersion,
	}
}

func (s *State) touch(now time.Time) {
	s.LastUpdated = now.Format(TimestampLayout)
}

// clone returns a deep copy of the state.
func (s *State) clone() *State {
	cp := &State{
		ProcessedImages: make(map[string]string, len(s.ProcessedImages)),
		Tags:            make([]string, len(s.Tags)),
		LastUpdated:     s.LastUpdated,
		Version:         s.Version,
		Stats:           s.Stats,
	}
	for k, v := range s.ProcessedImages {
		cp.ProcessedImages[k] = v
	}
	copy(cp.Tags, s.Tags)
	if s.CurrentPosition != nil {
		pos := *s.CurrentPosition
		cp.CurrentPosition = &pos
	}
	return cp
}
