// Package storage persists the engine's position state: the currently open
// leg and a bounded history of processed alert identifiers.
package storage

import (
	"encoding/json"
	"os"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/mageshtv/dhanbridge/internal/models"
)

// JSONStore keeps the position state in a single JSON file. Writes go to a
// temp file followed by an atomic rename so a concurrent reader of the file
// never observes partial state.
type JSONStore struct {
	mu     sync.RWMutex
	path   string
	state  models.PositionState
	logger *logrus.Logger
}

// NewJSONStore loads the state file at path. A missing or unparseable file
// is recovered by starting from an empty state; corruption is logged, never
// surfaced as a failure.
func NewJSONStore(path string, logger *logrus.Logger) (*JSONStore, error) {
	if logger == nil {
		logger = logrus.New()
	}
	s := &JSONStore{path: path, logger: logger}

	data, err := os.ReadFile(path) // #nosec G304 -- path comes from operator config
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warnf("state file %s unreadable, starting fresh: %v", path, err)
		}
		return s, nil
	}
	if err := json.Unmarshal(data, &s.state); err != nil {
		logger.Warnf("state file %s corrupt, starting fresh: %v", path, err)
		s.state = models.PositionState{}
	}
	return s, nil
}

// OpenLeg returns a copy of the currently open leg, or nil.
func (s *JSONStore) OpenLeg() *models.Leg {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state.OpenLeg == nil {
		return nil
	}
	leg := *s.state.OpenLeg
	return &leg
}

// SetOpenLeg records leg as the open position and persists.
func (s *JSONStore) SetOpenLeg(leg *models.Leg) error {
	s.mu.Lock()
	s.state.OpenLeg = leg
	s.mu.Unlock()
	return s.Save()
}

// ClearOpenLeg removes the open position and persists.
func (s *JSONStore) ClearOpenLeg() error {
	s.mu.Lock()
	s.state.OpenLeg = nil
	s.mu.Unlock()
	return s.Save()
}

// IsDuplicate reports whether alertID was already processed.
func (s *JSONStore) IsDuplicate(alertID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range s.state.ProcessedAlertIDs {
		if id == alertID {
			return true
		}
	}
	return false
}

// RecordAlert appends alertID, evicting from the front once the history
// exceeds its capacity, and persists.
func (s *JSONStore) RecordAlert(alertID string) error {
	s.mu.Lock()
	s.state.ProcessedAlertIDs = append(s.state.ProcessedAlertIDs, alertID)
	if n := len(s.state.ProcessedAlertIDs); n > maxProcessedAlerts {
		s.state.ProcessedAlertIDs = append([]string(nil), s.state.ProcessedAlertIDs[n-maxProcessedAlerts:]...)
	}
	s.mu.Unlock()
	return s.Save()
}

// State returns a deep copy of the persisted state.
func (s *JSONStore) State() models.PositionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Copy()
}

// Save writes the full state to disk via temp file + atomic rename.
func (s *JSONStore) Save() error {
	s.mu.RLock()
	data, err := json.MarshalIndent(&s.state, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
