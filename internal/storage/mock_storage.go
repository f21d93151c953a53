package storage

import (
	"github.com/mageshtv/dhanbridge/internal/models"
)

// MockStore implements Interface for testing.
type MockStore struct {
	state     models.PositionState
	saveError error

	setLegCalls   int
	clearLegCalls int
	recordCalls   int
}

// NewMockStore creates an empty mock store.
func NewMockStore() *MockStore {
	return &MockStore{}
}

func (m *MockStore) OpenLeg() *models.Leg {
	if m.state.OpenLeg == nil {
		return nil
	}
	leg := *m.state.OpenLeg
	return &leg
}

func (m *MockStore) SetOpenLeg(leg *models.Leg) error {
	m.setLegCalls++
	if m.saveError != nil {
		return m.saveError
	}
	m.state.OpenLeg = leg
	return nil
}

func (m *MockStore) ClearOpenLeg() error {
	m.clearLegCalls++
	if m.saveError != nil {
		return m.saveError
	}
	m.state.OpenLeg = nil
	return nil
}

func (m *MockStore) IsDuplicate(alertID string) bool {
	for _, id := range m.state.ProcessedAlertIDs {
		if id == alertID {
			return true
		}
	}
	return false
}

func (m *MockStore) RecordAlert(alertID string) error {
	m.recordCalls++
	if m.saveError != nil {
		return m.saveError
	}
	m.state.ProcessedAlertIDs = append(m.state.ProcessedAlertIDs, alertID)
	if n := len(m.state.ProcessedAlertIDs); n > maxProcessedAlerts {
		m.state.ProcessedAlertIDs = m.state.ProcessedAlertIDs[n-maxProcessedAlerts:]
	}
	return nil
}

func (m *MockStore) State() models.PositionState {
	return m.state.Copy()
}

func (m *MockStore) Save() error {
	return m.saveError
}

// Mock control methods for testing.

func (m *MockStore) SetSaveError(err error)      { m.saveError = err }
func (m *MockStore) SeedOpenLeg(leg *models.Leg) { m.state.OpenLeg = leg }
func (m *MockStore) SeedAlerts(ids ...string)    { m.state.ProcessedAlertIDs = ids }
func (m *MockStore) RecordAlertCalls() int       { return m.recordCalls }

// Ensure MockStore implements Interface.
var _ Interface = (*MockStore)(nil)
