package storage

import (
	"github.com/sirupsen/logrus"

	"github.com/mageshtv/dhanbridge/internal/models"
)

// maxProcessedAlerts bounds the alert-ID history; the oldest entries are
// evicted once the cap is exceeded.
const maxProcessedAlerts = 200

// Interface defines the contract for position state persistence.
//
// Implementations must be safe for concurrent use. The signal processor
// additionally serializes whole-signal handling with its own lock, so no
// partial state is ever visible between the read and the write of one signal.
type Interface interface {
	// OpenLeg returns a copy of the currently open leg, or nil.
	OpenLeg() *models.Leg
	// SetOpenLeg records leg as the open position and persists.
	SetOpenLeg(leg *models.Leg) error
	// ClearOpenLeg removes the open position and persists.
	ClearOpenLeg() error

	// IsDuplicate reports whether alertID was already processed.
	IsDuplicate(alertID string) bool
	// RecordAlert appends alertID to the processed history, evicting the
	// oldest entries beyond the capacity, and persists.
	RecordAlert(alertID string) error

	// State returns a deep copy of the full persisted state.
	State() models.PositionState

	// Save persists the full state.
	Save() error
}

// NewStore creates the default JSON-file-backed store.
func NewStore(path string, logger *logrus.Logger) (Interface, error) {
	return NewJSONStore(path, logger)
}

// Ensure JSONStore implements Interface.
var _ Interface = (*JSONStore)(nil)
