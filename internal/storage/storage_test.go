package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/mageshtv/dhanbridge/internal/models"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func tempStatePath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "state.json")
}

func TestNewJSONStoreMissingFile(t *testing.T) {
	s, err := NewJSONStore(tempStatePath(t), quietLogger())
	if err != nil {
		t.Fatalf("NewJSONStore failed: %v", err)
	}
	if s.OpenLeg() != nil {
		t.Error("fresh store should have no open leg")
	}
	if got := s.State(); len(got.ProcessedAlertIDs) != 0 {
		t.Errorf("fresh store should have no alert history, got %d", len(got.ProcessedAlertIDs))
	}
}

func TestJSONStoreRoundtrip(t *testing.T) {
	path := tempStatePath(t)
	s, err := NewJSONStore(path, quietLogger())
	if err != nil {
		t.Fatalf("NewJSONStore failed: %v", err)
	}

	leg := &models.Leg{
		Type:       models.OptionCE,
		Strike:     21950,
		StrikeType: models.StrikeITM1,
		Expiry:     "2026-09-03",
		SecurityID: "42",
		Quantity:   75,
		OrderRef:   "ORD-1",
	}
	if err := s.SetOpenLeg(leg); err != nil {
		t.Fatalf("SetOpenLeg failed: %v", err)
	}
	if err := s.RecordAlert("alert-1"); err != nil {
		t.Fatalf("RecordAlert failed: %v", err)
	}

	// Reload from disk.
	s2, err := NewJSONStore(path, quietLogger())
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	got := s2.OpenLeg()
	if got == nil {
		t.Fatal("reloaded store lost open leg")
	}
	if *got != *leg {
		t.Errorf("reloaded leg = %+v, want %+v", got, leg)
	}
	if !s2.IsDuplicate("alert-1") {
		t.Error("reloaded store lost alert history")
	}
	if s2.IsDuplicate("alert-2") {
		t.Error("unseen alert reported as duplicate")
	}
}

func TestJSONStoreClearOpenLeg(t *testing.T) {
	path := tempStatePath(t)
	s, err := NewJSONStore(path, quietLogger())
	if err != nil {
		t.Fatalf("NewJSONStore failed: %v", err)
	}
	if err := s.SetOpenLeg(&models.Leg{Type: models.OptionPE, Strike: 22050}); err != nil {
		t.Fatalf("SetOpenLeg failed: %v", err)
	}
	if err := s.ClearOpenLeg(); err != nil {
		t.Fatalf("ClearOpenLeg failed: %v", err)
	}
	if s.OpenLeg() != nil {
		t.Error("leg not cleared")
	}

	s2, err := NewJSONStore(path, quietLogger())
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if s2.OpenLeg() != nil {
		t.Error("cleared leg came back after reload")
	}
}

func TestJSONStoreCorruptFile(t *testing.T) {
	path := tempStatePath(t)
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("writing corrupt file: %v", err)
	}

	s, err := NewJSONStore(path, quietLogger())
	if err != nil {
		t.Fatalf("corrupt file must not fail store creation: %v", err)
	}
	if s.OpenLeg() != nil {
		t.Error("corrupt file should yield empty state")
	}
	if s.IsDuplicate("anything") {
		t.Error("corrupt file should yield empty alert history")
	}
}

func TestRecordAlertEvictsOldest(t *testing.T) {
	s, err := NewJSONStore(tempStatePath(t), quietLogger())
	if err != nil {
		t.Fatalf("NewJSONStore failed: %v", err)
	}

	for i := 0; i < maxProcessedAlerts+1; i++ {
		if err := s.RecordAlert(fmt.Sprintf("alert-%d", i)); err != nil {
			t.Fatalf("RecordAlert %d failed: %v", i, err)
		}
	}

	state := s.State()
	if len(state.ProcessedAlertIDs) != maxProcessedAlerts {
		t.Fatalf("history length = %d, want %d", len(state.ProcessedAlertIDs), maxProcessedAlerts)
	}
	if s.IsDuplicate("alert-0") {
		t.Error("oldest alert should have been evicted")
	}
	if !s.IsDuplicate("alert-1") {
		t.Error("alert-1 should survive eviction")
	}
	if !s.IsDuplicate(fmt.Sprintf("alert-%d", maxProcessedAlerts)) {
		t.Error("newest alert missing from history")
	}
	if state.ProcessedAlertIDs[0] != "alert-1" {
		t.Errorf("history head = %s, want alert-1", state.ProcessedAlertIDs[0])
	}
}

func TestStateReturnsCopy(t *testing.T) {
	s, err := NewJSONStore(tempStatePath(t), quietLogger())
	if err != nil {
		t.Fatalf("NewJSONStore failed: %v", err)
	}
	if err := s.RecordAlert("alert-1"); err != nil {
		t.Fatalf("RecordAlert failed: %v", err)
	}

	state := s.State()
	state.ProcessedAlertIDs[0] = "mutated"
	if !s.IsDuplicate("alert-1") {
		t.Error("mutating the returned state leaked into the store")
	}
}
