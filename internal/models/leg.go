package models

// Leg is a single held option position. The engine holds at most one leg at
// any time; a new leg is only persisted after the broker accepted the order.
type Leg struct {
	Type       OptionType `json:"type"`
	Strike     int        `json:"strike"`
	StrikeType StrikeType `json:"strike_type"`
	Expiry     string     `json:"expiry"` // YYYY-MM-DD
	SecurityID string     `json:"security_id"`
	Quantity   int        `json:"quantity"`
	OrderRef   string     `json:"order,omitempty"`
}

// PositionState is the persisted aggregate: the currently open leg (if any)
// and a bounded, insertion-ordered history of processed alert identifiers.
type PositionState struct {
	OpenLeg           *Leg     `json:"open_leg"`
	ProcessedAlertIDs []string `json:"processed_alert_ids"`
}

// Copy returns a deep copy so callers can read state without holding the
// store's lock.
func (s *PositionState) Copy() PositionState {
	out := PositionState{}
	if s.OpenLeg != nil {
		leg := *s.OpenLeg
		out.OpenLeg = &leg
	}
	if len(s.ProcessedAlertIDs) > 0 {
		out.ProcessedAlertIDs = append([]string(nil), s.ProcessedAlertIDs...)
	}
	return out
}
