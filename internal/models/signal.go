// Package models provides the data structures shared by the signal engine:
// inbound signals, option legs, and the persisted position state.
package models

import "strings"

// SignalKind identifies the trading action requested by an inbound alert.
type SignalKind string

const (
	// SignalSmartBuy opens a CE leg, closing an open PE leg first.
	SignalSmartBuy SignalKind = "smart buy"
	// SignalSmartSell opens a PE leg, closing an open CE leg first.
	SignalSmartSell SignalKind = "smart sell"
	// SignalBookProfit closes the open leg, if any.
	SignalBookProfit SignalKind = "book profit"
)

// ParseSignalKind maps a raw signal string to a SignalKind.
// Matching is case-insensitive and ignores surrounding whitespace.
func ParseSignalKind(raw string) (SignalKind, bool) {
	switch SignalKind(strings.ToLower(strings.TrimSpace(raw))) {
	case SignalSmartBuy:
		return SignalSmartBuy, true
	case SignalSmartSell:
		return SignalSmartSell, true
	case SignalBookProfit:
		return SignalBookProfit, true
	default:
		return "", false
	}
}

// Signal is a single inbound trading alert after transport-level validation.
type Signal struct {
	Kind    string  `json:"signal"`
	Symbol  string  `json:"symbol"`
	Spot    float64 `json:"spot"`
	AlertID string  `json:"alert_id,omitempty"`
}

// OptionType is the contract side of an option leg.
type OptionType string

const (
	// OptionCE is a call option (index option naming).
	OptionCE OptionType = "CE"
	// OptionPE is a put option.
	OptionPE OptionType = "PE"
)

// ParseOptionType normalizes a raw option type string.
func ParseOptionType(raw string) (OptionType, bool) {
	switch OptionType(strings.ToUpper(strings.TrimSpace(raw))) {
	case OptionCE:
		return OptionCE, true
	case OptionPE:
		return OptionPE, true
	default:
		return "", false
	}
}

// Opposite returns the other option side.
func (t OptionType) Opposite() OptionType {
	if t == OptionCE {
		return OptionPE
	}
	return OptionCE
}

// StrikeType names a strike-selection policy relative to spot.
type StrikeType string

const (
	StrikeATM  StrikeType = "ATM"
	StrikeITM1 StrikeType = "ITM1"
	StrikeITM2 StrikeType = "ITM2"
	StrikeOTM1 StrikeType = "OTM1"
	StrikeOTM2 StrikeType = "OTM2"
)

// ParseStrikeType normalizes a raw strike type string.
func ParseStrikeType(raw string) (StrikeType, bool) {
	switch StrikeType(strings.ToUpper(strings.TrimSpace(raw))) {
	case StrikeATM:
		return StrikeATM, true
	case StrikeITM1:
		return StrikeITM1, true
	case StrikeITM2:
		return StrikeITM2, true
	case StrikeOTM1:
		return StrikeOTM1, true
	case StrikeOTM2:
		return StrikeOTM2, true
	default:
		return "", false
	}
}
