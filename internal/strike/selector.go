// Package strike computes target strike prices from spot. All functions are
// pure and perform no I/O.
package strike

import (
	"errors"
	"fmt"
	"math"

	"github.com/mageshtv/dhanbridge/internal/models"
)

// ErrInvalidIntent is returned when intent is neither CE nor PE.
var ErrInvalidIntent = errors.New("invalid intent")

// ErrInvalidStrikeType is returned for an unrecognized strike type.
var ErrInvalidStrikeType = errors.New("invalid strike type")

// ATM returns the strike closest to spot on the step grid.
// Rounding is half-away-from-zero (math.Round), so a spot exactly between two
// strikes resolves to the one further from zero. This convention is
// load-bearing: changing it shifts every ITM/OTM strike at half-step spots.
func ATM(spot, step float64) float64 {
	return math.Round(spot/step) * step
}

// Direction returns +1 for CE and -1 for PE.
func Direction(intent string) (int, error) {
	t, ok := models.ParseOptionType(intent)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidIntent, intent)
	}
	if t == models.OptionCE {
		return 1, nil
	}
	return -1, nil
}

// ITM returns the strike depth steps in-the-money relative to ATM.
// A call is in the money below spot, a put above it, so the offset sign
// follows the intent's direction.
func ITM(spot, step float64, intent string, depth int) (float64, error) {
	dir, err := Direction(intent)
	if err != nil {
		return 0, err
	}
	return ATM(spot, step) - float64(dir)*step*float64(depth), nil
}

// OTM returns the strike depth steps out-of-the-money relative to ATM.
func OTM(spot, step float64, intent string, depth int) (float64, error) {
	dir, err := Direction(intent)
	if err != nil {
		return 0, err
	}
	return ATM(spot, step) + float64(dir)*step*float64(depth), nil
}

// SelectByType dispatches on the strike type policy and returns the target
// strike as an integer. Both intent and strikeType are case-insensitive.
func SelectByType(spot, step float64, intent, strikeType string) (int, error) {
	st, ok := models.ParseStrikeType(strikeType)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidStrikeType, strikeType)
	}

	// Validate intent up front so ATM also rejects bad intents.
	if _, err := Direction(intent); err != nil {
		return 0, err
	}

	var (
		v   float64
		err error
	)
	switch st {
	case models.StrikeATM:
		v = ATM(spot, step)
	case models.StrikeITM1:
		v, err = ITM(spot, step, intent, 1)
	case models.StrikeITM2:
		v, err = ITM(spot, step, intent, 2)
	case models.StrikeOTM1:
		v, err = OTM(spot, step, intent, 1)
	case models.StrikeOTM2:
		v, err = OTM(spot, step, intent, 2)
	}
	if err != nil {
		return 0, err
	}
	return int(math.Round(v)), nil
}
