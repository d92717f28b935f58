package models

// TimeControl names one of the fixed clock settings a seek or match can use.
type TimeControl string

const (
	ThreeTwo   TimeControl = "threetwo"   // 3 min + 2 s increment
	FiveFour   TimeControl = "fivefour"   // 5 min + 4 s increment
	TenZero    TimeControl = "tenzero"    // 10 min, no increment
	TwentyZero TimeControl = "twentyzero" // 20 min, no increment
)

// TimeControls lists every accepted control, in display order.
var TimeControls = []TimeControl{ThreeTwo, FiveFour, TenZero, TwentyZero}

// Valid reports whether tc is one of the fixed controls.
func (tc TimeControl) Valid() bool {
	for _, c := range TimeControls {
		if c == tc {
			return true
		}
	}
	return false
}

// ClockMillis returns the initial clock budget per side, in milliseconds.
func (tc TimeControl) ClockMillis() int64 {
	switch tc {
	case ThreeTwo:
		return 3 * 60 * 1000
	case FiveFour:
		return 5 * 60 * 1000
	case TenZero:
		return 10 * 60 * 1000
	case TwentyZero:
		return 20 * 60 * 1000
	}
	return 0
}

// IncrementMillis returns the per-move increment, in milliseconds.
func (tc TimeControl) IncrementMillis() int64 {
	switch tc {
	case ThreeTwo:
		return 2 * 1000
	case FiveFour:
		return 4 * 1000
	}
	return 0
}

// PerfKey buckets time controls for rating purposes.
type PerfKey string

const (
	PerfBlitz     PerfKey = "blitz"
	PerfRapid     PerfKey = "rapid"
	PerfClassical PerfKey = "classical"
)

// PerfKeys lists every rating bucket.
var PerfKeys = []PerfKey{PerfBlitz, PerfRapid, PerfClassical}

// PerfKeyOf maps a time control to its rating bucket.
func (tc TimeControl) PerfKeyOf() PerfKey {
	switch tc {
	case ThreeTwo, FiveFour:
		return PerfBlitz
	case TenZero:
		return PerfRapid
	case TwentyZero:
		return PerfClassical
	}
	return PerfBlitz
}
