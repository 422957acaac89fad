package mavlink

import (
	"fmt"
	"sort"
	"strings"

	"github.com/radio-control/rcpilot/internal/adapter"
)

// ArduPilot custom mode numbers per vehicle type.
var (
	copterModes = map[string]uint32{
		"stabilize":    0,
		"acro":         1,
		"alt_hold":     2,
		"auto":         3,
		"guided":       4,
		"loiter":       5,
		"rtl":          6,
		"circle":       7,
		"land":         9,
		"drift":        11,
		"sport":        13,
		"flip":         14,
		"autotune":     15,
		"poshold":      16,
		"brake":        17,
		"throw":        18,
		"avoid_adsb":   19,
		"guided_nogps": 20,
		"smart_rtl":    21,
	}

	planeModes = map[string]uint32{
		"manual":     0,
		"circle":     1,
		"stabilize":  2,
		"training":   3,
		"acro":       4,
		"fbwa":       5,
		"fbwb":       6,
		"cruise":     7,
		"autotune":   8,
		"auto":       10,
		"rtl":        11,
		"loiter":     12,
		"takeoff":    13,
		"guided":     15,
		"qstabilize": 17,
		"qhover":     18,
		"qloiter":    19,
		"qland":      20,
		"qrtl":       21,
	}

	roverModes = map[string]uint32{
		"manual":    0,
		"acro":      1,
		"steering":  3,
		"hold":      4,
		"loiter":    5,
		"follow":    6,
		"simple":    7,
		"auto":      10,
		"rtl":       11,
		"smart_rtl": 12,
		"guided":    15,
	}
)

func modeTable(vehicle string) map[string]uint32 {
	switch vehicle {
	case "plane":
		return planeModes
	case "rover":
		return roverModes
	}
	return copterModes
}

// CustomMode resolves a mode name for a vehicle type.
func CustomMode(vehicle, mode string) (uint32, error) {
	table := modeTable(vehicle)
	n, ok := table[strings.ToLower(mode)]
	if !ok {
		return 0, fmt.Errorf("%w: unknown mode %q for %s", adapter.ErrInvalidRange, mode, vehicle)
	}
	return n, nil
}

// ModeNames lists the modes known for a vehicle type, sorted.
func ModeNames(vehicle string) []string {
	table := modeTable(vehicle)
	names := make([]string, 0, len(table))
	for name := range table {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
