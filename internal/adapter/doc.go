// Package adapter defines the vehicle link contract used by the override
// transmitter and the command surface.
//
// A link sends RC override frames, reads vehicle parameters and injects mode
// changes. Link-specific failures are normalized to INVALID_RANGE, BUSY,
// UNAVAILABLE or INTERNAL before they reach callers.
package adapter
