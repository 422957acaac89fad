// Package stick maps signed stick percentages onto RC pulse widths.
//
// A stick deflection of -100..100 percent on a logical axis (roll, pitch,
// throttle, yaw) becomes an absolute pulse width inside a configured
// {min, mid, max} envelope. The mapping is pure and safe for concurrent use.
package stick
