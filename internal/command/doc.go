// Package command implements the operator command surface.
//
// The dispatcher tokenizes a command line, validates every argument before
// touching the override table, applies the command through the stick mapper
// and transmitter, injects mode changes through the vehicle link, and writes
// an audit record and a telemetry event for each dispatch. Invalid input is a
// usage message and a no-op.
package command
