// Package console reads operator command lines from a terminal and runs them
// through the command dispatcher.
package console
