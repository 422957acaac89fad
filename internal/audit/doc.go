// Package audit writes one JSON line per operator command to audit.jsonl.
//
// The file rotates by size through lumberjack. Records carry the caller
// identity when the HTTP layer put one in the context.
package audit
