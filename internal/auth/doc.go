// Package auth verifies bearer tokens on the control API and enforces scopes.
//
// Tokens are JWTs signed with HS256 (shared secret) or RS256 (PEM public
// key). Scopes:
//   - read: override table and health
//   - control: channels, sticks and command lines
//   - telemetry: the event stream
//
// With auth mode "none" every request runs as the local operator with all
// scopes.
package auth
