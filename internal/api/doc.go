// Package api exposes the pilot-input surface over HTTP/JSON.
//
// Routes live under /api/v1. Every reply uses one envelope:
//
//	{"result": "ok"|"error", "data": ..., "code": ..., "message": ...,
//	 "details": ..., "correlationId": ...}
//
// Telemetry is served as Server-Sent Events on /telemetry and as JSON
// frames on /telemetry/ws.
package api
