// Package telemetry fans rcpilot events out to operators.
//
// Events carry a monotonic id and are kept in a bounded replay buffer. Server
// Sent Events subscribers resume with Last-Event-ID; websocket subscribers
// receive the same stream as JSON messages. A heartbeat event is published
// while at least one subscriber is connected.
package telemetry
