// Package config implements configuration management for rcpilot.
//
// Configuration is layered: baseline defaults, then an optional YAML file,
// then RCPILOT_* environment overrides. The merged result is validated before
// any component is constructed.
package config
