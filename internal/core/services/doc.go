// Package services implements the core application services: the
// connector manager that owns account lifecycle and sync orchestration,
// the connector factory, and the source-type registry.
package services
