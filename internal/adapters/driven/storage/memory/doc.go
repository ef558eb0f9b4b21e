// Package memory provides in-memory store implementations. They back
// tests and single-process runs; the postgres package provides the
// durable equivalents.
package memory
