// Package domain defines the core business entities for Harvest.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - Account: A user's authorized link to one external content source
//   - SourceDocument: One fetched unit of content
//   - Chunk: A bounded, overlapping slice of a document's text
//   - EmbeddingVector: A chunk's fixed-dimension vector representation
//   - SyncRun: One invocation of a connector's sync operation
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
package domain
