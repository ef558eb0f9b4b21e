// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
//   - Connector: fetches documents from one external content source
//   - ConnectorFactory: creates connectors from account configuration
//   - AccountStore: connected-account persistence
//   - DocumentStore: source-document and chunk persistence
//   - SyncRunStore: sync-run audit persistence
//   - EmbeddingService: generates vector embeddings
//   - VectorStore: persists vectors for later similarity filtering
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter or connector package
package driven
