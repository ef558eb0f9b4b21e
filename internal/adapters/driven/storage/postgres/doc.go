// Package postgres provides the durable store implementations backed by
// GORM over Postgres. Connections are borrowed from the shared pool
// manager per operation, so store instances are cheap and safe to share.
package postgres
