// Package connectors provides implementations of the Connector interface
// for the supported content sources. Each subpackage knows how to
// authenticate against, enumerate and watch one source type (github,
// gdrive, upload).
//
// Connectors are registered with the ConnectorFactory at startup.
package connectors
