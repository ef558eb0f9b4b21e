// Package upload implements a connector over a local directory. Files
// under the configured root are indexed as documents; incremental sync
// uses a modification-time watermark and Watch streams filesystem events
// via fsnotify.
package upload
