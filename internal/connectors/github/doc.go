// Package github implements the version-control-host connector. It
// enumerates the repositories a token can reach, fetches text files from
// git trees and issues from the issues API, and tracks incremental
// position with per-repository tree SHAs and issue timestamps.
package github
