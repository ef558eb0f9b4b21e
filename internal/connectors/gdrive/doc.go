// Package gdrive implements the cloud-drive connector over the Google
// Drive v3 API. Regular files are downloaded, Google Workspace files are
// exported to text, and incremental position is tracked with a
// modifiedTime watermark.
package gdrive
