// Package archive uploads archived legacy store files to offsite storage.
package archive

import (
	"context"
	"io"
)

// Target is an offsite destination for archived files. Uploads are
// create-or-replace; re-uploading after an interrupted archive is safe.
type Target interface {
	// Name identifies the target in logs and manifests, e.g. "s3://bucket/prefix".
	Name() string
	// Upload stores body under key. checksum is the hex SHA-256 of body and is
	// kept as object metadata.
	Upload(ctx context.Context, key string, body io.ReadSeeker, size int64, checksum string) error
}
