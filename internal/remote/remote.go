package remote

import (
	"context"
	"io"
	"time"
)

// Object is one stored blob as reported by a remote listing or upload.
type Object struct {
	Name       string
	ID         string
	Size       int64
	SHA1       string
	UploadedAt time.Time
}

// ObjectStore is the upload target for a backup run. Implementations must
// authenticate before any data operation and are used strictly sequentially
// within a run.
type ObjectStore interface {
	Name() string
	Authenticate(ctx context.Context) error
	ListObjects(ctx context.Context, prefix string) ([]Object, error)
	UploadObject(ctx context.Context, localPath, name string) (Object, error)
	DownloadObject(ctx context.Context, name string, w io.Writer) error
	DeleteObject(ctx context.Context, name, id string) error
}
