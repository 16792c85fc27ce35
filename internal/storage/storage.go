package storage

import (
	"context"
	"errors"
)

var ErrObjectNotFound = errors.New("object not found")

// UploadTarget is a short-lived presigned destination for a client upload.
// The client PUTs the bytes to URL, then references ObjectID in a later
// mutation (send image/video, group image). The two steps are uncoordinated:
// an upload may succeed and never be referenced.
type UploadTarget struct {
	ObjectID string `json:"object_id"`
	URL      string `json:"upload_url"`
}

// ObjectStore abstracts the external object storage used for media.
type ObjectStore interface {
	// PresignUpload mints an upload target for a new object.
	PresignUpload(ctx context.Context) (*UploadTarget, error)
	// ResolveURL turns a stored object id into an externally servable URL.
	ResolveURL(ctx context.Context, objectID string) (string, error)
}
