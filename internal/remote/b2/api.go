package b2

import (
	"time"

	"github.com/dev-tams/dumpvault/internal/remote"
)

// Wire types for the store's JSON API, v2 endpoint shapes.

type authorizeResponse struct {
	AccountID          string `json:"accountId"`
	AuthorizationToken string `json:"authorizationToken"`
	APIURL             string `json:"apiUrl"`
	DownloadURL        string `json:"downloadUrl"`
}

type errorResponse struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type fileInfo struct {
	FileName        string `json:"fileName"`
	FileID          string `json:"fileId"`
	ContentLength   int64  `json:"contentLength"`
	ContentSha1     string `json:"contentSha1"`
	UploadTimestamp int64  `json:"uploadTimestamp"` // milliseconds since epoch
}

func (f fileInfo) object() remote.Object {
	return remote.Object{
		Name:       f.FileName,
		ID:         f.FileID,
		Size:       f.ContentLength,
		SHA1:       f.ContentSha1,
		UploadedAt: time.UnixMilli(f.UploadTimestamp).UTC(),
	}
}

type listFileNamesRequest struct {
	BucketID      string `json:"bucketId"`
	StartFileName string `json:"startFileName,omitempty"`
	MaxFileCount  int    `json:"maxFileCount"`
	Prefix        string `json:"prefix,omitempty"`
}

type listFileNamesResponse struct {
	Files        []fileInfo `json:"files"`
	NextFileName *string    `json:"nextFileName"`
}

type getUploadURLRequest struct {
	BucketID string `json:"bucketId"`
}

type uploadTarget struct {
	UploadURL          string `json:"uploadUrl"`
	AuthorizationToken string `json:"authorizationToken"`
}

type startLargeFileRequest struct {
	BucketID    string `json:"bucketId"`
	FileName    string `json:"fileName"`
	ContentType string `json:"contentType"`
}

type startLargeFileResponse struct {
	FileID string `json:"fileId"`
}

type getUploadPartURLRequest struct {
	FileID string `json:"fileId"`
}

type finishLargeFileRequest struct {
	FileID        string   `json:"fileId"`
	PartSha1Array []string `json:"partSha1Array"`
}

type deleteFileVersionRequest struct {
	FileName string `json:"fileName"`
	FileID   string `json:"fileId"`
}
