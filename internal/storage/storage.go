// Package storage uploads encrypted contributions to an IPFS pinning
// service and fetches them back by share link.
package storage

import (
	"context"
	"fmt"
)

// FileMetadata describes a pinned file. ID is the content identifier.
type FileMetadata struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Size         int64  `json:"size"`
	ModifiedTime string `json:"modified_time"`
}

// UploadOptions describes a single upload.
type UploadOptions struct {
	Name        string
	Data        []byte
	Token       string
	ContentType string // defaults to text/plain
}

// ShareLinkOptions identifies a pinned file for link generation.
type ShareLinkOptions struct {
	Token string
	ID    string
}

// Provider is an IPFS pinning backend.
type Provider interface {
	Upload(ctx context.Context, opts UploadOptions) (*FileMetadata, error)
	ShareLink(ctx context.Context, opts ShareLinkOptions) (string, error)
	Download(ctx context.Context, url string) ([]byte, error)
	Close() error
}

// StorageError reports a provider failure.
type StorageError struct {
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *StorageError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("storage %s: status %d: %s", e.Op, e.StatusCode, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("storage %s: %s: %v", e.Op, e.Message, e.Err)
	default:
		return fmt.Sprintf("storage %s: %s", e.Op, e.Message)
	}
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
