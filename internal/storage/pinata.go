package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/ipfs/go-cid"

	"lazkit/internal/logging"
)

const (
	DefaultPinataUploadURL  = "https://uploads.pinata.cloud/v3/files"
	DefaultPinataGatewayURL = "https://gateway.pinata.cloud"

	maxDownloadSize = 64 << 20
)

// PinataConfig holds configuration for the Pinata provider.
type PinataConfig struct {
	UploadURL  string
	GatewayURL string
	Timeout    time.Duration
}

// DefaultPinataConfig returns sensible defaults.
func DefaultPinataConfig() PinataConfig {
	return PinataConfig{
		UploadURL:  DefaultPinataUploadURL,
		GatewayURL: DefaultPinataGatewayURL,
		Timeout:    60 * time.Second,
	}
}

// PinataIPFS implements Provider against the Pinata v3 files API.
type PinataIPFS struct {
	uploadURL  string
	gatewayURL string
	httpClient *http.Client
}

// NewPinataIPFS creates a Pinata provider.
func NewPinataIPFS(config PinataConfig) *PinataIPFS {
	if config.UploadURL == "" {
		config.UploadURL = DefaultPinataUploadURL
	}
	if config.GatewayURL == "" {
		config.GatewayURL = DefaultPinataGatewayURL
	}
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}
	return &PinataIPFS{
		uploadURL:  config.UploadURL,
		gatewayURL: strings.TrimRight(config.GatewayURL, "/"),
		httpClient: &http.Client{Timeout: config.Timeout},
	}
}

// pinataFile is the v3 upload response payload. Optional fields may be absent.
type pinataFile struct {
	ID               string  `json:"id"`
	Name             string  `json:"name"`
	CID              string  `json:"cid"`
	Size             int64   `json:"size"`
	NumberOfFiles    int     `json:"number_of_files"`
	MimeType         string  `json:"mime_type"`
	CreatedAt        string  `json:"created_at"`
	UpdatedAt        string  `json:"updated_at"`
	Network          string  `json:"network"`
	Streamable       bool    `json:"streamable"`
	AcceptDuplicates *bool   `json:"accept_duplicates,omitempty"`
	IsDuplicate      *bool   `json:"is_duplicate,omitempty"`
	GroupID          *string `json:"group_id,omitempty"`
}

type pinataUploadResponse struct {
	Data pinataFile `json:"data"`
}

// Upload pins opts.Data as a public file and returns its metadata.
func (p *PinataIPFS) Upload(ctx context.Context, opts UploadOptions) (*FileMetadata, error) {
	timer := logging.StartTimer(logging.CategoryStorage, "Pinata upload")
	defer timer.Stop()

	if opts.Token == "" {
		return nil, &StorageError{Op: "upload", Message: "pinata JWT not configured (set IPFS_JWT)"}
	}
	if opts.Name == "" {
		return nil, &StorageError{Op: "upload", Message: "file name is required"}
	}

	contentType := opts.ContentType
	if contentType == "" {
		contentType = "text/plain"
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, opts.Name))
	header.Set("Content-Type", contentType)
	part, err := mw.CreatePart(header)
	if err != nil {
		return nil, &StorageError{Op: "upload", Message: "failed to build form", Err: err}
	}
	if _, err := part.Write(opts.Data); err != nil {
		return nil, &StorageError{Op: "upload", Message: "failed to build form", Err: err}
	}
	if err := mw.WriteField("network", "public"); err != nil {
		return nil, &StorageError{Op: "upload", Message: "failed to build form", Err: err}
	}
	if err := mw.Close(); err != nil {
		return nil, &StorageError{Op: "upload", Message: "failed to build form", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.uploadURL, &body)
	if err != nil {
		return nil, &StorageError{Op: "upload", Message: "failed to create request", Err: err}
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+opts.Token)

	logging.StorageDebug("Uploading %s (%d bytes) to %s", opts.Name, len(opts.Data), p.uploadURL)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		logging.StorageError("Pinata upload failed: %v", err)
		return nil, &StorageError{Op: "upload", Message: "network error", Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &StorageError{Op: "upload", Message: "failed to read response", Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		logging.StorageError("Pinata upload returned %d: %s", resp.StatusCode, respBody)
		return nil, &StorageError{
			Op:         "upload",
			StatusCode: resp.StatusCode,
			Message:    "Pinata IPFS API error: " + strings.TrimSpace(string(respBody)),
		}
	}

	var parsed pinataUploadResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, &StorageError{Op: "upload", Message: "failed to parse response", Err: err}
	}

	c, err := cid.Decode(parsed.Data.CID)
	if err != nil {
		return nil, &StorageError{Op: "upload", Message: fmt.Sprintf("invalid cid %q in response", parsed.Data.CID), Err: err}
	}

	logging.Storage("Pinned %s as %s (%d bytes, duplicate=%v)", parsed.Data.Name, c, parsed.Data.Size,
		parsed.Data.IsDuplicate != nil && *parsed.Data.IsDuplicate)

	return &FileMetadata{
		ID:           c.String(),
		Name:         parsed.Data.Name,
		Size:         parsed.Data.Size,
		ModifiedTime: parsed.Data.UpdatedAt,
	}, nil
}

// ShareLink returns the public gateway URL for a pinned CID.
func (p *PinataIPFS) ShareLink(_ context.Context, opts ShareLinkOptions) (string, error) {
	c, err := cid.Decode(opts.ID)
	if err != nil {
		return "", &StorageError{Op: "share_link", Message: fmt.Sprintf("invalid cid %q", opts.ID), Err: err}
	}
	return fmt.Sprintf("%s/ipfs/%s", p.gatewayURL, c), nil
}

// Download fetches a file by URL.
func (p *PinataIPFS) Download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &StorageError{Op: "download", Message: "failed to create request", Err: err}
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, &StorageError{Op: "download", Message: "network error", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &StorageError{Op: "download", StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadSize+1))
	if err != nil {
		return nil, &StorageError{Op: "download", Message: "failed to read body", Err: err}
	}
	if len(data) > maxDownloadSize {
		return nil, &StorageError{Op: "download", Message: fmt.Sprintf("file exceeds %d bytes", maxDownloadSize)}
	}
	logging.StorageDebug("Downloaded %d bytes from %s", len(data), url)
	return data, nil
}

// Close releases idle connections.
func (p *PinataIPFS) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}

// CIDFromURL extracts the CID from a gateway URL of the form .../ipfs/<cid>[/...].
func CIDFromURL(url string) (string, error) {
	idx := strings.Index(url, "/ipfs/")
	if idx < 0 {
		return "", fmt.Errorf("no /ipfs/ segment in %q", url)
	}
	rest := url[idx+len("/ipfs/"):]
	if i := strings.IndexAny(rest, "/?#"); i >= 0 {
		rest = rest[:i]
	}
	c, err := cid.Decode(rest)
	if err != nil {
		return "", fmt.Errorf("invalid cid in %q: %w", url, err)
	}
	return c.String(), nil
}
