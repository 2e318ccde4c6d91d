package storage

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testCIDv0 = "QmUNLLsPACCz1vLxQVkXqqLX5R1X345qqfHbsf67hvA3Nn"
	testCIDv1 = "bafybeigdyrzt5sfp7udm7hu76uh7y26nf3efuylqabf3oclgtqy55fbzdi"
)

func TestPinataUpload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer jwt-123", r.Header.Get("Authorization"))

		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "public", r.FormValue("network"))

		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		assert.Equal(t, "abi.txt", hdr.Filename)
		assert.Equal(t, "text/plain", hdr.Header.Get("Content-Type"))
		data, _ := io.ReadAll(f)
		assert.Equal(t, []byte{1, 2, 3}, data)

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"data":{"id":"0193","name":"abi.txt","cid":"`+testCIDv1+`","size":3,
			"number_of_files":1,"mime_type":"text/plain","created_at":"2025-01-01T00:00:00Z",
			"updated_at":"2025-01-02T00:00:00Z","network":"public","streamable":false,"is_duplicate":true}}`)
	}))
	defer srv.Close()

	p := NewPinataIPFS(PinataConfig{UploadURL: srv.URL, GatewayURL: "https://gw.example/"})
	defer p.Close()

	meta, err := p.Upload(context.Background(), UploadOptions{Name: "abi.txt", Data: []byte{1, 2, 3}, Token: "jwt-123"})
	require.NoError(t, err)
	assert.Equal(t, testCIDv1, meta.ID)
	assert.Equal(t, "abi.txt", meta.Name)
	assert.EqualValues(t, 3, meta.Size)
	assert.Equal(t, "2025-01-02T00:00:00Z", meta.ModifiedTime)

	link, err := p.ShareLink(context.Background(), ShareLinkOptions{ID: meta.ID})
	require.NoError(t, err)
	assert.Equal(t, "https://gw.example/ipfs/"+testCIDv1, link)
}

func TestPinataUpload_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid jwt", http.StatusUnauthorized)
	}))
	defer srv.Close()

	p := NewPinataIPFS(PinataConfig{UploadURL: srv.URL})
	_, err := p.Upload(context.Background(), UploadOptions{Name: "a", Data: []byte("x"), Token: "bad"})
	require.Error(t, err)

	var se *StorageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusUnauthorized, se.StatusCode)
	assert.Contains(t, se.Error(), "invalid jwt")
}

func TestPinataUpload_InvalidCID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"data":{"name":"a","cid":"not-a-cid","size":1}}`)
	}))
	defer srv.Close()

	p := NewPinataIPFS(PinataConfig{UploadURL: srv.URL})
	_, err := p.Upload(context.Background(), UploadOptions{Name: "a", Data: []byte("x"), Token: "t"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid cid")
}

func TestPinataUpload_RequiresToken(t *testing.T) {
	p := NewPinataIPFS(DefaultPinataConfig())
	_, err := p.Upload(context.Background(), UploadOptions{Name: "a", Data: []byte("x")})
	var se *StorageError
	require.True(t, errors.As(err, &se))
	assert.Contains(t, se.Message, "IPFS_JWT")
}

func TestPinataDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ipfs/"+testCIDv0 {
			_, _ = w.Write([]byte("sealed"))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	p := NewPinataIPFS(PinataConfig{GatewayURL: srv.URL})
	link, err := p.ShareLink(context.Background(), ShareLinkOptions{ID: testCIDv0})
	require.NoError(t, err)

	data, err := p.Download(context.Background(), link)
	require.NoError(t, err)
	assert.Equal(t, "sealed", string(data))

	_, err = p.Download(context.Background(), srv.URL+"/ipfs/missing")
	var se *StorageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusNotFound, se.StatusCode)
}

func TestShareLink_InvalidCID(t *testing.T) {
	p := NewPinataIPFS(DefaultPinataConfig())
	_, err := p.ShareLink(context.Background(), ShareLinkOptions{ID: "nope"})
	assert.Error(t, err)
}

func TestCIDFromURL(t *testing.T) {
	tests := []struct {
		url     string
		want    string
		wantErr bool
	}{
		{"https://gateway.pinata.cloud/ipfs/" + testCIDv1, testCIDv1, false},
		{"https://gateway.pinata.cloud/ipfs/" + testCIDv0 + "?filename=a.txt", testCIDv0, false},
		{"https://gateway.pinata.cloud/ipfs/" + testCIDv0 + "/nested", testCIDv0, false},
		{"https://example.com/files/abc", "", true},
		{"https://example.com/ipfs/garbage", "", true},
	}
	for _, tt := range tests {
		got, err := CIDFromURL(tt.url)
		if tt.wantErr {
			assert.Error(t, err, tt.url)
			continue
		}
		require.NoError(t, err, tt.url)
		assert.Equal(t, tt.want, got)
	}
}
