package archive

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/movingbox/storemigrate/internal/errors"
)

// recordingTransport stubs S3 PUTs and remembers what was sent.
type recordingTransport struct {
	mu     sync.Mutex
	status int
	puts   map[string]recordedPut
}

type recordedPut struct {
	body     []byte
	checksum string
}

func newRecordingTransport(status int) *recordingTransport {
	return &recordingTransport{status: status, puts: make(map[string]recordedPut)}
}

func (rt *recordingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if req.Method == http.MethodPut && rt.status == http.StatusOK {
		var body []byte
		if req.Body != nil {
			body, _ = io.ReadAll(req.Body)
		}
		rt.puts[req.URL.Path] = recordedPut{body: body, checksum: req.Header.Get("X-Amz-Meta-Sha256")}
	}

	respBody := ""
	if rt.status != http.StatusOK {
		respBody = `<?xml version="1.0"?><Error><Code>AccessDenied</Code><Message>denied</Message></Error>`
	}
	return &http.Response{
		StatusCode: rt.status,
		Body:       io.NopCloser(strings.NewReader(respBody)),
		Header:     http.Header{"Etag": {`"etag"`}, "Content-Type": {"application/xml"}},
		Request:    req,
	}, nil
}

func newTestTarget(t *testing.T, rt http.RoundTripper, prefix string) *S3Target {
	t.Helper()
	target, err := NewS3Target(context.Background(), S3Config{
		Bucket:          "archives",
		Region:          "eu-west-1",
		Endpoint:        "https://s3.mock.local",
		AccessKeyID:     "AKIA",
		SecretAccessKey: "SECRET",
		PathStyle:       true,
		Prefix:          prefix,
		HTTPClient:      &http.Client{Transport: rt},
	})
	require.NoError(t, err)
	return target
}

func TestNewS3Target_RequiresBucket(t *testing.T) {
	t.Parallel()

	_, err := NewS3Target(context.Background(), S3Config{})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestS3Target_NameAndKey(t *testing.T) {
	t.Parallel()

	target := newTestTarget(t, newRecordingTransport(http.StatusOK), "/movingbox/backups/")
	assert.Equal(t, "s3://archives/movingbox/backups", target.Name())
	assert.Equal(t, "movingbox/backups/legacy-1/Inventory.sqlite", target.Key("legacy-1/Inventory.sqlite"))

	bare := newTestTarget(t, newRecordingTransport(http.StatusOK), "")
	assert.Equal(t, "s3://archives", bare.Name())
	assert.Equal(t, "a/b", bare.Key("a/b"))
}

func TestS3Target_Upload(t *testing.T) {
	t.Parallel()

	rt := newRecordingTransport(http.StatusOK)
	target := newTestTarget(t, rt, "backups")

	content := []byte("legacy store bytes")
	err := target.Upload(context.Background(), "legacy-20260101/Inventory.sqlite",
		bytes.NewReader(content), int64(len(content)), "abc123")
	require.NoError(t, err)

	put, ok := rt.puts["/archives/backups/legacy-20260101/Inventory.sqlite"]
	require.True(t, ok, "expected path-style PUT, got %v", rt.puts)
	assert.Contains(t, string(put.body), string(content))
	assert.Equal(t, "abc123", put.checksum)
}

func TestS3Target_UploadFailureIsNetworkError(t *testing.T) {
	t.Parallel()

	target := newTestTarget(t, newRecordingTransport(http.StatusForbidden), "")

	content := []byte("x")
	err := target.Upload(context.Background(), "k", bytes.NewReader(content), 1, "sum")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryNetwork))

	var ee *errors.EnhancedError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, "k", ee.GetContext()["key"])
}
