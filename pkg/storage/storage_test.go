package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDownloader struct {
	body string
}

func (f fakeDownloader) DownloadRecording(ctx context.Context, recordingURL string, w io.Writer) error {
	_, err := io.WriteString(w, f.body)
	return err
}

func TestNewDriver(t *testing.T) {
	d, err := NewDriver("exotel-proxy", "", nil)
	require.NoError(t, err)
	assert.IsType(t, ProxyDriver{}, d)

	d, err = NewDriver("LOCAL", t.TempDir(), nil)
	require.NoError(t, err)
	assert.IsType(t, &LocalDriver{}, d)

	_, err = NewDriver("s3", "", nil)
	assert.Error(t, err)
}

func TestProxyDriver_RecordingURL(t *testing.T) {
	d := ProxyDriver{}

	url, err := d.RecordingURL("CA1", "https://recordings.exotel.com/CA1.mp3")
	require.NoError(t, err)
	assert.Equal(t, "https://recordings.exotel.com/CA1.mp3", url)

	_, err = d.RecordingURL("CA1", "")
	assert.ErrorIs(t, err, ErrNoRecording)
}

func TestLocalDriver_PersistThenServe(t *testing.T) {
	dir := t.TempDir()
	d := NewLocalDriver(dir, fakeDownloader{body: "audio"})

	_, err := d.RecordingURL("CA1", "")
	assert.ErrorIs(t, err, ErrNoRecording)

	require.NoError(t, d.Persist(context.Background(), "CA1", "https://x/rec.mp3"))

	raw, err := os.ReadFile(filepath.Join(dir, "CA1.mp3"))
	require.NoError(t, err)
	assert.Equal(t, "audio", string(raw))

	url, err := d.RecordingURL("CA1", "")
	require.NoError(t, err)
	assert.Equal(t, "/api/recordings/CA1.mp3", url)

	path, err := d.FilePath("CA1")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "CA1.mp3"), path)
}

func TestLocalDriver_RejectsPathLikeSIDs(t *testing.T) {
	dir := t.TempDir()
	d := NewLocalDriver(dir, fakeDownloader{body: "audio"})

	for _, sid := range []string{"", "../etc/passwd", "a/b", "CA1.mp3"} {
		assert.ErrorIs(t, d.Persist(context.Background(), sid, "https://x/rec.mp3"), ErrInvalidCallSID, sid)
		_, err := d.RecordingURL(sid, "")
		assert.ErrorIs(t, err, ErrInvalidCallSID, sid)
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLocalDriver_FailedDownloadLeavesNothing(t *testing.T) {
	dir := t.TempDir()
	d := NewLocalDriver(dir, failingDownloader{})

	err := d.Persist(context.Background(), "CA2", "https://x/rec.mp3")
	require.Error(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLocalDriver_NoDownloader(t *testing.T) {
	d := NewLocalDriver(t.TempDir(), nil)
	assert.Error(t, d.Persist(context.Background(), "CA3", "https://x/rec.mp3"))
	assert.NoError(t, d.Persist(context.Background(), "CA3", ""))
}

type failingDownloader struct{}

func (failingDownloader) DownloadRecording(ctx context.Context, recordingURL string, w io.Writer) error {
	_, _ = io.WriteString(w, "partial")
	return io.ErrUnexpectedEOF
}
