package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// RecordingsRoute is where LocalDriver recordings are served.
const RecordingsRoute = "/api/recordings"

var (
	ErrNoRecording    = errors.New("no recording for call")
	ErrInvalidCallSID = errors.New("invalid call sid")
)

// Downloader fetches an authenticated provider recording.
type Downloader interface {
	DownloadRecording(ctx context.Context, recordingURL string, w io.Writer) error
}

// Driver decides where call recordings are served from.
type Driver interface {
	// RecordingURL returns the URL clients are redirected to, or ErrNoRecording.
	RecordingURL(callSID, providerURL string) (string, error)
	// Persist runs once a call completes with a recording.
	Persist(ctx context.Context, callSID, providerURL string) error
}

// NewDriver picks a driver by name: "exotel-proxy" (default) or "local".
func NewDriver(name, localPath string, downloader Downloader) (Driver, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "exotel-proxy", "proxy":
		return ProxyDriver{}, nil
	case "local":
		return NewLocalDriver(localPath, downloader), nil
	}
	return nil, fmt.Errorf("unknown storage driver %q", name)
}

// validCallSID accepts provider ids: letters, digits, '-' and '_'. Anything
// else could escape the recordings directory.
func validCallSID(sid string) error {
	if sid == "" || len(sid) > 128 {
		return ErrInvalidCallSID
	}
	for _, r := range sid {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return ErrInvalidCallSID
		}
	}
	return nil
}

// ProxyDriver leaves recordings with the provider and hands out its URL.
type ProxyDriver struct{}

func (ProxyDriver) RecordingURL(callSID, providerURL string) (string, error) {
	if err := validCallSID(callSID); err != nil {
		return "", err
	}
	if providerURL == "" {
		return "", fmt.Errorf("%w %s", ErrNoRecording, callSID)
	}
	return providerURL, nil
}

func (ProxyDriver) Persist(context.Context, string, string) error { return nil }

// LocalDriver copies recordings to disk as <callSID>.mp3.
type LocalDriver struct {
	dir        string
	downloader Downloader
}

func NewLocalDriver(dir string, downloader Downloader) *LocalDriver {
	if dir == "" {
		dir = "/data/recordings"
	}
	return &LocalDriver{dir: dir, downloader: downloader}
}

// FilePath returns the stored file for callSID, or ErrNoRecording.
func (d *LocalDriver) FilePath(callSID string) (string, error) {
	if err := validCallSID(callSID); err != nil {
		return "", err
	}
	p := d.path(callSID)
	if _, err := os.Stat(p); err != nil {
		return "", fmt.Errorf("%w %s", ErrNoRecording, callSID)
	}
	return p, nil
}

func (d *LocalDriver) RecordingURL(callSID, _ string) (string, error) {
	if _, err := d.FilePath(callSID); err != nil {
		return "", err
	}
	return RecordingsRoute + "/" + callSID + ".mp3", nil
}

// Persist downloads to a temp file in the same directory and renames it into
// place, so a served file is never partial.
func (d *LocalDriver) Persist(ctx context.Context, callSID, providerURL string) error {
	if providerURL == "" {
		return nil
	}
	if err := validCallSID(callSID); err != nil {
		return err
	}
	if d.downloader == nil {
		return errors.New("local storage: no recording downloader configured")
	}
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return fmt.Errorf("local storage: %w", err)
	}

	tmp, err := os.CreateTemp(d.dir, callSID+"-*.part")
	if err != nil {
		return fmt.Errorf("local storage: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := d.downloader.DownloadRecording(ctx, providerURL, tmp); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("download recording %s: %w", callSID, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("local storage: %w", err)
	}
	return os.Rename(tmp.Name(), d.path(callSID))
}

func (d *LocalDriver) path(callSID string) string {
	return filepath.Join(d.dir, callSID+".mp3")
}
