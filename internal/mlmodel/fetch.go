package mlmodel

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"github.com/dustin/go-humanize"
)

// Artifact locates a serialized model: a local path and, optionally, a URL
// to download it from when the file is missing.
type Artifact struct {
	Path string
	URL  string
}

// Fetch makes sure the artifact exists locally and returns its path.
// Downloads are retried with jittered backoff; the file is written
// atomically so a failed download never leaves a truncated model behind.
func Fetch(ctx context.Context, client *http.Client, a Artifact) (string, error) {
	if a.Path == "" {
		return "", fmt.Errorf("artifact path not set")
	}
	if _, err := os.Stat(a.Path); err == nil {
		return a.Path, nil
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("checking artifact: %w", err)
	}
	if a.URL == "" {
		return "", fmt.Errorf("artifact %s not found and no download URL configured", a.Path)
	}

	if err := os.MkdirAll(filepath.Dir(a.Path), 0755); err != nil {
		return "", fmt.Errorf("creating artifact directory: %w", err)
	}

	slog.Info("Downloading model artifact", "url", a.URL, "path", a.Path)
	var size int64
	err := retry.Do(
		func() error {
			n, err := download(ctx, client, a.URL, a.Path)
			size = n
			return err
		},
		retry.Context(ctx),
		retry.Attempts(4),
		retry.Delay(time.Second),
		retry.MaxDelay(30*time.Second),
		retry.DelayType(retry.FullJitterBackoffDelay),
		retry.OnRetry(func(n uint, err error) {
			slog.Debug("Retrying model download", "attempt", n+1, "url", a.URL, "error", err)
		}),
	)
	if err != nil {
		return "", fmt.Errorf("downloading %s: %w", a.URL, err)
	}

	slog.Info("Model artifact downloaded", "path", a.Path, "size", humanize.Bytes(uint64(size)))
	return a.Path, nil
}

func download(ctx context.Context, client *http.Client, url, path string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, retry.Unrecoverable(fmt.Errorf("creating request: %w", err))
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := fmt.Errorf("HTTP error: status %d, response: %s", resp.StatusCode, string(body))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
			return 0, err
		}
		return 0, retry.Unrecoverable(err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".artifact-*")
	if err != nil {
		return 0, retry.Unrecoverable(fmt.Errorf("creating temp file: %w", err))
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, resp.Body)
	if err != nil {
		tmp.Close()
		return 0, fmt.Errorf("reading body: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return 0, retry.Unrecoverable(fmt.Errorf("moving artifact into place: %w", err))
	}
	return n, nil
}
