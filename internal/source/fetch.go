package source

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	appLog "variazioni/internal/log"
	"variazioni/internal/model"
)

// cacheEntry holds HTTP cache metadata for a single backend URL.
type cacheEntry struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Client fetches variation events from the remote backend with HTTP
// caching (ETag / Last-Modified) and a disk-backed body cache, so that a
// flaky backend degrades to yesterday's answer instead of an empty screen.
type Client struct {
	http     *http.Client
	baseURL  string
	cacheDir string
}

// NewClient creates a backend client. baseURL is the backend root (e.g.
// "https://variazioni.example.it/api"); cacheDir is where per-URL cache
// subdirectories are stored.
func NewClient(baseURL, cacheDir string) *Client {
	if cacheDir == "" {
		// Caller should set this explicitly; fall back to a relative dir
		// so development runs without root permissions.
		cacheDir = "./var/backend-cache"
	}
	return &Client{
		http: &http.Client{
			Timeout: 15 * time.Second,
		},
		baseURL:  baseURL,
		cacheDir: cacheDir,
	}
}

// FetchDay fetches the raw variation events for one day (YYYY-MM-DD) and
// decodes them into model events. Individual entries that fail to decode
// are logged and skipped; the rest of the batch survives.
func (c *Client) FetchDay(ctx context.Context, day string) ([]model.Event, error) {
	if c.baseURL == "" {
		return nil, errors.New("backend base URL is empty")
	}

	u := c.baseURL + "/variations?date=" + url.QueryEscape(day)
	body, fromCache, err := c.fetch(ctx, u)
	if err != nil {
		return nil, err
	}

	events, skipped := DecodeEvents("backend", body)
	appLog.Info("backend fetch completed",
		"day", day,
		"event_count", len(events),
		"skipped", skipped,
		"from_cache", fromCache,
	)
	return events, nil
}

// fetch performs one conditional GET, honoring ETag and Last-Modified from
// the disk cache and falling back to the cached body on network errors,
// 304 responses and non-OK statuses.
func (c *Client) fetch(ctx context.Context, rawURL string) (body []byte, fromCache bool, err error) {
	cachePath := c.cachePathForURL(rawURL)
	if err := os.MkdirAll(cachePath, 0o700); err != nil {
		return nil, false, err
	}

	meta, _ := loadCacheMeta(cachePath)
	cachedBody, _ := os.ReadFile(filepath.Join(cachePath, "body.json"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Accept", "application/json")
	if meta.ETag != "" {
		req.Header.Set("If-None-Match", meta.ETag)
	}
	if meta.LastModified != "" {
		req.Header.Set("If-Modified-Since", meta.LastModified)
	}

	appLog.Debug("backend fetch start", "url", RedactURL(rawURL))

	resp, err := c.http.Do(req)
	if err != nil {
		if len(cachedBody) > 0 {
			appLog.Error("backend fetch network error, using cached body", err, "url", RedactURL(rawURL))
			return cachedBody, true, nil
		}
		return nil, false, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		fresh, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return nil, false, readErr
		}

		newMeta := cacheEntry{
			URL:          rawURL,
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
			UpdatedAt:    time.Now().UTC(),
		}
		if err := saveCache(cachePath, newMeta, fresh); err != nil {
			appLog.Error("backend cache save failed", err, "url", RedactURL(rawURL))
		}
		return fresh, false, nil

	case http.StatusNotModified:
		if len(cachedBody) == 0 {
			return nil, false, errors.New("received 304 Not Modified but no cached body available")
		}
		appLog.Debug("backend fetch not modified; using cache", "url", RedactURL(rawURL))
		return cachedBody, true, nil

	default:
		if len(cachedBody) > 0 {
			appLog.Error("backend fetch non-OK, using cached body", errors.New(resp.Status), "url", RedactURL(rawURL), "status", resp.StatusCode)
			return cachedBody, true, nil
		}
		return nil, false, fmt.Errorf("backend returned %s", resp.Status)
	}
}

func (c *Client) cachePathForURL(rawURL string) string {
	sum := sha256.Sum256([]byte(rawURL))
	return filepath.Join(c.cacheDir, hex.EncodeToString(sum[:8]))
}

func loadCacheMeta(cachePath string) (cacheEntry, error) {
	var meta cacheEntry
	data, err := os.ReadFile(filepath.Join(cachePath, "meta.json"))
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return cacheEntry{}, err
	}
	return meta, nil
}

func saveCache(cachePath string, meta cacheEntry, body []byte) error {
	// Write body first so meta never points at a missing body.
	if err := os.WriteFile(filepath.Join(cachePath, "body.json"), body, 0o600); err != nil {
		return err
	}

	meta.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(&meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(cachePath, "meta.json"), data, 0o600)
}

// RedactURL hides query strings and paths of a backend URL for logging.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "backend://...(redacted)"
	}
	return u.Scheme + "://" + u.Host + "/...(redacted)"
}
