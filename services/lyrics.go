package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// DefaultLyricsURL is the public lrclib instance
const DefaultLyricsURL = "https://lrclib.net"

// LyricsClient looks up lyrics on an lrclib server
type LyricsClient struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewLyricsClient creates a client allowing ratePerSec requests per second
func NewLyricsClient(baseURL string, ratePerSec float64) *LyricsClient {
	if baseURL == "" {
		baseURL = DefaultLyricsURL
	}
	limit := rate.Inf
	if ratePerSec > 0 {
		limit = rate.Limit(ratePerSec)
	}
	return &LyricsClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    rate.NewLimiter(limit, 1),
	}
}

// LyricsQuery identifies a track on lrclib. Duration is in seconds and optional.
type LyricsQuery struct {
	Title    string
	Artist   string
	Album    string
	Duration int
}

type lrclibRecord struct {
	PlainLyrics  string `json:"plainLyrics"`
	SyncedLyrics string `json:"syncedLyrics"`
}

// Fetch returns synced lyrics when available, otherwise plain lyrics.
// It returns "" with a nil error when lrclib has nothing for the track.
func (c *LyricsClient) Fetch(ctx context.Context, q LyricsQuery) (string, error) {
	if q.Title == "" || q.Artist == "" {
		return "", nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	params := url.Values{}
	params.Set("track_name", q.Title)
	params.Set("artist_name", q.Artist)
	if q.Album != "" {
		params.Set("album_name", q.Album)
	}
	if q.Duration > 0 {
		params.Set("duration", strconv.Itoa(q.Duration))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/get?"+params.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "ytmusicdl")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("lyrics request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", nil
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("lyrics request failed: status %d", resp.StatusCode)
	}

	var rec lrclibRecord
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		return "", fmt.Errorf("failed to decode lyrics: %w", err)
	}
	if rec.SyncedLyrics != "" {
		return rec.SyncedLyrics, nil
	}
	return rec.PlainLyrics, nil
}

// SaveLyrics writes lyrics next to audioPath as an .lrc file and returns its path
func SaveLyrics(lyrics, audioPath string) (string, error) {
	lrc := strings.TrimSuffix(audioPath, filepath.Ext(audioPath)) + ".lrc"
	if err := os.WriteFile(lrc, []byte(lyrics), 0o644); err != nil {
		return "", fmt.Errorf("failed to write lyrics: %w", err)
	}
	return lrc, nil
}
