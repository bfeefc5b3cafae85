package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ytmusicdl/types"

	ytget "github.com/ytget/ytdlp/v2"
	"golang.org/x/time/rate"
)

const (
	defaultResolveTimeout = 60 * time.Second
	watchURLTemplate      = "https://music.youtube.com/watch?v=%s"

	UnknownArtist = "Unknown Artist"
	UnknownAlbum  = "Unknown Album"
)

// SourceKind says what a URL points at
type SourceKind string

const (
	SourcePlaylist SourceKind = "playlist"
	SourceVideo    SourceKind = "video"
	SourceBrowse   SourceKind = "browse"
)

// Source is a parsed YouTube / YouTube Music URL
type Source struct {
	Kind SourceKind
	ID   string
}

var youtubeHosts = map[string]bool{
	"music.youtube.com": true,
	"www.youtube.com":   true,
	"youtube.com":       true,
	"m.youtube.com":     true,
	"youtu.be":          true,
}

// ParseSource extracts the playlist, video or browse id from a URL.
// A list parameter wins over v, so album links opened from a track still resolve the album.
func ParseSource(raw string) (Source, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return Source{}, fmt.Errorf("%w: %q", types.ErrInvalidURL, raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return Source{}, fmt.Errorf("%w: unsupported scheme %q", types.ErrInvalidURL, u.Scheme)
	}
	host := strings.ToLower(u.Host)
	if !youtubeHosts[host] {
		return Source{}, fmt.Errorf("%w: unsupported host %q", types.ErrInvalidURL, u.Host)
	}

	q := u.Query()
	if list := q.Get("list"); list != "" {
		return Source{Kind: SourcePlaylist, ID: list}, nil
	}
	if host == "youtu.be" {
		if id := strings.Trim(u.Path, "/"); id != "" {
			return Source{Kind: SourceVideo, ID: id}, nil
		}
	}
	if v := q.Get("v"); v != "" {
		return Source{Kind: SourceVideo, ID: v}, nil
	}
	if rest, ok := strings.CutPrefix(u.Path, "/browse/"); ok && rest != "" {
		return Source{Kind: SourceBrowse, ID: strings.Trim(rest, "/")}, nil
	}
	return Source{}, fmt.Errorf("%w: no playlist or video id in %q", types.ErrInvalidURL, raw)
}

// TrackRef is one track to download
type TrackRef struct {
	VideoID  string
	Title    string
	Artist   string
	Album    string
	Number   int
	URL      string
	Duration int // seconds, zero when unknown
}

// Album is a resolved download plan
type Album struct {
	Info   types.AlbumInfo
	Tracks []TrackRef
}

// PlaylistLister returns the tracks of a playlist
type PlaylistLister interface {
	ListPlaylist(ctx context.Context, playlistID string) ([]TrackRef, error)
}

// ytgetLister lists playlists through the ytget InnerTube client
type ytgetLister struct{}

func (ytgetLister) ListPlaylist(ctx context.Context, playlistID string) ([]TrackRef, error) {
	items, err := ytget.New().GetPlaylistItemsAll(ctx, playlistID, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to get playlist items: %w", err)
	}
	tracks := make([]TrackRef, 0, len(items))
	for _, it := range items {
		tracks = append(tracks, TrackRef{
			VideoID: it.VideoID,
			Title:   it.Title,
			URL:     fmt.Sprintf(watchURLTemplate, it.VideoID),
		})
	}
	return tracks, nil
}

// Resolver turns a URL into an Album
type Resolver struct {
	lister  PlaylistLister
	proxy   *MetadataProxy
	timeout time.Duration
}

// NewResolver creates a resolver. proxy may be nil.
func NewResolver(proxy *MetadataProxy) *Resolver {
	return &Resolver{
		lister:  ytgetLister{},
		proxy:   proxy,
		timeout: defaultResolveTimeout,
	}
}

// WithLister replaces the playlist backend
func (r *Resolver) WithLister(l PlaylistLister) *Resolver {
	r.lister = l
	return r
}

// Resolve fetches the track list and album metadata for rawURL
func (r *Resolver) Resolve(ctx context.Context, rawURL string) (*Album, error) {
	src, err := ParseSource(rawURL)
	if err != nil {
		return nil, types.NewPipelineError(types.ErrInvalidURL, "Unsupported or malformed URL", err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	switch src.Kind {
	case SourceVideo:
		return r.resolveVideo(src.ID, rawURL), nil
	case SourceBrowse:
		if r.proxy == nil {
			return nil, types.NewPipelineError(types.ErrInvalidURL, "Album browse links need a metadata proxy", nil)
		}
		return r.resolveFromProxy(ctx, src.ID, rawURL)
	}

	if r.proxy != nil {
		album, err := r.resolveFromProxy(ctx, src.ID, rawURL)
		if err == nil {
			return album, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// fall through to the plain playlist listing
	}

	tracks, err := r.lister.ListPlaylist(ctx, src.ID)
	if err != nil {
		if ctx.Err() != nil && errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, types.NewPipelineError(types.ErrUpstreamAPI, "Could not fetch playlist", err)
	}
	if len(tracks) == 0 {
		return nil, types.NewPipelineError(types.ErrPlaylistNotFound, "Playlist is empty or unavailable", nil)
	}
	return buildAlbum(src.ID, rawURL, "", tracks), nil
}

func (r *Resolver) resolveVideo(videoID, rawURL string) *Album {
	track := TrackRef{VideoID: videoID, Number: 1, URL: fmt.Sprintf(watchURLTemplate, videoID)}
	return &Album{
		Info: types.AlbumInfo{
			Title:      UnknownAlbum,
			Artist:     UnknownArtist,
			TrackCount: 1,
			URL:        rawURL,
		},
		Tracks: []TrackRef{track},
	}
}

func (r *Resolver) resolveFromProxy(ctx context.Context, id, rawURL string) (*Album, error) {
	pl, err := r.proxy.Playlist(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(pl.Tracks) == 0 {
		return nil, types.NewPipelineError(types.ErrPlaylistNotFound, "Playlist is empty or unavailable", nil)
	}

	tracks := make([]TrackRef, 0, len(pl.Tracks))
	for _, t := range pl.Tracks {
		if t.VideoID == "" {
			continue
		}
		ref := TrackRef{
			VideoID:  t.VideoID,
			Title:    t.Title,
			URL:      fmt.Sprintf(watchURLTemplate, t.VideoID),
			Duration: t.DurationSec,
		}
		if len(t.Artists) > 0 {
			ref.Artist = t.Artists[0].Name
		}
		if t.Album != nil {
			ref.Album = t.Album.Name
		}
		tracks = append(tracks, ref)
	}

	album := buildAlbum(id, rawURL, pl.Title, tracks)
	if pl.Author != "" {
		album.Info.Artist = pl.Author
	}
	album.Info.Year = pl.Year
	album.Info.Thumbnail = largestThumbnail(pl.Thumbnails)
	return album, nil
}

// buildAlbum numbers the tracks and fills album-level fields from them
func buildAlbum(playlistID, rawURL, title string, tracks []TrackRef) *Album {
	artist := ""
	for i := range tracks {
		tracks[i].Number = i + 1
		if tracks[i].Artist == "" {
			if a, t, ok := splitArtistTitle(tracks[i].Title); ok {
				tracks[i].Artist, tracks[i].Title = a, t
			}
		}
		if artist == "" {
			artist = tracks[i].Artist
		}
		if title == "" {
			title = tracks[i].Album
		}
	}
	if artist == "" {
		artist = UnknownArtist
	}
	if title == "" {
		title = UnknownAlbum
	}
	return &Album{
		Info: types.AlbumInfo{
			Title:      title,
			Artist:     artist,
			TrackCount: len(tracks),
			PlaylistID: playlistID,
			URL:        rawURL,
		},
		Tracks: tracks,
	}
}

// splitArtistTitle handles "Artist - Title" video names
func splitArtistTitle(s string) (artist, title string, ok bool) {
	a, t, found := strings.Cut(s, " - ")
	a, t = strings.TrimSpace(a), strings.TrimSpace(t)
	if !found || a == "" || t == "" {
		return "", "", false
	}
	return a, t, true
}

// ProxyImage is a thumbnail returned by the metadata proxy
type ProxyImage struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// ProxyTrack is a track returned by the metadata proxy
type ProxyTrack struct {
	VideoID string `json:"videoId"`
	Title   string `json:"title"`
	Artists []struct {
		Name string `json:"name"`
		ID   string `json:"id"`
	} `json:"artists"`
	Album *struct {
		Name string `json:"name"`
		ID   string `json:"id"`
	} `json:"album"`
	DurationSec int `json:"duration_seconds"`
}

// ProxyPlaylist is the body of GET /api/playlists/{id}
type ProxyPlaylist struct {
	ID         string       `json:"id"`
	Title      string       `json:"title"`
	Author     string       `json:"author"`
	Year       int          `json:"year"`
	TrackCount int          `json:"trackCount"`
	Thumbnails []ProxyImage `json:"thumbnails"`
	Tracks     []ProxyTrack `json:"tracks"`
}

// MetadataProxy talks to a ytmusicapi HTTP proxy for album metadata
type MetadataProxy struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewMetadataProxy creates a proxy client allowing ratePerSec requests per second
func NewMetadataProxy(baseURL string, ratePerSec float64) *MetadataProxy {
	limit := rate.Inf
	if ratePerSec > 0 {
		limit = rate.Limit(ratePerSec)
	}
	return &MetadataProxy{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(limit, 1),
	}
}

// Playlist fetches a playlist or album with its tracks
func (p *MetadataProxy) Playlist(ctx context.Context, id string) (*ProxyPlaylist, error) {
	var pl ProxyPlaylist
	if err := p.get(ctx, "/api/playlists/"+url.PathEscape(id), &pl); err != nil {
		return nil, err
	}
	return &pl, nil
}

func (p *MetadataProxy) get(ctx context.Context, endpoint string, result any) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return types.NewPipelineError(types.ErrUpstreamAPI, "Metadata service unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return types.NewPipelineError(types.ErrPlaylistNotFound, "Playlist not found", nil)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp struct {
			Detail string `json:"detail"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil && errResp.Detail != "" {
			return types.NewPipelineError(types.ErrUpstreamAPI, "Metadata service error",
				fmt.Errorf("status %d: %s", resp.StatusCode, errResp.Detail))
		}
		return types.NewPipelineError(types.ErrUpstreamAPI, "Metadata service error",
			fmt.Errorf("status %d", resp.StatusCode))
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return types.NewPipelineError(types.ErrUpstreamAPI, "Metadata service error",
			fmt.Errorf("failed to decode response: %w", err))
	}
	return nil
}

func largestThumbnail(images []ProxyImage) string {
	best := ""
	area := -1
	for _, img := range images {
		if a := img.Width * img.Height; a > area {
			area = a
			best = img.URL
		}
	}
	return best
}
