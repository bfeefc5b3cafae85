package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"ytmusicdl/cmd"
	"ytmusicdl/config"
	"ytmusicdl/logging"
	"ytmusicdl/services"
	"ytmusicdl/types"
	"ytmusicdl/websocket"

	"github.com/gin-gonic/gin"
	gorillaws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

const (
	testAlbumURL = "https://music.youtube.com/playlist?list=OLAK5uy_test"
	failAlbumURL = "https://music.youtube.com/playlist?list=FAIL"
)

// TestHelper runs the full router over a scripted pipeline.
// Jobs pause at "downloading 3/10" until Release is called.
type TestHelper struct {
	Server     *httptest.Server
	Services   *cmd.Services
	LibraryDir string

	gate    chan struct{}
	release sync.Once
}

// NewTestHelper creates a server with a temporary library
func NewTestHelper(t *testing.T) *TestHelper {
	t.Helper()
	gin.SetMode(gin.TestMode)

	h := &TestHelper{
		LibraryDir: t.TempDir(),
		gate:       make(chan struct{}),
	}

	cfg := config.DefaultConfig()
	cfg.Server.GinMode = gin.TestMode
	cfg.Server.CORSOrigins = []string{"*"}
	cfg.Paths.LibraryDir = h.LibraryDir
	cfg.Paths.IndexPath = ":memory:"

	bus := services.NewBroadcaster(50)
	logger := logging.NewLogger(bus.LogWriter(), "info")
	store := services.NewJobStore(services.WithNotifier(bus))
	bus.SetSnapshotSource(store)

	index, err := services.OpenIndex(cfg.Paths.IndexPath)
	require.NoError(t, err)
	_, err = index.Record(context.Background(), types.LibraryTrack{
		JobID:       "seed-job",
		VideoID:     "seedvideo01",
		Title:       "Test Song",
		Artist:      "Test Artist",
		Album:       "Test Album",
		TrackNumber: 1,
		Path:        "Test Artist/2023 - Test Album/01 - Test Song.flac",
	})
	require.NoError(t, err)

	h.Services = &cmd.Services{
		Config:   cfg,
		Logger:   logger,
		Bus:      bus,
		Store:    store,
		Executor: services.NewExecutor(store, h.pipeline(), logger),
		Resolver: staticResolver{},
		Index:    index,
		Files:    services.NewFileService(logger),
		Hub:      websocket.NewHub(bus, logger, cfg.Server.CORSOrigins),
		Cookies:  services.NewCookieStore(filepath.Join(t.TempDir(), "cookies.txt")),
	}
	h.Server = httptest.NewServer(cmd.NewRouter(h.Services))
	h.setupTestData(t)

	t.Cleanup(func() { h.Cleanup(t) })
	return h
}

// Cleanup stops the running job, closes every stream and the server
func (h *TestHelper) Cleanup(t *testing.T) {
	h.Services.Executor.CancelAll()
	h.Services.Hub.Shutdown()
	h.Services.Bus.CloseAll()
	h.Server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, h.Services.Executor.Wait(ctx))
	h.Services.Index.Close()
}

// Release lets paused jobs finish, and every later job run straight through
func (h *TestHelper) Release() {
	h.release.Do(func() { close(h.gate) })
}

func (h *TestHelper) pipeline() services.Pipeline {
	return services.PipelineFunc(func(ctx context.Context, req services.Request, token *services.CancelToken, emit func(services.ProgressEvent) bool) (*types.JobResult, error) {
		album := &types.AlbumInfo{Title: "Test Album", Artist: "Test Artist", TrackCount: 10, URL: req.URL}
		emit(services.ProgressEvent{Phase: services.PhaseFetchingInfo, Current: 1, Total: 1, Message: "Found album", Album: album})

		if strings.Contains(req.URL, "list=FAIL") {
			return nil, types.NewPipelineError(types.ErrDownload, "Download failed", errors.New("yt-dlp exited 1: cookie=secret"))
		}

		emit(services.ProgressEvent{Phase: services.PhaseDownloading, Current: 3, Total: 10, Message: "Downloading 3/10"})
		select {
		case <-h.gate:
		case <-token.Done():
			return nil, services.ErrCancelled
		}
		emit(services.ProgressEvent{Phase: services.PhaseDownloading, Current: 10, Total: 10, Message: "Downloaded 10/10 tracks"})
		emit(services.ProgressEvent{Phase: services.PhaseImporting, Current: 1, Total: 1, Message: "Imported album"})

		return &types.JobResult{
			Album:       album,
			Destination: filepath.Join(h.LibraryDir, "Test Artist", "Test Album"),
			TrackCount:  10,
		}, nil
	})
}

type staticResolver struct{}

func (staticResolver) Resolve(ctx context.Context, rawURL string) (*services.Album, error) {
	if strings.Contains(rawURL, "list=FAIL") {
		return nil, types.NewPipelineError(types.ErrPlaylistNotFound, "Playlist not found", nil)
	}
	if _, err := services.ParseSource(rawURL); err != nil {
		return nil, types.NewPipelineError(types.ErrInvalidURL, "Unsupported or malformed URL", err)
	}
	return &services.Album{
		Info: types.AlbumInfo{Title: "Test Album", Artist: "Test Artist", TrackCount: 2, URL: rawURL},
		Tracks: []services.TrackRef{
			{VideoID: "v1", Title: "One", Number: 1, URL: "https://music.youtube.com/watch?v=v1"},
			{VideoID: "v2", Title: "Two", Number: 2, URL: "https://music.youtube.com/watch?v=v2"},
		},
	}, nil
}

// setupTestData creates a small library tree
func (h *TestHelper) setupTestData(t *testing.T) {
	albumDir := filepath.Join(h.LibraryDir, "Test Artist", "2023 - Test Album")
	require.NoError(t, os.MkdirAll(albumDir, 0o755))

	require.NoError(t, os.WriteFile(filepath.Join(albumDir, "01 - Test Song.flac"), createMinimalFLACFile(), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(albumDir, "02 - Test Song 2.mp3"), createMinimalMP3File(), 0o644))
}

// createMinimalFLACFile returns a FLAC stream header without audio frames
func createMinimalFLACFile() []byte {
	return []byte("fLaC\x00\x00\x00\x22\x10\x00\x10\x00\x00\x00\x0F\x00\x00\x0F\x0A\xC4\x42\xF0\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00")
}

// createMinimalMP3File returns one silent MPEG frame
func createMinimalMP3File() []byte {
	frame := make([]byte, 417)
	copy(frame, []byte{0xFF, 0xFB, 0x90, 0x00})
	return frame
}

// MakeRequest makes an HTTP request to the test server
func (h *TestHelper) MakeRequest(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, h.Server.URL+path, reqBody)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

// DoJSON makes a request and unmarshals the JSON response into target
func (h *TestHelper) DoJSON(t *testing.T, method, path string, body, target any) *http.Response {
	t.Helper()
	resp := h.MakeRequest(t, method, path, body)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if target != nil && len(data) > 0 {
		require.NoError(t, json.Unmarshal(data, target), "body: %s", data)
	}
	return resp
}

// GetJSON makes a GET request and unmarshals the JSON response
func (h *TestHelper) GetJSON(t *testing.T, path string, target any) *http.Response {
	t.Helper()
	return h.DoJSON(t, http.MethodGet, path, nil, target)
}

// PostJSON makes a POST request with a JSON body and unmarshals the JSON response
func (h *TestHelper) PostJSON(t *testing.T, path string, body, target any) *http.Response {
	t.Helper()
	return h.DoJSON(t, http.MethodPost, path, body, target)
}

// CreateJob posts a job and returns its id
func (h *TestHelper) CreateJob(t *testing.T, url string) string {
	t.Helper()
	var created struct {
		ID string `json:"id"`
	}
	resp := h.PostJSON(t, "/api/jobs", types.CreateJobRequest{URL: url}, &created)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.NotEmpty(t, created.ID)
	return created.ID
}

// WaitForStatus polls the API until the job reaches status
func (h *TestHelper) WaitForStatus(t *testing.T, jobID string, status types.JobStatus) types.Job {
	t.Helper()
	var job types.Job
	require.Eventually(t, func() bool {
		job = types.Job{}
		resp := h.GetJSON(t, "/api/jobs/"+jobID, &job)
		return resp.StatusCode == http.StatusOK && job.Status == status
	}, 5*time.Second, 10*time.Millisecond, "job %s never reached %s", jobID, status)
	return job
}

// WaitForIdle waits until the executor has nothing in flight
func (h *TestHelper) WaitForIdle(t *testing.T) {
	t.Helper()
	require.Eventually(t, func() bool {
		_, running := h.Services.Executor.Running()
		return !running
	}, 5*time.Second, 10*time.Millisecond)
}

// ConnectWebSocket connects to a WebSocket endpoint
func (h *TestHelper) ConnectWebSocket(t *testing.T, path string) *gorillaws.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(h.Server.URL, "http") + path

	conn, _, err := gorillaws.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// ReadEvent reads WebSocket events until match accepts one
func ReadEvent(t *testing.T, conn *gorillaws.Conn, match func(types.Event) bool) types.Event {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		require.NoError(t, conn.SetReadDeadline(deadline))
		var ev types.Event
		require.NoError(t, conn.ReadJSON(&ev))
		if match(ev) {
			return ev
		}
	}
}
