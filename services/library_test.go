package services

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"ytmusicdl/types"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFileService() *fileService {
	return &fileService{logger: log.New(io.Discard)}
}

func TestMetadataFromPath(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		expected types.AudioMetadata
	}{
		{
			name:     "library layout with year",
			path:     "Artist/2020 - Album/03 - Song Title.mp3",
			expected: types.AudioMetadata{Artist: "Artist", Album: "Album", Year: 2020, Title: "Song Title", TrackNumber: 3},
		},
		{
			name:     "album without year",
			path:     "Artist/Album/1. Song.opus",
			expected: types.AudioMetadata{Artist: "Artist", Album: "Album", Title: "Song", TrackNumber: 1},
		},
		{
			name:     "no track number",
			path:     "Artist/Album/Song.m4a",
			expected: types.AudioMetadata{Artist: "Artist", Album: "Album", Title: "Song"},
		},
		{
			name:     "bare filename",
			path:     "07 - Lonely.mp3",
			expected: types.AudioMetadata{Title: "Lonely", TrackNumber: 7},
		},
		{
			name:     "album only",
			path:     "Album/Song.flac",
			expected: types.AudioMetadata{Album: "Album", Title: "Song"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, &tt.expected, metadataFromPath(tt.path))
		})
	}
}

func TestGetContentType(t *testing.T) {
	fs := newTestFileService()

	tests := []struct {
		path     string
		expected string
	}{
		{"song.mp3", "audio/mpeg"},
		{"song.MP3", "audio/mpeg"},
		{"song.flac", "audio/flac"},
		{"song.m4a", "audio/mp4"},
		{"song.opus", "audio/ogg"},
		{"song.weba", "audio/webm"},
		{"cover.jpg", "application/octet-stream"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.expected, fs.GetContentType(tt.path))
		})
	}
}

func TestValidateFilePath(t *testing.T) {
	fs := newTestFileService()

	assert.NoError(t, fs.ValidateFilePath("Artist/Album/01 - Song.mp3"))
	assert.NoError(t, fs.ValidateFilePath("Artist/..Album../song.mp3"))
	assert.Error(t, fs.ValidateFilePath("../etc/passwd"))
	assert.Error(t, fs.ValidateFilePath("Artist/../../secret"))
	assert.Error(t, fs.ValidateFilePath("/etc/passwd"))
	assert.Error(t, fs.ValidateFilePath("   "))
}

func TestScanAudioFiles(t *testing.T) {
	root := t.TempDir()
	album := filepath.Join(root, "Artist", "2020 - Album")
	require.NoError(t, os.MkdirAll(album, 0o755))

	createMinimalMP3File(t, filepath.Join(album, "01 - One.mp3"))
	require.NoError(t, os.WriteFile(filepath.Join(album, "01 - One.flac"), []byte("fLaC"), 0o644))
	createMinimalMP3File(t, filepath.Join(album, "02 - Two.mp3"))
	require.NoError(t, os.WriteFile(filepath.Join(album, "cover.jpg"), []byte{0xFF, 0xD8}, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(album, "03 - Three.opus.part"), []byte("x"), 0o644))

	files, err := newTestFileService().ScanAudioFiles(root)
	require.NoError(t, err)
	require.Len(t, files, 2)

	assert.Equal(t, "Artist/2020 - Album/01 - One.flac", files[0].Path)
	assert.Equal(t, "flac", files[0].Format)
	assert.Equal(t, "Artist/2020 - Album/02 - Two.mp3", files[1].Path)

	require.NotNil(t, files[1].Metadata)
	assert.Equal(t, "Two", files[1].Metadata.Title)
	assert.Equal(t, "Artist", files[1].Metadata.Artist)
	assert.Equal(t, "Album", files[1].Metadata.Album)
	assert.Equal(t, 2, files[1].Metadata.TrackNumber)
}

func TestPreferFormats(t *testing.T) {
	files := []types.AudioFile{
		{Path: "A/B/01 - x.mp3", Format: "mp3"},
		{Path: "A/B/01 - x.opus", Format: "opus"},
		{Path: "A/B/02 - y.mp3", Format: "mp3"},
		{Path: "A/B/02 - y.m4a", Format: "m4a"},
		{Path: "A/B/02 - y.flac", Format: "flac"},
	}

	got := preferFormats(files)
	require.Len(t, got, 2)
	assert.Equal(t, "opus", got[0].Format)
	assert.Equal(t, "flac", got[1].Format)
}

func TestLibraryCleanupPartFiles(t *testing.T) {
	dir := t.TempDir()
	keep := filepath.Join(dir, "done.mp3")
	require.NoError(t, os.WriteFile(keep, []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.webm.part"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.webm.ytdl"), []byte("x"), 0o644))

	removed, err := CleanupPartFiles(dir)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.FileExists(t, keep)

	removed, err = CleanupPartFiles(filepath.Join(dir, "missing"))
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestLibraryFindAudioFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "abc.webm.part"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "abc.opus"), []byte("x"), 0o644))

	path, err := findAudioFile(dir, "abc")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "abc.opus"), path)

	_, err = findAudioFile(dir, "zzz")
	assert.Error(t, err)
}
