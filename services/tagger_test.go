package services

import (
	"os"
	"path/filepath"
	"testing"

	"ytmusicdl/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// createMinimalMP3File writes a single silent MPEG frame with no tag
func createMinimalMP3File(t *testing.T, path string) {
	t.Helper()
	frame := make([]byte, 417)
	copy(frame, []byte{0xFF, 0xFB, 0x90, 0x00})
	require.NoError(t, os.WriteFile(path, frame, 0o644))
}

func TestWriteAndReadTags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "track.mp3")
	createMinimalMP3File(t, path)

	written, err := WriteTags(path, TrackTags{
		Title:       "Song",
		Artist:      "Artist",
		AlbumArtist: "Artist",
		Album:       "Album",
		Year:        2020,
		Track:       3,
		TrackTotal:  10,
		Cover:       []byte{0xFF, 0xD8, 0xFF, 0xE0},
		CoverMIME:   "image/jpeg",
	})
	require.NoError(t, err)
	assert.True(t, written)

	meta, err := ReadTags(path)
	require.NoError(t, err)
	assert.Equal(t, "Song", meta.Title)
	assert.Equal(t, "Artist", meta.Artist)
	assert.Equal(t, "Album", meta.Album)
	assert.Equal(t, 2020, meta.Year)
	assert.Equal(t, 3, meta.TrackNumber)
}

func TestWriteTagsRewritesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "track.mp3")
	createMinimalMP3File(t, path)

	_, err := WriteTags(path, TrackTags{Title: "First", Track: 1})
	require.NoError(t, err)
	_, err = WriteTags(path, TrackTags{Title: "Second", Track: 2, TrackTotal: 2})
	require.NoError(t, err)

	meta, err := ReadTags(path)
	require.NoError(t, err)
	assert.Equal(t, "Second", meta.Title)
	assert.Equal(t, 2, meta.TrackNumber)
}

func TestWriteTagsSkipsOtherFormats(t *testing.T) {
	path := filepath.Join(t.TempDir(), "track.opus")
	require.NoError(t, os.WriteFile(path, []byte("OggS"), 0o644))

	written, err := WriteTags(path, TrackTags{Title: "Song"})
	require.NoError(t, err)
	assert.False(t, written)
}

func TestWriteTagsMissingFile(t *testing.T) {
	_, err := WriteTags(filepath.Join(t.TempDir(), "missing.mp3"), TrackTags{Title: "x"})
	assert.ErrorIs(t, err, types.ErrTagging)
}

func TestMergeTags(t *testing.T) {
	existing := &types.AudioMetadata{Title: "Embedded", Artist: "Real Artist", Album: "Real Album", Year: 2001}

	merged := MergeTags(TrackTags{Artist: UnknownArtist, Album: UnknownAlbum}, existing)
	assert.Equal(t, "Embedded", merged.Title)
	assert.Equal(t, "Real Artist", merged.Artist)
	assert.Equal(t, "Real Album", merged.Album)
	assert.Equal(t, 2001, merged.Year)

	kept := MergeTags(TrackTags{Title: "Mine", Artist: "Me", Album: "Ours", Year: 1990}, existing)
	assert.Equal(t, TrackTags{Title: "Mine", Artist: "Me", Album: "Ours", Year: 1990}, kept)

	assert.Equal(t, TrackTags{Title: "x"}, MergeTags(TrackTags{Title: "x"}, nil))
}
