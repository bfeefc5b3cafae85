package services

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"ytmusicdl/types"

	"github.com/bogem/id3v2/v2"
	"github.com/dhowden/tag"
)

// TrackTags is what gets written into a downloaded file
type TrackTags struct {
	Title       string
	Artist      string
	AlbumArtist string
	Album       string
	Year        int
	Track       int
	TrackTotal  int
	Cover       []byte
	CoverMIME   string
}

// WriteTags writes ID3v2.4 tags into an MP3 file. Other containers are tagged
// by ffmpeg at download time (see MetadataArgs) and report written=false.
func WriteTags(path string, t TrackTags) (written bool, err error) {
	if strings.ToLower(filepath.Ext(path)) != ".mp3" {
		return false, nil
	}

	mp3, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return false, types.NewPipelineError(types.ErrTagging, "Tagging failed", fmt.Errorf("open %s: %w", filepath.Base(path), err))
	}
	defer mp3.Close()

	mp3.SetDefaultEncoding(id3v2.EncodingUTF8)
	mp3.SetVersion(4)
	mp3.SetTitle(t.Title)
	mp3.SetArtist(t.Artist)
	mp3.SetAlbum(t.Album)
	if t.AlbumArtist != "" {
		mp3.DeleteFrames(mp3.CommonID("Band/Orchestra/Accompaniment"))
		mp3.AddTextFrame(mp3.CommonID("Band/Orchestra/Accompaniment"), id3v2.EncodingUTF8, t.AlbumArtist)
	}
	if t.Year > 0 {
		mp3.SetYear(strconv.Itoa(t.Year))
	}
	if t.Track > 0 {
		pos := strconv.Itoa(t.Track)
		if t.TrackTotal > 0 {
			pos = fmt.Sprintf("%d/%d", t.Track, t.TrackTotal)
		}
		mp3.DeleteFrames(mp3.CommonID("Track number/Position in set"))
		mp3.AddTextFrame(mp3.CommonID("Track number/Position in set"), id3v2.EncodingUTF8, pos)
	}
	if len(t.Cover) > 0 {
		mime := t.CoverMIME
		if mime == "" {
			mime = "image/jpeg"
		}
		mp3.DeleteFrames(mp3.CommonID("Attached picture"))
		mp3.AddAttachedPicture(id3v2.PictureFrame{
			Encoding:    id3v2.EncodingUTF8,
			MimeType:    mime,
			PictureType: id3v2.PTFrontCover,
			Description: "Front cover",
			Picture:     t.Cover,
		})
	}

	if err := mp3.Save(); err != nil {
		return false, types.NewPipelineError(types.ErrTagging, "Tagging failed", fmt.Errorf("save %s: %w", filepath.Base(path), err))
	}
	return true, nil
}

// ReadTags reads whatever metadata the file already carries
func ReadTags(path string) (*types.AudioMetadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	meta, err := tag.ReadFrom(f)
	if err != nil {
		return nil, err
	}
	track, _ := meta.Track()
	return &types.AudioMetadata{
		Title:       meta.Title(),
		Artist:      meta.Artist(),
		Album:       meta.Album(),
		Year:        meta.Year(),
		TrackNumber: track,
	}, nil
}

// MergeTags fills blanks in the planned tags from what the file already has
func MergeTags(planned TrackTags, existing *types.AudioMetadata) TrackTags {
	if existing == nil {
		return planned
	}
	if planned.Title == "" {
		planned.Title = existing.Title
	}
	if planned.Artist == "" || planned.Artist == UnknownArtist {
		if existing.Artist != "" {
			planned.Artist = existing.Artist
		}
	}
	if planned.Album == "" || planned.Album == UnknownAlbum {
		if existing.Album != "" {
			planned.Album = existing.Album
		}
	}
	if planned.Year == 0 {
		planned.Year = existing.Year
	}
	return planned
}

// MetadataArgs renders t as ffmpeg -metadata options, quoted for yt-dlp's
// --postprocessor-args parser. Empty fields are left out.
func MetadataArgs(t TrackTags) string {
	var fields [][2]string
	add := func(key, value string) {
		if value != "" {
			fields = append(fields, [2]string{key, value})
		}
	}
	add("title", t.Title)
	add("artist", t.Artist)
	add("album_artist", t.AlbumArtist)
	add("album", t.Album)
	if t.Year > 0 {
		add("date", strconv.Itoa(t.Year))
	}
	if t.Track > 0 {
		pos := strconv.Itoa(t.Track)
		if t.TrackTotal > 0 {
			pos = fmt.Sprintf("%d/%d", t.Track, t.TrackTotal)
		}
		add("track", pos)
	}

	args := make([]string, 0, len(fields)*2)
	for _, f := range fields {
		args = append(args, "-metadata", shellQuote(f[0]+"="+f[1]))
	}
	return strings.Join(args, " ")
}

// shellQuote wraps s in single quotes for a POSIX shlex split
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}
