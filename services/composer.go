package services

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"syscall"

	"ytmusicdl/types"
)

const maxNameLength = 120

var unsafeNameChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)

// SanitizeName turns an arbitrary title into a safe single path component
func SanitizeName(s string) string {
	s = unsafeNameChars.ReplaceAllString(s, "_")
	s = strings.Join(strings.Fields(s), " ")
	s = strings.Trim(s, ". ")
	if len([]rune(s)) > maxNameLength {
		s = strings.TrimSpace(string([]rune(s)[:maxNameLength]))
	}
	if s == "" {
		return "_"
	}
	return s
}

// Composer files tagged tracks into the library tree
type Composer struct {
	libraryDir string
}

// NewComposer creates a composer rooted at libraryDir
func NewComposer(libraryDir string) *Composer {
	return &Composer{libraryDir: libraryDir}
}

// AlbumDir returns <library>/<Artist>/<Year - Album>
func (c *Composer) AlbumDir(info types.AlbumInfo) string {
	artist := info.Artist
	if artist == "" {
		artist = UnknownArtist
	}
	album := info.Title
	if album == "" {
		album = UnknownAlbum
	}
	if info.Year > 0 {
		album = fmt.Sprintf("%d - %s", info.Year, album)
	}
	return filepath.Join(c.libraryDir, SanitizeName(artist), SanitizeName(album))
}

// TrackName returns "NN - Title.ext"
func TrackName(number int, title, ext string) string {
	if title == "" {
		title = "Track"
	}
	if number > 0 {
		return fmt.Sprintf("%02d - %s%s", number, SanitizeName(title), ext)
	}
	return SanitizeName(title) + ext
}

// Place moves src into the album directory and returns the final path
func (c *Composer) Place(src string, info types.AlbumInfo, number int, title string) (string, error) {
	dir := c.AlbumDir(info)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", types.NewPipelineError(types.ErrImport, "Could not create album folder", err)
	}
	dst := filepath.Join(dir, TrackName(number, title, strings.ToLower(filepath.Ext(src))))
	if err := moveFile(src, dst); err != nil {
		return "", types.NewPipelineError(types.ErrImport, "Could not move track into library", err)
	}
	return dst, nil
}

// RelPath returns path relative to the library root
func (c *Composer) RelPath(path string) string {
	rel, err := filepath.Rel(c.libraryDir, path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(rel)
}

// moveFile renames src to dst, copying when they sit on different filesystems
func moveFile(src, dst string) error {
	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}
	var linkErr *os.LinkError
	if !errors.As(err, &linkErr) || !errors.Is(linkErr.Err, syscall.EXDEV) {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return err
	}
	return os.Remove(src)
}
