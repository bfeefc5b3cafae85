package services

import (
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"ytmusicdl/types"

	"github.com/charmbracelet/log"
)

// formatPreference ranks formats when one track exists in several; lower wins
var formatPreference = map[string]int{
	"flac": 0,
	"wav":  1,
	"m4a":  2,
	"opus": 3,
	"ogg":  4,
	"mp3":  5,
	"aac":  6,
	"weba": 7,
}

var contentTypes = map[string]string{
	".flac": "audio/flac",
	".mp3":  "audio/mpeg",
	".m4a":  "audio/mp4",
	".aac":  "audio/aac",
	".opus": "audio/ogg",
	".ogg":  "audio/ogg",
	".wav":  "audio/wav",
	".weba": "audio/webm",
}

var (
	errEmptyPath     = errors.New("empty path not allowed")
	errAbsolutePath  = errors.New("absolute paths not allowed")
	errPathTraversal = errors.New("path traversal not allowed")
)

var trackPrefix = regexp.MustCompile(`^(\d+)[\.\-\s]+(.+)`)
var yearPrefix = regexp.MustCompile(`^(\d{4}) - (.+)`)

// FileService browses the library directory
type FileService interface {
	ScanAudioFiles(rootPath string) ([]types.AudioFile, error)
	ExtractAudioMetadata(filePath string) *types.AudioMetadata
	ValidateFilePath(path string) error
	GetContentType(filePath string) string
}

type fileService struct {
	logger *log.Logger
}

// NewFileService creates a file service
func NewFileService(logger *log.Logger) FileService {
	return &fileService{logger: logger}
}

// ScanAudioFiles walks rootPath for audio files, keeping the preferred format of each track
func (fs *fileService) ScanAudioFiles(rootPath string) ([]types.AudioFile, error) {
	var all []types.AudioFile

	err := filepath.WalkDir(rootPath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			fs.logger.Warn("error accessing path", "path", path, "err", err)
			return nil
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if !AudioExtensions[ext] {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}

		rel, err := filepath.Rel(rootPath, path)
		if err != nil {
			rel = path
		}
		all = append(all, types.AudioFile{
			Filename: d.Name(),
			Path:     filepath.ToSlash(rel),
			Size:     info.Size(),
			Format:   strings.TrimPrefix(ext, "."),
			Metadata: fs.ExtractAudioMetadata(path),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	return preferFormats(all), nil
}

// preferFormats keeps one file per track path, picking the best-ranked format
func preferFormats(files []types.AudioFile) []types.AudioFile {
	best := make(map[string]types.AudioFile)
	for _, f := range files {
		key := strings.TrimSuffix(f.Path, filepath.Ext(f.Path))
		cur, ok := best[key]
		if !ok || rankFormat(f.Format) < rankFormat(cur.Format) {
			best[key] = f
		}
	}

	out := make([]types.AudioFile, 0, len(best))
	for _, f := range best {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

func rankFormat(format string) int {
	if r, ok := formatPreference[format]; ok {
		return r
	}
	return len(formatPreference)
}

// GetContentType returns the MIME type for an audio file
func (fs *fileService) GetContentType(filePath string) string {
	if ct, ok := contentTypes[strings.ToLower(filepath.Ext(filePath))]; ok {
		return ct
	}
	return "application/octet-stream"
}

// ExtractAudioMetadata reads tags, falling back to the library path layout for blanks
func (fs *fileService) ExtractAudioMetadata(filePath string) *types.AudioMetadata {
	meta, err := ReadTags(filePath)
	if err != nil {
		fs.logger.Debug("could not read tags", "path", filePath, "err", err)
		return metadataFromPath(filePath)
	}

	if meta.Title == "" || meta.Artist == "" || meta.Album == "" || meta.TrackNumber == 0 {
		fallback := metadataFromPath(filePath)
		if meta.Title == "" {
			meta.Title = fallback.Title
		}
		if meta.Artist == "" {
			meta.Artist = fallback.Artist
		}
		if meta.Album == "" {
			meta.Album = fallback.Album
		}
		if meta.Year == 0 {
			meta.Year = fallback.Year
		}
		if meta.TrackNumber == 0 {
			meta.TrackNumber = fallback.TrackNumber
		}
	}
	return meta
}

// metadataFromPath parses <Artist>/<Year - Album>/<NN - Title>.<ext>
func metadataFromPath(filePath string) *types.AudioMetadata {
	meta := &types.AudioMetadata{}
	parts := strings.Split(filepath.ToSlash(filePath), "/")

	if len(parts) >= 3 {
		meta.Artist = parts[len(parts)-3]
	}
	if len(parts) >= 2 {
		album := parts[len(parts)-2]
		if m := yearPrefix.FindStringSubmatch(album); len(m) > 2 {
			meta.Year, _ = strconv.Atoi(m[1])
			album = m[2]
		}
		meta.Album = album
	}

	filename := filepath.Base(filePath)
	title := strings.TrimSuffix(filename, filepath.Ext(filename))
	if m := trackPrefix.FindStringSubmatch(title); len(m) > 2 {
		title = m[2]
		if n, err := strconv.Atoi(m[1]); err == nil {
			meta.TrackNumber = n
		}
	}
	meta.Title = title
	return meta
}

// ValidateFilePath rejects traversal, absolute and empty paths
func (fs *fileService) ValidateFilePath(path string) error {
	if strings.TrimSpace(path) == "" {
		return errEmptyPath
	}
	if strings.HasPrefix(path, "/") || filepath.IsAbs(path) {
		return errAbsolutePath
	}
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == ".." {
			return errPathTraversal
		}
	}
	return nil
}
