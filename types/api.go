package types

import "time"

// CreateJobRequest is the body of POST /api/jobs
type CreateJobRequest struct {
	URL         string `json:"url" binding:"required"`
	AudioFormat string `json:"audioFormat"`
}

// JobListResponse lists jobs newest first together with the active job id
type JobListResponse struct {
	Jobs        []Job  `json:"jobs"`
	ActiveJobID string `json:"activeJobId,omitempty"`
}

// CookiesUploadRequest is the body of POST /api/cookies
type CookiesUploadRequest struct {
	Content string `json:"content" binding:"required"`
}

// CookiesStatusResponse reports whether yt-dlp has a cookie file to use
type CookiesStatusResponse struct {
	Configured bool `json:"configured"`
	Cookies    int  `json:"cookies"`
}

// ErrorResponse is the shape of every API error body
type ErrorResponse struct {
	Error       string `json:"error"`
	Message     string `json:"message"`
	ActiveJobID string `json:"activeJobId,omitempty"`
	JobID       string `json:"jobId,omitempty"`
}

// AudioFile represents a discovered audio file in the library
type AudioFile struct {
	Filename string         `json:"filename"`
	Path     string         `json:"path"`
	Size     int64          `json:"size"`
	Format   string         `json:"format"` // "mp3", "opus", "m4a", ...
	Metadata *AudioMetadata `json:"metadata,omitempty"`
}

// AudioMetadata represents metadata for an audio file
type AudioMetadata struct {
	Title       string `json:"title,omitempty"`
	Artist      string `json:"artist,omitempty"`
	Album       string `json:"album,omitempty"`
	Year        int    `json:"year,omitempty"`
	TrackNumber int    `json:"trackNumber,omitempty"`
}

// LibraryTrack is a track recorded in the library index after an import
type LibraryTrack struct {
	ID          int64     `json:"id"`
	JobID       string    `json:"jobId"`
	VideoID     string    `json:"videoId"`
	Title       string    `json:"title"`
	Artist      string    `json:"artist"`
	Album       string    `json:"album"`
	TrackNumber int       `json:"trackNumber"`
	Path        string    `json:"path"`
	ImportedAt  time.Time `json:"importedAt"`
}
