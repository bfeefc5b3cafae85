package types

import "time"

// JobStatus represents the current status of a download job
type JobStatus string

const (
	JobStatusPending      JobStatus = "pending"
	JobStatusFetchingInfo JobStatus = "fetching_info"
	JobStatusDownloading  JobStatus = "downloading"
	JobStatusImporting    JobStatus = "importing"
	JobStatusCompleted    JobStatus = "completed"
	JobStatusFailed       JobStatus = "failed"
	JobStatusCancelled    JobStatus = "cancelled"
)

// rank orders the active statuses along the pipeline.
var rank = map[JobStatus]int{
	JobStatusPending:      0,
	JobStatusFetchingInfo: 1,
	JobStatusDownloading:  2,
	JobStatusImporting:    3,
}

// IsTerminal reports whether no further mutation is permitted
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// IsActive reports whether the status is one of the non-terminal pipeline states
func (s JobStatus) IsActive() bool {
	_, ok := rank[s]
	return ok
}

// CanTransitionTo reports whether next is reachable from s.
// Active statuses only move forward (or stay put for progress updates);
// every terminal status is reachable from any active one.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	if !s.IsActive() {
		return false
	}
	if next.IsTerminal() {
		return true
	}
	to, ok := rank[next]
	if !ok {
		return false
	}
	return to >= rank[s]
}

// AlbumInfo is the metadata summary resolved for a job's URL
type AlbumInfo struct {
	Title      string `json:"title"`
	Artist     string `json:"artist"`
	Year       int    `json:"year,omitempty"`
	TrackCount int    `json:"trackCount"`
	PlaylistID string `json:"playlistId,omitempty"`
	URL        string `json:"url"`
	Thumbnail  string `json:"thumbnail,omitempty"`
}

// JobResult is what a successful pipeline run produced
type JobResult struct {
	Album       *AlbumInfo `json:"album,omitempty"`
	Destination string     `json:"destination"`
	TrackCount  int        `json:"trackCount"`
	Skipped     int        `json:"skipped,omitempty"`
	LyricsCount int        `json:"lyricsCount,omitempty"`
	Files       []string   `json:"files,omitempty"`
}

// LogEntry is a single job-scoped log line
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Step      string    `json:"step"`
	Message   string    `json:"message"`
	Progress  *float64  `json:"progress,omitempty"`
}

// Job represents one download request and its lifecycle
type Job struct {
	ID           string     `json:"id"`
	URL          string     `json:"url"`
	AudioFormat  string     `json:"audioFormat"`
	Status       JobStatus  `json:"status"`
	Progress     float64    `json:"progress"`
	Message      string     `json:"message"`
	AlbumInfo    *AlbumInfo `json:"albumInfo,omitempty"`
	CurrentTrack int        `json:"currentTrack,omitempty"`
	TotalTracks  int        `json:"totalTracks,omitempty"`
	Result       *JobResult `json:"result,omitempty"`
	Error        string     `json:"error,omitempty"`
	Logs         []LogEntry `json:"logs"`
	CreatedAt    time.Time  `json:"createdAt"`
	StartedAt    *time.Time `json:"startedAt,omitempty"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
}

// Clone returns a deep copy safe to hand to readers outside the store
func (j *Job) Clone() Job {
	c := *j
	if j.AlbumInfo != nil {
		info := *j.AlbumInfo
		c.AlbumInfo = &info
	}
	if j.Result != nil {
		res := *j.Result
		res.Files = append([]string(nil), j.Result.Files...)
		if j.Result.Album != nil {
			album := *j.Result.Album
			res.Album = &album
		}
		c.Result = &res
	}
	c.Logs = append(make([]LogEntry, 0, len(j.Logs)), j.Logs...)
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	return c
}
