package services

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"ytmusicdl/types"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed sql/*.sql
var indexMigrations embed.FS

// LibraryIndex records every track imported into the library
type LibraryIndex struct {
	db *sql.DB
}

// OpenIndex opens (creating if needed) the SQLite index at path.
// ":memory:" gives a private in-memory index.
func OpenIndex(path string) (*LibraryIndex, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create index directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err := migrateIndex(db); err != nil {
		db.Close()
		return nil, err
	}
	return &LibraryIndex{db: db}, nil
}

// migrateIndex applies embedded migrations named NNNN_description.sql in order
func migrateIndex(db *sql.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	entries, err := indexMigrations.ReadDir("sql")
	if err != nil {
		return fmt.Errorf("failed to read migration directory: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		name := entry.Name()
		version, err := strconv.Atoi(strings.SplitN(name, "_", 2)[0])
		if err != nil {
			continue
		}

		var exists bool
		if err := db.QueryRow("SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = ?)", version).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check migration status: %w", err)
		}
		if exists {
			continue
		}

		content, err := indexMigrations.ReadFile("sql/" + name)
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", name, err)
		}
		tx, err := db.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to apply migration %d: %w", version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}

// Record inserts or refreshes a track, keyed by its library path
func (i *LibraryIndex) Record(ctx context.Context, t types.LibraryTrack) (int64, error) {
	if t.ImportedAt.IsZero() {
		t.ImportedAt = time.Now().UTC()
	}
	res, err := i.db.ExecContext(ctx, `
		INSERT INTO library_tracks (job_id, video_id, title, artist, album, track_number, path, imported_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			job_id = excluded.job_id,
			video_id = excluded.video_id,
			title = excluded.title,
			artist = excluded.artist,
			album = excluded.album,
			track_number = excluded.track_number,
			imported_at = excluded.imported_at`,
		t.JobID, t.VideoID, t.Title, t.Artist, t.Album, t.TrackNumber, t.Path, t.ImportedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to record track: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get track id: %w", err)
	}
	return id, nil
}

// List returns the most recent imports first, at most limit rows (0 for all)
func (i *LibraryIndex) List(ctx context.Context, limit int) ([]types.LibraryTrack, error) {
	query := `SELECT id, job_id, video_id, title, artist, album, track_number, path, imported_at
		FROM library_tracks ORDER BY imported_at DESC, id DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	return i.query(ctx, query, args...)
}

// ByJob returns the tracks a job imported, in track order
func (i *LibraryIndex) ByJob(ctx context.Context, jobID string) ([]types.LibraryTrack, error) {
	return i.query(ctx, `SELECT id, job_id, video_id, title, artist, album, track_number, path, imported_at
		FROM library_tracks WHERE job_id = ? ORDER BY track_number, id`, jobID)
}

// HasVideo reports whether videoID was imported before
func (i *LibraryIndex) HasVideo(ctx context.Context, videoID string) (bool, error) {
	var exists bool
	err := i.db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM library_tracks WHERE video_id = ?)", videoID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to look up video: %w", err)
	}
	return exists, nil
}

func (i *LibraryIndex) query(ctx context.Context, query string, args ...any) ([]types.LibraryTrack, error) {
	rows, err := i.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query library: %w", err)
	}
	defer rows.Close()

	tracks := []types.LibraryTrack{}
	for rows.Next() {
		var t types.LibraryTrack
		if err := rows.Scan(&t.ID, &t.JobID, &t.VideoID, &t.Title, &t.Artist, &t.Album, &t.TrackNumber, &t.Path, &t.ImportedAt); err != nil {
			return nil, fmt.Errorf("failed to scan track: %w", err)
		}
		tracks = append(tracks, t)
	}
	return tracks, rows.Err()
}

// Close closes the database
func (i *LibraryIndex) Close() error {
	return i.db.Close()
}
