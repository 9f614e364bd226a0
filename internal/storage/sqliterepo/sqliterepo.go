// Package sqliterepo stores page snapshots in a local SQLite file.
package sqliterepo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"live-service/internal/livepost"
	"live-service/internal/page"
)

const schema = `
CREATE TABLE IF NOT EXISTS page_snapshots (
	channel_id      TEXT PRIMARY KEY,
	last_updated_at INTEGER NOT NULL,
	posts           TEXT NOT NULL
)`

type Repository struct {
	db *sql.DB
}

// Open opens or creates the database at path.
func Open(path string) (*Repository, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one writer avoids SQLITE_BUSY between pooled connections
	db.SetMaxOpenConns(1)
	for _, stmt := range []string{"PRAGMA journal_mode = WAL", "PRAGMA busy_timeout = 5000", schema} {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init sqlite: %w", err)
		}
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Close() error { return r.db.Close() }

func (r *Repository) Save(ctx context.Context, s page.Snapshot) error {
	posts := s.Posts
	if posts == nil {
		posts = []*livepost.Post{}
	}
	b, err := json.Marshal(posts)
	if err != nil {
		return fmt.Errorf("encode posts of %s: %w", s.ChannelID, err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO page_snapshots (channel_id, last_updated_at, posts) VALUES (?, ?, ?)
		ON CONFLICT(channel_id) DO UPDATE SET last_updated_at = excluded.last_updated_at, posts = excluded.posts`,
		s.ChannelID, s.LastUpdatedAt.UnixMicro(), string(b))
	return err
}

func (r *Repository) Delete(ctx context.Context, channelID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM page_snapshots WHERE channel_id = ?`, channelID)
	return err
}

func (r *Repository) LoadAll(ctx context.Context) ([]page.Snapshot, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT channel_id, last_updated_at, posts FROM page_snapshots ORDER BY channel_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []page.Snapshot
	for rows.Next() {
		var (
			s     page.Snapshot
			micro int64
			raw   string
		)
		if err := rows.Scan(&s.ChannelID, &micro, &raw); err != nil {
			return nil, err
		}
		s.LastUpdatedAt = time.UnixMicro(micro).UTC()
		if err := json.Unmarshal([]byte(raw), &s.Posts); err != nil {
			return nil, fmt.Errorf("decode posts of %s: %w", s.ChannelID, err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
