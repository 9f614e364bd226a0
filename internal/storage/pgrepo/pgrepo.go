// Package pgrepo stores page snapshots in PostgreSQL through gorm.
package pgrepo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"live-service/internal/livepost"
	"live-service/internal/page"
)

type pageSnapshot struct {
	ChannelID     string    `gorm:"primaryKey;size:255"`
	LastUpdatedAt time.Time `gorm:"not null"`
	Posts         []byte    `gorm:"type:jsonb;not null"`
	UpdatedAt     time.Time
}

func (pageSnapshot) TableName() string { return "page_snapshots" }

func toRow(s page.Snapshot) (pageSnapshot, error) {
	posts := s.Posts
	if posts == nil {
		posts = []*livepost.Post{}
	}
	b, err := json.Marshal(posts)
	if err != nil {
		return pageSnapshot{}, fmt.Errorf("encode posts of %s: %w", s.ChannelID, err)
	}
	return pageSnapshot{ChannelID: s.ChannelID, LastUpdatedAt: s.LastUpdatedAt.UTC(), Posts: b}, nil
}

func fromRow(row pageSnapshot) (page.Snapshot, error) {
	s := page.Snapshot{ChannelID: row.ChannelID, LastUpdatedAt: row.LastUpdatedAt.UTC()}
	if err := json.Unmarshal(row.Posts, &s.Posts); err != nil {
		return page.Snapshot{}, fmt.Errorf("decode posts of %s: %w", row.ChannelID, err)
	}
	return s, nil
}

type Repository struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Repository { return &Repository{db: db} }

func (r *Repository) Save(ctx context.Context, s page.Snapshot) error {
	row, err := toRow(s)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "channel_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_updated_at", "posts", "updated_at"}),
	}).Create(&row).Error
}

func (r *Repository) Delete(ctx context.Context, channelID string) error {
	return r.db.WithContext(ctx).Delete(&pageSnapshot{}, "channel_id = ?", channelID).Error
}

func (r *Repository) LoadAll(ctx context.Context) ([]page.Snapshot, error) {
	var rows []pageSnapshot
	if err := r.db.WithContext(ctx).Order("channel_id").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]page.Snapshot, 0, len(rows))
	for _, row := range rows {
		s, err := fromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
