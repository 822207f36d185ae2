package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrNotFound is returned when a meeting lookup misses.
var ErrNotFound = errors.New("meeting not found")

// Meeting is a durable meeting that websocket rooms resolve against.
// Slug is the short join code shared with participants.
type Meeting struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	Slug      string    `gorm:"uniqueIndex;size:32;not null" json:"slug"`
	Title     string    `gorm:"size:200" json:"title"`
	CreatorID string    `gorm:"size:100;index" json:"creatorId"`
	CreatedAt time.Time `json:"createdAt"`
}

// Participant records one join of a meeting. UserID and DisplayName
// are optional; anonymous guests produce rows with both null.
type Participant struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	MeetingID   string    `gorm:"size:36;index;not null" json:"meetingId"`
	UserID      *string   `gorm:"size:100" json:"userId"`
	DisplayName *string   `gorm:"size:200" json:"displayName"`
	JoinedAt    time.Time `gorm:"autoCreateTime" json:"joinedAt"`
}

// Store wraps the relational database holding meetings and
// participants.
type Store struct {
	db *gorm.DB
}

// New migrates the schema and returns a ready Store.
func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&Meeting{}, &Participant{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return &Store{db: db}, nil
}

// CreateMeeting persists a new meeting under the given slug.
func (s *Store) CreateMeeting(ctx context.Context, slug, title, creatorID string) (*Meeting, error) {
	meeting := &Meeting{
		ID:        uuid.New().String(),
		Slug:      slug,
		Title:     title,
		CreatorID: creatorID,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(meeting).Error; err != nil {
		return nil, fmt.Errorf("failed to create meeting: %w", err)
	}
	return meeting, nil
}

// MeetingBySlug returns the meeting with the given slug, or
// ErrNotFound.
func (s *Store) MeetingBySlug(ctx context.Context, slug string) (*Meeting, error) {
	var meeting Meeting
	err := s.db.WithContext(ctx).Where("slug = ?", slug).First(&meeting).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up meeting %q: %w", slug, err)
	}
	return &meeting, nil
}

// DeleteMeeting removes a meeting and its participant rows.
func (s *Store) DeleteMeeting(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("meeting_id = ?", id).Delete(&Participant{}).Error; err != nil {
			return fmt.Errorf("failed to delete participants: %w", err)
		}
		if err := tx.Delete(&Meeting{ID: id}).Error; err != nil {
			return fmt.Errorf("failed to delete meeting: %w", err)
		}
		return nil
	})
}

// RecordJoin resolves a room name to a persisted meeting and, when one
// exists, inserts a participant row. A slug that matches no meeting
// returns (false, nil): joining an ad-hoc room is not an error.
func (s *Store) RecordJoin(ctx context.Context, room string, userID, displayName *string) (bool, error) {
	meeting, err := s.MeetingBySlug(ctx, room)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	participant := &Participant{
		MeetingID:   meeting.ID,
		UserID:      userID,
		DisplayName: displayName,
	}
	if err := s.db.WithContext(ctx).Create(participant).Error; err != nil {
		return true, fmt.Errorf("failed to record participant: %w", err)
	}
	return true, nil
}

// Participants lists the recorded participants of a meeting, newest
// first.
func (s *Store) Participants(ctx context.Context, meetingID string) ([]Participant, error) {
	var participants []Participant
	err := s.db.WithContext(ctx).
		Where("meeting_id = ?", meetingID).
		Order("joined_at DESC").
		Find(&participants).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}
	return participants, nil
}
