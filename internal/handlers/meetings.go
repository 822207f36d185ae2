package handlers

import (
	"crypto/rand"
	"errors"
	"math/big"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/campuskit/meeting-signaling/internal/presence"
	"github.com/campuskit/meeting-signaling/internal/store"
)

const (
	slugLength = 6
	slugChars  = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789" // Removed ambiguous chars
)

// CreateMeetingRequest is the request body for creating a meeting.
type CreateMeetingRequest struct {
	Title string `json:"title" binding:"required,max=200"`
}

// MeetingResponse is the meeting as returned by the API, with the live
// participant count merged in.
type MeetingResponse struct {
	*store.Meeting
	ParticipantCount int `json:"participantCount"`
}

// CreateMeeting persists a new meeting with a generated join slug.
// Requires authentication.
func CreateMeeting(meetings *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, exists := c.Get("user_id")
		if !exists {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
			return
		}

		var req CreateMeetingRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		meeting, err := meetings.CreateMeeting(c.Request.Context(), generateSlug(), req.Title, userID.(string))
		if err != nil {
			log.Error().Err(err).Msg("failed to create meeting")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create meeting"})
			return
		}

		log.Info().Str("meeting", meeting.ID).Str("slug", meeting.Slug).Str("creator", meeting.CreatorID).Msg("meeting created")
		c.JSON(http.StatusCreated, meeting)
	}
}

// GetMeeting returns meeting metadata by slug, including how many
// connections are currently present in its room (public).
func GetMeeting(meetings *store.Store, tracker *presence.Tracker) gin.HandlerFunc {
	return func(c *gin.Context) {
		slug := c.Param("slug")

		meeting, err := meetings.MeetingBySlug(c.Request.Context(), slug)
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Meeting not found"})
			return
		}
		if err != nil {
			log.Error().Err(err).Str("slug", slug).Msg("failed to look up meeting")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to look up meeting"})
			return
		}

		count := 0
		if tracker != nil {
			if count, err = tracker.Count(c.Request.Context(), slug); err != nil {
				log.Warn().Err(err).Str("slug", slug).Msg("failed to read presence count")
				count = 0
			}
		}

		c.JSON(http.StatusOK, MeetingResponse{Meeting: meeting, ParticipantCount: count})
	}
}

// DeleteMeeting removes a meeting. Requires authentication; only the
// creator may delete.
func DeleteMeeting(meetings *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, exists := c.Get("user_id")
		if !exists {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
			return
		}

		slug := c.Param("slug")
		meeting, err := meetings.MeetingBySlug(c.Request.Context(), slug)
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Meeting not found"})
			return
		}
		if err != nil {
			log.Error().Err(err).Str("slug", slug).Msg("failed to look up meeting")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to look up meeting"})
			return
		}

		if meeting.CreatorID != userID.(string) {
			c.JSON(http.StatusForbidden, gin.H{"error": "Only the meeting creator can delete the meeting"})
			return
		}

		if err := meetings.DeleteMeeting(c.Request.Context(), meeting.ID); err != nil {
			log.Error().Err(err).Str("meeting", meeting.ID).Msg("failed to delete meeting")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete meeting"})
			return
		}

		log.Info().Str("meeting", meeting.ID).Str("user", userID.(string)).Msg("meeting deleted")
		c.JSON(http.StatusOK, gin.H{"message": "Meeting deleted"})
	}
}

// generateSlug generates a random join slug.
func generateSlug() string {
	slug := make([]byte, slugLength)
	for i := range slug {
		n, _ := rand.Int(rand.Reader, big.NewInt(int64(len(slugChars))))
		slug[i] = slugChars[n.Int64()]
	}
	return string(slug)
}
