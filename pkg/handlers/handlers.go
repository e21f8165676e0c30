package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/arnavshah/shift-offer-api/pkg/auth"
	"github.com/arnavshah/shift-offer-api/pkg/database"
	"github.com/arnavshah/shift-offer-api/pkg/models"
	"github.com/arnavshah/shift-offer-api/pkg/queue"
	"github.com/arnavshah/shift-offer-api/pkg/store"
)

// Handler contains dependencies for the route handlers. DB is nil in demo
// mode; key usage accounting is skipped then.
type Handler struct {
	DB    *gorm.DB
	Queue *queue.Manager
	Auth  *auth.Service
}

// AuthMiddleware verifies the JWT token for admin routes
func (h *Handler) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader("Authorization")
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			c.Abort()
			return
		}

		if len(token) > 7 && token[:7] == "Bearer " {
			token = token[7:]
		}

		claims, err := h.Auth.VerifyToken(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			c.Abort()
			return
		}

		c.Set("username", claims.Username)
		c.Next()
	}
}

// APIKeyMiddleware verifies the API key for queue routes using HMAC
func (h *Handler) APIKeyMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader("Authorization")
		if key == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "API Key required"})
			c.Abort()
			return
		}

		if len(key) > 7 && key[:7] == "Bearer " {
			key = key[7:]
		}

		userID, err := h.Auth.VerifyHMACKey(key)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid API Key signature"})
			c.Abort()
			return
		}

		if h.DB != nil {
			// Fetch or create API key record to track usage
			var apiKey database.APIKey
			h.DB.Where(database.APIKey{Key: key}).FirstOrCreate(&apiKey, database.APIKey{
				Key:       key,
				Name:      userID,
				RateLimit: 10000,
			})
			c.Set("apiKey", &apiKey)
		}

		c.Set("userID", userID)
		c.Next()
	}
}

// queueError maps queue-state errors onto HTTP statuses. Late or duplicate
// responses are conflicts; unknown ids are 404s.
func queueError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, queue.ErrOfferExpired), errors.Is(err, queue.ErrOfferAlreadyResolved):
		c.JSON(http.StatusConflict, gin.H{"error": "this offer is no longer available"})
	case errors.Is(err, queue.ErrActiveOffer):
		c.JSON(http.StatusConflict, gin.H{"error": "shift already has an active offer"})
	case errors.Is(err, queue.ErrShiftNotOpen):
		c.JSON(http.StatusConflict, gin.H{"error": "shift is not open for offers"})
	case errors.Is(err, queue.ErrNoEligibleCandidates):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "no staff available, please escalate manually"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// OpenShift starts a fresh offer cycle for an open shift
func (h *Handler) OpenShift(c *gin.Context) {
	var req models.OpenShiftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.Queue.OpenShift(c.Request.Context(), req.ShiftID); err != nil {
		queueError(c, err)
		return
	}

	h.RecordUsage(c, 1, 0)

	status, err := h.Queue.Status(c.Request.Context(), req.ShiftID)
	if err != nil {
		queueError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// QueueStatus returns the pending offer and queue position for a shift
func (h *Handler) QueueStatus(c *gin.Context) {
	status, err := h.Queue.Status(c.Request.Context(), c.Param("shift_id"))
	if err != nil {
		queueError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// Respond resolves a pending offer with an accept or decline decision
func (h *Handler) Respond(c *gin.Context) {
	var req models.RespondRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	offer, err := h.Queue.Respond(c.Request.Context(), req.OfferID, req.Decision)
	if err != nil {
		queueError(c, err)
		return
	}

	h.RecordUsage(c, 0, 1)
	c.JSON(http.StatusOK, gin.H{"offer": offer})
}

// CancelShift cancels a shift and withdraws any pending offer
func (h *Handler) CancelShift(c *gin.Context) {
	var req models.CancelShiftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.Queue.CancelShift(c.Request.Context(), req.ShiftID); err != nil {
		queueError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "shift cancelled"})
}

// ShiftEvents returns the audit trail of offer transitions for a shift
func (h *Handler) ShiftEvents(c *gin.Context) {
	events, err := h.Queue.EventsForShift(c.Request.Context(), c.Param("shift_id"))
	if err != nil {
		queueError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

// RecordUsage records API usage in the database using an efficient upsert
func (h *Handler) RecordUsage(c *gin.Context, offersSent, offersResolved int) {
	if h.DB == nil {
		return
	}
	apiKeyRaw, exists := c.Get("apiKey")
	if !exists {
		return
	}
	apiKey := apiKeyRaw.(*database.APIKey)

	today := time.Now().Format("2006-01-02")

	// Use OnConflict for a single-query upsert (supported by both Postgres and SQLite)
	h.DB.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "key_id"}, {Name: "date"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"request_count":   gorm.Expr("request_count + ?", 1),
			"offers_sent":     gorm.Expr("offers_sent + ?", offersSent),
			"offers_resolved": gorm.Expr("offers_resolved + ?", offersResolved),
		}),
	}).Create(&database.APIUsage{
		KeyID:          apiKey.ID,
		Date:           today,
		RequestCount:   1,
		OffersSent:     offersSent,
		OffersResolved: offersResolved,
	})
}
