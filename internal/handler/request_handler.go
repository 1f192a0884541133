package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/fusioneventsak/Songrequest-DEVServer/internal/domain"
	"github.com/fusioneventsak/Songrequest-DEVServer/internal/projection"
	"github.com/fusioneventsak/Songrequest-DEVServer/internal/service"
	apperrors "github.com/fusioneventsak/Songrequest-DEVServer/pkg/errors"
	"github.com/fusioneventsak/Songrequest-DEVServer/pkg/httputil"
	"github.com/fusioneventsak/Songrequest-DEVServer/pkg/logger"
)

// RequestHandler exposes the queue over HTTP.
type RequestHandler struct {
	svc *service.RequestService
	log logger.Logger
}

// NewRequestHandler creates the handler.
func NewRequestHandler(svc *service.RequestService, log logger.Logger) *RequestHandler {
	if log == nil {
		log = logger.Default()
	}
	return &RequestHandler{svc: svc, log: log}
}

// SubmitRequest is the submission payload.
type SubmitRequest struct {
	Title   string `json:"title" binding:"required"`
	Artist  string `json:"artist"`
	Name    string `json:"name" binding:"required"`
	Photo   string `json:"photo"`
	Message string `json:"message"`
}

// Submit handles POST /api/v1/requests.
func (h *RequestHandler) Submit(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.ErrorResponse(c, apperrors.ErrValidationFailed.WithDetails(err.Error()))
		return
	}

	result, err := h.svc.Submit(c.Request.Context(), req.Title, req.Artist, domain.Requester{
		Name:    req.Name,
		Photo:   req.Photo,
		Message: req.Message,
	})
	if err != nil {
		httputil.ErrorResponse(c, apperrors.ErrStoreUnavailable.WithError(err))
		return
	}

	httputil.CreatedResponse(c, result)
}

// VoteRequest is the vote payload. An empty voter id selects kiosk mode: a
// disposable identity per vote, exempt from the one-vote rule.
type VoteRequest struct {
	VoterID string `json:"voter_id"`
}

// Vote handles POST /api/v1/requests/:id/votes.
func (h *RequestHandler) Vote(c *gin.Context) {
	var req VoteRequest
	// Body is optional for kiosk voters.
	_ = c.ShouldBindJSON(&req)

	outcome, err := h.svc.Vote(c.Request.Context(), c.Param("id"), req.VoterID)
	if err != nil {
		httputil.ErrorResponse(c, mapStoreError(err))
		return
	}

	switch outcome {
	case domain.VoteAccepted:
		httputil.SuccessResponse(c, gin.H{"outcome": outcome.String()})
	case domain.AlreadyVoted:
		httputil.ErrorResponse(c, apperrors.ErrAlreadyVoted)
	case domain.RequestPlayed:
		httputil.ErrorResponse(c, apperrors.ErrRequestPlayed)
	default:
		httputil.ErrorResponse(c, apperrors.ErrInternal)
	}
}

// Lock handles POST /api/v1/requests/:id/lock (operator only).
func (h *RequestHandler) Lock(c *gin.Context) {
	if err := h.svc.Lock(c.Request.Context(), c.Param("id")); err != nil {
		httputil.ErrorResponse(c, mapStoreError(err))
		return
	}
	httputil.SuccessResponse(c, gin.H{"locked": true})
}

// Unlock handles DELETE /api/v1/requests/:id/lock (operator only).
func (h *RequestHandler) Unlock(c *gin.Context) {
	if err := h.svc.Unlock(c.Request.Context(), c.Param("id")); err != nil {
		httputil.ErrorResponse(c, mapStoreError(err))
		return
	}
	httputil.SuccessResponse(c, gin.H{"locked": false})
}

// MarkPlayed handles POST /api/v1/requests/:id/played (operator only).
func (h *RequestHandler) MarkPlayed(c *gin.Context) {
	if err := h.svc.MarkPlayed(c.Request.Context(), c.Param("id")); err != nil {
		httputil.ErrorResponse(c, mapStoreError(err))
		return
	}
	httputil.SuccessResponse(c, gin.H{"played": true})
}

// Reset handles POST /api/v1/queue/reset (operator only).
func (h *RequestHandler) Reset(c *gin.Context) {
	if err := h.svc.Reset(c.Request.Context()); err != nil {
		httputil.ErrorResponse(c, mapStoreError(err))
		return
	}
	httputil.SuccessResponse(c, gin.H{"reset": true})
}

// Queue handles GET /api/v1/queue?sort=audience|admin.
func (h *RequestHandler) Queue(c *gin.Context) {
	mode := projection.ParseSortMode(c.Query("sort"))
	httputil.SuccessResponse(c, gin.H{
		"mode":     mode.String(),
		"requests": h.svc.Queue(mode),
	})
}

// Get handles GET /api/v1/requests/:id.
func (h *RequestHandler) Get(c *gin.Context) {
	req, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		httputil.ErrorResponse(c, mapStoreError(err))
		return
	}
	httputil.SuccessResponse(c, req)
}

func mapStoreError(err error) error {
	switch {
	case errors.Is(err, domain.ErrRequestNotFound):
		return apperrors.ErrRequestNotFound
	case errors.Is(err, domain.ErrRequestPlayed):
		return apperrors.ErrRequestPlayed
	default:
		return apperrors.ErrStoreUnavailable.WithError(err)
	}
}
