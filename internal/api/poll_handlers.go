package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"poll-service/internal/models"
	"poll-service/internal/service"
)

type PollHandler struct {
	pollService service.PollService
}

func NewPollHandler(pollService service.PollService) *PollHandler {
	return &PollHandler{
		pollService: pollService,
	}
}

type createPollRequest struct {
	Question string   `json:"question" binding:"required"`
	Options  []string `json:"options" binding:"required"`
}

// CreatePoll mints the poll and its host token. The token is returned only
// here; whoever holds it is the host.
func (h *PollHandler) CreatePoll(c *gin.Context) {
	var req createPollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		SendError(c, http.StatusBadRequest, models.ErrValidation, models.ErrCodeInvalidRequest)
		return
	}

	created, err := h.pollService.Create(c.Request.Context(), req.Question, req.Options)
	if err != nil {
		if errors.Is(err, models.ErrValidation) {
			SendError(c, http.StatusBadRequest, err, models.ErrCodeInvalidRequest)
			return
		}
		SendError(c, http.StatusInternalServerError, err, models.ErrCodeInvalidOperation)
		return
	}

	SendSuccess(c, http.StatusCreated, created)
}

// GetPoll returns the poll behind a room code plus its live tally, letting a
// reconnecting client catch up before its socket is re-established.
func (h *PollHandler) GetPoll(c *gin.Context) {
	code := c.Param("room_code")

	snapshot, err := h.pollService.GetSnapshot(c.Request.Context(), code)
	if err != nil {
		if errors.Is(err, models.ErrPollNotFound) {
			SendError(c, http.StatusNotFound, err, models.ErrCodeInvalidRequest)
			return
		}
		SendError(c, http.StatusInternalServerError, err, models.ErrCodeInvalidOperation)
		return
	}

	SendSuccess(c, http.StatusOK, snapshot)
}
