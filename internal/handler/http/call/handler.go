package call

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"callbridge-backend/internal/domain"
	callService "callbridge-backend/internal/service/call"
	"callbridge-backend/pkg/response"
)

// maxChunkSize bounds one recording chunk upload
const maxChunkSize = 8 << 20 // 8 MiB

// Handler handles call lifecycle HTTP requests
type Handler struct {
	callService *callService.Service
}

// NewHandler creates a new call handler
func NewHandler(svc *callService.Service) *Handler {
	return &Handler{
		callService: svc,
	}
}

// InitiateCallRequest represents call initiation request
type InitiateCallRequest struct {
	CallType     string   `json:"call_type" binding:"required,oneof=audio video screen_share"`
	Participants []string `json:"participants" binding:"required,min=1"`
	Title        string   `json:"title"`
}

// InitiateCall starts a new call
// POST /v1/calls/initiate
func (h *Handler) InitiateCall(c *gin.Context) {
	var req InitiateCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	initiatorID, ok := identityFromContext(c)
	if !ok {
		return
	}

	participants := make([]uuid.UUID, len(req.Participants))
	for i, idStr := range req.Participants {
		id, err := uuid.Parse(idStr)
		if err != nil {
			response.ValidationError(c, "Invalid participant ID: "+idStr)
			return
		}
		participants[i] = id
	}

	session, err := h.callService.InitiateCall(c.Request.Context(), &callService.InitiateCallInput{
		InitiatorID:  initiatorID,
		Participants: participants,
		CallType:     domain.CallType(req.CallType),
		Title:        req.Title,
	})
	if err != nil {
		response.AppError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, session)
}

// JoinCallRequest carries the transport connection ref used to join
type JoinCallRequest struct {
	ConnectionRef string `json:"connection_ref"`
}

// JoinCall connects the caller to a call
// POST /v1/calls/:id/join
func (h *Handler) JoinCall(c *gin.Context) {
	callID, ok := callIDFromPath(c)
	if !ok {
		return
	}
	identity, ok := identityFromContext(c)
	if !ok {
		return
	}

	var req JoinCallRequest
	if err := c.ShouldBindJSON(&req); err != nil && err != io.EOF {
		response.ValidationError(c, err.Error())
		return
	}

	session, connected, err := h.callService.JoinCall(c.Request.Context(), callID, identity, req.ConnectionRef)
	if err != nil {
		response.AppError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"call":            session,
		"connected_count": connected,
	})
}

// LeaveCall disconnects the caller from a call
// POST /v1/calls/:id/leave
func (h *Handler) LeaveCall(c *gin.Context) {
	callID, ok := callIDFromPath(c)
	if !ok {
		return
	}
	identity, ok := identityFromContext(c)
	if !ok {
		return
	}

	session, connected, err := h.callService.LeaveCall(c.Request.Context(), callID, identity)
	if err != nil {
		response.AppError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"call":            session,
		"connected_count": connected,
	})
}

// EndCall terminates a call on behalf of its initiator
// POST /v1/calls/:id/end
func (h *Handler) EndCall(c *gin.Context) {
	callID, ok := callIDFromPath(c)
	if !ok {
		return
	}
	identity, ok := identityFromContext(c)
	if !ok {
		return
	}

	result, err := h.callService.EndCall(c.Request.Context(), callID, identity)
	if err != nil {
		response.AppError(c, err)
		return
	}

	response.Success(c, http.StatusOK, result)
}

// RelaySignalRequest represents one signaling payload to relay
type RelaySignalRequest struct {
	Type     string          `json:"type" binding:"required"`
	TargetID string          `json:"target_id"`
	Payload  json.RawMessage `json:"payload"`
}

// RelaySignal relays a signaling payload to one peer or the whole call
// POST /v1/calls/:id/signal
func (h *Handler) RelaySignal(c *gin.Context) {
	callID, ok := callIDFromPath(c)
	if !ok {
		return
	}
	identity, ok := identityFromContext(c)
	if !ok {
		return
	}

	var req RelaySignalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	var targetID *uuid.UUID
	if req.TargetID != "" {
		id, err := uuid.Parse(req.TargetID)
		if err != nil {
			response.ValidationError(c, "Invalid target ID")
			return
		}
		targetID = &id
	}

	status, err := h.callService.RelaySignal(c.Request.Context(), callID, identity, req.Type, req.Payload, targetID)
	if err != nil {
		response.AppError(c, err)
		return
	}

	response.Success(c, http.StatusOK, status)
}

// StartRecording starts recording the call
// POST /v1/calls/:id/recording/start
func (h *Handler) StartRecording(c *gin.Context) {
	callID, ok := callIDFromPath(c)
	if !ok {
		return
	}
	identity, ok := identityFromContext(c)
	if !ok {
		return
	}

	recording, err := h.callService.StartRecording(c.Request.Context(), callID, identity)
	if err != nil {
		response.AppError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, recording)
}

// AppendRecordingChunk uploads one chunk of recorded media
// POST /v1/calls/:id/recording/chunks
func (h *Handler) AppendRecordingChunk(c *gin.Context) {
	callID, ok := callIDFromPath(c)
	if !ok {
		return
	}
	if _, ok := identityFromContext(c); !ok {
		return
	}

	chunk, err := io.ReadAll(io.LimitReader(c.Request.Body, maxChunkSize+1))
	if err != nil {
		response.ValidationError(c, "Failed to read chunk body")
		return
	}
	if len(chunk) == 0 {
		response.ValidationError(c, "Empty recording chunk")
		return
	}
	if len(chunk) > maxChunkSize {
		response.ValidationError(c, "Recording chunk too large")
		return
	}

	size, err := h.callService.AppendRecordingChunk(c.Request.Context(), callID, chunk)
	if err != nil {
		response.AppError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"size_bytes": size,
	})
}

// StopRecording completes the in-progress recording
// POST /v1/calls/:id/recording/stop
func (h *Handler) StopRecording(c *gin.Context) {
	callID, ok := callIDFromPath(c)
	if !ok {
		return
	}
	identity, ok := identityFromContext(c)
	if !ok {
		return
	}

	recording, err := h.callService.StopRecording(c.Request.Context(), callID, identity)
	if err != nil {
		response.AppError(c, err)
		return
	}

	response.Success(c, http.StatusOK, recording)
}

// GetCall retrieves a live call snapshot
// GET /v1/calls/:id
func (h *Handler) GetCall(c *gin.Context) {
	callID, ok := callIDFromPath(c)
	if !ok {
		return
	}

	session, err := h.callService.GetCall(c.Request.Context(), callID)
	if err != nil {
		response.AppError(c, err)
		return
	}

	response.Success(c, http.StatusOK, session)
}

// GetActiveCalls lists the caller's live calls
// GET /v1/calls/active
func (h *Handler) GetActiveCalls(c *gin.Context) {
	identity, ok := identityFromContext(c)
	if !ok {
		return
	}

	sessions := h.callService.ActiveCalls(c.Request.Context(), identity)
	response.Success(c, http.StatusOK, sessions)
}

// GetHistory lists the caller's ended calls, most recent first
// GET /v1/calls/history
func (h *Handler) GetHistory(c *gin.Context) {
	identity, ok := identityFromContext(c)
	if !ok {
		return
	}

	limit := 0
	if v := c.Query("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			response.ValidationError(c, "Invalid limit")
			return
		}
		limit = parsed
	}

	records, err := h.callService.History(c.Request.Context(), identity, limit)
	if err != nil {
		response.AppError(c, err)
		return
	}

	response.Success(c, http.StatusOK, records)
}

// callIDFromPath parses the call id path parameter, writing the error
// response on failure
func callIDFromPath(c *gin.Context) (uuid.UUID, bool) {
	callID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ValidationError(c, "Invalid call ID")
		return uuid.Nil, false
	}
	return callID, true
}

// identityFromContext extracts the authenticated identity, writing the error
// response on failure
func identityFromContext(c *gin.Context) (uuid.UUID, bool) {
	val, exists := c.Get("user_id")
	if !exists {
		response.Unauthorized(c, "Not authenticated")
		return uuid.Nil, false
	}
	identity, ok := val.(uuid.UUID)
	if !ok {
		response.InternalError(c, "Invalid user ID")
		return uuid.Nil, false
	}
	return identity, true
}
