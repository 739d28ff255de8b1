package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"call-platform/internal/auth"
	"call-platform/internal/calls"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Auth  *auth.Manager
	Calls *calls.Service
}

/* ===================== AUTH ===================== */

type loginRequest struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name,omitempty"`
}

// Login issues a JWT token pair.
//
// NOTE: This is the authentication seam; real credential validation is
// delegated to the identity provider fronting this endpoint.
func (h Handlers) Login(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.UserID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id required"})
		return
	}
	pair, err := h.Auth.IssuePair(time.Now(), req.UserID, req.DisplayName)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (h Handlers) Refresh(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.RefreshToken == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "refresh_token required"})
		return
	}
	claims, err := h.Auth.Verify(req.RefreshToken, auth.TokenTypeRefresh, time.Now())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
		return
	}
	pair, err := h.Auth.IssuePair(time.Now(), claims.UserID, claims.DisplayName)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken})
}

/* ===================== CALLS ===================== */

func (h Handlers) CreateCall(c *gin.Context) {
	userID, ok := h.requireUser(c)
	if !ok {
		return
	}
	var req calls.CreateCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	res, err := h.Calls.CreateCall(c.Request.Context(), userID, req)
	if err != nil {
		abortWithCallError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (h Handlers) AcceptCall(c *gin.Context) {
	userID, ok := h.requireUser(c)
	if !ok {
		return
	}
	res, err := h.Calls.AcceptCall(c.Request.Context(), userID, c.Param("room_id"))
	if err != nil {
		abortWithCallError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h Handlers) RejectCall(c *gin.Context) {
	userID, ok := h.requireUser(c)
	if !ok {
		return
	}
	res, err := h.Calls.RejectCall(c.Request.Context(), userID, c.Param("room_id"))
	if err != nil {
		abortWithCallError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h Handlers) EndCall(c *gin.Context) {
	userID, ok := h.requireUser(c)
	if !ok {
		return
	}
	res, err := h.Calls.EndCall(c.Request.Context(), userID, c.Param("room_id"))
	if err != nil {
		abortWithCallError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h Handlers) IncomingCall(c *gin.Context) {
	userID, ok := h.requireUser(c)
	if !ok {
		return
	}
	in, found, err := h.Calls.Incoming(c.Request.Context(), userID)
	if err != nil {
		abortWithCallError(c, err)
		return
	}
	if !found {
		c.JSON(http.StatusOK, gin.H{"incoming": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"incoming": in})
}

func (h Handlers) CallHistory(c *gin.Context) {
	userID, ok := h.requireUser(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	entries, err := h.Calls.History(c.Request.Context(), userID, limit)
	if err != nil {
		abortWithCallError(c, err)
		return
	}
	if entries == nil {
		entries = []calls.HistoryEntry{}
	}
	c.JSON(http.StatusOK, gin.H{"calls": entries})
}

/* ===================== HELPERS ===================== */

func (h Handlers) requireUser(c *gin.Context) (string, bool) {
	userID, err := auth.UserID(c.Request.Context())
	if err != nil || userID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return "", false
	}
	return userID, true
}

// abortWithCallError maps the calls package sentinels onto HTTP statuses.
// "you lost a race" (409) stays distinguishable from "your request was
// broken" (400) and from role failures (403).
func abortWithCallError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, calls.ErrInvalidArgument):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, calls.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, calls.ErrNotCallee), errors.Is(err, calls.ErrNotParticipant):
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, calls.ErrAlreadyHandled):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
