// Package httpapi is the gin delivery layer of the sync backend.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/okarpov/lingohist/internal/common"
	"github.com/okarpov/lingohist/internal/logging"
	"github.com/okarpov/lingohist/internal/server/services"
)

type Handler struct {
	users   *services.UserService
	history *services.HistoryService
	log     logging.Logger
}

func NewHandler(users *services.UserService, history *services.HistoryService, log logging.Logger) *Handler {
	return &Handler{users: users, history: history, log: log}
}

type credentialsRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type loginResponse struct {
	AccessToken string `json:"accessToken"`
}

type upsertRequest struct {
	Record            json.RawMessage `json:"record" binding:"required"`
	ExpectedTimestamp int64           `json:"expectedTimestamp"`
}

type upsertResponse struct {
	Timestamp int64 `json:"timestamp"`
}

type documentResponse struct {
	Record    json.RawMessage `json:"record"`
	Timestamp int64           `json:"timestamp"`
}

type queryResponse struct {
	Documents []documentResponse `json:"documents"`
}

func (h *Handler) ping(c *gin.Context) {
	c.Status(http.StatusOK)
}

func (h *Handler) register(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email and password are required"})
		return
	}

	_, err := h.users.Register(c.Request.Context(), req.Email, req.Password)
	switch {
	case err == nil:
		c.Status(http.StatusCreated)
	case errors.Is(err, common.ErrEmailAlreadyExists):
		c.JSON(http.StatusConflict, gin.H{"error": "email already registered"})
	case errors.Is(err, common.ErrInvalidCredentials):
		c.JSON(http.StatusBadRequest, gin.H{"error": "email and password are required"})
	default:
		h.serverError(c, err)
	}
}

func (h *Handler) login(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email and password are required"})
		return
	}

	token, err := h.users.Login(c.Request.Context(), req.Email, req.Password)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, loginResponse{AccessToken: token})
	case errors.Is(err, common.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid email or password"})
	default:
		h.serverError(c, err)
	}
}

func (h *Handler) queryHistory(c *gin.Context) {
	var after int64
	if raw := c.Query("modified_after"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "modified_after must be an integer"})
			return
		}
		after = parsed
	}

	docs, err := h.history.SelectUpdated(c.Request.Context(), currentUserID(c), after)
	if err != nil {
		h.serverError(c, err)
		return
	}

	out := queryResponse{Documents: make([]documentResponse, 0, len(docs))}
	for _, doc := range docs {
		out.Documents = append(out.Documents, documentResponse{
			Record:    doc.Record,
			Timestamp: doc.ServerTimestamp,
		})
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) getDocument(c *gin.Context) {
	doc, err := h.history.Get(c.Request.Context(), currentUserID(c), c.Param("id"))
	switch {
	case err == nil:
		c.JSON(http.StatusOK, documentResponse{Record: doc.Record, Timestamp: doc.ServerTimestamp})
	case errors.Is(err, common.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
	default:
		h.serverError(c, err)
	}
}

func (h *Handler) putDocument(c *gin.Context) {
	var req upsertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "record is required"})
		return
	}

	// The record body is opaque, but its id must agree with the path.
	var embedded struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(req.Record, &embedded); err != nil || embedded.ID != c.Param("id") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "record id does not match path"})
		return
	}

	timestamp, err := h.history.Upsert(c.Request.Context(), currentUserID(c), c.Param("id"), req.Record, req.ExpectedTimestamp)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, upsertResponse{Timestamp: timestamp})
	case errors.Is(err, common.ErrPreconditionFailed):
		c.JSON(http.StatusConflict, gin.H{"error": "document was modified concurrently"})
	default:
		h.serverError(c, err)
	}
}

func (h *Handler) deleteDocument(c *gin.Context) {
	if err := h.history.Delete(c.Request.Context(), currentUserID(c), c.Param("id")); err != nil {
		h.serverError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) serverError(c *gin.Context, err error) {
	h.log.Error(c.Request.Context(), "request failed",
		"method", c.Request.Method, "path", c.FullPath(), "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
