package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/zulandar/concierge/internal/db"
	"github.com/zulandar/concierge/internal/events"
	"github.com/zulandar/concierge/internal/logger"
	"github.com/zulandar/concierge/internal/messaging"
)

type handlers struct {
	svc *messaging.Service
	db  *gorm.DB
	hub *events.Hub
	log *logger.Logger
}

// registerRoutes sets up all API routes on the Gin router.
func registerRoutes(router *gin.Engine, h *handlers) {
	router.GET("/healthz", h.health)

	api := router.Group("/api")
	api.GET("/conversations", h.listConversations)
	api.POST("/conversations", h.createConversation)
	api.GET("/conversations/:id", h.getConversation)
	api.GET("/conversations/:id/messages", h.conversationMessages)
	api.POST("/conversations/:id/read", h.markRead)
	api.POST("/messages", h.appendMessage)
	api.PATCH("/messages", h.updateStatus)
	api.GET("/events", h.streamEvents)
}

type createConversationRequest struct {
	CustomerID    flexID `json:"customerId"`
	CustomerName  string `json:"customerName"`
	CustomerPhone string `json:"customerPhone"`
}

type appendMessageRequest struct {
	ConversationID flexID `json:"conversationId"`
	Message        string `json:"message"`
	Sender         string `json:"sender"`
	Direction      string `json:"direction"`
	Status         string `json:"status"`
}

type updateStatusRequest struct {
	ConversationID flexID `json:"conversationId"`
	MessageID      flexID `json:"messageId"`
	Status         string `json:"status"`
}

func (h *handlers) health(c *gin.Context) {
	if h.db != nil {
		if err := db.Ping(h.db); err != nil {
			respondError(c, http.StatusServiceUnavailable, codeInternal, err.Error())
			return
		}
	}
	respondOK(c, gin.H{"status": "ok"})
}

func (h *handlers) listConversations(c *gin.Context) {
	list, err := h.svc.List(c.Request.Context(), c.Query("search"))
	if err != nil {
		respondErr(c, err)
		return
	}
	respondList(c, list)
}

func (h *handlers) createConversation(c *gin.Context) {
	var req createConversationRequest
	if !bindJSON(c, &req) {
		return
	}
	in := messaging.CreateInput{CustomerName: req.CustomerName, CustomerPhone: req.CustomerPhone}
	if req.CustomerID != "" {
		id, ok := req.CustomerID.uint()
		if !ok {
			respondError(c, http.StatusBadRequest, codeValidation, "customerId must be a positive integer")
			return
		}
		in.CustomerID = &id
	}

	sum, existing, err := h.svc.FindOrCreate(c.Request.Context(), in)
	if err != nil {
		respondErr(c, err)
		return
	}
	resp := envelope{Success: true, Data: sum, Existing: existing}
	if existing {
		resp.Message = "Conversation already exists"
	}
	c.JSON(http.StatusOK, resp)
}

func (h *handlers) getConversation(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	sum, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, sum)
}

func (h *handlers) conversationMessages(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	msgs, err := h.svc.Messages(c.Request.Context(), id)
	if err != nil {
		respondErr(c, err)
		return
	}
	respondList(c, msgs)
}

func (h *handlers) markRead(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.svc.MarkRead(c.Request.Context(), id); err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, envelope{Success: true})
}

func (h *handlers) appendMessage(c *gin.Context) {
	var req appendMessageRequest
	if !bindJSON(c, &req) {
		return
	}
	convID, ok := bodyID(c, req.ConversationID, "conversationId")
	if !ok {
		return
	}
	msg, err := h.svc.Append(c.Request.Context(), messaging.AppendInput{
		ConversationID: convID,
		Message:        req.Message,
		Sender:         req.Sender,
		Direction:      req.Direction,
		Status:         req.Status,
	})
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, msg)
}

func (h *handlers) updateStatus(c *gin.Context) {
	var req updateStatusRequest
	if !bindJSON(c, &req) {
		return
	}
	convID, ok := bodyID(c, req.ConversationID, "conversationId")
	if !ok {
		return
	}
	if err := h.svc.UpdateStatus(c.Request.Context(), convID, string(req.MessageID), req.Status); err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, envelope{Success: true})
}

// bindJSON decodes the request body, answering 400 on failure.
func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		respondError(c, http.StatusBadRequest, codeValidation, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

// pathID parses the :id path parameter, answering 400 when it is not a
// positive integer.
func pathID(c *gin.Context) (uint, bool) {
	raw := c.Param("id")
	id, ok := parseID(raw)
	if !ok {
		respondError(c, http.StatusBadRequest, codeValidation, "invalid conversation id "+strings.TrimSpace(raw))
		return 0, false
	}
	return id, true
}

// bodyID parses an id field. An absent id passes through as zero so the
// service reports it as missing.
func bodyID(c *gin.Context, raw flexID, field string) (uint, bool) {
	if raw == "" {
		return 0, true
	}
	id, ok := raw.uint()
	if !ok {
		respondError(c, http.StatusBadRequest, codeValidation, field+" must be a positive integer")
		return 0, false
	}
	return id, true
}
