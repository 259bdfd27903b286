package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"chatrelay/internal/middleware"
	"chatrelay/internal/model"
)

type ChatHandler struct {
	Broker *Broker

	// DefaultMembers are usernames auto-joined to every new session so a
	// fresh session is never an empty room. Unknown names are skipped.
	DefaultMembers []string
}

type postBody struct {
	Content string `json:"content"`
	ReplyTo string `json:"reply_to,omitempty"`
}

type inviteBody struct {
	UserID string `json:"user_id"`
}

// Create makes a new session containing the caller and the default
// members, announces it, and returns the session including the
// announcement in its history.
func (h *ChatHandler) Create(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Could not validate credentials"})
		return
	}

	session := h.Broker.Store.GetOrCreateSession(model.NewID())
	h.Broker.Store.AddMember(session.ID, user.ID)
	for _, name := range h.DefaultMembers {
		member, err := h.Broker.Store.GetUserByName(name)
		if err != nil {
			continue
		}
		h.Broker.Store.AddMember(session.ID, member.ID)
	}

	h.Broker.System(user, session.ID, fmt.Sprintf("Session %s was created by %s.", session.ID, user.Username))
	c.JSON(http.StatusOK, h.Broker.Store.GetOrCreateSession(session.ID))
}

func (h *ChatHandler) Me(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Could not validate credentials"})
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *ChatHandler) Sessions(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Could not validate credentials"})
		return
	}

	sessions := h.Broker.Store.SessionsOf(user.ID)
	if sessions == nil {
		sessions = []model.Session{}
	}
	c.JSON(http.StatusOK, sessions)
}

// Invite adds a user to the caller's session and announces it. The
// caller must already be a member; the invitee must exist.
func (h *ChatHandler) Invite(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Could not validate credentials"})
		return
	}

	sid := c.Param("sid")
	if !h.Broker.Store.IsMember(sid, user.ID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Session not available to user"})
		return
	}

	var body inviteBody
	if err := c.ShouldBindJSON(&body); err != nil || body.UserID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	invitee, err := h.Broker.Store.GetUser(body.UserID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	h.Broker.Store.AddMember(sid, invitee.ID)
	msg := h.Broker.System(user, sid, fmt.Sprintf("%s was invited to the chat by %s.", invitee.Username, user.Username))
	c.JSON(http.StatusOK, msg)
}

// Post appends a message to the session and fans it out to every live
// channel of every member. Non-members are rejected before anything
// mutates.
func (h *ChatHandler) Post(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Could not validate credentials"})
		return
	}

	sid := c.Param("sid")
	if !h.Broker.Store.IsMember(sid, user.ID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Session not available to user"})
		return
	}

	var body postBody
	if err := c.ShouldBindJSON(&body); err != nil || body.Content == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	msg := model.Message{
		ID:      model.NewID(),
		Session: sid,
		Origin:  user,
		Body:    body.Content,
		ReplyTo: body.ReplyTo,
	}
	h.Broker.Push(msg)
	c.JSON(http.StatusOK, msg)
}
