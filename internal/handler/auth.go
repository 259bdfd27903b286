package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"chatrelay/internal/auth"
	"chatrelay/internal/store"
)

type AuthHandler struct {
	Store       *store.Store
	TokenConfig auth.TokenConfig
}

// Token implements the password grant: form-encoded username/password,
// bearer token on success. Bad credentials and unknown users get the
// same 401.
func (h *AuthHandler) Token(c *gin.Context) {
	username := c.PostForm("username")
	password := c.PostForm("password")
	if username == "" || password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing username or password"})
		return
	}

	user, err := h.Store.Authenticate(username, password)
	if err != nil {
		c.Header("WWW-Authenticate", "Bearer")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Incorrect username or password"})
		return
	}

	h.respondToken(c, user.ID, user.Username)
}

// GuestToken creates a throwaway user and signs it in, no body required.
func (h *AuthHandler) GuestToken(c *gin.Context) {
	user := h.Store.CreateGuest()
	h.respondToken(c, user.ID, user.Username)
}

func (h *AuthHandler) respondToken(c *gin.Context, userID, username string) {
	token, err := auth.CreateToken(userID, username, h.TokenConfig)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Token creation failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": token, "token_type": "bearer"})
}
