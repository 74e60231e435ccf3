package router

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mombroker/mom/internal/authn"
	"github.com/mombroker/mom/internal/store"
)

func (rt *Router) register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	if err := authn.CheckRegisterable(req.Username); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}

	hash, err := authn.HashPassword(req.Password)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
		return
	}

	if err := rt.store.CreateUser(req.Username, hash); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			c.JSON(http.StatusBadRequest, gin.H{"message": "username already registered"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "registered"})
}

func (rt *Router) login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}

	user, err := rt.store.GetUser(req.Username)
	if err != nil || !authn.VerifyPassword(user.PasswordHash, req.Password) {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "invalid credentials"})
		return
	}

	token, _, err := rt.tokenAuth.GenToken(req.Username, 0)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": string(token)})
}

func (rt *Router) listUsers(c *gin.Context) {
	users, err := rt.store.ListUsers()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

// authenticate extracts and verifies the bearer token carried in the
// "token" query parameter, per the public surface in spec.md §6.
func (rt *Router) authenticate(c *gin.Context) (principal string, ok bool) {
	token := c.Query("token")
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "missing token"})
		return "", false
	}
	principal, authErr := rt.tokenAuth.Authenticate(token)
	if authErr != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"message": authErr.Error()})
		return "", false
	}
	return principal, true
}
