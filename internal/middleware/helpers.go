// internal/middleware/helpers.go
package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
)

func getString(c *gin.Context, key string) string {
	v, exists := c.Get(key)
	if !exists {
		return ""
	}
	s, _ := v.(string)
	return s
}

// GetUserID gets the authenticated user id from context
func GetUserID(c *gin.Context) (string, bool) {
	id := getString(c, ctxUserID)
	return id, id != ""
}

// MustGetUserID gets the user id from context or panics
func MustGetUserID(c *gin.Context) string {
	id, exists := GetUserID(c)
	if !exists {
		panic("user_id not found in context")
	}
	return id
}

// GetRole gets the caller's role from context
func GetRole(c *gin.Context) string {
	return getString(c, ctxRole)
}

// GetEntityID gets the doctor or hospital profile id from context
func GetEntityID(c *gin.Context) string {
	return getString(c, ctxEntityID)
}

func GetJTI(c *gin.Context) string {
	return getString(c, ctxJTI)
}

// GetTokenExpiry returns when the caller's token expires
func GetTokenExpiry(c *gin.Context) (time.Time, bool) {
	v, exists := c.Get(ctxTokenExp)
	if !exists {
		return time.Time{}, false
	}
	t, ok := v.(time.Time)
	return t, ok
}

// IsAdmin checks if user is an admin
func IsAdmin(c *gin.Context) bool {
	return GetRole(c) == "admin"
}
