package server

import (
	"net/http"

	"github.com/labstack/echo/v5"
)

// Identity headers injected by the platform's auth gateway. Requests that
// reach this service without them are rejected.
const (
	headerUserID   = "X-User-Id"
	headerUserRole = "X-User-Role"

	roleAdmin = "admin"

	identityKey = "identity"
)

type identity struct {
	UserID string
	Role   string
}

func (s *Server) withIdentity(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c *echo.Context) error {
		userID := c.Request().Header.Get(headerUserID)
		if userID == "" {
			return c.JSON(http.StatusUnauthorized, fail("Unauthorized"))
		}
		c.Set(identityKey, identity{
			UserID: userID,
			Role:   c.Request().Header.Get(headerUserRole),
		})
		return next(c)
	}
}

func (s *Server) requireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c *echo.Context) error {
		if identityFrom(c).Role != roleAdmin {
			return c.JSON(http.StatusForbidden, fail("Admin access required"))
		}
		return next(c)
	}
}

func identityFrom(c *echo.Context) identity {
	id, _ := c.Get(identityKey).(identity)
	return id
}
