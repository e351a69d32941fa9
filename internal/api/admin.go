package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"resourcekit/internal/resource"
)

// Reloader rebuilds a registry from its sources (resource files and enum
// catalogs) without touching the live one.
type Reloader func() (*resource.Registry, error)

// POST /api/_admin/reload
//
// The new registry is linted before it replaces the live one; any issue
// blocks the swap.
func AdminReloadHandler(live *resource.Registry, reload Reloader) gin.HandlerFunc {
	return func(c *gin.Context) {
		next, err := reload()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": "resource load error", "details": err.Error()})
			return
		}
		if issues := next.Lint(); len(issues) > 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"message": "resources have blocking issues",
				"issues":  issues,
			})
			return
		}
		live.Replace(next)
		c.JSON(http.StatusOK, gin.H{"ok": true, "resources": live.Keys()})
	}
}
