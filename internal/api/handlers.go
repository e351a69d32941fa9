package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"resourcekit/internal/field"
	"resourcekit/internal/logging"
	"resourcekit/internal/service"
	"resourcekit/internal/store"
)

type bulkReq struct {
	IDs  []string       `json:"ids"`
	Data map[string]any `json:"data"`
}

// GET /api/resources/:resource
func IndexHandler(svc *service.ResourceService, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := svc.Index(c.Request.Context(), c.Param("resource"), parseIndexParams(c.Request.URL.Query()))
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

// GET /api/resources/:resource/:id
func ShowHandler(svc *service.ResourceService, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		out, err := svc.Show(c.Request.Context(), c.Param("resource"), c.Param("id"))
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": out})
	}
}

// POST /api/resources/:resource
func StoreHandler(svc *service.ResourceService, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var obj map[string]any
		if err := c.ShouldBindJSON(&obj); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid JSON"})
			return
		}
		out, err := svc.Store(c.Request.Context(), c.Param("resource"), obj)
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"data": out})
	}
}

// PUT /api/resources/:resource/:id
// PATCH /api/resources/:resource/:id
func UpdateHandler(svc *service.ResourceService, log *zap.Logger, partial bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		var obj map[string]any
		if err := c.ShouldBindJSON(&obj); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid JSON"})
			return
		}
		ctx, key, id := c.Request.Context(), c.Param("resource"), c.Param("id")
		var (
			out map[string]any
			err error
		)
		if partial {
			out, err = svc.Patch(ctx, key, id, obj)
		} else {
			out, err = svc.Update(ctx, key, id, obj)
		}
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": out})
	}
}

// DELETE /api/resources/:resource/:id
func DestroyHandler(svc *service.ResourceService, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := svc.Destroy(c.Request.Context(), c.Param("resource"), c.Param("id")); err != nil {
			writeError(c, log, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// POST /api/resources/:resource/_bulk_delete {ids:[]}
func BulkDestroyHandler(svc *service.ResourceService, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body bulkReq
		if err := c.ShouldBindJSON(&body); err != nil || len(body.IDs) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid JSON: expected {ids:[]}"})
			return
		}
		n, err := svc.BulkDestroy(c.Request.Context(), c.Param("resource"), body.IDs)
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"affected": n})
	}
}

// PATCH /api/resources/:resource/_bulk {ids:[], data:{}}
func BulkUpdateHandler(svc *service.ResourceService, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body bulkReq
		if err := c.ShouldBindJSON(&body); err != nil || len(body.IDs) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid JSON: expected {ids:[], data:{}}"})
			return
		}
		n, err := svc.BulkUpdate(c.Request.Context(), c.Param("resource"), body.IDs, body.Data)
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"affected": n})
	}
}

// POST /api/resources/:resource/actions/:action {ids:[], data:{}}
func ActionHandler(svc *service.ResourceService, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body bulkReq
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid JSON: expected {ids:[], data:{}}"})
			return
		}
		res, err := svc.RunAction(c.Request.Context(), c.Param("resource"), c.Param("action"), body.IDs, body.Data)
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

// writeError maps lifecycle errors onto statuses: 422 validation, 404
// unknown resource/record/action, 409 store conflicts, 500 otherwise.
func writeError(c *gin.Context, log *zap.Logger, err error) {
	var (
		ve    *service.ValidationError
		cycle *field.CircularDependencyError
	)
	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"message": "The given data was invalid.", "errors": ve.Fields()})
	case service.IsNotFound(err):
		c.JSON(http.StatusNotFound, gin.H{"message": err.Error()})
	case errors.Is(err, store.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"message": err.Error()})
	case errors.Is(err, store.ErrInvalidColumn):
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
	case errors.As(err, &cycle):
		logging.FromContext(c.Request.Context(), log).Error("circular field dependency",
			zap.String("resource", c.Param("resource")), zap.Strings("path", cycle.Path))
		c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error(), "path": cycle.Path})
	default:
		logging.FromContext(c.Request.Context(), log).Error("request failed",
			zap.String("resource", c.Param("resource")), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "internal error"})
	}
}
