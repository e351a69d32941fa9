package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"resourcekit/internal/logging"
	"resourcekit/internal/resource"
	"resourcekit/internal/service"
)

// NewRouter mounts the resource routes. reload may be nil to leave the
// admin route out.
func NewRouter(reg *resource.Registry, svc *service.ResourceService, reload Reloader, log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(logging.Middleware(log), logging.Recovery(log))

	r.GET("/api/resources", MetaListHandler(reg))
	if reload != nil {
		r.POST("/api/_admin/reload", AdminReloadHandler(reg, reload))
	}

	g := r.Group("/api/resources/:resource")
	{
		// service routes first
		g.GET("/_meta", MetaHandler(svc, log))
		g.POST("/_fields", FieldStateHandler(svc, log))
		g.POST("/_bulk_delete", BulkDestroyHandler(svc, log))
		g.PATCH("/_bulk", BulkUpdateHandler(svc, log))
		g.POST("/actions/:action", ActionHandler(svc, log))

		g.GET("", IndexHandler(svc, log))
		g.POST("", StoreHandler(svc, log))
		g.GET("/:id", ShowHandler(svc, log))
		g.PUT("/:id", UpdateHandler(svc, log, false))
		g.PATCH("/:id", UpdateHandler(svc, log, true))
		g.DELETE("/:id", DestroyHandler(svc, log))
	}
	return r
}
