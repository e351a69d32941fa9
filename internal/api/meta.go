package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"resourcekit/internal/field"
	"resourcekit/internal/resource"
	"resourcekit/internal/service"
)

type metaListItem struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

type metaAction struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

type metaResource struct {
	Key        string           `json:"key"`
	Label      string           `json:"label"`
	View       resource.View    `json:"view"`
	Searchable bool             `json:"searchable"`
	Sortable   []string         `json:"sortable"`
	PerPage    int              `json:"perPage"`
	Fields     field.Schema     `json:"fields"`
	Filters    []map[string]any `json:"filters"`
	Actions    []metaAction     `json:"actions"`
}

// GET /api/resources
func MetaListHandler(reg *resource.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		keys := reg.Keys()
		out := make([]metaListItem, 0, len(keys))
		for _, k := range keys {
			def, err := reg.Resolve(k)
			if err != nil {
				continue
			}
			out = append(out, metaListItem{Key: def.Key, Label: def.Label})
		}
		c.JSON(http.StatusOK, out)
	}
}

// GET /api/resources/:resource/_meta?view=index|show|form
func MetaHandler(svc *service.ResourceService, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		def, err := svc.Definition(c.Param("resource"))
		if err != nil {
			writeError(c, log, err)
			return
		}
		view := resource.ParseView(c.DefaultQuery("view", string(resource.ViewForm)))
		resp := metaResource{
			Key:        def.Key,
			Label:      def.Label,
			View:       view,
			Searchable: def.Searchable,
			Sortable:   def.SortWhitelist(),
			PerPage:    def.PerPage,
			Fields:     def.Schema(view),
			Filters:    make([]map[string]any, 0, len(def.Filters)),
			Actions:    make([]metaAction, 0, len(def.Actions)),
		}
		if resp.Fields == nil {
			resp.Fields = field.Schema{}
		}
		for _, f := range def.Filters {
			resp.Filters = append(resp.Filters, f.Descriptor())
		}
		for _, a := range def.Actions {
			resp.Actions = append(resp.Actions, metaAction{Key: a.Key(), Name: a.Name()})
		}
		c.JSON(http.StatusOK, resp)
	}
}

// POST /api/resources/:resource/_fields?view=form with the draft payload
// as body; answers visible/required/disabled per attribute.
func FieldStateHandler(svc *service.ResourceService, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var obj map[string]any
		if err := c.ShouldBindJSON(&obj); err != nil && !errors.Is(err, io.EOF) {
			c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid JSON"})
			return
		}
		view := resource.ParseView(c.DefaultQuery("view", string(resource.ViewForm)))
		state, err := svc.FieldState(c.Request.Context(), c.Param("resource"), view, obj)
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"fields": state})
	}
}
