// Package controller exposes the listing engine over HTTP.
package controller

import (
	"context"
	"errors"

	"github.com/nimburion/listing/pkg/listing"
	"github.com/nimburion/listing/pkg/observability/logger"
	"github.com/nimburion/listing/pkg/server/router"
)

// Lister serves listing pages. *listing.Engine implements it.
type Lister interface {
	List(ctx context.Context, entity string, p listing.Params) (*listing.Page, error)
}

// ListingController handles the listing routes.
type ListingController struct {
	lister Lister
	log    logger.Logger
}

// NewListingController creates a controller over lister.
func NewListingController(lister Lister, log logger.Logger) *ListingController {
	if log == nil {
		log = logger.Nop()
	}
	return &ListingController{lister: lister, log: log}
}

// Register mounts the routes on r, usually the /api/v1 group:
//
//	POST /:entity/list  JSON body
//	GET  /:entity       query string
func (lc *ListingController) Register(r router.Router, middleware ...router.MiddlewareFunc) {
	r.POST("/:entity/list", lc.ListFromBody, middleware...)
	r.GET("/:entity", lc.ListFromQuery, middleware...)
}

// ListFromBody reads the listing parameters from a JSON body. A missing body
// means defaults.
func (lc *ListingController) ListFromBody(c router.Context) error {
	var p listing.Params
	if err := c.Bind(&p); err != nil && !errors.Is(err, router.ErrEmptyBody) {
		return Error(c, NewValidationError("malformed request body", map[string]interface{}{"reason": err.Error()}))
	}
	return lc.list(c, p)
}

// ListFromQuery reads the listing parameters from the query string.
func (lc *ListingController) ListFromQuery(c router.Context) error {
	p := listing.Params{
		Search:    c.Query("search"),
		SortField: c.Query("sortField"),
	}
	if v := c.Query("page"); v != "" {
		p.Page = v
	}
	if v := c.Query("limit"); v != "" {
		p.Limit = v
	}
	if v := c.Query("sortOrder"); v != "" {
		p.SortOrder = v
	}
	return lc.list(c, p)
}

func (lc *ListingController) list(c router.Context, p listing.Params) error {
	ctx := c.Request().Context()
	entity := c.Param("entity")

	page, err := lc.lister.List(ctx, entity, p)
	if err != nil {
		var queryErr *listing.QueryExecutionError
		if errors.As(err, &queryErr) {
			lc.log.WithContext(ctx).Error("listing failed", "entity", entity, "phase", queryErr.Phase, "error", err)
		}
		return Error(c, err)
	}
	return Page(c, page)
}
