package controller

import (
	"encoding/json"
	"net/http"

	"github.com/nimburion/listing/pkg/listing"
	"github.com/nimburion/listing/pkg/observability/logger"
	"github.com/nimburion/listing/pkg/server/router"
)

// CacheHeader reports whether a listing came from the cache.
const CacheHeader = "X-Cache"

// ListingResponse is the envelope of a listing page. Data carries the page
// bytes as they were cached, without re-encoding.
type ListingResponse struct {
	Data      json.RawMessage `json:"data"`
	Source    listing.Source  `json:"source"`
	RequestID string          `json:"request_id,omitempty"`
}

// Page writes a listing page with its X-Cache header.
func Page(c router.Context, page *listing.Page) error {
	hit := "MISS"
	if page.Source == listing.SourceCache {
		hit = "HIT"
	}
	c.Response().Header().Set(CacheHeader, hit)
	return c.JSON(http.StatusOK, ListingResponse{
		Data:      page.Payload,
		Source:    page.Source,
		RequestID: logger.RequestIDFromContext(c.Request().Context()),
	})
}

// Error sends an error response with the status chosen by MapError.
func Error(c router.Context, err error) error {
	statusCode, errorResponse := MapError(c.Request().Context(), err)
	return c.JSON(statusCode, errorResponse)
}
