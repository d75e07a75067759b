// Package router is the routing abstraction the servers and middleware are written against.
package router

import (
	"errors"
	"net/http"
)

// Router registers handlers and middleware.
type Router interface {
	GET(path string, handler HandlerFunc, middleware ...MiddlewareFunc)
	POST(path string, handler HandlerFunc, middleware ...MiddlewareFunc)

	// Group creates a route group with common prefix and middleware
	Group(prefix string, middleware ...MiddlewareFunc) Router

	// Use applies middleware to routes registered afterwards
	Use(middleware ...MiddlewareFunc)

	ServeHTTP(w http.ResponseWriter, r *http.Request)
}

// HandlerFunc handles a request. A returned error is turned into a 500 when
// nothing has been written yet.
type HandlerFunc func(Context) error

// MiddlewareFunc wraps a HandlerFunc.
type MiddlewareFunc func(HandlerFunc) HandlerFunc

// Context provides access to request and response in a router-agnostic way.
type Context interface {
	Request() *http.Request
	SetRequest(r *http.Request)

	Response() ResponseWriter
	SetResponse(w ResponseWriter)

	// Param returns a path parameter, e.g. entity in /api/v1/:entity
	Param(name string) string
	// Query returns a URL query parameter
	Query(name string) string
	// Route returns the matched route pattern, or "" when no route matched.
	Route() string

	// Bind decodes a JSON request body into v
	Bind(v interface{}) error
	JSON(code int, v interface{}) error
	// Blob writes a pre-encoded body with the given content type.
	Blob(code int, contentType string, body []byte) error
	String(code int, s string) error

	Get(key string) interface{}
	Set(key string, value interface{})
}

// ResponseWriter wraps http.ResponseWriter to track response status.
type ResponseWriter interface {
	http.ResponseWriter

	// Status returns the HTTP status code of the response
	Status() int

	// Written returns whether the response has been written
	Written() bool
}

// ErrEmptyBody is returned by Bind when the request has no body.
var ErrEmptyBody = errors.New("request body is empty")
