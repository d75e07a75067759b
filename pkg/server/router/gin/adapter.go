// Package gin serves router.Router routes on a gin engine.
package gin

import (
	"encoding/json"
	"fmt"
	"net/http"
	"path"
	"sync"

	ginpkg "github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/gin-gonic/gin/render"

	"github.com/nimburion/listing/pkg/server/router"
)

var _ router.Router = (*GinRouter)(nil)

// engineState is shared by a root router and every group derived from it.
type engineState struct {
	engine *ginpkg.Engine
	mu     sync.RWMutex
	// global is the root router's middleware; fallbacks run it too.
	global []router.MiddlewareFunc
}

// GinRouter is a router.Router backed by gin. Groups share the root engine.
type GinRouter struct {
	state  *engineState
	prefix string
	// inherited is the middleware a group captured from its parent.
	inherited []router.MiddlewareFunc
	local     []router.MiddlewareFunc
	root      bool
}

// NewRouter returns a root router in gin release mode. Unknown paths answer
// 404 and known paths with the wrong method 405, both as JSON and both after
// the root middleware ran, so they are logged and counted like any route.
func NewRouter() *GinRouter {
	ginpkg.SetMode(ginpkg.ReleaseMode)
	state := &engineState{engine: ginpkg.New()}
	state.engine.HandleMethodNotAllowed = true
	state.engine.NoRoute(state.fallback(http.StatusNotFound, "not_found", "route not found"))
	state.engine.NoMethod(state.fallback(http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed"))
	return &GinRouter{state: state, root: true}
}

func (r *GinRouter) GET(p string, h router.HandlerFunc, mw ...router.MiddlewareFunc) {
	r.handle(http.MethodGet, p, h, mw)
}

func (r *GinRouter) POST(p string, h router.HandlerFunc, mw ...router.MiddlewareFunc) {
	r.handle(http.MethodPost, p, h, mw)
}

// Group returns a router mounting routes under prefix. It keeps the
// middleware registered on r so far, followed by mw.
func (r *GinRouter) Group(prefix string, mw ...router.MiddlewareFunc) router.Router {
	inherited := append(r.middleware(), mw...)
	return &GinRouter{
		state:     r.state,
		prefix:    path.Join("/", r.prefix, prefix),
		inherited: inherited,
	}
}

// Use appends middleware for routes registered afterwards.
func (r *GinRouter) Use(mw ...router.MiddlewareFunc) {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	if r.root {
		r.state.global = append(r.state.global, mw...)
		return
	}
	r.local = append(r.local, mw...)
}

func (r *GinRouter) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.state.engine.ServeHTTP(w, req)
}

// middleware snapshots the chain for a route registered on r now.
func (r *GinRouter) middleware() []router.MiddlewareFunc {
	r.state.mu.RLock()
	defer r.state.mu.RUnlock()
	if r.root {
		return append([]router.MiddlewareFunc(nil), r.state.global...)
	}
	out := make([]router.MiddlewareFunc, 0, len(r.inherited)+len(r.local))
	out = append(out, r.inherited...)
	return append(out, r.local...)
}

func (r *GinRouter) handle(method, p string, h router.HandlerFunc, routeMW []router.MiddlewareFunc) {
	full := path.Join("/", r.prefix, p)
	if r.prefix == "" {
		full = p
	}
	handler := wrap(h, append(r.middleware(), routeMW...))
	r.state.engine.Handle(method, full, func(gc *ginpkg.Context) {
		c := newContext(gc)
		if err := handler(c); err != nil && !c.Response().Written() {
			gc.AbortWithStatus(http.StatusInternalServerError)
		}
	})
}

func (s *engineState) fallback(status int, code, message string) ginpkg.HandlerFunc {
	return func(gc *ginpkg.Context) {
		s.mu.RLock()
		global := append([]router.MiddlewareFunc(nil), s.global...)
		s.mu.RUnlock()

		h := wrap(func(c router.Context) error {
			return c.JSON(status, map[string]string{"error": code, "message": message})
		}, global)
		_ = h(newContext(gc))
	}
}

// wrap applies mw so that mw[0] runs first.
func wrap(h router.HandlerFunc, mw []router.MiddlewareFunc) router.HandlerFunc {
	for i := len(mw) - 1; i >= 0; i-- {
		h = mw[i](h)
	}
	return h
}

type ginContext struct {
	gc *ginpkg.Context
	w  router.ResponseWriter
}

func newContext(gc *ginpkg.Context) *ginContext {
	return &ginContext{gc: gc, w: responseWriter{gc.Writer}}
}

func (c *ginContext) Request() *http.Request          { return c.gc.Request }
func (c *ginContext) SetRequest(r *http.Request)      { c.gc.Request = r }
func (c *ginContext) Response() router.ResponseWriter { return c.w }
func (c *ginContext) SetResponse(w router.ResponseWriter) {
	c.w = w
}
func (c *ginContext) Param(name string) string { return c.gc.Param(name) }
func (c *ginContext) Query(name string) string { return c.gc.Query(name) }
func (c *ginContext) Route() string            { return c.gc.FullPath() }

// Bind decodes a JSON body into v with numbers kept as json.Number, so that
// "2" and 2.5 reach the normalizer unchanged.
func (c *ginContext) Bind(v interface{}) error {
	req := c.gc.Request
	if req.Body == nil || req.Body == http.NoBody || req.ContentLength == 0 {
		return router.ErrEmptyBody
	}
	defer req.Body.Close()

	if ct := c.gc.ContentType(); ct != binding.MIMEJSON {
		return fmt.Errorf("unsupported content type: %q", ct)
	}
	dec := json.NewDecoder(req.Body)
	dec.UseNumber()
	return dec.Decode(v)
}

func (c *ginContext) JSON(code int, v interface{}) error {
	return c.render(code, render.JSON{Data: v})
}

func (c *ginContext) Blob(code int, contentType string, body []byte) error {
	return c.render(code, render.Data{ContentType: contentType, Data: body})
}

func (c *ginContext) String(code int, s string) error {
	return c.render(code, render.String{Format: "%s", Data: []interface{}{s}})
}

// render writes through c.w so that writers installed by middleware see the
// status and body.
func (c *ginContext) render(code int, r render.Render) error {
	r.WriteContentType(c.w)
	c.w.WriteHeader(code)
	return r.Render(c.w)
}

func (c *ginContext) Get(key string) interface{} {
	v, _ := c.gc.Get(key)
	return v
}

func (c *ginContext) Set(key string, value interface{}) { c.gc.Set(key, value) }

// responseWriter commits the status on WriteHeader. gin defers it to the
// first Write, which would leave an empty-bodied response unwritten.
type responseWriter struct {
	ginpkg.ResponseWriter
}

func (w responseWriter) WriteHeader(code int) {
	if w.ResponseWriter.Written() {
		return
	}
	w.ResponseWriter.WriteHeader(code)
	w.ResponseWriter.WriteHeaderNow()
}
