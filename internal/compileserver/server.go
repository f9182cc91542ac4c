// Package compileserver is a long-running alternative to the one-shot
// CLI: a websocket endpoint that accepts an expression plus image
// descriptor, compiles it, and streams back either the object bytes
// or a structured compile error.
package compileserver

import (
	"context"
	"log"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"pixc/internal/cerr"
	"pixc/internal/compiler"
	"pixc/internal/image"
	"pixc/internal/objcache"
)

// Request is one compile job read off the websocket connection.
type Request struct {
	Expression string `json:"expression"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	Frames     int    `json:"frames"`
	Channels   int    `json:"channels"`
}

// Response carries either a compiled object or a structured error,
// tagged with the request ID that produced it for log correlation.
type Response struct {
	RequestID string      `json:"request_id"`
	Object    []byte      `json:"object,omitempty"`
	Error     *ErrorField `json:"error,omitempty"`
}

// ErrorField is the wire form of a *cerr.CompileError.
type ErrorField struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Server upgrades incoming HTTP connections to websockets and serves
// compile requests on them, one connection per client.
type Server struct {
	upgrader websocket.Upgrader
	cache    *objcache.Cache // nil disables caching
}

// NewServer returns a Server with origin checks disabled, matching the
// teacher's network module's permissive default for a local tool, and
// no object cache.
func NewServer() *Server {
	return NewServerWithCache(nil)
}

// NewServerWithCache returns a Server that consults cache before
// compiling and populates it after a miss; cache may be nil to disable
// caching entirely.
func NewServerWithCache(cache *objcache.Cache) *Server {
	return &Server{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		cache: cache,
	}
}

// ServeHTTP implements http.Handler, upgrading the connection and then
// servicing compile requests on it until the client disconnects.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("compileserver: upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	for {
		var req Request
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		id := uuid.New().String()
		log.Printf("compileserver: request %s: %q %dx%dx%dx%d", id, req.Expression,
			req.Width, req.Height, req.Frames, req.Channels)

		resp := s.compile(id, req)
		if err := conn.WriteJSON(resp); err != nil {
			log.Printf("compileserver: request %s: write failed: %v", id, err)
			return
		}
	}
}

func (s *Server) compile(id string, req Request) Response {
	img := image.NewBuffer(req.Width, req.Height, req.Frames, req.Channels)
	obj, err := s.compileEval(req.Expression, img)
	if err != nil {
		if ce, ok := err.(*cerr.CompileError); ok {
			return Response{RequestID: id, Error: &ErrorField{Kind: string(ce.Kind), Message: ce.Message}}
		}
		return Response{RequestID: id, Error: &ErrorField{Kind: "Error", Message: err.Error()}}
	}
	return Response{RequestID: id, Object: obj}
}

// compileEval runs CompileEval, consulting s.cache first and
// populating it on a miss; s.cache may be nil.
func (s *Server) compileEval(expr string, img *image.Buffer) ([]byte, error) {
	if s.cache == nil {
		return compiler.CompileEval(expr, img)
	}
	ctx := context.Background()
	key := objcache.Key(expr, img)
	if obj, found, err := s.cache.Get(ctx, key); err == nil && found {
		return obj, nil
	}
	obj, err := compiler.CompileEval(expr, img)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Put(ctx, key, obj); err != nil {
		log.Printf("compileserver: objcache put: %v", err)
	}
	return obj, nil
}
