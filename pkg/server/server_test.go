package server

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/nimburion/listing/pkg/observability/logger"
	"github.com/nimburion/listing/pkg/server/router"
	ginrouter "github.com/nimburion/listing/pkg/server/router/gin"
)

// waitForAddr polls until the server has bound its listener.
func waitForAddr(t *testing.T, s *Server) string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if addr := s.Addr(); addr != "" {
			return addr
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("server did not start listening")
	return ""
}

func TestServerStartAndShutdown(t *testing.T) {
	r := ginrouter.NewRouter()
	r.GET("/ping", func(c router.Context) error {
		return c.String(http.StatusOK, "pong")
	})
	srv := NewServer(Config{Port: 0, ReadTimeout: time.Second, WriteTimeout: time.Second}, r, logger.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errChan := make(chan error, 1)
	go func() { errChan <- srv.Start(ctx) }()

	addr := waitForAddr(t, srv)
	resp, err := http.Get(fmt.Sprintf("http://%s/ping", addr))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || string(body) != "pong" {
		t.Fatalf("got %d %q", resp.StatusCode, body)
	}

	cancel()
	select {
	case err := <-errChan:
		if err != nil {
			t.Errorf("server shutdown failed: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server shutdown timed out")
	}
}

func TestServerShutdownWaitsForInFlightRequests(t *testing.T) {
	started := make(chan struct{})
	r := ginrouter.NewRouter()
	r.GET("/slow", func(c router.Context) error {
		close(started)
		time.Sleep(200 * time.Millisecond)
		return c.String(http.StatusOK, "done")
	})
	srv := NewServer(Config{Port: 0}, r, logger.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	errChan := make(chan error, 1)
	go func() { errChan <- srv.Start(ctx) }()
	addr := waitForAddr(t, srv)

	type result struct {
		body string
		err  error
	}
	resCh := make(chan result, 1)
	go func() {
		resp, err := http.Get(fmt.Sprintf("http://%s/slow", addr))
		if err != nil {
			resCh <- result{err: err}
			return
		}
		defer resp.Body.Close()
		b, err := io.ReadAll(resp.Body)
		resCh <- result{body: string(b), err: err}
	}()

	<-started
	cancel()

	res := <-resCh
	if res.err != nil || res.body != "done" {
		t.Fatalf("in-flight request = %q, %v", res.body, res.err)
	}
	if err := <-errChan; err != nil {
		t.Fatalf("Start() = %v", err)
	}
}

func TestServerStartError(t *testing.T) {
	ln, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	srv := NewServer(Config{Port: port}, ginrouter.NewRouter(), logger.Nop())
	err = srv.Start(context.Background())
	if err == nil || !strings.Contains(err.Error(), "failed to start") {
		t.Fatalf("expected bind error, got %v", err)
	}
}

func TestServerAddrBeforeStart(t *testing.T) {
	srv := NewServer(Config{}, ginrouter.NewRouter(), logger.Nop())
	if srv.Addr() != "" {
		t.Fatal("Addr() must be empty before Start")
	}
	if srv.Router() == nil {
		t.Fatal("Router() must return the router")
	}
}
