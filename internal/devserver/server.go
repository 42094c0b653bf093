// Package devserver serves the build output over HTTP with live reload.
//
// HTML pages get the live-reload script injected before </body>. The
// websocket endpoint and the client script live under /__devsync/ so they
// never collide with project files.
package devserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hupe1980/devsync/internal/livereload"
)

// DefaultAddr is the listen address used when Options.Addr is empty.
const DefaultAddr = "localhost:3000"

const indexFile = "index.html"

func init() {
	gin.SetMode(gin.ReleaseMode)
}

// Options configures a Server.
type Options struct {
	// Dir is the directory served at "/".
	Dir string

	// Addr is the listen address. Port 0 picks a free port.
	Addr string

	// Open launches the system browser once the server listens.
	Open bool

	// Hub handles websocket connections. Nil disables live reload.
	Hub *livereload.Hub

	// Logger is used for structured logging.
	Logger *slog.Logger

	// Out is the writer for user-facing status messages.
	Out io.Writer
}

// Server is a static file server for the build directory.
type Server struct {
	opts   Options
	engine *gin.Engine

	mu  sync.Mutex
	srv *http.Server
	ln  net.Listener
}

// New creates a Server. It does not listen until Start.
func New(opts Options) *Server {
	if opts.Addr == "" {
		opts.Addr = DefaultAddr
	}

	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	if opts.Out == nil {
		opts.Out = io.Discard
	}

	s := &Server{opts: opts}
	s.engine = s.routes()

	return s
}

// Handler returns the HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	if s.opts.Hub != nil {
		r.GET(livereload.ScriptPath, func(c *gin.Context) {
			c.Header("Cache-Control", "no-store")
			c.Data(http.StatusOK, "application/javascript; charset=utf-8", []byte(livereload.ClientScript))
		})
		r.GET(livereload.SocketPath, gin.WrapH(s.opts.Hub))
	}

	r.NoRoute(s.serveStatic)

	return r
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		s.opts.Logger.Debug("request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("duration", time.Since(start)),
		)
	}
}

// serveStatic resolves the request path inside Dir. Directories fall back
// to their index.html.
func (s *Server) serveStatic(c *gin.Context) {
	if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
		c.Status(http.StatusMethodNotAllowed)
		return
	}

	rel := path.Clean("/" + c.Request.URL.Path)
	file := filepath.Join(s.opts.Dir, filepath.FromSlash(rel))

	info, err := os.Stat(file)
	if err == nil && info.IsDir() {
		file = filepath.Join(file, indexFile)
		info, err = os.Stat(file)
	}

	if err != nil || info.IsDir() {
		c.String(http.StatusNotFound, "404 page not found")
		return
	}

	c.Header("Cache-Control", "no-store")

	if s.opts.Hub == nil || !isHTML(file) {
		c.File(file)
		return
	}

	data, err := os.ReadFile(file)
	if err != nil {
		c.String(http.StatusInternalServerError, "reading %s", rel)
		return
	}

	c.Data(http.StatusOK, "text/html; charset=utf-8", livereload.InjectScript(data))
}

func isHTML(file string) bool {
	switch strings.ToLower(filepath.Ext(file)) {
	case ".html", ".htm":
		return true
	default:
		return false
	}
}

// Start listens on Addr and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.srv != nil {
		return errors.New("server already started")
	}

	var lc net.ListenConfig

	ln, err := lc.Listen(ctx, "tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.opts.Addr, err)
	}

	s.ln = ln
	s.srv = &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	srv := s.srv

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.opts.Logger.Error("dev server stopped", slog.String("error", err.Error()))
		}
	}()

	url := "http://" + ln.Addr().String()

	fmt.Fprintf(s.opts.Out, "Serving %s at %s\n", s.opts.Dir, url)
	s.opts.Logger.Info("dev server listening", slog.String("url", url), slog.String("dir", s.opts.Dir))

	if s.opts.Open {
		if err := openBrowser(url); err != nil {
			s.opts.Logger.Warn("opening browser", slog.String("error", err.Error()))
		}
	}

	return nil
}

// URL reports the bound address, or "" before Start.
func (s *Server) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ln == nil {
		return ""
	}

	return "http://" + s.ln.Addr().String()
}

// Stop shuts the server down gracefully. Stopping a server that never
// started is a no-op.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	s.mu.Unlock()

	if srv == nil {
		return nil
	}

	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("shutting down dev server: %w", err)
	}

	return nil
}
