// Package web serves stored pages over HTTP: the site index, rendered pages,
// the sitemap and a JSON tool API for managing pages.
package web

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/edgecomet/pagestore/internal/common/httputil"
	"github.com/edgecomet/pagestore/internal/common/requestid"
	"github.com/edgecomet/pagestore/internal/store"
)

// Route labels used in logs and metrics
const (
	RouteIndex    = "index"
	RoutePage     = "page"
	RouteSitemap  = "sitemap"
	RouteHealth   = "health"
	RouteTool     = "tool"
	RouteNotFound = "not_found"
)

// PageStore is the subset of *store.Store the web layer uses
type PageStore interface {
	CreateAutoID(meta store.PageMeta, html string) (string, store.PageMeta, error)
	Patch(id string, patch store.PagePatch) (store.PageMeta, error)
	Load(id string) (store.PageMeta, string, error)
	GetMeta(id string) (store.PageMeta, error)
	ResolveIDByUID(uid string) (string, bool, error)
	Delete(id string) error
	ListEntries() ([]store.PageIndexEntry, error)
	IncrementViewCount(id string) (uint64, error)
}

// UIDResolver maps page uids to storage ids
type UIDResolver interface {
	ResolveIDByUID(uid string) (id string, ok bool, err error)
}

// ResolvePageID maps a page uid to its storage id. Anything that is not a
// known uid is treated as a storage id, including when the lookup fails.
func ResolvePageID(st UIDResolver, ref string) (string, error) {
	id, found, err := st.ResolveIDByUID(ref)
	if err != nil {
		return ref, err
	}
	if found {
		return id, nil
	}
	return ref, nil
}

// Metrics receives request and page view counts
type Metrics interface {
	RecordRequest(route string, statusCode int, duration time.Duration)
	RecordPageView()
}

type nopMetrics struct{}

func (nopMetrics) RecordRequest(string, int, time.Duration) {}
func (nopMetrics) RecordPageView()                          {}

// Config holds the server settings
type Config struct {
	Listen      string
	Timeout     time.Duration
	MaxBodySize int
	SiteName    string
	SiteURL     string // absolute base for tool URLs, may be empty
}

// Server is the public page server
type Server struct {
	store     PageStore
	cfg       Config
	metrics   Metrics
	logger    *zap.Logger
	tools     map[string]toolHandler
	server    *fasthttp.Server
	listener  net.Listener
	startTime time.Time
}

// NewServer creates a server over st. metrics may be nil.
func NewServer(st PageStore, cfg Config, metrics Metrics, logger *zap.Logger) *Server {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	s := &Server{
		store:     st,
		cfg:       cfg,
		metrics:   metrics,
		logger:    logger,
		startTime: time.Now().UTC(),
	}
	s.tools = s.registerTools()
	return s
}

// Listen binds the configured address. Call Serve afterwards.
func (s *Server) Listen() error {
	listener, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Listen, err)
	}
	s.listener = listener
	s.server = &fasthttp.Server{
		Handler:            s.Handler(),
		Name:               "pagestore",
		ReadTimeout:        s.cfg.Timeout,
		WriteTimeout:       s.cfg.Timeout,
		MaxRequestBodySize: s.cfg.MaxBodySize,
	}
	return nil
}

// Serve accepts requests until Shutdown is called
func (s *Server) Serve() error {
	if s.listener == nil {
		return errors.New("server is not listening")
	}
	s.logger.Info("Page server started",
		zap.String("address", s.Addr()),
		zap.String("site_url", s.cfg.SiteURL))
	if err := s.server.Serve(s.listener); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

// Addr returns the bound address, or the configured one before Listen
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.cfg.Listen
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	s.logger.Info("Shutting down page server")
	return s.server.ShutdownWithContext(ctx)
}

// Handler returns the request handler with request ids, logging and metrics
func (s *Server) Handler() fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		start := time.Now()
		reqID := requestid.FromRequest(ctx)
		logger := s.logger.With(zap.String("request_id", reqID))

		route := s.dispatch(ctx, logger)

		duration := time.Since(start)
		status := ctx.Response.StatusCode()
		s.metrics.RecordRequest(route, status, duration)
		logger.Info("Request served",
			zap.String("method", string(ctx.Method())),
			zap.String("uri", string(ctx.RequestURI())),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Duration("duration", duration))
	}
}

func (s *Server) dispatch(ctx *fasthttp.RequestCtx, logger *zap.Logger) string {
	path := string(ctx.Path())
	// Page slugs carry escaped titles that may contain "/" or "..", so they
	// are routed on the path as sent, before decoding and normalization.
	rawPath := string(ctx.Request.URI().PathOriginal())
	readOnly := ctx.IsGet() || ctx.IsHead()

	switch {
	case path == "/":
		if !readOnly {
			s.methodNotAllowed(ctx, "GET, HEAD")
			return RouteIndex
		}
		s.handleIndex(ctx, logger)
		return RouteIndex
	case path == "/sitemap.xml":
		if !readOnly {
			s.methodNotAllowed(ctx, "GET, HEAD")
			return RouteSitemap
		}
		s.handleSitemap(ctx, logger)
		return RouteSitemap
	case path == "/health":
		s.handleHealth(ctx)
		return RouteHealth
	case strings.HasPrefix(rawPath, PagesPrefix):
		if !readOnly {
			s.methodNotAllowed(ctx, "GET, HEAD")
			return RoutePage
		}
		s.handlePage(ctx, strings.TrimPrefix(rawPath, PagesPrefix), logger)
		return RoutePage
	case strings.HasPrefix(path, ToolsPrefix):
		s.handleTool(ctx, strings.TrimPrefix(path, ToolsPrefix), logger)
		return RouteTool
	default:
		s.writeNotFound(ctx)
		return RouteNotFound
	}
}

func (s *Server) handleIndex(ctx *fasthttp.RequestCtx, logger *zap.Logger) {
	entries, err := s.store.ListEntries()
	if err != nil {
		logger.Error("Failed to list pages", zap.Error(err))
		s.writeText(ctx, fasthttp.StatusInternalServerError, "render index failed: "+err.Error())
		return
	}
	s.writeHTML(ctx, fasthttp.StatusOK, RenderIndexHTML(entries, s.cfg.SiteName))
}

func (s *Server) handleSitemap(ctx *fasthttp.RequestCtx, logger *zap.Logger) {
	entries, err := s.store.ListEntries()
	if err != nil {
		logger.Error("Failed to list pages", zap.Error(err))
		s.writeText(ctx, fasthttp.StatusInternalServerError, "render sitemap failed: "+err.Error())
		return
	}

	pages := make([]SitemapPage, 0, len(entries))
	for _, entry := range entries {
		meta, err := s.store.GetMeta(entry.PageID)
		if err != nil {
			logger.Warn("Skipping page in sitemap",
				zap.String("page_id", entry.PageID),
				zap.Error(err))
			continue
		}
		pages = append(pages, SitemapPage{
			ID:        entry.PageID,
			Title:     meta.SEO.EffectiveTitle(),
			UpdatedAt: meta.UpdatedAt,
		})
	}

	base := RequestBaseURL(ctx, s.cfg.SiteURL)
	if base == "" {
		logger.Warn("No request host and site.url is empty, sitemap URLs will be relative")
	}
	body, err := RenderSitemapXML(base, pages)
	if err != nil {
		logger.Error("Failed to render sitemap", zap.Error(err))
		s.writeText(ctx, fasthttp.StatusInternalServerError, "render sitemap failed: "+err.Error())
		return
	}
	ctx.SetStatusCode(fasthttp.StatusOK)
	ctx.SetContentType("application/xml; charset=utf-8")
	ctx.SetBody(body)
}

func (s *Server) handlePage(ctx *fasthttp.RequestCtx, rawSlug string, logger *zap.Logger) {
	ref, ok := ParseIDFromEscapedSlug(rawSlug)
	if !ok {
		s.writeNotFound(ctx)
		return
	}
	id := s.resolvePageID(ref, logger)

	meta, body, err := s.store.Load(id)
	if err != nil {
		kind := store.ErrorKind(err)
		if kind == store.KindNotFound || kind == store.KindCorrupt {
			logger.Debug("Page not found", zap.String("page_id", id), zap.Error(err))
			s.writeNotFound(ctx)
			return
		}
		logger.Error("Failed to load page", zap.String("page_id", id), zap.Error(err))
		s.writeText(ctx, fasthttp.StatusInternalServerError, "load page failed")
		return
	}

	s.writeHTML(ctx, fasthttp.StatusOK, RenderPage(meta, body))
	if !ctx.IsGet() {
		return
	}

	if _, err := s.store.IncrementViewCount(id); err != nil {
		logger.Warn("Failed to increment view count",
			zap.String("page_id", id),
			zap.Error(err))
		return
	}
	s.metrics.RecordPageView()
}

func (s *Server) resolvePageID(ref string, logger *zap.Logger) string {
	id, err := ResolvePageID(s.store, ref)
	if err != nil {
		logger.Warn("Failed to resolve page uid", zap.String("page_uid", ref), zap.Error(err))
	}
	return id
}

func (s *Server) handleHealth(ctx *fasthttp.RequestCtx) {
	httputil.JSONData(ctx, map[string]any{
		"status":         "ok",
		"uptime_seconds": int64(time.Since(s.startTime).Seconds()),
	}, fasthttp.StatusOK)
}

func (s *Server) methodNotAllowed(ctx *fasthttp.RequestCtx, allow string) {
	ctx.Response.Header.Set("Allow", allow)
	s.writeText(ctx, fasthttp.StatusMethodNotAllowed, "Method not allowed")
}

func (s *Server) writeNotFound(ctx *fasthttp.RequestCtx) {
	s.writeHTML(ctx, fasthttp.StatusNotFound, RenderNotFoundHTML(s.cfg.SiteName))
}

func (s *Server) writeHTML(ctx *fasthttp.RequestCtx, statusCode int, body string) {
	ctx.SetStatusCode(statusCode)
	ctx.SetContentType("text/html; charset=utf-8")
	ctx.SetBodyString(body)
}

func (s *Server) writeText(ctx *fasthttp.RequestCtx, statusCode int, message string) {
	ctx.SetStatusCode(statusCode)
	ctx.SetContentType("text/plain; charset=utf-8")
	ctx.SetBodyString(message)
}
