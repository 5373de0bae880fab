package web

import (
	"errors"
	"fmt"
	"strings"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/edgecomet/pagestore/internal/common/httputil"
	"github.com/edgecomet/pagestore/internal/store"
)

// ToolsPrefix is the path prefix of the JSON tool API
const ToolsPrefix = "/api/tools/"

// Tool names, addressed as ToolsPrefix + name
const (
	ToolPushPage    = "push_page"
	ToolGetAllPage  = "get_all_page"
	ToolGetPageByID = "get_page_by_id"
	ToolUpdatePage  = "update_page"
	ToolDeletePage  = "delete_page"
)

// KindBadRequest marks requests rejected before reaching the store
const KindBadRequest = "bad_request"

var (
	errMissingPageID = errors.New("page_id is required")
	errMissingIDs    = errors.New("page_id or ids is required")
)

// toolHandler returns the HTTP status and the response document
type toolHandler func(ctx *fasthttp.RequestCtx, logger *zap.Logger) (int, any)

// ToolStatus is embedded in every tool response
type ToolStatus struct {
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
	ErrorKind string `json:"error_kind,omitempty"`
}

// SeoResponse is the SEO part of PageMetaResponse
type SeoResponse struct {
	SeoTitle    string   `json:"seo_title"`
	Description string   `json:"description"`
	Keywords    []string `json:"keywords"`
}

// PageMetaResponse is the metadata exposed to tool callers
type PageMetaResponse struct {
	SEO       SeoResponse `json:"seo"`
	PageUID   string      `json:"page_uid"`
	CreatedAt int64       `json:"created_at"`
	UpdatedAt int64       `json:"updated_at"`
	ViewCount uint64      `json:"view_count"`
}

func newPageMetaResponse(meta store.PageMeta) *PageMetaResponse {
	return &PageMetaResponse{
		SEO: SeoResponse{
			SeoTitle:    meta.SEO.EffectiveTitle(),
			Description: meta.SEO.Description,
			Keywords:    meta.SEO.Keywords,
		},
		PageUID:   meta.PageUID,
		CreatedAt: meta.CreatedAt,
		UpdatedAt: meta.UpdatedAt,
		ViewCount: meta.ViewCount,
	}
}

type PushPageRequest struct {
	SeoTitle    string   `json:"seo_title"`
	Description string   `json:"description"`
	Keywords    []string `json:"keywords,omitempty"`
	HTML        string   `json:"html"`
}

type PushPageResponse struct {
	ToolStatus
	PageID string            `json:"page_id,omitempty"`
	URL    string            `json:"url,omitempty"`
	Meta   *PageMetaResponse `json:"meta,omitempty"`
}

type PageWithMeta struct {
	PageID string            `json:"page_id"`
	URL    string            `json:"url"`
	Meta   *PageMetaResponse `json:"meta"`
}

type GetAllPageResponse struct {
	ToolStatus
	Pages []PageWithMeta `json:"pages"`
}

// GetPageByIDRequest names pages by uid, through page_id, ids or both
type GetPageByIDRequest struct {
	PageID string   `json:"page_id,omitempty"`
	IDs    []string `json:"ids,omitempty"`
}

// pageUIDs returns the requested uids in order, skipping blank ones
func (r GetPageByIDRequest) pageUIDs() []string {
	uids := make([]string, 0, len(r.IDs)+1)
	for _, uid := range append([]string{r.PageID}, r.IDs...) {
		if strings.TrimSpace(uid) != "" {
			uids = append(uids, uid)
		}
	}
	return uids
}

type PageDetail struct {
	PageID string            `json:"page_id"`
	URL    string            `json:"url"`
	Meta   *PageMetaResponse `json:"meta"`
	HTML   string            `json:"html"`
}

// GetPageByIDResponse carries every page that loaded. Success is false when
// any requested uid failed; Error then joins the per-uid failures.
type GetPageByIDResponse struct {
	ToolStatus
	Page  *PageDetail  `json:"page,omitempty"`
	Pages []PageDetail `json:"pages"`
}

// UpdatePageRequest changes only the fields that are present
type UpdatePageRequest struct {
	PageID      string    `json:"page_id"`
	SeoTitle    *string   `json:"seo_title,omitempty"`
	Description *string   `json:"description,omitempty"`
	Keywords    *[]string `json:"keywords,omitempty"`
	HTML        *string   `json:"html,omitempty"`
}

type UpdatePageResponse struct {
	ToolStatus
	URL  string            `json:"url,omitempty"`
	Meta *PageMetaResponse `json:"meta,omitempty"`
}

type DeletePageRequest struct {
	PageID string `json:"page_id"`
}

type DeletePageResponse struct {
	ToolStatus
}

func (s *Server) registerTools() map[string]toolHandler {
	return map[string]toolHandler{
		ToolPushPage:    s.pushPage,
		ToolGetAllPage:  s.getAllPage,
		ToolGetPageByID: s.getPageByID,
		ToolUpdatePage:  s.updatePage,
		ToolDeletePage:  s.deletePage,
	}
}

func (s *Server) handleTool(ctx *fasthttp.RequestCtx, name string, logger *zap.Logger) {
	handler, ok := s.tools[name]
	if !ok {
		httputil.JSONErrorKind(ctx, store.KindNotFound, "unknown tool: "+name, fasthttp.StatusNotFound)
		return
	}
	if !ctx.IsPost() && !(name == ToolGetAllPage && ctx.IsGet()) {
		ctx.Response.Header.Set("Allow", fasthttp.MethodPost)
		httputil.JSONErrorKind(ctx, KindBadRequest, "method not allowed", fasthttp.StatusMethodNotAllowed)
		return
	}

	logger = logger.With(zap.String("tool", name))
	status, resp := handler(ctx, logger)
	httputil.WriteJSON(ctx, status, resp)
}

// failure converts err into a tool status and an HTTP status code
func failure(err error) (int, ToolStatus) {
	kind := store.ErrorKind(err)
	if errors.Is(err, errMissingPageID) {
		kind = KindBadRequest
	}
	status := fasthttp.StatusInternalServerError
	switch kind {
	case store.KindValidation, KindBadRequest:
		status = fasthttp.StatusBadRequest
	case store.KindNotFound:
		status = fasthttp.StatusNotFound
	case store.KindAlreadyExists:
		status = fasthttp.StatusConflict
	case store.KindUIDExhausted:
		status = fasthttp.StatusServiceUnavailable
	}
	return status, ToolStatus{Success: false, Error: err.Error(), ErrorKind: kind}
}

func badRequest(err error) (int, ToolStatus) {
	return fasthttp.StatusBadRequest, ToolStatus{Success: false, Error: err.Error(), ErrorKind: KindBadRequest}
}

// lookupUID resolves a caller-facing page uid to its storage id
func (s *Server) lookupUID(uid string) (string, error) {
	if uid == "" {
		return "", errMissingPageID
	}
	id, found, err := s.store.ResolveIDByUID(uid)
	if err != nil {
		return "", err
	}
	if !found {
		return "", store.ErrNotFound
	}
	return id, nil
}

// toolURL builds the absolute page URL returned to tool callers. site.url
// wins over the request host.
func (s *Server) toolURL(ctx *fasthttp.RequestCtx, meta store.PageMeta) string {
	base := s.cfg.SiteURL
	if base == "" {
		base = RequestBaseURL(ctx, "")
	}
	return FullURL(base, meta.PageUID, meta.SEO.EffectiveTitle())
}

func (s *Server) pushPage(ctx *fasthttp.RequestCtx, logger *zap.Logger) (int, any) {
	var req PushPageRequest
	if err := httputil.DecodeJSON(ctx.Request.Body(), &req); err != nil {
		status, st := badRequest(err)
		return status, PushPageResponse{ToolStatus: st}
	}

	meta := store.PageMeta{SEO: store.SeoMeta{
		SeoTitle:    req.SeoTitle,
		Description: req.Description,
		Keywords:    req.Keywords,
	}}
	id, saved, err := s.store.CreateAutoID(meta, req.HTML)
	if err != nil {
		logger.Warn("Push page failed", zap.Error(err))
		status, st := failure(err)
		return status, PushPageResponse{ToolStatus: st}
	}

	logger.Info("Page pushed",
		zap.String("page_id", id),
		zap.String("page_uid", saved.PageUID))
	return fasthttp.StatusOK, PushPageResponse{
		ToolStatus: ToolStatus{Success: true},
		PageID:     saved.PageUID,
		URL:        s.toolURL(ctx, saved),
		Meta:       newPageMetaResponse(saved),
	}
}

func (s *Server) getAllPage(ctx *fasthttp.RequestCtx, logger *zap.Logger) (int, any) {
	entries, err := s.store.ListEntries()
	if err != nil {
		logger.Error("List pages failed", zap.Error(err))
		status, st := failure(err)
		return status, GetAllPageResponse{ToolStatus: st, Pages: []PageWithMeta{}}
	}

	pages := make([]PageWithMeta, 0, len(entries))
	for _, entry := range entries {
		meta, err := s.store.GetMeta(entry.PageID)
		if err != nil {
			logger.Warn("Skipping unreadable page",
				zap.String("page_id", entry.PageID),
				zap.Error(err))
			continue
		}
		pages = append(pages, PageWithMeta{
			PageID: meta.PageUID,
			URL:    s.toolURL(ctx, meta),
			Meta:   newPageMetaResponse(meta),
		})
	}
	return fasthttp.StatusOK, GetAllPageResponse{ToolStatus: ToolStatus{Success: true}, Pages: pages}
}

func (s *Server) getPageByID(ctx *fasthttp.RequestCtx, logger *zap.Logger) (int, any) {
	var req GetPageByIDRequest
	if err := httputil.DecodeJSON(ctx.Request.Body(), &req); err != nil {
		status, st := badRequest(err)
		return status, GetPageByIDResponse{ToolStatus: st, Pages: []PageDetail{}}
	}
	uids := req.pageUIDs()
	if len(uids) == 0 {
		status, st := badRequest(errMissingIDs)
		return status, GetPageByIDResponse{ToolStatus: st, Pages: []PageDetail{}}
	}

	pages := make([]PageDetail, 0, len(uids))
	var firstErr error
	var messages []string
	for _, uid := range uids {
		detail, err := s.loadPageDetail(ctx, uid)
		if err != nil {
			logger.Debug("Get page failed", zap.String("page_uid", uid), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
			messages = append(messages, fmt.Sprintf("%s: %s", uid, err))
			continue
		}
		pages = append(pages, detail)
	}

	resp := GetPageByIDResponse{ToolStatus: ToolStatus{Success: firstErr == nil}, Pages: pages}
	if len(pages) > 0 {
		resp.Page = &pages[0]
	}
	if firstErr == nil {
		return fasthttp.StatusOK, resp
	}

	status, st := failure(firstErr)
	st.Error = strings.Join(messages, "; ")
	resp.ToolStatus = st
	if len(pages) > 0 {
		status = fasthttp.StatusOK
	}
	return status, resp
}

func (s *Server) loadPageDetail(ctx *fasthttp.RequestCtx, uid string) (PageDetail, error) {
	id, err := s.lookupUID(uid)
	if err != nil {
		return PageDetail{}, err
	}
	meta, body, err := s.store.Load(id)
	if err != nil {
		return PageDetail{}, err
	}
	return PageDetail{
		PageID: meta.PageUID,
		URL:    s.toolURL(ctx, meta),
		Meta:   newPageMetaResponse(meta),
		HTML:   body,
	}, nil
}

func (s *Server) updatePage(ctx *fasthttp.RequestCtx, logger *zap.Logger) (int, any) {
	var req UpdatePageRequest
	if err := httputil.DecodeJSON(ctx.Request.Body(), &req); err != nil {
		status, st := badRequest(err)
		return status, UpdatePageResponse{ToolStatus: st}
	}

	saved, err := s.applyUpdate(req)
	if err != nil {
		logger.Warn("Update page failed", zap.String("page_uid", req.PageID), zap.Error(err))
		status, st := failure(err)
		return status, UpdatePageResponse{ToolStatus: st}
	}

	logger.Info("Page updated", zap.String("page_uid", saved.PageUID))
	return fasthttp.StatusOK, UpdatePageResponse{
		ToolStatus: ToolStatus{Success: true},
		URL:        s.toolURL(ctx, saved),
		Meta:       newPageMetaResponse(saved),
	}
}

func (s *Server) applyUpdate(req UpdatePageRequest) (store.PageMeta, error) {
	id, err := s.lookupUID(req.PageID)
	if err != nil {
		return store.PageMeta{}, err
	}
	return s.store.Patch(id, store.PagePatch{
		SeoTitle:    req.SeoTitle,
		Description: req.Description,
		Keywords:    req.Keywords,
		HTML:        req.HTML,
	})
}

func (s *Server) deletePage(ctx *fasthttp.RequestCtx, logger *zap.Logger) (int, any) {
	var req DeletePageRequest
	if err := httputil.DecodeJSON(ctx.Request.Body(), &req); err != nil {
		status, st := badRequest(err)
		return status, DeletePageResponse{ToolStatus: st}
	}

	id, err := s.lookupUID(req.PageID)
	if err == nil {
		err = s.store.Delete(id)
	}
	if err != nil {
		logger.Warn("Delete page failed", zap.String("page_uid", req.PageID), zap.Error(err))
		status, st := failure(err)
		return status, DeletePageResponse{ToolStatus: st}
	}

	logger.Info("Page deleted", zap.String("page_uid", req.PageID), zap.String("page_id", id))
	return fasthttp.StatusOK, DeletePageResponse{ToolStatus: ToolStatus{Success: true}}
}
