// Package api provides HTTP handlers for the resolver API.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"media-resolver-go/pkg/appctx"
	"media-resolver-go/pkg/logging"
	"media-resolver-go/pkg/middleware"
	"media-resolver-go/pkg/types"
	"media-resolver-go/pkg/urlutil"
)

// maxRequestBody bounds the /extract body; cookie jars can be large.
const maxRequestBody = 1 << 20

// Handlers contains all API handlers.
type Handlers struct {
	ctx     *appctx.Context
	log     *logging.Logger
	limiter *middleware.RateLimiter
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(ctx *appctx.Context) *Handlers {
	return &Handlers{
		ctx:     ctx,
		log:     ctx.Log.WithComponent("api"),
		limiter: middleware.NewRateLimiter(ctx.Config.RateLimitPerMinute, ctx.Metrics, ctx.Log),
	}
}

// RegisterRoutes registers all API routes.
func (h *Handlers) RegisterRoutes(mux *http.ServeMux) {
	// Public routes
	mux.HandleFunc("GET /{$}", h.handleIndex)
	mux.HandleFunc("GET /health", h.handleHealth)

	mux.Handle("POST /extract", h.limiter.Middleware(http.HandlerFunc(h.handleExtract)))

	if h.ctx.Downloads != nil {
		mux.HandleFunc("GET /get_file/{filename}", h.handleGetFile)
	}
	if h.ctx.Metrics != nil {
		mux.Handle("GET /metrics", h.ctx.Metrics.Handler())
	}
}

func (h *Handlers) handleIndex(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "media-resolver",
	})
}

func (h *Handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"message": "Server is running",
	})
}

// handleExtract resolves the posted URL. Every failure is a 400 carrying
// a short message; causes are only logged.
func (h *Handlers) handleExtract(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req types.ResolutionRequest
	body := http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		log.Debug("invalid request body", "error", err)
		h.writeError(w, http.StatusBadRequest, types.ErrInvalidURL.Error())
		return
	}

	var (
		result *types.ResolvedMedia
		err    error
	)
	if h.ctx.Downloads != nil {
		result, err = h.ctx.Downloads.Fetch(r.Context(), req, h.baseURL(r))
	} else {
		result, err = h.ctx.Resolver.Resolve(r.Context(), req)
	}
	if err != nil {
		log.WithError(err).Info("extract failed", "url", req.SourceURL)
		h.writeError(w, http.StatusBadRequest, types.Detail(err))
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

// handleGetFile serves a downloaded file once and deletes it afterwards.
func (h *Handlers) handleGetFile(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("filename")

	f, err := h.ctx.Downloads.Open(name)
	if err != nil {
		h.log.Debug("file not served", "file", name, "error", err)
		h.writeError(w, http.StatusNotFound, types.ErrFileNotFound.Error())
		return
	}
	defer h.ctx.Downloads.Remove(name)
	defer f.Close()

	w.Header().Set("Content-Type", f.ContentType)
	w.Header().Set("Content-Disposition", "attachment; filename="+strconv.Quote(name))
	http.ServeContent(w, r, name, f.ModTime, f)
}

// baseURL returns the configured public URL, or the one the client used.
func (h *Handlers) baseURL(r *http.Request) string {
	if h.ctx.BaseURL != "" {
		return h.ctx.BaseURL
	}
	return urlutil.RequestBaseURL(r)
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *Handlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"detail": message})
}
