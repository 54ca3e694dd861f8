// Package handler exposes the guide over HTTP. The same router serves a
// plain HTTP listener and API Gateway proxy events on Lambda.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/schema"

	"heritage-guide/internal/catalog"
	"heritage-guide/internal/domain"
	"heritage-guide/internal/usecase"
)

const defaultMaxBodyBytes = 10 << 20

// ChatReplier answers questions about a catalog object.
type ChatReplier interface {
	Reply(ctx context.Context, in usecase.ChatInput) usecase.ChatOutput
}

// Classifier identifies the catalog object in an image.
type Classifier interface {
	Classify(ctx context.Context, in usecase.ScanInput) usecase.ScanOutput
}

type Handler struct {
	chat    ChatReplier
	scan    Classifier
	catalog *catalog.Catalog
	logger  *slog.Logger
	origins []string
	maxBody int64
	router  http.Handler
}

type Option func(*Handler)

func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithAllowedOrigins sets the CORS origins. Empty keeps "*".
func WithAllowedOrigins(origins []string) Option {
	return func(h *Handler) {
		if len(origins) > 0 {
			h.origins = origins
		}
	}
}

func WithMaxBodyBytes(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxBody = n
		}
	}
}

func NewHandler(chat ChatReplier, scan Classifier, cat *catalog.Catalog, opts ...Option) (*Handler, error) {
	if chat == nil {
		return nil, errors.New("handler: chat service must not be nil")
	}
	if scan == nil {
		return nil, errors.New("handler: scan service must not be nil")
	}
	if cat == nil {
		return nil, errors.New("handler: catalog must not be nil")
	}
	h := &Handler{
		chat:    chat,
		scan:    scan,
		catalog: cat,
		logger:  slog.Default(),
		origins: []string{"*"},
		maxBody: defaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(h)
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(h.correlationID)
	r.Use(h.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: h.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", correlationHeader},
		ExposedHeaders: []string{correlationHeader},
		MaxAge:         300,
	}))
	r.Use(h.limitBody)
	h.AddRoutes(r)
	h.router = r

	return h, nil
}

func (h *Handler) AddRoutes(r chi.Router) {
	r.Get("/healthz", h.handleHealth)
	r.Post("/chat", h.handleChat)
	r.Post("/scan", h.handleScan)
	r.Get("/objects", h.handleListObjects)
	r.Get("/objects/{id}", h.handleGetObject)
	r.Get("/categories", h.handleCategories)
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

type objectData struct {
	Description     string `json:"description"`
	History         string `json:"history"`
	Philosophy      string `json:"philosophy"`
	CulturalMeaning string `json:"culturalMeaning"`
}

type chatRequest struct {
	Message    string            `json:"message"`
	ObjectName string            `json:"objectName"`
	ObjectData objectData        `json:"objectData"`
	Locale     string            `json:"locale"`
	History    []domain.ChatTurn `json:"history"`
}

type chatResponse struct {
	Reply string `json:"reply"`
	Mode  string `json:"mode"`
}

type scanRequest struct {
	Image    string `json:"image"`
	MIMEType string `json:"mimeType"`
	Locale   string `json:"locale"`
}

type scanResponse struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
	Mode       string  `json:"mode"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type objectsQuery struct {
	Category string `schema:"category"`
}

var queryDecoder = func() *schema.Decoder {
	d := schema.NewDecoder()
	d.IgnoreUnknownKeys(true)
	return d
}()

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	req, err := parseRequest[chatRequest](r)
	if err != nil {
		h.logger.WarnContext(r.Context(), "invalid chat request",
			"correlation_id", CorrelationID(r.Context()), "err", err)
		h.writeJSON(w, http.StatusBadRequest, chatResponse{Reply: "Invalid request.", Mode: domain.ChatModeError})
		return
	}

	out := h.chat.Reply(r.Context(), usecase.ChatInput{
		Message:    req.Message,
		ObjectName: req.ObjectName,
		Object: usecase.ObjectFacts{
			Description:     req.ObjectData.Description,
			History:         req.ObjectData.History,
			Philosophy:      req.ObjectData.Philosophy,
			CulturalMeaning: req.ObjectData.CulturalMeaning,
		},
		Locale:  domain.ParseLocale(req.Locale),
		History: req.History,
	})
	h.writeJSON(w, http.StatusOK, chatResponse{Reply: out.Reply, Mode: out.Mode})
}

func (h *Handler) handleScan(w http.ResponseWriter, r *http.Request) {
	req, err := parseRequest[scanRequest](r)
	if err != nil {
		h.logger.WarnContext(r.Context(), "invalid scan request",
			"correlation_id", CorrelationID(r.Context()), "err", err)
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid request"})
		return
	}

	out := h.scan.Classify(r.Context(), usecase.ScanInput{
		Image:    req.Image,
		MIMEType: req.MIMEType,
		Locale:   domain.ParseLocale(req.Locale),
	})
	h.writeJSON(w, http.StatusOK, scanResponse{
		ID:         out.ID,
		Name:       out.Name,
		Confidence: out.Confidence,
		Mode:       out.Mode,
	})
}

func (h *Handler) handleListObjects(w http.ResponseWriter, r *http.Request) {
	var q objectsQuery
	if err := queryDecoder.Decode(&q, r.URL.Query()); err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid request"})
		return
	}
	category := q.Category
	if category == "" {
		category = catalog.CategoryAll
	}
	objects := h.catalog.ByCategory(category)
	if objects == nil {
		objects = []catalog.Object{}
	}
	h.writeJSON(w, http.StatusOK, objects)
}

func (h *Handler) handleGetObject(w http.ResponseWriter, r *http.Request) {
	obj, ok := h.catalog.ByID(chi.URLParam(r, "id"))
	if !ok {
		h.writeJSON(w, http.StatusNotFound, errorResponse{Error: "object not found"})
		return
	}
	h.writeJSON(w, http.StatusOK, obj)
}

func (h *Handler) handleCategories(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, catalog.Categories())
}

// parseRequest decodes a JSON object body. Empty bodies, null and values of
// the wrong type are rejected.
func parseRequest[T any](r *http.Request) (T, error) {
	var data *T
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		var zero T
		return zero, err
	}
	if data == nil {
		var zero T
		return zero, errors.New("request body is null")
	}
	return *data, nil
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("error serializing response body", "err", err)
	}
}
