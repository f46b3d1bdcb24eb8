// Package server exposes the calculation engine over a JSON HTTP API.
package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/City-of-Helsinki/hitas-sub002/internal/calcerr"
	"github.com/City-of-Helsinki/hitas-sub002/internal/indices"
	"github.com/City-of-Helsinki/hitas-sub002/internal/maxprice"
	"github.com/City-of-Helsinki/hitas-sub002/internal/ownership"
	"github.com/City-of-Helsinki/hitas-sub002/internal/regulation"
	"github.com/City-of-Helsinki/hitas-sub002/internal/salesdata"
	"github.com/City-of-Helsinki/hitas-sub002/internal/store"
	"github.com/City-of-Helsinki/hitas-sub002/pkg/constants"
	"github.com/City-of-Helsinki/hitas-sub002/pkg/interest"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Store is the persistence the API reads and writes directly.
type Store interface {
	Ping(ctx context.Context) error
	LoadIndexTable(ctx context.Context) (*indices.Table, error)
	SaveIndices(ctx context.Context, entries []indices.Entry) error
	SaveCalculation(ctx context.Context, calculation maxprice.Calculation) error
	LoadCalculation(ctx context.Context, id string) (maxprice.Calculation, error)
	SaveExternalSalesData(ctx context.Context, data salesdata.ExternalSalesData) error
	DeleteOwnership(ctx context.Context, id string, now time.Time) ([]ownership.ConditionOfSale, error)
	RestoreOwnership(ctx context.Context, id string, now time.Time) ([]ownership.ConditionOfSale, error)
	RegisterSale(ctx context.Context, apartmentID string, sale salesdata.Sale, ownerships []ownership.Ownership) (store.RegisteredSale, error)
}

// Engine runs and queries the thirty-year regulation.
type Engine interface {
	Run(ctx context.Context, calculationDate civil.Date) (regulation.Report, error)
	Results(ctx context.Context, calculationMonth civil.Date) (*regulation.Results, error)
	MarkLetterFetched(ctx context.Context, calculationMonth civil.Date, housingCompanyID string) error
}

var (
	_ Store  = (*store.Store)(nil)
	_ Engine = (*regulation.Engine)(nil)
)

// Dependencies wires the handler to the engine components.
type Dependencies struct {
	Logger         *zap.Logger
	Store          Store
	Engine         Engine
	Interest       *interest.Calculator
	MaxPrice       *maxprice.Calculator
	Version        string
	MaxBodySize    int64
	AllowedOrigins []string
	// Now defaults to time.Now.
	Now            func() time.Time
}

type handler struct {
	logger      *zap.Logger
	store       Store
	engine      Engine
	interest    *interest.Calculator
	maxPrice    *maxprice.Calculator
	version     string
	maxBodySize int64
	now         func() time.Time
}

// NewHandler constructs the HTTP handler that serves the calculation API.
// If deps.Logger is nil, it will use a no-op logger to prevent panics.
func NewHandler(deps Dependencies) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	maxBodySize := deps.MaxBodySize
	if maxBodySize <= 0 {
		maxBodySize = constants.DefaultMaxBodySizeBytes
	}

	version := strings.TrimSpace(deps.Version)
	if version == "" {
		version = "dev"
	}

	now := deps.Now
	if now == nil {
		now = time.Now
	}

	interestCalculator := deps.Interest
	if interestCalculator == nil {
		interestCalculator = interest.NewCalculator(logger, constants.DefaultMarketPriceInterestRate, constants.DefaultConstructionPriceInterestRate)
	}
	maxPriceCalculator := deps.MaxPrice
	if maxPriceCalculator == nil {
		maxPriceCalculator = maxprice.NewCalculator(logger, interestCalculator)
	}

	h := &handler{
		logger:      logger,
		store:       deps.Store,
		engine:      deps.Engine,
		interest:    interestCalculator,
		maxPrice:    maxPriceCalculator,
		version:     version,
		maxBodySize: maxBodySize,
		now:         now,
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP, LoggerMiddleware(logger), middleware.Recoverer)
	if len(deps.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: deps.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Trace-ID"},
			ExposedHeaders: []string{"X-Trace-ID"},
			MaxAge:         300,
		}))
	}

	r.Get("/api/version", h.handleVersion)
	r.Get("/api/health", h.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/indices", h.handleSaveIndices)

		r.Route("/calculations", func(r chi.Router) {
			r.Post("/construction-interest", h.handleConstructionInterest)
			r.Post("/improvements", h.handleImprovements)
			r.Post("/max-price", h.handleMaxPrice)
			r.Get("/max-price/{id}", h.handleGetMaxPrice)
		})

		r.Route("/regulation/thirty-year", func(r chi.Router) {
			r.Post("/", h.handleRegulationRun)
			r.Get("/{month}", h.handleRegulationResults)
			r.Post("/{month}/letters/{companyID}", h.handleLetterFetched)
		})

		r.Post("/sales-data/external", h.handleExternalSalesData)

		r.Post("/apartments/{id}/sales", h.handleRegisterSale)
		r.Post("/ownerships/{id}/delete", h.handleDeleteOwnership)
		r.Post("/ownerships/{id}/restore", h.handleRestoreOwnership)
	})

	return r
}

// LoggerMiddleware tags each request with a trace id and logs its outcome.
func LoggerMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			traceID := r.Header.Get(traceHeader)
			if _, err := uuid.Parse(traceID); err != nil {
				traceID = uuid.New().String()
			}
			w.Header().Set(traceHeader, traceID)

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			logger.Info("request finished",
				zap.String("op", "server.LoggerMiddleware"),
				zap.String("trace_id", traceID),
				zap.String("http_method", r.Method),
				zap.String("http_path", r.URL.Path),
				zap.Int("status_code", ww.Status()),
				zap.Int("bytes_written", ww.BytesWritten()),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

const traceHeader = "X-Trace-ID"

type errorResponse struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

func (h *handler) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)
	return io.ReadAll(r.Body)
}

// decodeJSON reads a size-limited request body into dst.
func (h *handler) decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	body, err := h.readBody(w, r)
	if err != nil {
		return err
	}
	return unmarshalBody(body, dst)
}

func unmarshalBody(body []byte, dst interface{}) error {
	if err := json.Unmarshal(body, dst); err != nil {
		return calcerr.Validation("body", "invalid JSON: %v", err)
	}
	return nil
}

func errorStatus(err error) int {
	var maxBytesErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytesErr):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, calcerr.ErrValidation):
		return http.StatusBadRequest
	case calcerr.IsConflict(err):
		return http.StatusConflict
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (h *handler) fail(w http.ResponseWriter, op string, err error) {
	status := errorStatus(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("op", op),
			zap.Error(err),
		)
		message = http.StatusText(status)
	} else {
		h.logger.Warn("request rejected",
			zap.String("op", op),
			zap.Int("status", status),
			zap.Error(err),
		)
	}
	h.respondError(w, status, message)
}

func (h *handler) respondError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, errorResponse{Status: status, Message: message})
}

func (h *handler) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("failed to encode response",
			zap.String("op", "server.writeJSON"),
			zap.Error(err),
		)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		h.logger.Warn("failed to write response",
			zap.String("op", "server.writeJSON"),
			zap.Error(err),
		)
	}
}

func (h *handler) handleVersion(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"version": h.version})
}

func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		h.logger.Error("database unreachable",
			zap.String("op", "server.handleHealth"),
			zap.Error(err),
		)
		h.respondError(w, http.StatusServiceUnavailable, "database unreachable")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) today() civil.Date {
	return civil.DateOf(h.now())
}
