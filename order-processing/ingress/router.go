package ingress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"go-fulfillment-saga/order-processing/logging"
	"go-fulfillment-saga/order-processing/metrics"
	"go-fulfillment-saga/order-processing/orders"
	"go-fulfillment-saga/order-processing/types"
)

// CorrelationHeader carries the correlation id in and out of the API
const CorrelationHeader = "X-Correlation-ID"

const maxBodyBytes = 1 << 20

// OrderService is what the API needs from the order service
type OrderService interface {
	Create(ctx context.Context, req orders.CreateOrderRequest) (*orders.CreateOrderResponse, error)
	Get(ctx context.Context, orderID string) (*types.Order, error)
}

// RecordService is what the API needs from the purchase record service
type RecordService interface {
	Advance(ctx context.Context, recordID string, next types.PurchaseRecordStatus) (*types.PurchaseRecord, error)
	Reprocess(ctx context.Context, recordID string) (*types.PurchaseRecord, error)
}

// InstrumentCreator stores payment instruments
type InstrumentCreator interface {
	Create(ctx context.Context, instrument *types.Instrument) error
}

type Deps struct {
	Events      *EventHandler
	Orders      OrderService
	Records     RecordService
	Instruments InstrumentCreator
	Metrics     *metrics.Registry
	Logger      *zap.Logger
}

// Server is the worker's HTTP surface: provider webhooks, operator
// endpoints, health and metrics
type Server struct {
	events      *EventHandler
	orders      OrderService
	records     RecordService
	instruments InstrumentCreator
	metrics     *metrics.Registry
	logger      *zap.Logger
}

func NewServer(deps Deps) *Server {
	s := &Server{
		events:      deps.Events,
		orders:      deps.Orders,
		records:     deps.Records,
		instruments: deps.Instruments,
		metrics:     deps.Metrics,
		logger:      deps.Logger,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.metrics == nil {
		s.metrics = metrics.NewRegistry()
	}
	return s
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(correlate)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", s.metrics.Handler())

	r.Post("/webhooks/{provider}", s.handleWebhook)

	r.Route("/orders", func(r chi.Router) {
		r.Post("/", s.handleCreateOrder)
		r.Get("/{orderID}", s.handleGetOrder)
	})
	r.Route("/records/{recordID}", func(r chi.Router) {
		r.Post("/advance", s.handleAdvanceRecord)
		r.Post("/reprocess", s.handleReprocessRecord)
	})
	r.Post("/instruments", s.handleCreateInstrument)
	return r
}

// correlate reuses the caller's correlation id or starts a new one
func correlate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(CorrelationHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(CorrelationHeader, id)
		next.ServeHTTP(w, r.WithContext(logging.WithCorrelationID(r.Context(), id)))
	})
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		s.writeBodyError(w, r, err)
		return
	}
	outcome, err := s.events.Handle(r.Context(), provider, body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(outcome)})
}

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req orders.CreateOrderRequest
	if !s.decode(w, r, &req) {
		return
	}
	resp, err := s.orders.Create(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := s.orders.Get(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

type advanceRequest struct {
	Status types.PurchaseRecordStatus `json:"status"`
}

func (s *Server) handleAdvanceRecord(w http.ResponseWriter, r *http.Request) {
	var req advanceRequest
	if !s.decode(w, r, &req) {
		return
	}
	rec, err := s.records.Advance(r.Context(), chi.URLParam(r, "recordID"), req.Status)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleReprocessRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := s.records.Reprocess(r.Context(), chi.URLParam(r, "recordID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleCreateInstrument(w http.ResponseWriter, r *http.Request) {
	var ins types.Instrument
	if !s.decode(w, r, &ins) {
		return
	}
	if ins.UserID == "" {
		s.writeError(w, r, &types.ValidationError{Msg: "user_id is required"})
		return
	}
	for _, tok := range ins.Tokens {
		if tok.Token == "" || tok.Provider == "" {
			s.writeError(w, r, &types.ValidationError{Msg: "tokens need token and provider"})
			return
		}
	}
	if ins.InstrumentID == "" {
		ins.InstrumentID = types.NewID()
	}
	if err := s.instruments.Create(r.Context(), &ins); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ins)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		s.writeBodyError(w, r, err)
		return false
	}
	return true
}

// writeBodyError answers a request body that could not be read. A body
// over maxBodyBytes is a 413, never a parse error on the cut-off JSON.
func (s *Server) writeBodyError(w http.ResponseWriter, r *http.Request, err error) {
	var tooLarge *http.MaxBytesError
	if !errors.As(err, &tooLarge) {
		s.writeError(w, r, &types.ValidationError{Msg: "malformed request body: " + err.Error()})
		return
	}
	verr := &types.ValidationError{Msg: fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit)}
	logging.FromContext(r.Context(), s.logger).Info("request rejected",
		zap.String("path", r.URL.Path), zap.Error(verr))
	writeJSON(w, http.StatusRequestEntityTooLarge, map[string]any{"error_details": orders.ErrorResponse(verr, "")})
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	logger := logging.FromContext(r.Context(), s.logger)
	if code >= http.StatusInternalServerError {
		logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	} else {
		logger.Info("request rejected", zap.String("path", r.URL.Path), zap.Error(err))
	}
	writeJSON(w, code, map[string]any{"error_details": orders.ErrorResponse(err, "")})
}

func statusFor(err error) int {
	var (
		notFound *types.DataNotFoundError
		status   *types.UnexpectedStatusError
	)
	switch {
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &status):
		return http.StatusConflict
	}
	if _, ok := types.IsPermanent(err); ok {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
