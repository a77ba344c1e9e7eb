package billing

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/dmitrymomot/psikit/internal/metrics"
	"github.com/dmitrymomot/psikit/pkg/logger"
)

const webhookBodyLimit = 1024 * 1024 // 1 MiB

type webhookErrorResponse struct {
	Error string `json:"error"`
}

type webhookReceivedResponse struct {
	Received bool `json:"received"`
}

// WebhookHandler is the HTTP endpoint Stripe delivers events to.
type WebhookHandler struct {
	processor *Processor
	log       *slog.Logger
}

func NewWebhookHandler(processor *Processor, log *slog.Logger) *WebhookHandler {
	if log == nil {
		log = slog.Default()
	}
	return &WebhookHandler{processor: processor, log: log}
}

// ServeHTTP verifies the Stripe signature and applies the event.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	eventType := "unknown"
	status := http.StatusOK
	defer func() {
		metrics.WebhookRequestsTotal.WithLabelValues(eventType, strconv.Itoa(status)).Inc()
		metrics.WebhookDuration.WithLabelValues(eventType).Observe(time.Since(start).Seconds())
	}()

	if r.Method != http.MethodPost {
		status = http.StatusMethodNotAllowed
		writeJSON(w, h.log, status, webhookErrorResponse{Error: "method not allowed"})
		return
	}
	if !h.processor.Configured() {
		status = http.StatusServiceUnavailable
		writeJSON(w, h.log, status, webhookErrorResponse{Error: "webhook secret not configured"})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, webhookBodyLimit)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		status = http.StatusBadRequest
		writeJSON(w, h.log, status, webhookErrorResponse{Error: "failed to read request body"})
		return
	}

	event, err := h.processor.Verify(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		status = http.StatusBadRequest
		msg := "invalid Stripe signature"
		if errors.Is(err, ErrMissingSignature) {
			msg = "missing Stripe signature"
		}
		h.log.WarnContext(r.Context(), "stripe webhook rejected", logger.Error(err))
		writeJSON(w, h.log, status, webhookErrorResponse{Error: msg})
		return
	}
	eventType = string(event.Type)

	res, err := h.processor.Process(r.Context(), event)
	if err != nil {
		h.log.ErrorContext(r.Context(), "stripe webhook processing failed",
			logger.EventID(event.ID),
			logger.EventType(eventType),
			logger.Error(err))
		status = http.StatusInternalServerError
		writeJSON(w, h.log, status, webhookErrorResponse{Error: "processing failed"})
		return
	}
	h.log.DebugContext(r.Context(), "stripe webhook processed",
		logger.EventID(event.ID),
		logger.EventType(eventType),
		slog.Bool("skipped", res.Skipped),
		slog.String("notification", res.Notification.String()))

	writeJSON(w, h.log, status, webhookReceivedResponse{Received: true})
}

func writeJSON[T any](w http.ResponseWriter, log *slog.Logger, status int, v T) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("encode webhook response", slog.Int("status", status), logger.Error(err))
	}
}
