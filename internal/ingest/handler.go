package ingest

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
)

// Handler exposes the ingest endpoints the producers deliver to.
type Handler struct {
	pipeline      *Pipeline
	storeID       string
	paymentSecret string
	logger        *slog.Logger
}

func NewHandler(pipeline *Pipeline, storeID, paymentSecret string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{pipeline: pipeline, storeID: storeID, paymentSecret: paymentSecret, logger: logger}
}

// Routes mounts the webhook and ingest endpoints.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/webhooks/payment", h.handlePayment)
	r.Post("/webhooks/accounting", h.handleAccounting)
	r.Post("/webhooks/shipment", h.handleShipment)
	r.Post("/ingest/email", h.handleEmail)
	r.Post("/ingest/scrape", h.handleScrape)
	return r
}

const maxBodyBytes = 1 << 20

func (h *Handler) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return nil, false
	}
	return body, true
}

func (h *Handler) respond(w http.ResponseWriter, res Result, err error) {
	if err != nil {
		h.logger.Error("ingest failed", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(res)
}

func (h *Handler) handlePayment(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}
	if !verifySignature(r.Header.Get("Webhook-Signature"), body, h.paymentSecret, time.Now()) {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}
	var ev PaymentEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	res, err := h.pipeline.ProcessPayment(r.Context(), h.storeID, ev)
	h.respond(w, res, err)
}

func (h *Handler) handleAccounting(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}
	var so AccountingSalesOrder
	if err := json.Unmarshal(body, &so); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	res, err := h.pipeline.ProcessAccounting(r.Context(), h.storeID, so, "")
	h.respond(w, res, err)
}

func (h *Handler) handleShipment(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}
	res, err := h.pipeline.ProcessShipment(r.Context(), h.storeID, body)
	h.respond(w, res, err)
}

func (h *Handler) handleEmail(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}
	var msg InboundEmail
	if err := json.Unmarshal(body, &msg); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	res, err := h.pipeline.ProcessEmail(r.Context(), h.storeID, msg)
	h.respond(w, res, err)
}

func (h *Handler) handleScrape(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}
	var sr ScrapeResult
	if err := json.Unmarshal(body, &sr); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	res, err := h.pipeline.ProcessScrape(r.Context(), h.storeID, sr)
	h.respond(w, res, err)
}

const signatureTolerance = 5 * time.Minute

// verifySignature checks a "t=<unix>,v1=<hex hmac>" header over
// "<t>.<body>" with the shared secret, rejecting stale timestamps.
func verifySignature(header string, body []byte, secret string, now time.Time) bool {
	if secret == "" || header == "" {
		return false
	}
	var ts string
	var sig string
	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch key {
		case "t":
			ts = value
		case "v1":
			sig = value
		}
	}
	if ts == "" || sig == "" {
		return false
	}
	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return false
	}
	if delta := now.Sub(time.Unix(unix, 0)); delta > signatureTolerance || delta < -signatureTolerance {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(sig))
}
