package admission_control

import (
	"errors"
	"fmt"
	"github.com/aryangodara/admission_control/stats"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"net"
	"net/http"
	"strings"
	"time"
)

var (
	_ http.Handler = &httpRateLimiterHandler{}
	_ Extractor    = &httpHeaderExtractor{}
	_ Extractor    = &remoteAddrExtractor{}
)

const (
	rateLimitingState = "Rate-Limiting-State"
	requestIDHeader   = "X-Request-Id"
)

// Extractor extracts the user identifier from an HTTP request.
type Extractor interface {
	Extract(r *http.Request) (string, error)
}

type httpHeaderExtractor struct {
	headers []string
}

// Extract extracts values from HTTP headers to build the user.
func (h *httpHeaderExtractor) Extract(r *http.Request) (string, error) {
	values := make([]string, 0, len(h.headers))

	for _, key := range h.headers {
		// if we can't find a value for a header we should return an error
		if value := strings.TrimSpace(r.Header.Get(key)); value != "" {
			values = append(values, value)
		} else {
			return "", fmt.Errorf("header %v must have a value set", key)
		}
	}

	return strings.Join(values, "-"), nil
}

// NewHttpHeaderExtractor creates a new Extractor.
func NewHttpHeaderExtractor(headers ...string) Extractor {
	return &httpHeaderExtractor{headers: headers}
}

type remoteAddrExtractor struct{}

// Extract returns the host part of the client network address.
func (remoteAddrExtractor) Extract(r *http.Request) (string, error) {
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil && host != "" {
		return host, nil
	}
	if addr == "" {
		return "", errors.New("request has no remote address")
	}
	return addr, nil
}

// NewRemoteAddrExtractor creates an Extractor identifying users by their network address.
func NewRemoteAddrExtractor() Extractor {
	return remoteAddrExtractor{}
}

// WeightFunc computes the cost of a request, between MinWeight and MaxWeight.
type WeightFunc func(r *http.Request) int

// MethodWeight weighs read requests 1 and every other request 3.
func MethodWeight(r *http.Request) int {
	switch strings.ToUpper(r.Method) {
	case http.MethodGet, http.MethodHead:
		return 1
	default:
		return 3
	}
}

// RateLimiterConfig holds configuration for admission control.
type RateLimiterConfig struct {
	Extractor Extractor
	Weight    WeightFunc
	Limiter   *RateLimiter
	// Stats is optional, failures to record are logged and ignored.
	Stats  stats.Recorder
	Logger zerolog.Logger
}

type httpRateLimiterHandler struct {
	handler http.Handler
	config  *RateLimiterConfig
}

// NewHTTPRateLimiterHandler wraps an existing http.Handler and performs admission control before forwarding
// the request to the API. Missing Extractor and Weight default to the client address and MethodWeight.
func NewHTTPRateLimiterHandler(originalHandler http.Handler, config *RateLimiterConfig) http.Handler {
	cfg := *config
	if cfg.Extractor == nil {
		cfg.Extractor = NewRemoteAddrExtractor()
	}
	if cfg.Weight == nil {
		cfg.Weight = MethodWeight
	}

	return &httpRateLimiterHandler{
		handler: originalHandler,
		config:  &cfg,
	}
}

// ServeHTTP performs admission control and forwards the request if allowed.
func (h *httpRateLimiterHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get(requestIDHeader)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	w.Header().Set(requestIDHeader, requestID)

	log := h.config.Logger.With().Str("request_id", requestID).Logger()
	ev := stats.Event{
		RequestID: requestID,
		Method:    r.Method,
		Path:      r.URL.Path,
		At:        time.Now(),
	}

	user, err := h.config.Extractor.Extract(r)
	if err != nil {
		h.record(r, log, ev, stats.Invalid)
		h.writeResponse(w, http.StatusBadRequest, "failed to extract user from request: %v", err)
		return
	}

	ev.User = user
	ev.Weight = h.config.Weight(r)

	reject, err := h.config.Limiter.ShouldReject(r.Context(), ev.User, ev.Weight)
	if err != nil {
		if errors.Is(err, ErrInvalidUser) || errors.Is(err, ErrInvalidWeight) {
			h.record(r, log, ev, stats.Invalid)
			h.writeResponse(w, http.StatusBadRequest, "invalid request: %v", err)
			return
		}
		log.Error().Err(err).Str("user", ev.User).Int("weight", ev.Weight).Msg("admission control failed")
		h.writeResponse(w, http.StatusInternalServerError, "failed to run admission control for request: %v", err)
		return
	}

	// Too many requests
	if reject {
		w.Header().Set(rateLimitingState, Deny.String())
		h.record(r, log, ev, stats.Rejected)
		log.Debug().Str("user", ev.User).Int("weight", ev.Weight).Msg("request rejected, system overloaded")
		h.writeResponse(w, http.StatusTooManyRequests, "the service is overloaded, slow down please")
		return
	}

	w.Header().Set(rateLimitingState, Allow.String())
	h.record(r, log, ev, stats.Allowed)
	h.handler.ServeHTTP(w, r)
}

func (h *httpRateLimiterHandler) record(r *http.Request, log zerolog.Logger, ev stats.Event, outcome stats.Outcome) {
	if h.config.Stats == nil {
		return
	}
	ev.Outcome = outcome
	if err := h.config.Stats.Record(r.Context(), ev); err != nil {
		log.Warn().Err(err).Msg("failed to record admission decision")
	}
}

func (h *httpRateLimiterHandler) writeResponse(w http.ResponseWriter, status int, msg string, args ...interface{}) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(status)
	if _, err := w.Write([]byte(fmt.Sprintf(msg, args...))); err != nil {
		h.config.Logger.Warn().Err(err).Msg("failed to write body to HTTP request")
	}
}
