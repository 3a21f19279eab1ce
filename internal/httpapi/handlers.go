package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/godbolt/ce-router/internal/correlator"
	"github.com/godbolt/ce-router/internal/eventbus"
	"github.com/godbolt/ce-router/internal/routing"
	"github.com/godbolt/ce-router/internal/shaping"
)

var tracer = otel.Tracer("cerouter.internal.httpapi")

type handler struct {
	cfg *Config
}

func (h *handler) healthcheck(w http.ResponseWriter, r *http.Request) {
	websocketStatus := "disconnected"
	if h.cfg.BusState != nil && h.cfg.BusState.State() == eventbus.StateOpen {
		websocketStatus = "connected"
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"websocket": websocketStatus,
	})
}

func (h *handler) resetRouting(w http.ResponseWriter, r *http.Request) {
	h.cfg.Resolver.Reset()
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok"})
}

func (h *handler) compile(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "httpapi.compile")
	defer span.End()

	kind := chi.URLParam(r, "kind")
	isCMake, ok := parseKind(kind)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{"error": "unknown endpoint: " + kind})
		return
	}
	compilerID := chi.URLParam(r, "compilerId")
	environment := chi.URLParam(r, "env")

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "failed to read request body"})
		return
	}

	correlationID := uuid.NewString()
	span.SetAttributes(
		attribute.String("cerouter.guid", correlationID),
		attribute.String("cerouter.compiler_id", compilerID),
		attribute.Bool("cerouter.is_cmake", isCMake),
	)

	if err := h.cfg.Correlator.Subscribe(ctx, correlationID); err != nil {
		span.RecordError(err)
		h.cfg.Logger.Error("httpapi: subscribe failed", "error", err, "guid", correlationID)
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{"error": "failed to subscribe for results"})
		return
	}
	time.Sleep(h.cfg.SubscribeSettleWait)

	info := h.cfg.Resolver.Lookup(ctx, environment, compilerID)
	span.SetAttributes(attribute.String("cerouter.routing_type", string(info.Type)))

	switch info.Type {
	case routing.TypeURL:
		h.forwardToURL(ctx, w, r, info, compilerID, correlationID, body)
	default:
		h.submitToQueue(ctx, w, r, info, compilerID, isCMake, body, correlationID)
	}
}

func (h *handler) forwardToURL(ctx context.Context, w http.ResponseWriter, r *http.Request, info routing.Info, compilerID, correlationID string, body []byte) {
	if err := h.cfg.Correlator.Unsubscribe(ctx, correlationID); err != nil {
		h.cfg.Logger.Warn("httpapi: unsubscribe before forward failed", "error", err, "guid", correlationID)
	}

	resp, err := h.cfg.Forwarder.Forward(ctx, info.Target, r.URL.Path, http.MethodPost, r.Header, body)
	if err != nil {
		h.cfg.Logger.Error("httpapi: forward failed", "error", err, "compiler_id", compilerID, "target", info.Target)
		writeJSON(w, http.StatusBadGateway, map[string]interface{}{"error": "failed to reach compiler backend"})
		return
	}

	for k, v := range resp.Headers {
		w.Header().Set(k, v)
	}
	if len(resp.Body) > 1<<20 {
		h.cfg.Logger.Warn("httpapi: forwarded response body exceeds 1 MiB", "compiler_id", compilerID, "bytes", len(resp.Body))
	}
	w.Header().Set("Content-Length", strconv.Itoa(len(resp.Body)))
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(resp.Body)
}

func (h *handler) submitToQueue(ctx context.Context, w http.ResponseWriter, r *http.Request, info routing.Info, compilerID string, isCMake bool, body []byte, correlationID string) {
	headers := flattenHeaders(r.Header)
	query := flattenQuery(r.URL.Query())
	contentType := r.Header.Get("Content-Type")

	if err := h.cfg.Submitter.Submit(ctx, info.Target, correlationID, compilerID, isCMake, headers, query, body, contentType); err != nil {
		h.cfg.Logger.Error("httpapi: queue submission failed", "error", err, "guid", correlationID, "compiler_id", compilerID)
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{"error": "failed to submit compilation job"})
		return
	}

	result, err := h.cfg.Correlator.WaitForResult(ctx, correlationID, h.cfg.DefaultTimeout)
	if err != nil {
		if errors.Is(err, correlator.ErrTimeout) {
			writeJSON(w, http.StatusRequestTimeout, map[string]interface{}{
				"error": "Compilation timeout: No response received within " + strconv.Itoa(int(h.cfg.DefaultTimeout.Seconds())) + " seconds for GUID: " + correlationID,
			})
			return
		}
		h.cfg.Logger.Error("httpapi: wait for result failed", "error", err, "guid", correlationID)
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{"error": "failed to await compilation result"})
		return
	}

	responseBody, contentType2, err := shaping.Project(result, shaping.Options{
		PlainText:  strings.Contains(r.Header.Get("Accept"), "text/plain"),
		FilterAnsi: r.URL.Query().Get("filterAnsi") == "true",
	})
	if err != nil {
		h.cfg.Logger.Error("httpapi: shaping failed", "error", err, "guid", correlationID)
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{"error": "failed to render compilation result"})
		return
	}

	w.Header().Set("Content-Type", contentType2)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(responseBody)
}

func parseKind(kind string) (isCMake bool, ok bool) {
	switch kind {
	case "compile":
		return false, true
	case "cmake":
		return true, true
	default:
		return false, false
	}
}

func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = strings.Join(v, ", ")
	}
	return out
}

func flattenQuery(q map[string][]string) map[string]string {
	out := make(map[string]string, len(q))
	for k, v := range q {
		out[k] = strings.Join(v, ", ")
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, body map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
