package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"net/http"
	"sync/atomic"
	"time"

	"pricememory/internal/events"
	"pricememory/internal/log"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	health := map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.appMetrics.uptime).String(),
	}

	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(health)
}

// handleReady performs readiness check with dependency verification
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]interface{})
	fail := func(name, reason string) {
		checks[name] = "failed: " + reason
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	}

	if s.templates == nil {
		fail("templates", "templates not loaded")
	} else {
		checks["templates"] = "ok"
	}

	if err := s.purchases.Ready(ctx); err != nil {
		fail("store", err.Error())
	} else if n, err := s.purchases.Count(ctx); err != nil {
		fail("store", err.Error())
	} else {
		checks["store"] = map[string]interface{}{
			"status":    "ok",
			"purchases": n,
		}
	}

	checks["photo_cache"] = s.photos.Stats()
	checks["rate_limiter"] = map[string]interface{}{
		"active_clients": s.rateLimiter.ActiveClients(),
		"status":         "ok",
	}

	response := map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	}

	w.WriteHeader(httpStatus)
	_ = json.NewEncoder(w).Encode(response)
}

// handleMetrics provides application and security metrics in plain text format
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	securityMetrics := s.securityDetector.GetMetrics()
	rateLimitMetrics := s.rateLimiter.GetMetrics()
	traceMetrics := s.traceMiddleware.GetMetrics()
	photoStats := s.photos.Stats()

	created := atomic.LoadInt64(&s.appMetrics.purchasesCreated)
	deleted := atomic.LoadInt64(&s.appMetrics.purchasesDeleted)
	rejected := atomic.LoadInt64(&s.appMetrics.validationErrors)
	exports := atomic.LoadInt64(&s.appMetrics.exports)
	uptime := time.Since(s.appMetrics.uptime)

	stored := -1
	if n, err := s.purchases.Count(r.Context()); err == nil {
		stored = n
	}

	var b bytes.Buffer
	metric := func(name, kind, help string, value any) {
		fmt.Fprintf(&b, "# HELP %s %s\n", name, help)
		fmt.Fprintf(&b, "# TYPE %s %s\n", name, kind)
		fmt.Fprintf(&b, "%s %v\n\n", name, value)
	}

	metric("http_requests_total", "counter", "Total number of HTTP requests", traceMetrics.TotalRequests)
	metric("http_server_errors_total", "counter", "Responses with a 5xx status", traceMetrics.ServerErrors)
	metric("http_response_time_microseconds", "gauge", "Moving average response time", traceMetrics.AverageResponseTime)
	metric("purchases_stored", "gauge", "Purchases currently in the store", stored)
	metric("purchases_created_total", "counter", "Purchases recorded since start", created)
	metric("purchases_deleted_total", "counter", "Purchases deleted since start", deleted)
	metric("purchase_validation_errors_total", "counter", "Entry submissions rejected by validation", rejected)
	metric("exports_total", "counter", "Backups downloaded", exports)
	metric("photo_cache_hits_total", "counter", "Invoice photo cache hits", photoStats.Hits)
	metric("photo_cache_misses_total", "counter", "Invoice photo cache misses", photoStats.Misses)
	metric("photo_cache_entries", "gauge", "Invoice photos currently cached", photoStats.Size)
	metric("event_stream_subscribers", "gauge", "Open live update streams", s.purchases.Broker().Subscribers())
	metric("rate_limit_hits_total", "counter", "Total rate limit hits", rateLimitMetrics.Rejected)
	metric("active_rate_limit_clients", "gauge", "Currently tracked rate limit clients", rateLimitMetrics.ClientCount)
	metric("suspicious_requests_total", "counter", "Total suspicious requests detected", securityMetrics.SuspiciousRequests)
	metric("uptime_seconds", "gauge", "Application uptime in seconds", fmt.Sprintf("%.0f", uptime.Seconds()))

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b.Bytes())
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	now := s.now()
	all := s.purchases.List(r.Context())
	query := ParseSearchQuery(r.URL.Query())

	data := indexView{
		List:     s.buildListView(all, query, now),
		Total:    len(all),
		Currency: s.currency,
	}
	s.render(w, r, http.StatusOK, "index.html", data)
}

// handleList renders the grouped list partial used by live search and
// refreshes after a mutation.
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	now := s.now()
	all := s.purchases.List(r.Context())
	query := ParseSearchQuery(r.URL.Query())

	w.Header().Set("Cache-Control", "no-store")
	s.render(w, r, http.StatusOK, "list", s.buildListView(all, query, now))
}

func (s *Server) handleManifest(w http.ResponseWriter, r *http.Request) {
	s.serveAsset(w, r, "manifest.webmanifest", "application/manifest+json", "public, max-age=3600")
}

// handleServiceWorker serves sw.js from the root so its scope covers the
// whole app.
func (s *Server) handleServiceWorker(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Service-Worker-Allowed", "/")
	s.serveAsset(w, r, "sw.js", "application/javascript; charset=utf-8", "no-cache")
}

func (s *Server) serveAsset(w http.ResponseWriter, r *http.Request, name, contentType, cacheControl string) {
	if s.static == nil {
		NotFoundError("Not found").Write(w)
		return
	}
	data, err := fs.ReadFile(s.static, name)
	if err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Static asset missing",
			log.FieldPath, name,
			log.FieldError, err)
		NotFoundError("Not found").Write(w)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", cacheControl)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// render executes a template into a buffer so a failing template yields
// a clean 500 instead of a half-written page.
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	body, err := s.renderString(name, data)
	if err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Template execution failed",
			log.FieldComponent, log.ComponentTemplate,
			log.FieldOperation, log.OpRender,
			"template", name,
			log.FieldError, err)
		InternalServerError("Something went wrong. Please reload the page.").Write(w)
		return
	}
	NewHTMXResponse().Status(status).BodyHTML(body).Write(w)
}

func (s *Server) renderString(name string, data any) (string, error) {
	if s.templates == nil {
		return "", fmt.Errorf("templates not loaded")
	}
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// recordEvent keeps mutation counters in step with the store.
func (s *Server) recordEvent(evt events.Event) {
	switch evt.Type {
	case events.PurchaseCreated:
		atomic.AddInt64(&s.appMetrics.purchasesCreated, 1)
	case events.PurchaseDeleted:
		atomic.AddInt64(&s.appMetrics.purchasesDeleted, 1)
	}
}
