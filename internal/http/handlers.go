package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"expensetracker/internal/core"
	"expensetracker/internal/log"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewResponse().JSON(map[string]any{
		"status":    "ok",
		"timestamp": s.now().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	}).Write(w)
}

// handleReady checks that the store answers a cheap query.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]any)

	if _, err := s.ledger.Sum(ctx, core.DayRange(s.now())); err != nil {
		s.logger.WarnContext(ctx, "Readiness check failed", log.FieldError, err)
		checks["storage"] = fmt.Sprintf("failed: %v", err)
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["storage"] = "ok"
	}

	if s.exporter == nil {
		checks["exporter"] = "not_configured"
	} else {
		checks["exporter"] = "ok"
	}

	stats := s.reports.Stats()
	checks["cache"] = map[string]any{
		"report_entries": stats.Size,
		"pdf_entries":    s.pdfs.Size(),
	}
	checks["rate_limiter"] = map[string]any{
		"active_clients": s.limiter.ActiveClients(),
	}

	NewResponse().Status(httpStatus).JSON(map[string]any{
		"status":         status,
		"timestamp":      s.now().Format(time.RFC3339),
		"ledger_version": s.ledger.Version(),
		"checks":         checks,
	}).Write(w)
}

// handleMetrics reports counters in the Prometheus text format.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	traceMetrics := s.tracer.Metrics()
	limitMetrics := s.limiter.Metrics()
	securityMetrics := s.detector.Metrics()
	reportStats := s.reports.Stats()

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	w.WriteHeader(http.StatusOK)

	metric := func(name, kind, help string, value any) {
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n%s %v\n\n", name, help, name, kind, name, value)
	}
	metric("http_requests_total", "counter", "Total number of HTTP requests", traceMetrics.TotalRequests)
	metric("http_requests_in_flight", "gauge", "Requests currently being served", traceMetrics.InFlight)
	metric("expenses_created_total", "counter", "Expenses recorded through this server", s.expensesCreated.Load())
	metric("report_exports_queued_total", "counter", "Background report exports scheduled", s.exportsQueued.Load())
	metric("ledger_version", "gauge", "Current ledger version", s.ledger.Version())
	metric("report_cache_hits_total", "counter", "Report cache hits", reportStats.Hits)
	metric("report_cache_misses_total", "counter", "Report cache misses", reportStats.Misses)
	metric("rate_limit_hits_total", "counter", "Requests refused by the rate limiter", limitMetrics.TotalHits)
	metric("suspicious_requests_total", "counter", "Suspicious requests detected", securityMetrics.SuspiciousRequests)
	metric("uptime_seconds", "gauge", "Application uptime in seconds", int64(time.Since(s.started).Seconds()))
}
