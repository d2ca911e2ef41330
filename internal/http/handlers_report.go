package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"expensetracker/internal/aggregate"
	"expensetracker/internal/cache"
	"expensetracker/internal/core"
	"expensetracker/internal/export"
	"expensetracker/internal/log"
)

type reportResponse struct {
	WindowStart string `json:"window_start"`
	WindowEnd   string `json:"window_end"`
	Version     uint64 `json:"version"`
	aggregate.Report
	Series     []aggregate.DayPoint    `json:"series"`
	Categories []aggregate.CategoryRow `json:"categories"`
}

type exportResponse struct {
	Status string `json:"status"`
	Dir    string `json:"dir"`
	CSV    string `json:"csv"`
	PDF    string `json:"pdf"`
}

// currentReport returns the report for the window containing now. Reports
// are cached per window and ledger version.
func (s *Server) currentReport(ctx context.Context) (aggregate.Report, uint64, error) {
	now := s.now()
	w := core.WeekWindow(now)
	version := s.ledger.Version()
	if r, ok := s.reports.Get(cache.ReportKey("report", w, version)); ok {
		return r, version, nil
	}

	snap, err := s.ledger.Query(ctx, w)
	if err != nil {
		return aggregate.Report{}, 0, err
	}
	report := aggregate.NewReportAggregator(now).Compute(snap.Expenses)
	s.reports.Set(cache.ReportKey("report", w, snap.Version), report)
	return report, snap.Version, nil
}

// reportOrFail writes a 500 and returns false when the report cannot be
// built. A matching If-None-Match is answered with 304.
func (s *Server) reportOrFail(w http.ResponseWriter, r *http.Request, kind string) (aggregate.Report, uint64, bool) {
	report, version, err := s.currentReport(r.Context())
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Report computation failed",
			log.FieldOperation, log.OpReport, log.FieldError, err)
		InternalServerError("failed to compute report").Write(w)
		return report, version, false
	}
	etag := fmt.Sprintf(`"%s-%d-%d"`, kind, report.Window.Start.UnixMilli(), version)
	w.Header().Set("ETag", etag)
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return report, version, false
	}
	return report, version, true
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	report, version, ok := s.reportOrFail(w, r, "json")
	if !ok {
		return
	}
	NewResponse().JSON(reportResponse{
		WindowStart: report.Window.Start.Format(time.RFC3339),
		WindowEnd:   report.Window.End.Format(time.RFC3339),
		Version:     version,
		Report:      report,
		Series:      report.Series(),
		Categories:  report.CategoryRows(),
	}).Write(w)
}

func (s *Server) handleReportCSV(w http.ResponseWriter, r *http.Request) {
	report, _, ok := s.reportOrFail(w, r, "csv")
	if !ok {
		return
	}
	text, err := export.ToCSV(report)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "CSV rendering failed", log.FieldError, err)
		InternalServerError("failed to render csv").Write(w)
		return
	}
	NewResponse().
		Bytes("text/csv; charset=utf-8", []byte(text)).
		Attachment(export.CSVFileName).
		Write(w)
}

func (s *Server) handleReportPDF(w http.ResponseWriter, r *http.Request) {
	report, version, ok := s.reportOrFail(w, r, "pdf")
	if !ok {
		return
	}
	pdf, err := s.pdfs.GetOrCompute(cache.ReportKey("pdf", report.Window, version), func() ([]byte, error) {
		return export.ToPDFBytes(report)
	})
	if err != nil {
		s.logger.ErrorContext(r.Context(), "PDF rendering failed", log.FieldError, err)
		InternalServerError("failed to render pdf").Write(w)
		return
	}
	NewResponse().
		Bytes("application/pdf", pdf).
		Attachment(export.PDFFileName).
		Write(w)
}

func (s *Server) handleReportShare(w http.ResponseWriter, r *http.Request) {
	report, _, ok := s.reportOrFail(w, r, "share")
	if !ok {
		return
	}
	NewResponse().Text(export.ToShareText(report)).Write(w)
}

// handleExport schedules a background write of both export files and
// answers without waiting for it.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if s.exporter == nil {
		ErrorResponse(http.StatusServiceUnavailable, "export is not configured").Write(w)
		return
	}
	report, _, err := s.currentReport(r.Context())
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Report computation failed", log.FieldError, err)
		InternalServerError("failed to compute report").Write(w)
		return
	}

	s.exporter.Submit(r.Context(), report)
	s.exportsQueued.Add(1)

	NewResponse().Status(http.StatusAccepted).JSON(exportResponse{
		Status: "scheduled",
		Dir:    s.exporter.Dir(),
		CSV:    export.CSVFileName,
		PDF:    export.PDFFileName,
	}).Write(w)
}
