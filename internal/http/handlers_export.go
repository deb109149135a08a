package http

import (
	"bytes"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"

	"pricememory/internal/export"
	"pricememory/internal/log"
)

// handleExport streams a backup of the whole store. The file is built in
// memory first so a failure yields an error page rather than a truncated
// download.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	logger := log.FromContext(r.Context())

	format, err := export.ParseFormat(strings.TrimPrefix(r.URL.Path, "/export."))
	if err != nil {
		NotFoundError("Unknown export format").Write(w)
		return
	}

	purchases, err := s.purchases.Snapshot(r.Context())
	if err != nil {
		logger.ErrorContext(r.Context(), "Failed to read purchases for export",
			log.FieldOperation, log.OpExport,
			log.FieldFormat, string(format),
			log.FieldError, err)
		InternalServerError("Export failed. Please try again.").Write(w)
		return
	}

	now := s.now()
	var buf bytes.Buffer
	if err := format.Write(&buf, purchases, now.Location()); err != nil {
		logger.ErrorContext(r.Context(), "Failed to render export",
			log.FieldOperation, log.OpExport,
			log.FieldFormat, string(format),
			log.FieldError, err)
		InternalServerError("Export failed. Please try again.").Write(w)
		return
	}

	atomic.AddInt64(&s.appMetrics.exports, 1)
	logger.InfoContext(r.Context(), "Backup exported",
		log.FieldFormat, string(format),
		log.FieldCount, len(purchases))

	filename := format.Filename(now)
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
