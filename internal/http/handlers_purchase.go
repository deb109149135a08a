package http

import (
	"errors"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/dustin/go-humanize"

	"pricememory/internal/log"
	"pricememory/internal/services"
	"pricememory/internal/storage"
)

func (s *Server) handleAddForm(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "add_form", s.newFormView(services.EntryForm{}, s.now()))
}

// handleCreate stores a submitted purchase. Validation failures re-render
// the form with the user's input and a 422; save failures do the same
// with a 500.
func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	logger := log.FromContext(r.Context())
	now := s.now()

	parsed, err := ParseEntryForm(w, r, s.maxPhotoBytes)
	if err != nil {
		if errors.Is(err, ErrRequestTooLarge) {
			var form services.EntryForm
			if parsed != nil {
				form = parsed.Form
			}
			view := s.newFormView(form, now)
			view.Field, view.Error = fieldPhoto, services.MsgPhotoTooLarge
			s.render(w, r, http.StatusRequestEntityTooLarge, "add_form", view)
			return
		}
		logger.WarnContext(r.Context(), "Invalid entry form",
			log.FieldOperation, log.OpParse,
			log.FieldError, err)
		BadRequestError("Invalid form submission").Write(w)
		return
	}

	p, err := s.entry.Submit(r.Context(), parsed.Form)
	if err != nil {
		view := s.newFormView(parsed.Form, now)
		view.Error = services.UserMessage(err)

		status := http.StatusInternalServerError
		var verr *services.ValidationError
		if errors.As(err, &verr) {
			status = http.StatusUnprocessableEntity
			view.Field = verr.Field
			atomic.AddInt64(&s.appMetrics.validationErrors, 1)
			logger.DebugContext(r.Context(), "Entry rejected",
				log.FieldOperation, log.OpValidate,
				"field", verr.Field)
		}
		s.render(w, r, status, "add_form", view)
		return
	}

	if !isHTMX(r) {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	body, err := s.renderString("add_form", s.newFormView(services.EntryForm{}, now))
	if err != nil {
		logger.ErrorContext(r.Context(), "Template execution failed",
			log.FieldOperation, log.OpRender,
			log.FieldError, err)
		body = ""
	}
	NewHTMXResponse().
		TriggerPurchaseCreated(p.ID).
		TriggerFormReset().
		TriggerModalClose().
		BodyHTML(body).
		Write(w)
}

func (s *Server) handleDetail(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	p, err := s.purchases.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			NotFoundError("Purchase not found").Write(w)
			return
		}
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Failed to load purchase",
			log.FieldOperation, log.OpRead,
			log.FieldPurchaseID, id,
			log.FieldError, err)
		InternalServerError("Could not load this purchase. Please try again.").Write(w)
		return
	}

	view := s.detail(p, s.now())
	if view.HasPhoto {
		if photo, ok, err := s.photos.Get(r.Context(), id); err == nil && ok {
			view.PhotoSize = humanize.Bytes(uint64(len(photo.Data)))
		}
	}
	s.render(w, r, http.StatusOK, "detail", view)
}

// handlePhoto serves the decoded invoice image with an ETag so the
// browser can revalidate cheaply.
func (s *Server) handlePhoto(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	photo, ok, err := s.photos.Get(r.Context(), id)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		NotFoundError("Purchase not found").Write(w)
		return
	case err != nil:
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Failed to load invoice photo",
			log.FieldOperation, log.OpRead,
			log.FieldPurchaseID, id,
			log.FieldError, err)
		InternalServerError("Could not load the invoice photo.").Write(w)
		return
	case !ok:
		NotFoundError("This purchase has no invoice photo").Write(w)
		return
	}

	w.Header().Set("ETag", photo.ETag)
	w.Header().Set("Cache-Control", "private, max-age=86400")
	if match := r.Header.Get("If-None-Match"); match != "" && match == photo.ETag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", photo.MimeType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(photo.Data)
}

// handleDelete removes a purchase. Deleting an unknown id succeeds; the
// browser drops the card and refreshes the list either way.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if resp := RequireDeleteOrPOST(r); resp != nil {
		resp.Write(w)
		return
	}

	id := strings.TrimSpace(r.PathValue("id"))
	if err := s.purchases.Delete(r.Context(), id); err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Failed to delete purchase",
			log.FieldOperation, log.OpDelete,
			log.FieldPurchaseID, id,
			log.FieldError, err)
		InternalServerError("Failed to delete. Please try again.").Write(w)
		return
	}

	if !isHTMX(r) {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	NewHTMXResponse().
		TriggerPurchaseDeleted(id).
		TriggerModalClose().
		Write(w)
}
