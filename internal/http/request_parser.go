// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for parsing and validating HTTP request
// data: the multipart entry form and the search query.

package http

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"

	"pricememory/internal/services"
)

// Form field names shared with web/templates/add.html.
const (
	fieldItemName = "itemName"
	fieldAmount   = "amount"
	fieldDate     = "date"
	fieldTime     = "time"
	fieldNote     = "note"
	fieldPhoto    = "invoicePhoto"

	// formOverhead is the body allowance for the text fields on top of
	// the photo limit.
	formOverhead = 1 << 20

	maxQueryLen = 100
)

// ErrRequestTooLarge reports a body or photo over the configured limit.
var ErrRequestTooLarge = errors.New("request body too large")

// ParsedEntry is a submitted entry form.
type ParsedEntry struct {
	Form services.EntryForm
}

// ParseEntryForm reads the add-purchase form. Both multipart and
// urlencoded bodies are accepted; the photo is optional. Multipart bodies
// are read part by part, so when the photo exceeds maxPhotoBytes the
// error is ErrRequestTooLarge and the returned entry still holds the
// text fields read before it.
func ParseEntryForm(w http.ResponseWriter, r *http.Request, maxPhotoBytes int64) (*ParsedEntry, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxPhotoBytes+formOverhead)

	mr, err := r.MultipartReader()
	if errors.Is(err, http.ErrNotMultipart) {
		if err := r.ParseForm(); err != nil {
			return nil, classifyBodyError(err)
		}
		return &ParsedEntry{Form: entryForm(r.PostForm)}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("parse form: %w", err)
	}

	values := url.Values{}
	var photo *services.PhotoUpload
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return &ParsedEntry{Form: entryForm(values)}, classifyBodyError(err)
		}

		name := part.FormName()
		switch {
		case name == fieldPhoto && part.FileName() != "":
			data, err := io.ReadAll(io.LimitReader(part, maxPhotoBytes+1))
			_ = part.Close()
			if err != nil {
				return &ParsedEntry{Form: entryForm(values)}, classifyBodyError(err)
			}
			if int64(len(data)) > maxPhotoBytes {
				return &ParsedEntry{Form: entryForm(values)}, ErrRequestTooLarge
			}
			if len(data) == 0 {
				// An empty file input still posts a part with no content.
				continue
			}
			photo = &services.PhotoUpload{
				Filename:    part.FileName(),
				ContentType: part.Header.Get("Content-Type"),
				Data:        bytes.NewReader(data),
			}
		case part.FileName() != "" || name == "":
			_ = part.Close()
		default:
			v, err := io.ReadAll(io.LimitReader(part, formOverhead))
			_ = part.Close()
			if err != nil {
				return &ParsedEntry{Form: entryForm(values)}, classifyBodyError(err)
			}
			values.Add(name, string(v))
		}
	}

	form := entryForm(values)
	form.Photo = photo
	return &ParsedEntry{Form: form}, nil
}

func entryForm(values url.Values) services.EntryForm {
	return services.EntryForm{
		ItemName: sanitizeInput(values.Get(fieldItemName)),
		Amount:   strings.TrimSpace(values.Get(fieldAmount)),
		Date:     strings.TrimSpace(values.Get(fieldDate)),
		Time:     strings.TrimSpace(values.Get(fieldTime)),
		Note:     sanitizeInput(values.Get(fieldNote)),
	}
}

func classifyBodyError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return ErrRequestTooLarge
	}
	return fmt.Errorf("parse form: %w", err)
}

// ParseSearchQuery extracts the item-name filter from q as typed, minus
// control characters and capped in length. Spaces are significant.
func ParseSearchQuery(query url.Values) string {
	q := stripControl(query.Get("q"))
	if utf8.RuneCountInString(q) > maxQueryLen {
		q = string([]rune(q)[:maxQueryLen])
	}
	return q
}

// isHTMX reports whether the request was issued by htmx.
func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

// RequireMethod checks if the request method matches the expected method(s).
// Returns an error response builder if the method doesn't match.
func RequireMethod(r *http.Request, methods ...string) *HTMXResponseBuilder {
	for _, m := range methods {
		if r.Method == m {
			return nil
		}
	}
	return MethodNotAllowedError(strings.Join(methods, ", "))
}

// RequireDeleteOrPOST is a convenience function for DELETE/POST handlers.
func RequireDeleteOrPOST(r *http.Request) *HTMXResponseBuilder {
	return RequireMethod(r, http.MethodDelete, http.MethodPost)
}
