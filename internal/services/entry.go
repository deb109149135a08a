package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"pricememory/internal/core"
	"pricememory/internal/log"
)

const (
	MsgItemNameRequired = "Item name is required"
	MsgInvalidAmount    = "Please enter a valid amount greater than 0"
	MsgInvalidDate      = "Please pick a valid date"
	MsgInvalidTime      = "Please pick a valid time"
	MsgPhotoNotImage    = "Invoice photo must be an image"
	MsgPhotoTooLarge    = "Invoice photo is too large"
	MsgSaveFailed       = "Failed to save. Please try again."

	DateLayout = "2006-01-02"
	TimeLayout = "15:04"

	DefaultMaxPhotoBytes int64 = 10 << 20
)

// ErrSaveFailed covers every failure after validation passed.
var ErrSaveFailed = errors.New("save failed")

// ValidationError is a user-correctable problem with one form field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// EntryForm is the raw add-purchase form as submitted.
type EntryForm struct {
	ItemName string
	Amount   string
	Date     string
	Time     string
	Note     string
	Photo    *PhotoUpload
}

// PhotoUpload is an attached invoice image not yet encoded.
type PhotoUpload struct {
	Filename    string
	ContentType string
	Data        io.Reader
}

// BuildPurchase validates form and returns the purchase it describes,
// without the photo. Checks run in field order and stop at the first
// problem.
func BuildPurchase(form EntryForm, now time.Time, id string) (core.Purchase, error) {
	name := strings.TrimSpace(form.ItemName)
	if name == "" {
		return core.Purchase{}, &ValidationError{Field: "itemName", Message: MsgItemNameRequired}
	}

	amount, err := core.ParseAmount(form.Amount)
	if err != nil {
		return core.Purchase{}, &ValidationError{Field: "amount", Message: MsgInvalidAmount}
	}

	purchasedAt, verr := parsePurchaseTime(form.Date, form.Time, now)
	if verr != nil {
		return core.Purchase{}, verr
	}
	if !core.ValidPurchaseDate(purchasedAt) {
		return core.Purchase{}, &ValidationError{Field: "date", Message: MsgInvalidDate}
	}

	return core.Purchase{
		ID:          id,
		ItemName:    name,
		Amount:      amount,
		PurchasedAt: purchasedAt,
		Note:        strings.TrimSpace(form.Note),
	}, nil
}

// parsePurchaseTime combines the picked calendar date with a time of
// day, both in now's location. Missing parts default to now.
func parsePurchaseTime(date, clock string, now time.Time) (time.Time, *ValidationError) {
	loc := now.Location()
	y, m, d := now.Date()
	if date = strings.TrimSpace(date); date != "" {
		t, err := time.ParseInLocation(DateLayout, date, loc)
		if err != nil {
			return time.Time{}, &ValidationError{Field: "date", Message: MsgInvalidDate}
		}
		y, m, d = t.Date()
	}

	hh, mm, ss := now.Clock()
	ns := now.Nanosecond()
	if clock = strings.TrimSpace(clock); clock != "" {
		t, err := time.ParseInLocation(TimeLayout, clock, loc)
		if err != nil {
			return time.Time{}, &ValidationError{Field: "time", Message: MsgInvalidTime}
		}
		hh, mm, ss, ns = t.Hour(), t.Minute(), 0, 0
	}
	return time.Date(y, m, d, hh, mm, ss, ns, loc), nil
}

// EncodePhoto reads an upload into an inline data URL. Uploads larger
// than maxBytes or not recognised as images are rejected.
func EncodePhoto(up *PhotoUpload, maxBytes int64) (*core.InvoicePhoto, error) {
	if up == nil || up.Data == nil {
		return nil, nil
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxPhotoBytes
	}

	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(up.Data, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read photo: %w", err)
	}
	if n == 0 {
		return nil, nil
	}
	if n > maxBytes {
		return nil, &ValidationError{Field: "invoicePhoto", Message: MsgPhotoTooLarge}
	}

	data := buf.Bytes()
	mimeType := strings.TrimSpace(up.ContentType)
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	if !strings.HasPrefix(mimeType, "image/") {
		mimeType = mimetype.Detect(data).String()
		if i := strings.IndexByte(mimeType, ';'); i >= 0 {
			mimeType = mimeType[:i]
		}
	}
	if !strings.HasPrefix(mimeType, "image/") {
		return nil, &ValidationError{Field: "invoicePhoto", Message: MsgPhotoNotImage}
	}

	name := up.Filename
	if name == "" {
		name = "invoice"
		if mt := mimetype.Lookup(mimeType); mt != nil {
			name += mt.Extension()
		}
	}
	return core.NewInvoicePhoto(name, mimeType, data)
}

// Entry turns submitted forms into stored purchases.
type Entry struct {
	purchases     *PurchaseService
	logger        *log.Logger
	maxPhotoBytes int64
	now           func() time.Time
	newID         func() string
}

func NewEntry(purchases *PurchaseService, maxPhotoBytes int64, logger *log.Logger) *Entry {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &Entry{
		purchases:     purchases,
		logger:        logger.WithComponent(log.ComponentEntry),
		maxPhotoBytes: maxPhotoBytes,
		now:           time.Now,
		newID:         NewID,
	}
}

// WithClock overrides the time source, for tests.
func (e *Entry) WithClock(now func() time.Time) *Entry {
	e.now = now
	return e
}

// Submit validates form, encodes the photo, then stores the purchase.
// A *ValidationError is returned as is; anything else becomes
// ErrSaveFailed. Nothing is stored unless every step succeeds.
func (e *Entry) Submit(ctx context.Context, form EntryForm) (core.Purchase, error) {
	p, err := BuildPurchase(form, e.now(), e.newID())
	if err != nil {
		return core.Purchase{}, err
	}

	photo, err := EncodePhoto(form.Photo, e.maxPhotoBytes)
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			return core.Purchase{}, err
		}
		e.logger.ErrorContext(ctx, "Failed to convert invoice photo",
			log.FieldOperation, log.OpParse,
			log.FieldError, err)
		return core.Purchase{}, fmt.Errorf("%w: %w", ErrSaveFailed, err)
	}
	p.InvoicePhoto = photo

	if err := e.purchases.Add(ctx, p); err != nil {
		e.logger.ErrorContext(ctx, "Failed to save purchase",
			log.FieldOperation, log.OpCreate,
			log.FieldItemName, p.ItemName,
			log.FieldError, err)
		return core.Purchase{}, fmt.Errorf("%w: %w", ErrSaveFailed, err)
	}
	return p, nil
}

// UserMessage maps a Submit error to the text shown next to the form.
func UserMessage(err error) string {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr.Message
	}
	return MsgSaveFailed
}
