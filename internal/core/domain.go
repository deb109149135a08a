package core

import (
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type (
	// Purchase is a single recorded expense. Records are immutable once
	// stored; the only mutation is whole-record deletion.
	Purchase struct {
		ID           string
		ItemName     string
		Amount       decimal.Decimal
		PurchasedAt  time.Time
		Note         string
		InvoicePhoto *InvoicePhoto
		CreatedAt    time.Time
	}

	// InvoicePhoto is an image attachment stored inline as a data URL.
	InvoicePhoto struct {
		Name    string `json:"name"`
		Type    string `json:"type"`
		DataURL string `json:"dataUrl"`
	}
)

var (
	ErrEmptyID       = errors.New("empty id")
	ErrEmptyItemName = errors.New("empty item name")
	ErrInvalidAmount = errors.New("invalid amount")
	ErrInvalidDate   = errors.New("invalid purchase date")
	ErrInvalidPhoto  = errors.New("invalid invoice photo")
)

// Purchase dates outside these years are rejected; stored timestamps
// are nanoseconds since the Unix epoch.
const (
	MinPurchaseYear = 1900
	MaxPurchaseYear = 2200
)

// ValidPurchaseDate reports whether t is set and within the storable years.
func ValidPurchaseDate(t time.Time) bool {
	if t.IsZero() {
		return false
	}
	y := t.UTC().Year()
	return y >= MinPurchaseYear && y <= MaxPurchaseYear
}

func (p Purchase) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return ErrEmptyID
	}
	if strings.TrimSpace(p.ItemName) == "" {
		return ErrEmptyItemName
	}
	if !p.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if !ValidPurchaseDate(p.PurchasedAt) {
		return ErrInvalidDate
	}
	if p.InvoicePhoto != nil {
		if err := p.InvoicePhoto.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// HasNote reports whether the purchase carries a non-empty note.
func (p Purchase) HasNote() bool {
	return strings.TrimSpace(p.Note) != ""
}

// NewInvoicePhoto encodes raw image bytes as a base64 data URL.
func NewInvoicePhoto(name, mimeType string, data []byte) (*InvoicePhoto, error) {
	if len(data) == 0 || mimeType == "" {
		return nil, ErrInvalidPhoto
	}
	return &InvoicePhoto{
		Name:    name,
		Type:    mimeType,
		DataURL: "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data),
	}, nil
}

func (ph InvoicePhoto) Validate() error {
	if !strings.HasPrefix(ph.DataURL, "data:") || !strings.Contains(ph.DataURL, ",") {
		return ErrInvalidPhoto
	}
	return nil
}

// Decode returns the raw bytes and MIME type carried by the data URL.
func (ph InvoicePhoto) Decode() ([]byte, string, error) {
	rest, ok := strings.CutPrefix(ph.DataURL, "data:")
	if !ok {
		return nil, "", ErrInvalidPhoto
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, "", ErrInvalidPhoto
	}
	mimeType, isBase64 := strings.CutSuffix(meta, ";base64")
	if !isBase64 {
		return nil, "", ErrInvalidPhoto
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", errors.Join(ErrInvalidPhoto, err)
	}
	if mimeType == "" {
		mimeType = ph.Type
	}
	return data, mimeType, nil
}
