package invoice

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"smartqr/internal/models"
	"smartqr/internal/store"
)

var (
	ErrEmptyDraft = errors.New("invoice draft is empty")
	ErrInvalidQty = errors.New("requested quantity must be positive")
)

// Store is the persistence an invoice needs.
type Store interface {
	GetItem(ctx context.Context, code string) (models.Item, error)
	WithTx(ctx context.Context, fn func(*store.Tx) error) error
}

// Writer renders the invoice spreadsheet.
type Writer interface {
	Invoice(lines []models.InvoiceLine, writtenAt string) (string, error)
}

// Service builds invoice lines and flushes drafts.
type Service struct {
	Store  Store
	Writer Writer
	Now    func() time.Time
}

// Receipt describes a flushed invoice.
type Receipt struct {
	Path    string                `json:"path"`
	Entries []models.RequestEntry `json:"entries"`
}

func (s *Service) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

// LineFromPayload builds a line for a scanned label.
func (s *Service) LineFromPayload(ctx context.Context, p *models.Payload, qty int) (models.InvoiceLine, error) {
	if p == nil {
		return models.InvoiceLine{}, errors.New("no label scanned")
	}
	line, err := s.LineFromCode(ctx, p.ItemCode, qty)
	if err != nil {
		return models.InvoiceLine{}, err
	}
	if name := strings.TrimSpace(p.ItemName); name != "" {
		line.ItemName = name
	}
	return line, nil
}

// LineFromCode builds a line for an item picked from the inventory list.
func (s *Service) LineFromCode(ctx context.Context, code string, qty int) (models.InvoiceLine, error) {
	if qty <= 0 {
		return models.InvoiceLine{}, ErrInvalidQty
	}
	item, err := s.Store.GetItem(ctx, strings.TrimSpace(code))
	if err != nil {
		return models.InvoiceLine{}, fmt.Errorf("%s: %w", code, err)
	}
	return models.InvoiceLine{ItemName: item.ItemName, ItemCode: item.ItemCode, Qty: qty}, nil
}

// Flush writes one request log entry per line and the invoice spreadsheet
// as a unit: the entries are committed only if the spreadsheet was written.
// The draft is cleared on success and left intact on failure.
func (s *Service) Flush(ctx context.Context, d *Draft, requester string) (Receipt, error) {
	lines := d.Lines()
	rec, err := s.flush(ctx, lines, requester)
	if err != nil {
		return Receipt{}, err
	}
	d.Clear()
	return rec, nil
}

// Quick flushes a single line, the one-item invoice of the scan dialog.
func (s *Service) Quick(ctx context.Context, line models.InvoiceLine, requester string) (Receipt, error) {
	if line.Qty <= 0 {
		return Receipt{}, ErrInvalidQty
	}
	return s.flush(ctx, []models.InvoiceLine{line}, requester)
}

func (s *Service) flush(ctx context.Context, lines []models.InvoiceLine, requester string) (Receipt, error) {
	if len(lines) == 0 {
		return Receipt{}, ErrEmptyDraft
	}
	for _, l := range lines {
		if l.Qty <= 0 {
			return Receipt{}, fmt.Errorf("%s: %w", l.ItemCode, ErrInvalidQty)
		}
	}

	at := s.now().Format(store.TimeLayout)
	var rec Receipt
	err := s.Store.WithTx(ctx, func(tx *store.Tx) error {
		rec.Entries = make([]models.RequestEntry, 0, len(lines))
		for _, l := range lines {
			e := models.RequestEntry{
				ItemCode:          l.ItemCode,
				ItemName:          l.ItemName,
				QuantityRequested: l.Qty,
				RequestDate:       at,
				Requester:         strings.TrimSpace(requester),
			}
			if err := tx.AppendRequest(ctx, &e); err != nil {
				return err
			}
			rec.Entries = append(rec.Entries, e)
		}
		path, err := s.Writer.Invoice(lines, at)
		if err != nil {
			return fmt.Errorf("write invoice: %w", err)
		}
		rec.Path = path
		return nil
	})
	if err != nil {
		return Receipt{}, err
	}
	log.Printf("invoice: flushed %d lines -> %s", len(lines), rec.Path)
	return rec, nil
}
