package invoices

import (
	"time"

	"github.com/batisseur/intranet/internal/audit"
	"github.com/batisseur/intranet/internal/ownership"
	"github.com/batisseur/intranet/internal/shared"
)

// Kind distinguishes issued invoices from quotes. Both share one table.
type Kind string

const (
	KindInvoice Kind = "invoice"
	KindQuote   Kind = "quote"
)

// ResourceType maps the document kind to its authorization resource.
func (k Kind) ResourceType() ownership.ResourceType {
	if k == KindQuote {
		return ownership.Quote
	}
	return ownership.Invoice
}

func (k Kind) viewAction() string {
	if k == KindQuote {
		return audit.ActionViewQuote
	}
	return audit.ActionViewInvoice
}

func (k Kind) createAction() string {
	if k == KindQuote {
		return audit.ActionCreateQuote
	}
	return audit.ActionCreateInvoice
}

func (k Kind) deleteAction() string {
	if k == KindQuote {
		return audit.ActionDeleteQuote
	}
	return audit.ActionDeleteInvoice
}

// Invoice is a billing document, optionally linked to a chantier.
type Invoice struct {
	ID          int64     `json:"id"`
	Kind        Kind      `json:"kind"`
	Number      string    `json:"number"`
	ChantierID  *int64    `json:"chantier_id"`
	AmountCents int64     `json:"amount_cents"`
	IssuedAt    time.Time `json:"issued_at"`
	CreatedAt   time.Time `json:"created_at"`
}

// Input carries the fields of a new invoice or quote.
type Input struct {
	Kind        Kind   `json:"kind" validate:"required,oneof=invoice quote"`
	Number      string `json:"number" validate:"required,max=64"`
	ChantierID  *int64 `json:"chantier_id" validate:"omitempty,gt=0"`
	AmountCents int64  `json:"amount_cents" validate:"gte=0"`
}

// ListFilter narrows a listing. A non-nil ClientID keeps only documents
// linked to a chantier owned by that client.
type ListFilter struct {
	ClientID *int64
	Limit    int
	Offset   int
}

// ListResult is a page of invoices and quotes.
type ListResult struct {
	Invoices   []Invoice         `json:"invoices"`
	Pagination shared.Pagination `json:"pagination"`
}
