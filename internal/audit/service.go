package audit

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/batisseur/intranet/internal/shared"
)

const (
	// DefaultLimit applies when the caller gives no limit.
	DefaultLimit = 20
	// MaxLimit bounds a single page.
	MaxLimit = 100
)

// Reader provides the query side of the audit trail.
type Reader interface {
	Get(ctx context.Context, id int64) (Record, error)
	List(ctx context.Context, filter Filter, limit, offset int) ([]Record, error)
	Count(ctx context.Context, filter Filter) (int, error)
}

// Service serves filtered, paginated reads of the audit trail. Callers gate it
// to admins before use.
type Service struct {
	repo Reader
}

// NewService creates an audit query service.
func NewService(repo Reader) *Service {
	return &Service{repo: repo}
}

// Query returns records newest first. A filter with ID set bypasses paging.
func (s *Service) Query(ctx context.Context, filter Filter, page, limit int) (Page, error) {
	if s == nil || s.repo == nil {
		return Page{}, fmt.Errorf("audit: repository not configured")
	}
	if filter.ID > 0 {
		rec, err := s.repo.Get(ctx, filter.ID)
		if err != nil {
			return Page{}, err
		}
		return Page{Records: []Record{rec}, Total: 1, Page: 1, Limit: 1}, nil
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && filter.From.After(filter.To) {
		return Page{}, fmt.Errorf("audit: %w: from after to", shared.ErrValidation)
	}

	page, limit, offset := shared.ClampPage(page, limit, DefaultLimit, MaxLimit)
	var (
		records []Record
		total   int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := s.repo.List(gctx, filter, limit, offset)
		if err != nil {
			return err
		}
		records = rows
		return nil
	})
	g.Go(func() error {
		n, err := s.repo.Count(gctx, filter)
		if err != nil {
			return err
		}
		total = n
		return nil
	})
	if err := g.Wait(); err != nil {
		return Page{}, err
	}
	if records == nil {
		records = []Record{}
	}
	return Page{Records: records, Total: total, Page: page, Limit: limit}, nil
}

// Get returns a single record or shared.ErrNotFound.
func (s *Service) Get(ctx context.Context, id int64) (Record, error) {
	page, err := s.Query(ctx, Filter{ID: id}, 1, 1)
	if err != nil {
		return Record{}, err
	}
	return page.Records[0], nil
}
