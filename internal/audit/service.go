package audit

import (
	"context"
	"fmt"
)

// TimelineRepository is the read side the timeline service depends on.
type TimelineRepository interface {
	TimelineWindow(ctx context.Context, q TimelineQuery) ([]Event, error)
	TimelineAll(ctx context.Context, q TimelineQuery) ([]Event, error)
}

// PagingInfo carries pagination state for timeline responses.
type PagingInfo struct {
	Page     int
	PageSize int
	HasNext  bool
	PrevPage int
	NextPage int
}

// TimelineFilters are the caller-supplied timeline filters.
type TimelineFilters struct {
	TimelineQuery
	Page     int
	PageSize int
}

// Result wraps a timeline page with its paging info.
type Result struct {
	Rows   []Event
	Paging PagingInfo
}

// Service coordinates audit timeline reads.
type Service struct {
	repo TimelineRepository
}

// NewService constructs the timeline service.
func NewService(repo TimelineRepository) *Service {
	return &Service{repo: repo}
}

// Timeline returns a page of audit events.
func (s *Service) Timeline(ctx context.Context, filters TimelineFilters) (Result, error) {
	if s.repo == nil {
		return Result{}, fmt.Errorf("audit: repository not configured")
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	q := filters.TimelineQuery
	q.Offset = (page - 1) * pageSize
	q.Limit = pageSize + 1
	rows, err := s.repo.TimelineWindow(ctx, q)
	if err != nil {
		return Result{}, err
	}
	hasNext := len(rows) > pageSize
	if hasNext {
		rows = rows[:pageSize]
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	return Result{Rows: rows, Paging: paging}, nil
}

// Export returns every matching event without paging.
func (s *Service) Export(ctx context.Context, filters TimelineFilters) ([]Event, error) {
	if s.repo == nil {
		return nil, fmt.Errorf("audit: repository not configured")
	}
	return s.repo.TimelineAll(ctx, filters.TimelineQuery)
}
