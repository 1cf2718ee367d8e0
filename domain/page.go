package domain

import (
	"math"
	"strings"
)

const (
	DefaultPageLimit = 10
	MaxPageLimit     = 50

	OrderAsc  = "ASC"
	OrderDesc = "DESC"
)

// PageOptions selects a window of a listing ordered by creation time.
type PageOptions struct {
	Page  int
	Limit int
	Order string
}

// Normalize fills defaults and clamps the limit.
func (o PageOptions) Normalize() PageOptions {
	if o.Page < 1 {
		o.Page = 1
	}
	if o.Limit < 1 {
		o.Limit = DefaultPageLimit
	}
	if o.Limit > MaxPageLimit {
		o.Limit = MaxPageLimit
	}
	if strings.EqualFold(o.Order, OrderDesc) {
		o.Order = OrderDesc
	} else {
		o.Order = OrderAsc
	}
	return o
}

// Skip is the number of rows before the window. It saturates at math.MaxInt
// so a page far past the end yields an empty window.
func (o PageOptions) Skip() int {
	if o.Page < 1 || o.Limit < 1 {
		return 0
	}
	if o.Page-1 > math.MaxInt/o.Limit {
		return math.MaxInt
	}
	return (o.Page - 1) * o.Limit
}

type PageMeta struct {
	Page            int  `json:"page"`
	Limit           int  `json:"limit"`
	ItemCount       int  `json:"item_count"`
	PageCount       int  `json:"page_count"`
	HasPreviousPage bool `json:"has_previous_page"`
	HasNextPage     bool `json:"has_next_page"`
}

// ComputePageMeta derives paging metadata from the total item count.
// A non-positive limit yields a single page.
func ComputePageMeta(itemCount, page, limit int) PageMeta {
	if itemCount < 0 {
		itemCount = 0
	}
	pageCount := 1
	if limit > 0 {
		pageCount = (itemCount + limit - 1) / limit
	}
	return PageMeta{
		Page:            page,
		Limit:           limit,
		ItemCount:       itemCount,
		PageCount:       pageCount,
		HasPreviousPage: page > 1,
		HasNextPage:     page < pageCount,
	}
}

type Page[T any] struct {
	Items []T      `json:"items"`
	Meta  PageMeta `json:"meta"`
}
