package service

import (
	"fmt"

	"gorm.io/gorm"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// PageRequest selects a 1-based page.
type PageRequest struct {
	Page     int
	PageSize int
}

func (p PageRequest) normalize() (int, int) {
	page, size := p.Page, p.PageSize
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return page, size
}

// Page is one page of results.
type Page[T any] struct {
	Total    int64 `json:"total"`
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
	Results  []T   `json:"results"`
}

// paginate counts and fetches one page of query in the given order.
func paginate[T any](query *gorm.DB, req PageRequest, order string) (*Page[T], error) {
	page, size := req.normalize()

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, fmt.Errorf("count: %w", err)
	}

	results := make([]T, 0, size)
	err := query.Session(&gorm.Session{}).
		Order(order).
		Offset((page - 1) * size).
		Limit(size).
		Find(&results).Error
	if err != nil {
		return nil, fmt.Errorf("list: %w", err)
	}

	return &Page[T]{Total: total, Page: page, PageSize: size, Results: results}, nil
}
