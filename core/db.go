package core

import (
	"context"

	"github.com/jmoiron/sqlx"
)

type (
	// DBExecutor is satisfied by both *sqlx.DB and *sqlx.Tx.
	DBExecutor interface {
		sqlx.ExtContext
	}

	// DBTransactor runs fn inside a single transaction, committing if fn returns nil.
	DBTransactor interface {
		InTx(ctx context.Context, fn func(exec DBExecutor) error) error
	}
)

type DBOrdering struct {
	Field     string
	Ascending bool
}

func (ord DBOrdering) String() string {
	direction := "DESC"
	if ord.Ascending {
		direction = "ASC"
	}
	return ord.Field + " " + direction
}

// Page is a 1-based page request.
type Page struct {
	Number int
	Size   int
}

func (p Page) Offset() int {
	if p.Number <= 1 {
		return 0
	}
	return (p.Number - 1) * p.Size
}

// PageInfo describes a page of results.
type PageInfo struct {
	Number   int  `json:"number"`
	Size     int  `json:"size"`
	Total    int  `json:"total"`
	NumPages int  `json:"num_pages"`
	HasNext  bool `json:"has_next"`
	HasPrev  bool `json:"has_previous"`
}

func NewPageInfo(p Page, total int) PageInfo {
	pages := 1
	if p.Size > 0 && total > 0 {
		pages = (total + p.Size - 1) / p.Size
	}
	num := p.Number
	if num < 1 {
		num = 1
	}
	return PageInfo{
		Number:   num,
		Size:     p.Size,
		Total:    total,
		NumPages: pages,
		HasNext:  num < pages,
		HasPrev:  num > 1,
	}
}
