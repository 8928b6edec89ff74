// Package query holds the pagination options shared by record stores.
package query

import (
	"encoding/binary"
	"errors"
)

const defaultPagingLimit = 1000

var (
	ErrQueryNotSupported = errors.New("the requested query option is not supported")
	ErrInvalidCursor     = errors.New("invalid cursor")
)

// Ordering is the direction records are returned in, by id.
type Ordering uint

const (
	Ascending Ordering = iota
	Descending
)

func (o Ordering) String() string {
	if o == Descending {
		return "DESC"
	}
	return "ASC"
}

// Cursor is a big endian record id. Results resume after the record it names.
type Cursor []byte

func ToCursor(id uint64) Cursor {
	c := make(Cursor, 8)
	binary.BigEndian.PutUint64(c, id)
	return c
}

func (c Cursor) ToUint64() uint64 {
	if len(c) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(c)
}

// QueryOptions is the resolved set of pagination options for a request.
type QueryOptions struct {
	SortBy Ordering
	Limit  uint64
	Cursor Cursor
}

type Option func(*QueryOptions) error

func WithDirection(val Ordering) Option {
	return func(qo *QueryOptions) error {
		if val != Ascending && val != Descending {
			return ErrQueryNotSupported
		}
		qo.SortBy = val
		return nil
	}
}

func WithLimit(val uint64) Option {
	return func(qo *QueryOptions) error {
		qo.Limit = val
		return nil
	}
}

func WithCursor(val []byte) Option {
	return func(qo *QueryOptions) error {
		if len(val) != 0 && len(val) != 8 {
			return ErrInvalidCursor
		}
		qo.Cursor = val
		return nil
	}
}

// DefaultPaginationHandler resolves opts, allowing pages of up to 1000
// records in ascending order by default.
func DefaultPaginationHandler(opts ...Option) (*QueryOptions, error) {
	return DefaultPaginationHandlerWithLimit(defaultPagingLimit, opts...)
}

// DefaultPaginationHandlerWithLimit resolves opts, rejecting pages larger than
// limit. The page size defaults to limit.
func DefaultPaginationHandlerWithLimit(limit uint64, opts ...Option) (*QueryOptions, error) {
	req := &QueryOptions{
		SortBy: Ascending,
		Limit:  limit,
	}
	for _, opt := range opts {
		if err := opt(req); err != nil {
			return nil, err
		}
	}

	if req.Limit > limit {
		return nil, ErrQueryNotSupported
	}
	return req, nil
}
