package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaginateQuery(t *testing.T) {
	base := "SELECT * FROM t WHERE (account = $1)"

	query, opts := PaginateQuery(base, []interface{}{"abc"}, nil, 10, Ascending)
	assert.Equal(t, base+" ORDER BY id ASC LIMIT $2", query)
	assert.Equal(t, []interface{}{"abc", uint64(10)}, opts)

	query, opts = PaginateQuery(base, []interface{}{"abc"}, ToCursor(7), 0, Descending)
	assert.Equal(t, base+" AND id < $2 ORDER BY id DESC", query)
	assert.Equal(t, []interface{}{"abc", uint64(7)}, opts)
}

func TestDefaultPaginationHandler(t *testing.T) {
	req, err := DefaultPaginationHandler()
	require.NoError(t, err)
	assert.EqualValues(t, defaultPagingLimit, req.Limit)
	assert.Equal(t, Ascending, req.SortBy)

	req, err = DefaultPaginationHandler(WithLimit(5), WithDirection(Descending), WithCursor(ToCursor(3)))
	require.NoError(t, err)
	assert.EqualValues(t, 5, req.Limit)
	assert.Equal(t, Descending, req.SortBy)
	assert.EqualValues(t, 3, req.Cursor.ToUint64())

	_, err = DefaultPaginationHandler(WithLimit(defaultPagingLimit + 1))
	assert.Equal(t, ErrQueryNotSupported, err)
}

func TestCursor(t *testing.T) {
	assert.EqualValues(t, 42, ToCursor(42).ToUint64())
	assert.Zero(t, Cursor(nil).ToUint64())

	_, err := DefaultPaginationHandler(WithCursor([]byte{1, 2, 3}))
	assert.Equal(t, ErrInvalidCursor, err)

	_, err = DefaultPaginationHandler(WithDirection(Ordering(7)))
	assert.Equal(t, ErrQueryNotSupported, err)
}

func TestDefaultPaginationHandlerWithLimit(t *testing.T) {
	req, err := DefaultPaginationHandlerWithLimit(16)
	require.NoError(t, err)
	assert.EqualValues(t, 16, req.Limit)

	_, err = DefaultPaginationHandlerWithLimit(16, WithLimit(17))
	assert.Equal(t, ErrQueryNotSupported, err)
}
