package query

import (
	"strconv"
	"strings"
)

// PaginateQuery appends the cursor, ordering and limit clauses to query. The
// query must end in a parenthesized WHERE condition, for example:
//
//	SELECT * FROM t WHERE (account = $1)
//
// becomes
//
//	SELECT * FROM t WHERE (account = $1) AND id > $2 ORDER BY id ASC LIMIT $3
func PaginateQuery(query string, args []interface{}, cursor Cursor, limit uint64, direction Ordering) (string, []interface{}) {
	var sb strings.Builder
	sb.WriteString(query)

	placeholder := func(arg interface{}) string {
		args = append(args, arg)
		return "$" + strconv.Itoa(len(args))
	}

	if len(cursor) > 0 {
		op := " > "
		if direction == Descending {
			op = " < "
		}
		sb.WriteString(" AND id" + op + placeholder(cursor.ToUint64()))
	}

	sb.WriteString(" ORDER BY id " + direction.String())

	if limit > 0 {
		sb.WriteString(" LIMIT " + placeholder(limit))
	}
	return sb.String(), args
}
