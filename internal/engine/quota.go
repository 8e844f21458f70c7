package engine

import "fmt"

// occurrenceQuota limits the number of occurrences one row event may
// generate. Fan-out counts multiply down the forest, so a template with
// modest counts at every level can still explode.
//
// A limit of zero disables the check.
type occurrenceQuota struct {
	limit   int64
	current int64
}

// check counts one occurrence and validates against the limit.
func (q *occurrenceQuota) check(table string, rowNum int64) error {
	q.current++
	if q.limit > 0 && q.current > q.limit {
		return &RuntimeError{
			Code:    ErrCodeQuotaExceeded,
			Message: fmt.Sprintf("row event exceeded max occurrences (%d > %d)", q.current, q.limit),
			Table:   table,
			RowNum:  rowNum,
		}
	}
	return nil
}

// reset starts counting a new row event.
func (q *occurrenceQuota) reset() {
	q.current = 0
}
