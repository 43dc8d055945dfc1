package retriever

import (
	"fmt"

	"github.com/kailas-cloud/retrievex/internal/domain"
	"github.com/kailas-cloud/retrievex/internal/domain/search/filter"
)

// validateIndexFilters checks that an expression is translatable to the index
// backend's query syntax: numeric operators need numeric operands (already
// guaranteed by filter validation), tag operators need string operands, and
// $in/$nin need string list elements. Untranslatable filters fail the request
// rather than being silently ignored.
func validateIndexFilters(expr filter.Expression) error {
	for _, c := range expr.Conditions() {
		switch c.Op() {
		case filter.OpEq, filter.OpNe:
			if _, ok := c.Value().(string); !ok {
				if _, numeric := asNumber(c.Value()); !numeric {
					return fmt.Errorf("%w: %s on %q needs a string or numeric operand",
						domain.ErrUnsupportedFilter, c.Op(), c.Key())
				}
			}
		case filter.OpIn, filter.OpNin:
			list, _ := c.Value().([]any)
			for _, v := range list {
				if _, ok := v.(string); !ok {
					return fmt.Errorf("%w: %s on %q needs string list elements",
						domain.ErrUnsupportedFilter, c.Op(), c.Key())
				}
			}
		}
	}
	return nil
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
