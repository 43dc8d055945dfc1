package redis

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/kailas-cloud/retrievex/internal/domain"
	"github.com/kailas-cloud/retrievex/internal/domain/search/filter"
)

// buildFilterQuery translates a filter conjunction into FT.SEARCH syntax.
// Every clause must map cleanly or the whole translation fails: silently
// dropping a clause would widen the result set.
func buildFilterQuery(expr filter.Expression) (string, error) {
	if expr.IsEmpty() {
		return "", nil
	}

	parts := make([]string, 0, len(expr.Conditions()))
	for _, cond := range expr.Conditions() {
		part, err := buildFilterClause(cond)
		if err != nil {
			return "", err
		}
		parts = append(parts, part)
	}
	return strings.Join(parts, " "), nil
}

func buildFilterClause(cond filter.Condition) (string, error) {
	key := cond.Key()
	switch cond.Op() {
	case filter.OpEq:
		return buildEquality(key, cond.Value(), false)
	case filter.OpNe:
		return buildEquality(key, cond.Value(), true)
	case filter.OpGt:
		return buildNumericRange(key, cond.Value(), "(%g", "+inf"), nil
	case filter.OpGte:
		return buildNumericRange(key, cond.Value(), "%g", "+inf"), nil
	case filter.OpLt:
		return buildNumericRange(key, cond.Value(), "-inf", "(%g"), nil
	case filter.OpLte:
		return buildNumericRange(key, cond.Value(), "-inf", "%g"), nil
	case filter.OpIn:
		return buildTagSet(key, cond.Value(), false)
	case filter.OpNin:
		return buildTagSet(key, cond.Value(), true)
	}
	return "", fmt.Errorf("%w: operator %s on field %q", domain.ErrUnsupportedFilter, cond.Op(), key)
}

func buildEquality(key string, value any, negate bool) (string, error) {
	var clause string
	switch v := value.(type) {
	case string:
		clause = fmt.Sprintf("@%s:{%s}", key, tagEscaper.Replace(v))
	case float64:
		clause = fmt.Sprintf("@%s:[%g %g]", key, v, v)
	case float32:
		clause = fmt.Sprintf("@%s:[%g %g]", key, float64(v), float64(v))
	case int:
		clause = fmt.Sprintf("@%s:[%d %d]", key, v, v)
	case int64:
		clause = fmt.Sprintf("@%s:[%d %d]", key, v, v)
	case json.Number:
		clause = fmt.Sprintf("@%s:[%s %s]", key, v.String(), v.String())
	default:
		return "", fmt.Errorf("%w: equality on field %q requires a string or number", domain.ErrUnsupportedFilter, key)
	}
	if negate {
		return "-" + clause, nil
	}
	return clause, nil
}

func buildNumericRange(key string, value any, minFormat, maxFormat string) string {
	var n float64
	switch v := value.(type) {
	case float64:
		n = v
	case float32:
		n = float64(v)
	case int:
		n = float64(v)
	case int64:
		n = float64(v)
	case json.Number:
		n, _ = v.Float64()
	}
	minBound := minFormat
	if strings.Contains(minFormat, "%g") {
		minBound = fmt.Sprintf(minFormat, n)
	}
	maxBound := maxFormat
	if strings.Contains(maxFormat, "%g") {
		maxBound = fmt.Sprintf(maxFormat, n)
	}
	return fmt.Sprintf("@%s:[%s %s]", key, minBound, maxBound)
}

func buildTagSet(key string, value any, negate bool) (string, error) {
	list, ok := value.([]any)
	if !ok || len(list) == 0 {
		return "", fmt.Errorf("%w: %q requires a non-empty list", domain.ErrUnsupportedFilter, key)
	}
	tags := make([]string, 0, len(list))
	for _, elem := range list {
		s, ok := elem.(string)
		if !ok {
			return "", fmt.Errorf("%w: list elements on field %q must be strings", domain.ErrUnsupportedFilter, key)
		}
		tags = append(tags, tagEscaper.Replace(s))
	}
	clause := fmt.Sprintf("@%s:{%s}", key, strings.Join(tags, "|"))
	if negate {
		return "-" + clause, nil
	}
	return clause, nil
}

// --- Query helpers ---

var tagEscaper = strings.NewReplacer(
	",", "\\,",
	".", "\\.",
	"<", "\\<",
	">", "\\>",
	"{", "\\{",
	"}", "\\}",
	"\"", "\\\"",
	"'", "\\'",
	":", "\\:",
	";", "\\;",
	"!", "\\!",
	"@", "\\@",
	"#", "\\#",
	"$", "\\$",
	"%", "\\%",
	"^", "\\^",
	"&", "\\&",
	"*", "\\*",
	"(", "\\(",
	")", "\\)",
	"-", "\\-",
	"+", "\\+",
	"=", "\\=",
	"~", "\\~",
	" ", "\\ ",
)

func escapeQuery(s string) string {
	return queryEscaper.Replace(s)
}

var queryEscaper = strings.NewReplacer(
	`\`, `\\`,
	`'`, `\'`,
	`"`, `\"`,
	`@`, `\@`,
	`{`, `\{`,
	`}`, `\}`,
	`(`, `\(`,
	`)`, `\)`,
	`|`, `\|`,
	`-`, `\-`,
	`~`, `\~`,
	`*`, `\*`,
	`[`, `\[`,
	`]`, `\]`,
	`!`, `\!`,
	`%`, `\%`,
	`^`, `\^`,
	`$`, `\$`,
	`<`, `\<`,
	`>`, `\>`,
	`=`, `\=`,
	`;`, `\;`,
	`+`, `\+`,
)

func vectorToBytes(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}
