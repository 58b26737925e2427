package book

import (
	"fmt"
	"strconv"
	"strings"

	exprlang "github.com/expr-lang/expr"
	"github.com/RoaringBitmap/roaring"
)

// ParseSheets reads a sheet selection such as "1-3,5,8-". An open upper
// bound extends to last. An empty selection yields nil, meaning all sheets.
func ParseSheets(value string, last int) (*roaring.Bitmap, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	set := roaring.New()
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		lo, hi, isRange := strings.Cut(part, "-")
		from, err := strconv.Atoi(strings.TrimSpace(lo))
		if err != nil || from < 1 {
			return nil, fmt.Errorf("invalid sheet number %q", lo)
		}
		to := from
		if isRange {
			hi = strings.TrimSpace(hi)
			if hi == "" {
				to = last
			} else if to, err = strconv.Atoi(hi); err != nil {
				return nil, fmt.Errorf("invalid sheet number %q", hi)
			}
		}
		if to < from {
			return nil, fmt.Errorf("empty sheet range %q", part)
		}
		set.AddRange(uint64(from), uint64(to)+1)
	}
	return set, nil
}

// Select narrows subset to the stubs for which where evaluates to true.
// Expressions see the fields of StubStatus.Env, for instance
// `!invalid && latest != "PAGE"`. An empty where returns subset unchanged.
func (b *Book) Select(where string, subset *roaring.Bitmap) (*roaring.Bitmap, error) {
	where = strings.TrimSpace(where)
	if where == "" {
		return subset, nil
	}
	program, err := exprlang.Compile(where, exprlang.Env(StubStatus{}.Env()), exprlang.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile selection %q: %w", where, err)
	}
	out := roaring.New()
	for _, st := range b.Status().Stubs {
		if subset != nil && !subset.Contains(uint32(st.Number)) {
			continue
		}
		result, err := exprlang.Run(program, st.Env())
		if err != nil {
			return nil, fmt.Errorf("evaluate selection on sheet#%d: %w", st.Number, err)
		}
		if matched, _ := result.(bool); matched {
			out.Add(uint32(st.Number))
		}
	}
	return out, nil
}
