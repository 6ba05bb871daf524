package collect

import (
	"slices"
	"strings"
)

// exportMarker marks build visibility macros, which are left out of the
// used-macro list.
const exportMarker = "EXPORT"

func (c *Collector) reconcile() {
	maybe := filterHeaderGuards(c.maybeUsed, c.guards)
	c.used = mergeUsedMacros(c.used, maybe)
	c.maybeUsed = nil
	c.used = filterExports(c.used)
}

// filterHeaderGuards drops the maybe-used macros whose current definition
// is an include guard. Order is preserved.
func filterHeaderGuards(maybe []UsedMacro, guards HeaderGuardOracle) []UsedMacro {
	if guards == nil {
		return maybe
	}
	return slices.DeleteFunc(maybe, func(u UsedMacro) bool {
		return guards.IsHeaderGuard(u.Name)
	})
}

// mergeUsedMacros merges two sorted runs into one. An entry present in both
// is kept once.
func mergeUsedMacros(confirmed, maybe []UsedMacro) []UsedMacro {
	if len(maybe) == 0 {
		return confirmed
	}
	out := make([]UsedMacro, 0, len(confirmed)+len(maybe))
	i, j := 0, 0
	for i < len(confirmed) && j < len(maybe) {
		switch c := confirmed[i].Compare(maybe[j]); {
		case c < 0:
			out = append(out, confirmed[i])
			i++
		case c > 0:
			out = append(out, maybe[j])
			j++
		default:
			out = append(out, confirmed[i])
			i++
			j++
		}
	}
	out = append(out, confirmed[i:]...)
	return append(out, maybe[j:]...)
}

func filterExports(used []UsedMacro) []UsedMacro {
	return slices.DeleteFunc(used, func(u UsedMacro) bool {
		return strings.Contains(u.Name, exportMarker)
	})
}
