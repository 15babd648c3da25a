package channel

import (
	"fmt"
	"strconv"
	"strings"
)

// Compare imposes a total order on channel versions. Numeric versions
// compare numerically. String versions compare dot-segment by dot-segment,
// each segment by its numeric prefix first and the remaining text second,
// so "10.a" > "2.a" and "10.a" < "10.b". A missing version (nil) sorts
// below everything else.
func Compare(a, b any) int {
	if a == nil && b == nil {
		return 0
	}
	if a == nil {
		return -1
	}
	if b == nil {
		return 1
	}
	an, aNum := toFloat(a)
	bn, bNum := toFloat(b)
	if aNum && bNum {
		switch {
		case an < bn:
			return -1
		case an > bn:
			return 1
		default:
			return 0
		}
	}
	return compareStrings(versionString(a), versionString(b))
}

// Max returns the greatest of the given versions under Compare, or nil
// when none are given.
func Max(versions ...any) any {
	var best any
	for _, v := range versions {
		if v == nil {
			continue
		}
		if best == nil || Compare(v, best) > 0 {
			best = v
		}
	}
	return best
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func versionString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func compareStrings(a, b string) int {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	for i := 0; i < len(as) && i < len(bs); i++ {
		if c := compareSegment(as[i], bs[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(as) < len(bs):
		return -1
	case len(as) > len(bs):
		return 1
	default:
		return 0
	}
}

// compareSegment compares one dot-separated segment: the leading numeric
// prefix compares numerically, the remainder lexicographically.
func compareSegment(a, b string) int {
	aNum, aRest := splitNumericPrefix(a)
	bNum, bRest := splitNumericPrefix(b)
	switch {
	case aNum < bNum:
		return -1
	case aNum > bNum:
		return 1
	}
	return strings.Compare(aRest, bRest)
}

func splitNumericPrefix(s string) (int64, string) {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == 0 {
		return -1, s
	}
	n, err := strconv.ParseInt(s[:i], 10, 64)
	if err != nil {
		return -1, s
	}
	return n, s[i:]
}
