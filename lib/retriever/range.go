package retriever

import (
	"strconv"
	"strings"
)

// ParseRange parses the [lo[-[hi]]] range argument accepted by
// LISTGROUP, OVER and HDR. Accepted shapes are "N", "N-" and "N-M";
// anything else returns ErrBadRange. For "N-" the upper bound is
// currentHigh, the group's high watermark at query time.
func ParseRange(arg string, currentHigh int64) (lo, hi int64, err error) {
	dash := strings.IndexByte(arg, '-')
	if dash < 0 {
		lo, err = strconv.ParseInt(arg, 10, 64)
		if err != nil || lo < 0 {
			return 0, 0, ErrBadRange
		}
		return lo, lo, nil
	}
	lo, err = strconv.ParseInt(arg[:dash], 10, 64)
	if err != nil || lo < 0 {
		return 0, 0, ErrBadRange
	}
	rest := arg[dash+1:]
	if rest == "" {
		return lo, currentHigh, nil
	}
	hi, err = strconv.ParseInt(rest, 10, 64)
	if err != nil || hi < 0 {
		return 0, 0, ErrBadRange
	}
	return lo, hi, nil
}
