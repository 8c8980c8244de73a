package metric

import (
	"strconv"
	"strings"

	"github.com/docker/go-units"

	"Netshape/pkg/tcerr"
)

// Size is a byte count used by queue disciplines for limits and thresholds.
// Suffixes are binary, so "32kb" is 32768 bytes, as tc reads them.
type Size int64

// ParseSize accepts a plain byte count or a value with a k/m/g suffix.
func ParseSize(s string) (Size, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n < 0 {
			return 0, tcerr.Invalid("size", s, "must not be negative")
		}
		return Size(n), nil
	}
	n, err := units.RAMInBytes(s)
	if err != nil || n < 0 {
		return 0, tcerr.Invalid("size", s, "expected a byte count such as 1500 or 32kb")
	}
	return Size(n), nil
}

func (s Size) String() string {
	return strconv.FormatInt(int64(s), 10)
}
