package access

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// unitSeconds maps plan duration units to seconds. Months are 30 days and
// years 365 days.
var unitSeconds = map[string]int64{
	"s":       1,
	"sec":     1,
	"second":  1,
	"seconds": 1,
	"min":     60,
	"mins":    60,
	"minute":  60,
	"minutes": 60,
	"hour":    3600,
	"hours":   3600,
	"day":     86400,
	"days":    86400,
	"week":    604800,
	"weeks":   604800,
	"month":   2592000,
	"months":  2592000,
	"year":    31536000,
	"years":   31536000,
}

// ParseDuration parses plan durations such as "1 month", "3hour" or "2 days".
// The digits and letters are read independently, so "1 month" and "month 1"
// are equivalent. Unknown units are rejected.
func ParseDuration(s string) (time.Duration, error) {
	var digits, letters strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsDigit(r):
			digits.WriteRune(r)
		case unicode.IsLetter(r):
			letters.WriteRune(r)
		}
	}
	if digits.Len() == 0 {
		return 0, fmt.Errorf("duration %q has no amount", s)
	}
	n, err := strconv.ParseInt(digits.String(), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("duration %q: %w", s, err)
	}
	mult, ok := unitSeconds[letters.String()]
	if !ok {
		return 0, fmt.Errorf("duration %q has unknown unit %q", s, letters.String())
	}
	if n > math.MaxInt64/int64(time.Second)/mult {
		return 0, fmt.Errorf("duration %q is too long", s)
	}
	return time.Duration(n*mult) * time.Second, nil
}
