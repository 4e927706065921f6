// Package humanize formats byte counts for level and edit summaries.
package humanize

import (
	"math"
	"strconv"
)

var iecSuffixes = []string{" B", " KB", " MB", " GB", " TB", " PB", " EB"}

// IEC formats n using powers of 1024. Values below 10 are printed bare, values
// below 10 units keep one decimal digit.
func IEC(n uint64) string {
	if n < 10 {
		return strconv.FormatUint(n, 10)
	}

	e := 0
	for e < len(iecSuffixes)-1 && n >= uint64(1)<<(10*(e+1)) {
		e++
	}

	val := math.Floor(float64(n)/math.Pow(1024, float64(e))*10+0.5) / 10
	if val < 10 {
		return strconv.FormatFloat(val, 'f', 1, 64) + iecSuffixes[e]
	}
	return strconv.FormatFloat(math.Round(val), 'f', 0, 64) + iecSuffixes[e]
}
