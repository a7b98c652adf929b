package validation

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// FileSizeFormat renders a byte count the way the upload form shows limits:
// base-1024 units with one decimal place, e.g. "95.4 MB".
func FileSizeFormat(n int64) string {
	const (
		kb = 1 << 10
		mb = 1 << 20
		gb = 1 << 30
		tb = 1 << 40
		pb = 1 << 50
	)
	if n == 1 {
		return "1 byte"
	}
	v := float64(n)
	switch {
	case n < kb:
		return fmt.Sprintf("%d bytes", n)
	case n < mb:
		return fmt.Sprintf("%.1f KB", v/kb)
	case n < gb:
		return fmt.Sprintf("%.1f MB", v/mb)
	case n < tb:
		return fmt.Sprintf("%.1f GB", v/gb)
	case n < pb:
		return fmt.Sprintf("%.1f TB", v/tb)
	default:
		return fmt.Sprintf("%.1f PB", v/pb)
	}
}

// TimeElapsed renders a duration in seconds as its two largest adjacent
// units, e.g. "10 minutes" or "1 hour, 5 minutes". Weeks are only used as
// the largest unit; months are 30 days and years 360.
func TimeElapsed(seconds float64) string {
	if seconds == 0 {
		return "0 seconds"
	}
	if seconds < 60 {
		return plural(seconds, "seconds")
	}

	secs := math.Mod(seconds, 60)
	v := int64(seconds / 60)
	minutes := v % 60
	v /= 60
	hours := v % 24
	v /= 24

	var days, weeks, months, years int64
	if v < 30 {
		days = v % 7
		weeks = (v / 7) % 7
	} else {
		days = v % 30
		v /= 30
		months = v % 12
		years = v / 12
	}

	units := []string{
		plural(float64(years), "years"),
		plural(float64(months), "months"),
		plural(float64(weeks), "weeks"),
		plural(float64(days), "days"),
		plural(float64(hours), "hours"),
		plural(float64(minutes), "minutes"),
		plural(secs, "seconds"),
	}
	for i, u := range units {
		if u == "" {
			continue
		}
		// Months pair with days; weeks never appear alongside months.
		next := i + 1
		if i == 1 {
			next = 3
		}
		if next < len(units) && units[next] != "" {
			return u + ", " + units[next]
		}
		return u
	}
	return "0 seconds"
}

func plural(amount float64, unit string) string {
	switch amount {
	case 0:
		return ""
	case 1:
		return "1 " + strings.TrimSuffix(unit, "s")
	}
	return formatNumber(amount) + " " + unit
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
