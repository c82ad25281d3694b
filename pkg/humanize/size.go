package humanize

import "fmt"

func Size(i int64) (float64, string) {
	switch {
	case i < 1024:
		return float64(i), "B"
	case i < 1024*1024:
		return float64(i) / 1024, "KiB"
	case i < 1024*1024*1024:
		return float64(i) / (1024 * 1024), "MiB"
	default:
		return float64(i) / (1024 * 1024 * 1024), "GiB"
	}
}

// Bytes formats a byte count for log lines, e.g. "12.3 MiB".
func Bytes(i int64) string {
	v, unit := Size(i)
	if unit == "B" {
		return fmt.Sprintf("%d B", i)
	}

	return fmt.Sprintf("%.1f %s", v, unit)
}
