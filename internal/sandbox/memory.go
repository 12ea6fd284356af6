package sandbox

import (
	"fmt"
	"strconv"
	"strings"
)

// memoryUnits maps a size suffix to its size in MiB.
var memoryUnits = map[string]float64{
	"":  1.0 / (1 << 20),
	"B": 1.0 / (1 << 20),
	"K": 1.0 / 1024,
	"M": 1,
	"G": 1024,
	"T": 1 << 20,
}

// parseMemoryMB converts sizes such as "512M", "2Gi" or "1.5GB" to whole MiB.
// A bare number is bytes and the empty string is zero.
func parseMemoryMB(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	i := strings.IndexFunc(s, func(r rune) bool {
		return (r < '0' || r > '9') && r != '.'
	})
	num, suffix := s, ""
	if i >= 0 {
		num, suffix = s[:i], strings.ToUpper(strings.TrimSpace(s[i:]))
	}
	value, err := strconv.ParseFloat(num, 64)
	if err != nil || value < 0 {
		return 0, fmt.Errorf("invalid memory size %q", s)
	}
	if len(suffix) > 1 {
		suffix = strings.TrimSuffix(strings.TrimSuffix(suffix, "B"), "I")
	}
	scale, ok := memoryUnits[suffix]
	if !ok {
		return 0, fmt.Errorf("unknown memory unit in %q", s)
	}
	return int(value * scale), nil
}
