package bot

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ProcessArgs holds the parsed arguments of /process.
type ProcessArgs struct {
	Airline     string
	Origin      string
	Destination string
}

// ParseProcessArgs parses arguments for /process.
// Format: <airline> <origin> [destination], or <airline>/<origin> [destination].
func ParseProcessArgs(args string) (ProcessArgs, error) {
	parts := strings.Fields(args)
	if len(parts) > 0 {
		if a, o, ok := strings.Cut(parts[0], "/"); ok {
			parts = append([]string{a, o}, parts[1:]...)
		}
	}
	if len(parts) < 2 || len(parts) > 3 || parts[0] == "" || parts[1] == "" {
		return ProcessArgs{}, errors.New("usage: /process <airline> <origin> [destination]")
	}
	p := ProcessArgs{Airline: parts[0], Origin: parts[1]}
	if len(parts) == 3 {
		p.Destination = parts[2]
	}
	return p, nil
}

// ParseLimitArg reads an optional list size, capped at max.
func ParseLimitArg(args string, def, max int) (int, error) {
	s := strings.TrimSpace(args)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.Fields(s)[0])
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid limit %q", s)
	}
	return min(n, max), nil
}

// ParseDurationArg reads an optional Go duration such as 90m or 2h.
func ParseDurationArg(args string, def time.Duration) (time.Duration, error) {
	s := strings.TrimSpace(args)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(strings.Fields(s)[0])
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid duration %q, use e.g. 90m or 6h", s)
	}
	return d, nil
}

// ParseFlightArg extracts a flight UUID from command arguments.
func ParseFlightArg(args string) (string, error) {
	s := strings.TrimSpace(args)
	if s == "" {
		return "", errors.New("flight UUID is required")
	}
	return strings.Fields(s)[0], nil
}
