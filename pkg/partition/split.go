package partition

import (
	"errors"
	"fmt"

	"github.com/gilchrisn/temporal-community-service/pkg/temporal"
)

// ErrInvalidWindow is returned for non-positive window sizes
var ErrInvalidWindow = errors.New("window size must be positive")

// Window describes consecutive fixed-size intervals [Start+k*Size, Start+(k+1)*Size)
// generated while the interval start is before Finish.
type Window struct {
	Start  int64 `json:"start"`
	Finish int64 `json:"finish"`
	Size   int64 `json:"size"`
}

// WindowFor returns a window covering every event, with the given size
func WindowFor(events []temporal.Event, size int64) Window {
	if len(events) == 0 {
		return Window{Size: size}
	}
	lo, hi := events[0].Timestamp, events[0].Timestamp
	for _, e := range events[1:] {
		lo = min(lo, e.Timestamp)
		hi = max(hi, e.Timestamp)
	}
	return Window{Start: lo, Finish: hi + 1, Size: size}
}

// Partition is one time window of the log
type Partition struct {
	Number int              `json:"number"`
	Start  int64            `json:"start"`
	End    int64            `json:"end"`
	Events []temporal.Event `json:"events"`
	Actors []string         `json:"actors"`
}

// Split cuts events into consecutive windows. Partitions are numbered from 1
// and keep the log order of their events; empty windows are kept.
func Split(events []temporal.Event, w Window) ([]Partition, error) {
	if w.Size <= 0 {
		return nil, fmt.Errorf("size %d: %w", w.Size, ErrInvalidWindow)
	}

	parts := make([]Partition, 0)
	for start, number := w.Start, 1; start < w.Finish; start, number = start+w.Size, number+1 {
		end := start + w.Size
		p := Partition{
			Number: number,
			Start:  start,
			End:    end,
			Events: make([]temporal.Event, 0),
		}
		for _, e := range events {
			if e.Timestamp >= start && e.Timestamp < end {
				p.Events = append(p.Events, e)
			}
		}
		p.Actors = temporal.ActorsOf(p.Events)
		parts = append(parts, p)
	}
	return parts, nil
}

// Stats summarises a split
type Stats struct {
	Parts         int     `json:"parts"`
	Shortest      int     `json:"shortest"`
	ShortestParts []int   `json:"shortest_parts"`
	Longest       int     `json:"longest"`
	LongestParts  []int   `json:"longest_parts"`
	AverageLength float64 `json:"average_length"`
}

// Summarize reports partition length statistics
func Summarize(parts []Partition) Stats {
	stats := Stats{Parts: len(parts)}
	if len(parts) == 0 {
		return stats
	}

	stats.Shortest = len(parts[0].Events)
	stats.Longest = len(parts[0].Events)
	total := 0
	for _, p := range parts {
		n := len(p.Events)
		total += n
		stats.Shortest = min(stats.Shortest, n)
		stats.Longest = max(stats.Longest, n)
	}
	for _, p := range parts {
		if len(p.Events) == stats.Shortest {
			stats.ShortestParts = append(stats.ShortestParts, p.Number)
		}
		if len(p.Events) == stats.Longest {
			stats.LongestParts = append(stats.LongestParts, p.Number)
		}
	}
	stats.AverageLength = float64(total) / float64(len(parts))
	return stats
}
