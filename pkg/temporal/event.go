package temporal

import (
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrUnsortedEvents is returned when an event log is not ordered by timestamp
	ErrUnsortedEvents = errors.New("events are not sorted by timestamp")

	// ErrUnknownActor is returned when an event references an actor outside the declared set
	ErrUnknownActor = errors.New("event references undeclared actor")

	// ErrNoActors is returned when a static matrix is requested for an empty actor list
	ErrNoActors = errors.New("no actors to convert")
)

// Event is one timestamped directed interaction between two actors
type Event struct {
	Source      string `json:"src"`
	Destination string `json:"dst"`
	Timestamp   int64  `json:"time"`
}

// Version is an actor's state at one timestamp, a node of the time-expanded graph
type Version struct {
	Actor     string `json:"actor"`
	Timestamp int64  `json:"time"`
}

func (v Version) String() string {
	return fmt.Sprintf("(%s, %d)", v.Actor, v.Timestamp)
}

// CheckOrder verifies that events are non-decreasing in timestamp
func CheckOrder(events []Event) error {
	for i := 1; i < len(events); i++ {
		if events[i].Timestamp < events[i-1].Timestamp {
			return fmt.Errorf("event %d at time %d follows time %d: %w",
				i, events[i].Timestamp, events[i-1].Timestamp, ErrUnsortedEvents)
		}
	}
	return nil
}

// SortEvents orders events by timestamp in place, keeping log order for equal timestamps
func SortEvents(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp < events[j].Timestamp
	})
}

// ActorsOf returns the sorted distinct actors referenced by events
func ActorsOf(events []Event) []string {
	seen := make(map[string]bool)
	actors := make([]string, 0)
	for _, e := range events {
		for _, a := range [2]string{e.Source, e.Destination} {
			if !seen[a] {
				seen[a] = true
				actors = append(actors, a)
			}
		}
	}
	sort.Strings(actors)
	return actors
}
