package utils

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// SplitEvent is one accepted bisection written by SplitTracker
type SplitEvent struct {
	SplitNumber int     `json:"split"`
	Partition   int     `json:"partition"`
	Depth       int     `json:"depth"`
	Size        int     `json:"size"`
	Left        int     `json:"left"`
	Right       int     `json:"right"`
	Gain        float64 `json:"gain"`
	Modularity  float64 `json:"modularity"`
	Timestamp   int64   `json:"timestamp"`
}

// SplitTracker appends accepted splits as JSON lines. A nil tracker is a no-op.
type SplitTracker struct {
	mu        sync.Mutex
	closer    io.Closer
	encoder   *json.Encoder
	partition int
	count     int
	err       error // first write failure, reported by Close
}

// NewSplitTracker creates a tracker writing to filename
func NewSplitTracker(filename string) (*SplitTracker, error) {
	file, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create split log: %w", err)
	}
	t := NewSplitTrackerWriter(file)
	t.closer = file
	return t, nil
}

// NewSplitTrackerWriter creates a tracker writing to w
func NewSplitTrackerWriter(w io.Writer) *SplitTracker {
	return &SplitTracker{encoder: json.NewEncoder(w)}
}

// SetPartition tags subsequent splits with a partition number
func (st *SplitTracker) SetPartition(partition int) {
	if st == nil {
		return
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	st.partition = partition
}

// LogSplit records one accepted split
func (st *SplitTracker) LogSplit(depth, size, left, right int, gain, modularity float64) {
	if st == nil {
		return
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	st.count++
	err := st.encoder.Encode(SplitEvent{
		SplitNumber: st.count,
		Partition:   st.partition,
		Depth:       depth,
		Size:        size,
		Left:        left,
		Right:       right,
		Gain:        gain,
		Modularity:  modularity,
		Timestamp:   time.Now().Unix(),
	})
	if err != nil && st.err == nil {
		st.err = fmt.Errorf("failed to write split %d: %w", st.count, err)
	}
}

// Close closes the underlying file, if any, and reports the first write error
func (st *SplitTracker) Close() error {
	if st == nil {
		return nil
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	var closeErr error
	if st.closer != nil {
		closeErr = st.closer.Close()
	}
	return errors.Join(st.err, closeErr)
}
