package partition

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gilchrisn/temporal-community-service/pkg/temporal"
)

func TestReadEvents(t *testing.T) {
	input := `# src dst time
1 2 100

2 3 105 extra
% comment
3 1 110
`
	events, err := ReadEvents(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, []temporal.Event{
		{Source: "1", Destination: "2", Timestamp: 100},
		{Source: "2", Destination: "3", Timestamp: 105},
		{Source: "3", Destination: "1", Timestamp: 110},
	}, events)
}

func TestReadEvents_Malformed(t *testing.T) {
	_, err := ReadEvents(strings.NewReader("1 2\n"))
	assert.ErrorContains(t, err, "line 1")

	_, err = ReadEvents(strings.NewReader("1 2 3\n1 2 x\n"))
	assert.ErrorContains(t, err, "line 2")
}

func TestWriteEvents_RoundTrip(t *testing.T) {
	events := []temporal.Event{
		{Source: "a", Destination: "b", Timestamp: 1},
		{Source: "b", Destination: "c", Timestamp: 7},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteEvents(&buf, events))

	decoded, err := ReadEvents(&buf)
	require.NoError(t, err)
	assert.Equal(t, events, decoded)
}

func TestSplit(t *testing.T) {
	events := []temporal.Event{
		{Source: "a", Destination: "b", Timestamp: 0},
		{Source: "b", Destination: "c", Timestamp: 9},
		{Source: "c", Destination: "d", Timestamp: 10},
		{Source: "d", Destination: "a", Timestamp: 31},
	}

	parts, err := Split(events, Window{Start: 0, Finish: 32, Size: 10})
	require.NoError(t, err)
	require.Len(t, parts, 4)

	assert.Equal(t, 1, parts[0].Number)
	assert.Equal(t, []string{"a", "b", "c"}, parts[0].Actors)
	assert.Len(t, parts[0].Events, 2)
	assert.Equal(t, []string{"c", "d"}, parts[1].Actors)
	assert.Empty(t, parts[2].Events)
	assert.Empty(t, parts[2].Actors)
	assert.Equal(t, int64(30), parts[3].Start)
	assert.Equal(t, int64(40), parts[3].End)

	stats := Summarize(parts)
	assert.Equal(t, 4, stats.Parts)
	assert.Equal(t, 0, stats.Shortest)
	assert.Equal(t, []int{3}, stats.ShortestParts)
	assert.Equal(t, 2, stats.Longest)
	assert.Equal(t, []int{1}, stats.LongestParts)
	assert.Equal(t, 1.0, stats.AverageLength)
}

func TestSplit_InvalidWindow(t *testing.T) {
	_, err := Split(nil, Window{Start: 0, Finish: 10, Size: 0})
	require.ErrorIs(t, err, ErrInvalidWindow)
}

func TestWindowFor(t *testing.T) {
	events := []temporal.Event{
		{Source: "a", Destination: "b", Timestamp: 50},
		{Source: "b", Destination: "c", Timestamp: 20},
	}
	w := WindowFor(events, 15)
	assert.Equal(t, Window{Start: 20, Finish: 51, Size: 15}, w)

	parts, err := Split(events, w)
	require.NoError(t, err)
	total := 0
	for _, p := range parts {
		total += len(p.Events)
	}
	assert.Equal(t, len(events), total)

	assert.Equal(t, Window{Size: 5}, WindowFor(nil, 5))
	assert.Empty(t, Summarize(nil).ShortestParts)
}
