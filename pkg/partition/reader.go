// Package partition reads interaction logs and cuts them into fixed time windows.
package partition

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/gilchrisn/temporal-community-service/pkg/temporal"
)

// ReadEvents parses "src dst time" lines. Blank lines and lines starting with
// '#' or '%' are skipped; extra columns are ignored.
func ReadEvents(r io.Reader) ([]temporal.Event, error) {
	events := make([]temporal.Event, 0)
	scanner := bufio.NewScanner(r)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "%") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 3 {
			return nil, fmt.Errorf("line %d: expected 'src dst time', got %q", lineNum, line)
		}
		ts, err := strconv.ParseInt(fields[2], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid timestamp %q: %w", lineNum, fields[2], err)
		}

		events = append(events, temporal.Event{
			Source:      fields[0],
			Destination: fields[1],
			Timestamp:   ts,
		})
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}
	return events, nil
}

// WriteEvents writes events in the format accepted by ReadEvents
func WriteEvents(w io.Writer, events []temporal.Event) error {
	bw := bufio.NewWriter(w)
	for _, e := range events {
		if _, err := fmt.Fprintf(bw, "%s %s %d\n", e.Source, e.Destination, e.Timestamp); err != nil {
			return err
		}
	}
	return bw.Flush()
}
