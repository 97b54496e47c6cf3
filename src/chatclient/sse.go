package chatclient

import (
	"bufio"
	"io"
	"strings"
)

// sseEvent is one server-sent event envelope.
type sseEvent struct {
	Event string
	Data  string
}

// sseReader pulls server-sent events from a response body one at a time.
type sseReader struct {
	scanner *bufio.Scanner
}

func newSSEReader(r io.Reader) *sseReader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), 1024*1024)
	return &sseReader{scanner: scanner}
}

// Next returns the next complete event, or io.EOF when the body is exhausted.
// Events with neither a name nor data are skipped.
func (r *sseReader) Next() (sseEvent, error) {
	var eventName string
	var dataLines []string

	for r.scanner.Scan() {
		line := r.scanner.Text()
		if line == "" {
			if eventName == "" && len(dataLines) == 0 {
				continue
			}
			return sseEvent{Event: eventName, Data: strings.Join(dataLines, "\n")}, nil
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		switch {
		case strings.HasPrefix(line, "event:"):
			eventName = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			dataLines = append(dataLines, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if err := r.scanner.Err(); err != nil {
		return sseEvent{}, err
	}
	if eventName != "" || len(dataLines) > 0 {
		return sseEvent{Event: eventName, Data: strings.Join(dataLines, "\n")}, nil
	}
	return sseEvent{}, io.EOF
}
