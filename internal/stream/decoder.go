// Package stream decodes the upstream event stream: raw bytes into SSE
// data records, records into typed events, and events into an aggregate
// for non-streaming responses.
package stream

import "strings"

// Decoder is an incremental SSE decoder. Feed it arbitrarily split chunks
// and it returns the data records completed so far. Multi-line data fields
// join with newlines; a blank line flushes the pending record. Both LF and
// CRLF line endings are accepted. A trailing partial line stays buffered
// until the next chunk completes it.
type Decoder struct {
	pending   string
	dataLines []string
}

// Feed consumes one chunk and returns zero or more completed data records.
func (d *Decoder) Feed(chunk string) []string {
	d.pending += chunk
	var records []string
	for {
		nl := strings.IndexByte(d.pending, '\n')
		if nl < 0 {
			break
		}
		line := strings.TrimSuffix(d.pending[:nl], "\r")
		d.pending = d.pending[nl+1:]

		if line == "" {
			if len(d.dataLines) > 0 {
				records = append(records, strings.Join(d.dataLines, "\n"))
				d.dataLines = d.dataLines[:0]
			}
			continue
		}
		if rest, ok := strings.CutPrefix(line, "data:"); ok {
			d.dataLines = append(d.dataLines, strings.TrimLeft(rest, " \t"))
		}
		// other field names (event:, id:, retry:) and comments are ignored
	}
	return records
}
