package stream

import "io"

// Reader turns an upstream response body into a sequence of typed events.
// It terminates on the [DONE] sentinel or on underlying EOF, whichever
// comes first.
type Reader struct {
	src     io.Reader
	dec     Decoder
	queue   []Event
	buf     []byte
	done    bool
	readErr error
}

// NewReader wraps an upstream body.
func NewReader(src io.Reader) *Reader {
	return &Reader{src: src, buf: make([]byte, 4096)}
}

// Next returns the next recognized event. io.EOF marks a clean end of
// stream; any other error is a transport failure mid-stream.
func (r *Reader) Next() (Event, error) {
	for {
		if len(r.queue) > 0 {
			ev := r.queue[0]
			r.queue = r.queue[1:]
			return ev, nil
		}
		if r.done {
			if r.readErr != nil && r.readErr != io.EOF {
				return Event{}, r.readErr
			}
			return Event{}, io.EOF
		}

		n, err := r.src.Read(r.buf)
		if n > 0 {
			for _, record := range r.dec.Feed(string(r.buf[:n])) {
				if record == "[DONE]" {
					r.done = true
					break
				}
				if ev, ok := ParseEvent(record); ok {
					r.queue = append(r.queue, ev)
				}
			}
		}
		if err != nil {
			r.done = true
			r.readErr = err
		}
	}
}
