package protocol

import (
	"bufio"
	"io"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// dataPrefix marks lines that carry an event; everything else on the
	// stream (empty lines, comments) is ignored.
	dataPrefix = "data: "
	// doneSentinel is the terminal payload that ends a stream cleanly.
	doneSentinel = "[DONE]"
)

// Decoder turns one open streaming response body into a finite,
// non-restartable sequence of protocol events.
//
// The body is treated as UTF-8 text split on newlines. Reading goes through a
// bufio.Reader, so a line split across two transport chunks is reassembled
// before parsing. Payloads that fail to parse are dropped and the sequence
// continues; a single malformed event never aborts the stream.
type Decoder struct {
	r        *bufio.Reader
	metadata EventMetadata
	done     bool
}

func NewDecoder(r io.Reader, metadata EventMetadata) *Decoder {
	return &Decoder{
		r:        bufio.NewReader(r),
		metadata: metadata,
	}
}

// Next returns the next event from the stream. It returns io.EOF once the
// [DONE] sentinel has been read, and io.ErrUnexpectedEOF if the transport
// closes before the sentinel arrives.
func (d *Decoder) Next() (Event, error) {
	if d.done {
		return nil, io.EOF
	}

	for {
		line, err := d.r.ReadString('\n')
		if err != nil && err != io.EOF {
			return nil, err
		}
		if err == io.EOF && line == "" {
			return nil, io.ErrUnexpectedEOF
		}

		if ev, ok := d.decodeLine(line); ok {
			return ev, nil
		}
		if d.done {
			return nil, io.EOF
		}
		if err == io.EOF {
			return nil, io.ErrUnexpectedEOF
		}
	}
}

// decodeLine parses a single line, returning the decoded event if the line
// carried one. The done flag is set when the line is the terminal sentinel.
func (d *Decoder) decodeLine(line string) (Event, bool) {
	line = strings.TrimRight(line, "\r\n")
	if !strings.HasPrefix(line, dataPrefix) {
		return nil, false
	}

	payload := strings.TrimPrefix(line, dataPrefix)
	if payload == doneSentinel {
		d.done = true
		return nil, false
	}

	ev, err := NewEventFromJSON([]byte(payload))
	if err != nil {
		// malformed individual events are dropped, the stream continues
		log.Trace().Err(err).Str("payload", payload).Msg("Dropping unparsable stream event")
		return nil, false
	}

	if setter, ok := ev.(interface{ SetMetadata(EventMetadata) }); ok {
		setter.SetMetadata(d.metadata)
	}

	log.Trace().Object("event", zerologEvent{ev}).Msg("Decoded stream event")
	return ev, true
}

// zerologEvent adapts any decoded event for structured logging.
type zerologEvent struct {
	ev Event
}

func (z zerologEvent) MarshalZerologObject(e *zerolog.Event) {
	e.Str("type", string(z.ev.Type()))
	z.ev.Metadata().MarshalZerologObject(e)
}
