package relay

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"unicode/utf8"

	"github.com/gaspardpetit/voicerelay/internal/logx"
	"github.com/gaspardpetit/voicerelay/internal/metrics"
	"github.com/gaspardpetit/voicerelay/internal/ollama"
)

var (
	errInvalidUTF8 = errors.New("upstream line is not valid UTF-8")
	errNotObject   = errors.New("upstream line is not a JSON object")
)

// Summary describes how a generation stream ended.
type Summary struct {
	Events  int
	Skipped int
	Done    bool
	// Err is the processing error reported to the client as an error event.
	Err error
	// Final is the last relayed event, which carries timing and token counts
	// when Done is set.
	Final map[string]json.RawMessage
}

// TokenCounts returns prompt_eval_count and eval_count from the final event.
func (s Summary) TokenCounts() (in, out uint64) {
	read := func(key string) uint64 {
		var n uint64
		if raw, ok := s.Final[key]; ok {
			_ = json.Unmarshal(raw, &n)
		}
		return n
	}
	return read("prompt_eval_count"), read("eval_count")
}

// Stream relays newline-delimited JSON from upstream to w as SSE frames of
// the form "data: <json>\n\n", flushing after every frame. It stops after the
// first object whose done flag is true. Lines that are not valid JSON are
// skipped. Any other processing error, including a read failure, is sent as a
// final {"error": "..."} frame. The returned error is non-nil only when w
// itself fails.
func Stream(w io.Writer, upstream io.Reader) (Summary, error) {
	flusher, _ := w.(http.Flusher)
	var sum Summary
	for line, err := range ollama.Lines(upstream) {
		if err == nil {
			err = checkLine(line)
		}
		var obj map[string]json.RawMessage
		if err == nil {
			if uerr := json.Unmarshal(line, &obj); uerr != nil {
				if !json.Valid(line) {
					sum.Skipped++
					logx.Log.Debug().Int("bytes", len(line)).Msg("skipping unparsable upstream line")
					metrics.RecordGenerateEvent(metrics.EventSkipped)
					continue
				}
				err = errNotObject
			} else if obj == nil {
				err = errNotObject
			}
		}
		var frame bytes.Buffer
		if err == nil {
			err = json.Compact(&frame, line)
		}
		if err != nil {
			sum.Err = err
			metrics.RecordGenerateEvent(metrics.EventError)
			return sum, writeFrame(w, flusher, errorPayload(err))
		}
		if werr := writeFrame(w, flusher, frame.Bytes()); werr != nil {
			return sum, werr
		}
		sum.Events++
		sum.Final = obj
		metrics.RecordGenerateEvent(metrics.EventRelayed)
		if isDone(obj) {
			sum.Done = true
			return sum, nil
		}
	}
	return sum, nil
}

func checkLine(line []byte) error {
	if !utf8.Valid(line) {
		return errInvalidUTF8
	}
	return nil
}

func isDone(obj map[string]json.RawMessage) bool {
	raw, ok := obj["done"]
	if !ok {
		return false
	}
	var done bool
	if err := json.Unmarshal(raw, &done); err != nil {
		return false
	}
	return done
}

func errorPayload(err error) []byte {
	b, mErr := json.Marshal(map[string]string{"error": err.Error()})
	if mErr != nil {
		return []byte(`{"error":"stream failure"}`)
	}
	return b
}

// writeFrame writes one SSE frame and flushes it to the client.
func writeFrame(w io.Writer, flusher http.Flusher, payload []byte) error {
	if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
		return err
	}
	if flusher != nil {
		flusher.Flush()
	}
	return nil
}
