package ollama

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"iter"
)

// Lines yields the non-empty lines of r without their terminators. Lines are
// read lazily so a consumer can stop at any point; a read error other than
// io.EOF is yielded once as the final element.
func Lines(r io.Reader) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		br := bufio.NewReader(r)
		for {
			line, err := br.ReadBytes('\n')
			line = bytes.TrimRight(line, "\r\n")
			if len(line) > 0 {
				if !yield(line, nil) {
					return
				}
			}
			if err != nil {
				if !errors.Is(err, io.EOF) {
					yield(nil, err)
				}
				return
			}
		}
	}
}
