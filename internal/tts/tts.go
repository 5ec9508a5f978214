// Package tts turns text into a complete MP3 buffer and slices it for transport.
package tts

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
)

const (
	// ChunkSize is the transport slice used when streaming audio to clients.
	ChunkSize = 8192

	DefaultLang = "en"
	DefaultTLD  = "com"
)

var (
	ErrEmptyText           = errors.New("text cannot be empty")
	ErrEmptyAudio          = errors.New("failed to generate audio")
	ErrUnsupportedLanguage = errors.New("language not supported")
	ErrInvalidDomain       = errors.New("invalid top level domain")
)

// Request is one synthesis call.
type Request struct {
	Text string
	Lang string
	TLD  string
	Slow bool
}

// Normalize trims the text and fills defaults for empty lang and tld.
func (r Request) Normalize() (Request, error) {
	r.Text = strings.TrimSpace(r.Text)
	if r.Text == "" {
		return r, ErrEmptyText
	}
	r.Lang = strings.TrimSpace(r.Lang)
	if r.Lang == "" {
		r.Lang = DefaultLang
	}
	r.TLD = strings.TrimSpace(r.TLD)
	if r.TLD == "" {
		r.TLD = DefaultTLD
	}
	return r, nil
}

// Synthesizer produces the whole audio buffer for a request.
type Synthesizer interface {
	Synthesize(ctx context.Context, req Request) ([]byte, error)
}

// UnavailableError reports that no synthesis engine is installed.
type UnavailableError struct {
	Engine string
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("speech synthesis engine %q is not available", e.Engine)
}

// Unavailable is the engine used when synthesis is disabled or unknown.
type Unavailable struct {
	Engine string
}

func (u Unavailable) Synthesize(context.Context, Request) ([]byte, error) {
	return nil, &UnavailableError{Engine: u.Engine}
}

// Chunks yields consecutive slices of buf of at most size bytes, in order.
func Chunks(buf []byte, size int) iter.Seq[[]byte] {
	if size <= 0 {
		size = ChunkSize
	}
	return func(yield func([]byte) bool) {
		for off := 0; off < len(buf); off += size {
			end := min(off+size, len(buf))
			if !yield(buf[off:end]) {
				return
			}
		}
	}
}
