package tts

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/gaspardpetit/voicerelay/internal/logx"
)

const (
	googleRPC       = "jQ1olc"
	googleUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"
)

var (
	tldPattern   = regexp.MustCompile(`^[a-z]{2,3}(\.[a-z]{2,3})?$`)
	audioPattern = regexp.MustCompile(`jQ1olc","\[\\"(.*?)\\"]`)
)

// GoogleEngine synthesizes speech with the Google Translate voice, one
// request per text part, and concatenates the MP3 parts.
type GoogleEngine struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	timeout    time.Duration
	// endpoint builds the batchexecute URL for a top level domain.
	endpoint func(tld string) string
}

// GoogleOption customises a GoogleEngine.
type GoogleOption func(*GoogleEngine)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) GoogleOption {
	return func(e *GoogleEngine) { e.httpClient = hc }
}

// WithRateLimit caps part requests per second; rps <= 0 means unlimited.
func WithRateLimit(rps float64) GoogleOption {
	return func(e *GoogleEngine) {
		if rps > 0 {
			e.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// WithTimeout bounds one Synthesize call; zero means no deadline.
func WithTimeout(d time.Duration) GoogleOption {
	return func(e *GoogleEngine) { e.timeout = d }
}

// WithEndpoint overrides the URL builder, for tests.
func WithEndpoint(fn func(tld string) string) GoogleOption {
	return func(e *GoogleEngine) { e.endpoint = fn }
}

func NewGoogleEngine(opts ...GoogleOption) *GoogleEngine {
	e := &GoogleEngine{
		httpClient: &http.Client{},
		limiter:    rate.NewLimiter(rate.Inf, 0),
		endpoint: func(tld string) string {
			return "https://translate.google." + tld + "/_/TranslateWebserverUi/data/batchexecute"
		},
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

func (e *GoogleEngine) Synthesize(ctx context.Context, req Request) ([]byte, error) {
	req, err := req.Normalize()
	if err != nil {
		return nil, err
	}
	lang, err := resolveLanguage(req.Lang)
	if err != nil {
		return nil, err
	}
	tld := strings.ToLower(req.TLD)
	if !tldPattern.MatchString(tld) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidDomain, req.TLD)
	}
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	parts := splitText(req.Text, maxPartRunes)
	if len(parts) == 0 {
		return nil, ErrEmptyText
	}
	var audio bytes.Buffer
	for i, part := range parts {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		b, err := e.fetchPart(ctx, part, lang, tld, req.Slow)
		if err != nil {
			return nil, fmt.Errorf("part %d/%d: %w", i+1, len(parts), err)
		}
		audio.Write(b)
	}
	logx.Log.Debug().Str("lang", lang).Str("tld", tld).Bool("slow", req.Slow).Int("parts", len(parts)).Int("bytes", audio.Len()).Msg("synthesized")
	return audio.Bytes(), nil
}

// rpcBody encodes one part the way the Translate web client does.
func rpcBody(text, lang string, slow bool) (string, error) {
	var speed any
	if slow {
		speed = true
	}
	inner, err := json.Marshal([]any{text, lang, speed, "null"})
	if err != nil {
		return "", err
	}
	outer, err := json.Marshal([]any{[]any{[]any{googleRPC, string(inner), nil, "generic"}}})
	if err != nil {
		return "", err
	}
	return url.Values{"f.req": {string(outer)}}.Encode(), nil
}

func (e *GoogleEngine) fetchPart(ctx context.Context, text, lang, tld string, slow bool) ([]byte, error) {
	body, err := rpcBody(text, lang, slow)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint(tld), strings.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded;charset=utf-8")
	httpReq.Header.Set("Referer", "http://translate.google.com/")
	httpReq.Header.Set("User-Agent", googleUserAgent)
	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("google translate tts returned status %d", resp.StatusCode)
	}
	return decodeAudio(resp.Body)
}

// decodeAudio extracts the base64 MP3 payload from a batchexecute reply.
func decodeAudio(r io.Reader) ([]byte, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64<<10), 16<<20)
	for sc.Scan() {
		line := sc.Text()
		if !strings.Contains(line, googleRPC) {
			continue
		}
		m := audioPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		return base64.StdEncoding.DecodeString(m[1])
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return nil, errors.New("no audio in google translate tts response")
}
