package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/gaspardpetit/voicerelay/internal/logx"
	"github.com/gaspardpetit/voicerelay/internal/metrics"
	"github.com/gaspardpetit/voicerelay/internal/tts"
)

const (
	// DefaultSpeechText is spoken when a GET request carries no text.
	DefaultSpeechText = "Hello, this is a test of the text to speech service."
	// TestSpeechText is synthesized by the engine check endpoint.
	TestSpeechText = "Hello, this is a TTS test."

	speechFilename = "speech.mp3"
)

func setSpeechCORS(h http.Header) {
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Content-Type")
	h.Set("Access-Control-Max-Age", "86400")
}

// speechFromQuery reads a GET request. Every field has a default.
func speechFromQuery(r *http.Request) tts.Request {
	q := r.URL.Query()
	req := tts.Request{
		Text: DefaultSpeechText,
		Lang: tts.DefaultLang,
		TLD:  tts.DefaultTLD,
		Slow: strings.EqualFold(q.Get("slow"), "true"),
	}
	if q.Has("text") {
		req.Text = q.Get("text")
	}
	if v := q.Get("lang"); v != "" {
		req.Lang = v
	}
	if v := q.Get("tld"); v != "" {
		req.TLD = v
	}
	return req
}

// speechFromJSON reads a POST request. All four fields are required.
func speechFromJSON(r *http.Request) (tts.Request, error) {
	var req tts.Request
	if err := requireJSON(r); err != nil {
		return req, err
	}
	var body map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return req, fmt.Errorf("malformed request body: %v", err)
	}
	for _, f := range []string{"text", "lang", "tld", "slow"} {
		if _, ok := body[f]; !ok {
			return req, fmt.Errorf("Missing required field: %s", f)
		}
	}
	fields := []struct {
		name string
		dst  *string
	}{{"text", &req.Text}, {"lang", &req.Lang}, {"tld", &req.TLD}}
	for _, f := range fields {
		if err := json.Unmarshal(body[f.name], f.dst); err != nil {
			return req, fmt.Errorf("Invalid value for field: %s", f.name)
		}
	}
	if err := json.Unmarshal(body["slow"], &req.Slow); err != nil {
		return req, errors.New("Invalid value for field: slow")
	}
	return req, nil
}

// TTSHandler handles GET, POST and OPTIONS on /api/tts. The whole MP3 is
// synthesized first, then written in tts.ChunkSize slices.
func TTSHandler(s tts.Synthesizer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		setSpeechCORS(w.Header())
		var req tts.Request
		switch r.Method {
		case http.MethodOptions:
			w.WriteHeader(http.StatusOK)
			return
		case http.MethodGet:
			req = speechFromQuery(r)
		case http.MethodPost:
			var err error
			if req, err = speechFromJSON(r); err != nil {
				metrics.RecordRequest("tts", false)
				writeClientError(w, err)
				return
			}
		default:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		req, err := req.Normalize()
		if err != nil {
			metrics.RecordRequest("tts", false)
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		reqID := chiMiddleware.GetReqID(r.Context())
		start := time.Now()
		audio, err := s.Synthesize(r.Context(), req)
		metrics.ObserveUpstream("tts", time.Since(start))
		if err != nil {
			metrics.RecordRequest("tts", false)
			writeSynthesisError(w, reqID, "TTS generation failed: ", err)
			return
		}
		if len(audio) == 0 {
			metrics.RecordRequest("tts", false)
			logx.Log.Error().Str("request_id", reqID).Msg("synthesis returned no audio")
			writeError(w, http.StatusInternalServerError, "Failed to generate audio")
			return
		}

		h := w.Header()
		h.Set("Content-Type", "audio/mpeg")
		h.Set("Content-Length", strconv.Itoa(len(audio)))
		h.Set("Accept-Ranges", "bytes")
		h.Set("Cache-Control", "no-cache, no-store, must-revalidate")
		h.Set("Content-Disposition", `inline; filename="`+speechFilename+`"`)
		w.WriteHeader(http.StatusOK)

		flusher, _ := w.(http.Flusher)
		sent := 0
		for chunk := range tts.Chunks(audio, tts.ChunkSize) {
			n, err := w.Write(chunk)
			sent += n
			if err != nil {
				logx.Log.Warn().Str("request_id", reqID).Err(err).Int("sent", sent).Int("size", len(audio)).Msg("client gone during audio")
				break
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		metrics.RecordAudioBytes(sent)
		metrics.RecordRequest("tts", sent == len(audio))
		logx.Log.Info().Str("request_id", reqID).Str("lang", req.Lang).Str("tld", req.TLD).Bool("slow", req.Slow).Int("bytes", sent).Dur("elapsed", time.Since(start)).Msg("speech sent")
	}
}

// TTSTestHandler handles GET /api/tts/test by synthesizing a fixed phrase.
func TTSTestHandler(s tts.Synthesizer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reqID := chiMiddleware.GetReqID(r.Context())
		audio, err := s.Synthesize(r.Context(), tts.Request{Text: TestSpeechText, Lang: tts.DefaultLang, TLD: tts.DefaultTLD})
		if err == nil && len(audio) == 0 {
			err = tts.ErrEmptyAudio
		}
		if err != nil {
			metrics.RecordRequest("tts_test", false)
			writeSynthesisError(w, reqID, "TTS test failed: ", err)
			return
		}
		metrics.RecordRequest("tts_test", true)
		writeJSON(w, http.StatusOK, map[string]any{
			"status":     "success",
			"message":    "TTS is working correctly",
			"audio_size": len(audio),
			"test_text":  TestSpeechText,
		})
	}
}

func writeSynthesisError(w http.ResponseWriter, reqID, prefix string, err error) {
	var ue *tts.UnavailableError
	if errors.As(err, &ue) {
		logx.Log.Error().Str("request_id", reqID).Str("engine", ue.Engine).Msg("synthesis engine unavailable")
		writeError(w, http.StatusInternalServerError, "TTS engine not available: "+ue.Engine)
		return
	}
	logx.Log.Error().Str("request_id", reqID).Err(err).Msg("synthesis failed")
	writeError(w, http.StatusInternalServerError, prefix+err.Error())
}
