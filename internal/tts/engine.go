package tts

import (
	"strings"

	"github.com/gaspardpetit/voicerelay/internal/config"
	"github.com/gaspardpetit/voicerelay/internal/logx"
)

// NewEngine builds the synthesizer selected by cfg. Unknown or disabled
// engines yield an Unavailable synthesizer so the server still starts and
// reports the missing engine per request.
func NewEngine(cfg config.TTSConfig) Synthesizer {
	switch strings.ToLower(cfg.Engine) {
	case "gtts", "google":
		return NewGoogleEngine(WithRateLimit(cfg.RequestsPerSecond), WithTimeout(cfg.Timeout))
	case "edge":
		return &EdgeEngine{Voice: cfg.Voice, Proxy: cfg.Proxy, Timeout: cfg.Timeout}
	case "", "none":
		logx.Log.Warn().Msg("speech synthesis disabled")
		return Unavailable{Engine: "gtts"}
	default:
		logx.Log.Warn().Str("engine", cfg.Engine).Msg("unknown speech synthesis engine")
		return Unavailable{Engine: cfg.Engine}
	}
}
