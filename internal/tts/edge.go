package tts

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/difyz9/edge-tts-go/pkg/communicate"
	"github.com/difyz9/edge-tts-go/pkg/types"
	"github.com/difyz9/edge-tts-go/pkg/voices"

	"github.com/gaspardpetit/voicerelay/internal/logx"
)

// Seconds, as the edge client expects them.
const (
	edgeConnectTimeout = 10
	edgeReceiveTimeout = 60
)

// edgeVoices maps a language, optionally with a region, to a default neural voice.
var edgeVoices = map[string]string{
	"ar":    "ar-SA-ZariyahNeural",
	"de":    "de-DE-KatjaNeural",
	"en":    "en-US-AriaNeural",
	"en-au": "en-AU-NatashaNeural",
	"en-ca": "en-CA-ClaraNeural",
	"en-gb": "en-GB-SoniaNeural",
	"en-ie": "en-IE-EmilyNeural",
	"en-in": "en-IN-NeerjaNeural",
	"en-za": "en-ZA-LeahNeural",
	"es":    "es-ES-ElviraNeural",
	"es-mx": "es-MX-DaliaNeural",
	"fr":    "fr-FR-DeniseNeural",
	"fr-ca": "fr-CA-SylvieNeural",
	"hi":    "hi-IN-SwaraNeural",
	"it":    "it-IT-ElsaNeural",
	"ja":    "ja-JP-NanamiNeural",
	"ko":    "ko-KR-SunHiNeural",
	"nl":    "nl-NL-ColetteNeural",
	"pl":    "pl-PL-ZofiaNeural",
	"pt":    "pt-BR-FranciscaNeural",
	"pt-pt": "pt-PT-RaquelNeural",
	"ru":    "ru-RU-SvetlanaNeural",
	"sv":    "sv-SE-SofieNeural",
	"tr":    "tr-TR-EmelNeural",
	"uk":    "uk-UA-PolinaNeural",
	"zh":    "zh-CN-XiaoxiaoNeural",
	"zh-tw": "zh-TW-HsiaoChenNeural",
}

// tldRegions gives the accent a Google top level domain stands for.
var tldRegions = map[string]string{
	"com.au": "au",
	"ca":     "ca",
	"co.uk":  "gb",
	"ie":     "ie",
	"co.in":  "in",
	"co.za":  "za",
	"com.mx": "mx",
	"pt":     "pt",
	"com.br": "br",
	"fr":     "fr",
}

// EdgeEngine synthesizes speech with the Microsoft Edge read-aloud voices.
// The tld only selects an accent when a matching regional voice exists.
type EdgeEngine struct {
	// Voice, when set, is used for every request regardless of language.
	Voice   string
	Proxy   string
	Timeout time.Duration
}

// voiceFor picks the voice for lang and tld.
func (e *EdgeEngine) voiceFor(lang, tld string) (string, error) {
	if e.Voice != "" {
		return e.Voice, nil
	}
	lang = strings.ReplaceAll(strings.ToLower(strings.TrimSpace(lang)), "_", "-")
	if v, ok := edgeVoices[lang]; ok && strings.Contains(lang, "-") {
		return v, nil
	}
	base, _, _ := strings.Cut(lang, "-")
	if region, ok := tldRegions[strings.ToLower(tld)]; ok {
		if v, ok := edgeVoices[base+"-"+region]; ok {
			return v, nil
		}
	}
	if v, ok := edgeVoices[base]; ok {
		return v, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedLanguage, lang)
}

func (e *EdgeEngine) Synthesize(ctx context.Context, req Request) ([]byte, error) {
	req, err := req.Normalize()
	if err != nil {
		return nil, err
	}
	voice, err := e.voiceFor(req.Lang, req.TLD)
	if err != nil {
		return nil, err
	}
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}
	rate := "+0%"
	if req.Slow {
		rate = "-50%"
	}
	comm, err := communicate.NewCommunicate(req.Text, voice, rate, "+0%", "+0Hz", e.Proxy, edgeConnectTimeout, edgeReceiveTimeout)
	if err != nil {
		return nil, fmt.Errorf("edge tts: %w", err)
	}

	// The edge client only writes to files.
	f, err := os.CreateTemp("", "voicerelay-*.mp3")
	if err != nil {
		return nil, err
	}
	path := f.Name()
	_ = f.Close()
	defer func() {
		_ = os.Remove(path)
	}()
	if err := comm.Save(ctx, path, ""); err != nil {
		return nil, fmt.Errorf("edge tts: %w", err)
	}
	audio, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	logx.Log.Debug().Str("voice", voice).Bool("slow", req.Slow).Int("bytes", len(audio)).Msg("synthesized")
	return audio, nil
}

// EdgeVoices lists the voices offered by the Edge service whose locale starts
// with prefix (case-insensitive). An empty prefix lists everything.
func EdgeVoices(ctx context.Context, proxy, prefix string) ([]types.Voice, error) {
	all, err := voices.ListVoices(ctx, proxy)
	if err != nil {
		return nil, err
	}
	prefix = strings.ToLower(prefix)
	var out []types.Voice
	for _, v := range all {
		if strings.HasPrefix(strings.ToLower(v.Locale), prefix) {
			out = append(out, v)
		}
	}
	return out, nil
}
