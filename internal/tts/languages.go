package tts

import (
	"fmt"
	"strings"
)

// googleLanguages are the language codes the Google Translate voice accepts.
var googleLanguages = map[string]string{
	"af": "Afrikaans", "am": "Amharic", "ar": "Arabic", "bg": "Bulgarian",
	"bn": "Bengali", "bs": "Bosnian", "ca": "Catalan", "cs": "Czech",
	"cy": "Welsh", "da": "Danish", "de": "German", "el": "Greek",
	"en": "English", "es": "Spanish", "et": "Estonian", "eu": "Basque",
	"fi": "Finnish", "fr": "French", "fr-CA": "French (Canada)", "gl": "Galician",
	"gu": "Gujarati", "ha": "Hausa", "hi": "Hindi", "hr": "Croatian",
	"hu": "Hungarian", "id": "Indonesian", "is": "Icelandic", "it": "Italian",
	"iw": "Hebrew", "ja": "Japanese", "jw": "Javanese", "km": "Khmer",
	"kn": "Kannada", "ko": "Korean", "la": "Latin", "lt": "Lithuanian",
	"lv": "Latvian", "ml": "Malayalam", "mr": "Marathi", "ms": "Malay",
	"my": "Myanmar (Burmese)", "ne": "Nepali", "nl": "Dutch", "no": "Norwegian",
	"pa": "Punjabi (Gurmukhi)", "pl": "Polish", "pt": "Portuguese (Brazil)", "pt-PT": "Portuguese (Portugal)",
	"ro": "Romanian", "ru": "Russian", "si": "Sinhala", "sk": "Slovak",
	"sq": "Albanian", "sr": "Serbian", "su": "Sundanese", "sv": "Swedish",
	"sw": "Swahili", "ta": "Tamil", "te": "Telugu", "th": "Thai",
	"tl": "Filipino", "tr": "Turkish", "uk": "Ukrainian", "ur": "Urdu",
	"vi": "Vietnamese", "yue": "Cantonese", "zh-CN": "Chinese (Simplified)", "zh-TW": "Chinese (Traditional)",
	"zh": "Chinese (Mandarin)",
}

// aliases maps older or regional spellings onto supported codes.
var aliases = map[string]string{
	"he":      "iw",
	"zh-cn":   "zh-CN",
	"zh-tw":   "zh-TW",
	"zh-hans": "zh-CN",
	"zh-hant": "zh-TW",
	"nb":      "no",
	"fil":     "tl",
}

// resolveLanguage returns the canonical code for lang. Region-qualified
// codes that the voice does not know fall back to their base language, so
// "en-us" becomes "en".
func resolveLanguage(lang string) (string, error) {
	key := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(lang), "_", "-"))
	if code, ok := aliases[key]; ok {
		return code, nil
	}
	for code := range googleLanguages {
		if strings.ToLower(code) == key {
			return code, nil
		}
	}
	if base, _, found := strings.Cut(key, "-"); found {
		if _, ok := googleLanguages[base]; ok {
			return base, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedLanguage, lang)
}

// Languages returns the supported language codes and names.
func Languages() map[string]string {
	out := make(map[string]string, len(googleLanguages))
	for k, v := range googleLanguages {
		out[k] = v
	}
	return out
}
