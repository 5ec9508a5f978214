package tts

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// maxPartRunes is the longest text the Google endpoint accepts per request.
const maxPartRunes = 100

// splitText breaks text into parts of at most max runes. It cuts after
// sentence punctuation first, then between words, and hard-cuts words that
// are longer than max. Parts made only of punctuation are dropped.
func splitText(text string, max int) []string {
	var parts []string
	var cur strings.Builder
	flush := func() {
		p := strings.TrimSpace(cur.String())
		cur.Reset()
		if p != "" && !onlyPunct(p) {
			parts = append(parts, p)
		}
	}
	add := func(piece string) {
		piece = strings.TrimSpace(piece)
		if piece == "" {
			return
		}
		n := utf8.RuneCountInString(cur.String())
		m := utf8.RuneCountInString(piece)
		if n > 0 && n+1+m > max {
			flush()
			n = 0
		}
		if n > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(piece)
	}
	for _, sentence := range sentences(text) {
		if utf8.RuneCountInString(sentence) <= max {
			add(sentence)
			continue
		}
		for _, word := range strings.Fields(sentence) {
			for utf8.RuneCountInString(word) > max {
				r := []rune(word)
				flush()
				add(string(r[:max]))
				flush()
				word = string(r[max:])
			}
			add(word)
		}
	}
	flush()
	return parts
}

// sentences splits after runs of sentence punctuation that are followed by
// whitespace or the end of text, so "3.14" stays whole.
func sentences(text string) []string {
	var out []string
	r := []rune(text)
	start := 0
	for i := 0; i < len(r); i++ {
		if !isSentencePunct(r[i]) && r[i] != '\n' {
			continue
		}
		j := i
		for j+1 < len(r) && isSentencePunct(r[j+1]) {
			j++
		}
		if j+1 == len(r) || unicode.IsSpace(r[j+1]) || r[i] == '\n' {
			out = append(out, string(r[start:j+1]))
			start = j + 1
		}
		i = j
	}
	if start < len(r) {
		out = append(out, string(r[start:]))
	}
	return out
}

func isSentencePunct(c rune) bool {
	switch c {
	case '.', '!', '?', ';', ':', ',', '…', '。', '！', '？', '，', '、':
		return true
	}
	return false
}

func onlyPunct(s string) bool {
	for _, c := range s {
		if !unicode.IsPunct(c) && !unicode.IsSpace(c) && !unicode.IsSymbol(c) {
			return false
		}
	}
	return true
}
