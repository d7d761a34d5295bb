package chunking

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/poiesic/ragstore/core"
	"github.com/tmc/langchaingo/textsplitter"
)

// sentenceMark is inserted between sentences so the recursive splitter can
// use sentence boundaries as its first separator. It never reaches output.
const sentenceMark = "\x1e"

func newLengthSplitter(cfg core.ChunkingConfig, separators []string) textsplitter.RecursiveCharacter {
	return textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(cfg.ChunkSize),
		textsplitter.WithChunkOverlap(cfg.ChunkOverlap),
		textsplitter.WithSeparators(separators),
		textsplitter.WithLenFunc(utf8.RuneCountInString),
	)
}

// sentenceSplitter packs whole sentences into chunks of at most ChunkSize
// runes. Sentences longer than that fall back to line and word splitting.
type sentenceSplitter struct {
	inner textsplitter.RecursiveCharacter
}

func newSentenceSplitter(cfg core.ChunkingConfig) sentenceSplitter {
	return sentenceSplitter{
		inner: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(cfg.ChunkSize),
			textsplitter.WithChunkOverlap(cfg.ChunkOverlap),
			textsplitter.WithSeparators([]string{sentenceMark, "\n", " ", ""}),
			textsplitter.WithLenFunc(markedLen),
		),
	}
}

func (s sentenceSplitter) SplitText(text string) ([]string, error) {
	marked := strings.Join(segmentSentences(text), sentenceMark)
	pieces, err := s.inner.SplitText(marked)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(pieces))
	for _, p := range pieces {
		out = append(out, strings.ReplaceAll(p, sentenceMark, ""))
	}
	return out, nil
}

func markedLen(s string) int {
	return utf8.RuneCountInString(s) - strings.Count(s, sentenceMark)
}

// windowSplitter emits one chunk per sentence: the sentence plus up to
// window neighbours on each side, shrunk from the far end until it fits.
type windowSplitter struct {
	size     int
	window   int
	fallback textsplitter.RecursiveCharacter
}

func newWindowSplitter(cfg core.ChunkingConfig) windowSplitter {
	return windowSplitter{
		size:     cfg.ChunkSize,
		window:   cfg.WindowSize,
		fallback: newLengthSplitter(cfg, DefaultSeparators),
	}
}

func (w windowSplitter) SplitText(text string) ([]string, error) {
	sentences := segmentSentences(text)
	out := make([]string, 0, len(sentences))
	for i := range sentences {
		lo, hi := max(0, i-w.window), min(len(sentences), i+w.window+1)
		chunk := joinSentences(sentences[lo:hi])
		for utf8.RuneCountInString(chunk) > w.size && hi-lo > 1 {
			if i-lo >= hi-1-i {
				lo++
			} else {
				hi--
			}
			chunk = joinSentences(sentences[lo:hi])
		}
		if utf8.RuneCountInString(chunk) <= w.size {
			out = append(out, chunk)
			continue
		}
		pieces, err := w.fallback.SplitText(chunk)
		if err != nil {
			return nil, err
		}
		out = append(out, pieces...)
	}
	return out, nil
}

func joinSentences(sentences []string) string {
	return strings.TrimSpace(strings.Join(sentences, ""))
}

// segmentSentences cuts text after sentence-ending punctuation and at blank
// lines. Segments keep their punctuation and leading whitespace, so
// concatenating them restores the input.
func segmentSentences(text string) []string {
	text = strings.ReplaceAll(text, sentenceMark, "")

	var (
		out     []string
		pending string
		start   int
	)
	emit := func(seg string) {
		if isBlank(seg) {
			pending += seg
			return
		}
		out = append(out, pending+seg)
		pending = ""
	}

	for i := 0; i < len(text); {
		r, width := utf8.DecodeRuneInString(text[i:])
		end := i + width
		boundary := false
		switch r {
		case '。', '！', '？':
			boundary = true
		case '.', '!', '?':
			next, _ := utf8.DecodeRuneInString(text[end:])
			boundary = end == len(text) || unicode.IsSpace(next)
		case '\n':
			if strings.HasPrefix(text[end:], "\n") {
				end++
				boundary = true
			}
		}
		if boundary {
			emit(text[start:end])
			start = end
		}
		i = end
	}
	if start < len(text) {
		emit(text[start:])
	}
	return out
}

// delimiterSeparators decodes escape sequences such as `\n` in user
// delimiters and appends the built-in cascade when merge is set.
func delimiterSeparators(delimiters []string, merge bool) ([]string, error) {
	separators := make([]string, 0, len(delimiters)+len(DefaultSeparators))
	seen := make(map[string]struct{})
	add := func(sep string) {
		if _, ok := seen[sep]; ok {
			return
		}
		seen[sep] = struct{}{}
		separators = append(separators, sep)
	}

	for _, d := range delimiters {
		add(decodeDelimiter(d))
	}
	if merge {
		for _, sep := range DefaultSeparators {
			add(sep)
		}
	}
	if len(separators) == 0 {
		return nil, fmt.Errorf("%w: no delimiters", core.ErrInvalidChunkConfig)
	}
	return separators, nil
}

func decodeDelimiter(d string) string {
	if !strings.Contains(d, `\`) {
		return d
	}
	decoded, err := strconv.Unquote(`"` + d + `"`)
	if err != nil {
		return d
	}
	return decoded
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
