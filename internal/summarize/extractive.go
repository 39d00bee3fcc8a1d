// Package summarize implements the extractive text summarizer run by
// summarization jobs.
package summarize

import (
	"context"
	"errors"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ErrMalformedInput is returned for text that is not valid UTF-8.
var ErrMalformedInput = errors.New("summarize: input is not valid UTF-8")

// Summarizer condenses text. Implementations must be pure: the same input
// always yields the same summary.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}

// DefaultRatio is the share of sentences kept in a summary.
const DefaultRatio = 0.3

// shortTextRunes caps the output for texts too short to rank.
const shortTextRunes = 500

// Extractive scores each sentence by the normalized frequency of its
// non-stop-words and keeps the best ones in document order.
type Extractive struct {
	ratio float64
}

// NewExtractive returns an Extractive summarizer keeping ratio of the
// sentences. A ratio outside (0, 1] falls back to DefaultRatio.
func NewExtractive(ratio float64) *Extractive {
	if ratio <= 0 || ratio > 1 {
		ratio = DefaultRatio
	}
	return &Extractive{ratio: ratio}
}

// Summarize keeps max(1, floor(n*ratio)) of the n sentences, highest score
// first with ties going to the earlier sentence, and joins them in document
// order. Sentences without a scoring word rank last but are kept when the
// quota needs them. Repeated sentences are ranked separately.
func (e *Extractive) Summarize(ctx context.Context, text string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !utf8.ValidString(text) {
		return "", ErrMalformedInput
	}

	sentences := splitSentences(text)
	if len(sentences) < 2 {
		return truncateRunes(text, shortTextRunes), nil
	}

	freq := make(map[string]int)
	total := 0
	for _, s := range sentences {
		for _, w := range words(s) {
			if _, stop := stopWords[w]; stop {
				continue
			}
			freq[w]++
			total++
		}
	}

	type scored struct {
		idx   int
		score float64
	}
	ranked := make([]scored, len(sentences))
	for i, s := range sentences {
		ranked[i].idx = i
		if total == 0 {
			continue
		}
		for _, w := range words(s) {
			if n, ok := freq[w]; ok {
				ranked[i].score += float64(n) / float64(total)
			}
		}
	}

	keep := int(float64(len(sentences)) * e.ratio)
	if keep < 1 {
		keep = 1
	}

	// Stable: equal scores keep the earlier sentence.
	sort.SliceStable(ranked, func(a, b int) bool { return ranked[a].score > ranked[b].score })
	chosen := ranked[:keep]
	sort.Slice(chosen, func(a, b int) bool { return chosen[a].idx < chosen[b].idx })

	out := make([]string, len(chosen))
	for i, c := range chosen {
		out[i] = sentences[c.idx]
	}
	return strings.Join(out, " "), nil
}

// splitSentences breaks text after runs of '.', '!' or '?' that are
// followed by whitespace or the end of the text.
func splitSentences(text string) []string {
	var (
		out   []string
		start int
	)
	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		if !isTerminator(runes[i]) {
			continue
		}
		j := i + 1
		for j < len(runes) && (isTerminator(runes[j]) || isCloser(runes[j])) {
			j++
		}
		if j < len(runes) && !unicode.IsSpace(runes[j]) {
			i = j - 1
			continue
		}
		if s := strings.TrimSpace(string(runes[start:j])); s != "" {
			out = append(out, s)
		}
		start = j
		i = j - 1
	}
	if s := strings.TrimSpace(string(runes[start:])); s != "" {
		out = append(out, s)
	}
	return out
}

func isTerminator(r rune) bool { return r == '.' || r == '!' || r == '?' }

func isCloser(r rune) bool { return r == '"' || r == '\'' || r == ')' || r == '’' || r == '”' }

func words(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
