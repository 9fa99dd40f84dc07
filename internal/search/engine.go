package search

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/pders01/streamview/internal/protocol"
)

// Result is a search hit with relevance scoring.
type Result struct {
	Topic   string
	Offset  int
	Message *protocol.Message
	Score   float64
	Matches []Match
}

// Match represents where text was found
type Match struct {
	Field  string // message field name, or "topic"
	Text   string // matched text snippet
	Weight float64
}

// MinQueryLength is the shortest query that is searched at all.
const MinQueryLength = 2

// Source returns the messages to search.
type Source func() []protocol.Message

// Engine searches the live buffer without an index.
type Engine struct {
	source Source
}

// NewEngine creates a buffer search engine over source.
func NewEngine(source Source) *Engine {
	return &Engine{source: source}
}

// Search scores every message in the source against query.
func (e *Engine) Search(query string, limit int) ([]*Result, error) {
	if len(strings.TrimSpace(query)) < MinQueryLength {
		return []*Result{}, nil
	}

	terms := tokenize(query)
	if len(terms) == 0 {
		return []*Result{}, nil
	}

	var results []*Result
	if e.source != nil {
		for _, m := range e.source() {
			m := m
			if result := e.searchMessage(&m, terms); result != nil {
				results = append(results, result)
			}
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// SearchInMessage reports where query occurs within a single message.
func (e *Engine) SearchInMessage(m *protocol.Message, query string) ([]*Result, error) {
	if len(strings.TrimSpace(query)) < MinQueryLength || m == nil {
		return []*Result{}, nil
	}

	terms := tokenize(query)
	if len(terms) == 0 {
		return []*Result{}, nil
	}
	if result := e.searchMessage(m, terms); result != nil {
		return []*Result{result}, nil
	}
	return []*Result{}, nil
}

// fieldWeight ranks the fields kafka records usually carry.
func fieldWeight(name string) float64 {
	switch name {
	case "key":
		return 3.0
	case "value":
		return 2.0
	default:
		return 1.0
	}
}

func (e *Engine) searchMessage(m *protocol.Message, terms []string) *Result {
	var matches []Match
	var totalScore float64

	if topicScore := e.scoreField(m.Topic, terms, 4.0); topicScore > 0 {
		matches = append(matches, Match{Field: "topic", Text: m.Topic, Weight: topicScore})
		totalScore += topicScore
	}

	for _, name := range fieldNames(m) {
		text, _ := m.Field(name)
		if score := e.scoreField(text, terms, fieldWeight(name)); score > 0 {
			matches = append(matches, Match{
				Field:  name,
				Text:   e.findBestSnippet(text, terms, 200),
				Weight: score,
			})
			totalScore += score
		}
	}

	if totalScore == 0 {
		return nil
	}
	return &Result{
		Topic:   m.Topic,
		Offset:  m.Offset,
		Message: m,
		Score:   totalScore,
		Matches: matches,
	}
}

// fieldNames lists the searchable fields of m in a stable order.
func fieldNames(m *protocol.Message) []string {
	names := make([]string, 0, len(m.Fields))
	for name := range m.Fields {
		if name == "offset" || name == "topic" {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// messageText flattens the searchable fields of m into one document body.
func messageText(m *protocol.Message) string {
	var b strings.Builder
	for _, name := range fieldNames(m) {
		text, _ := m.Field(name)
		fmt.Fprintf(&b, "%s: %s\n", name, text)
	}
	return b.String()
}

// scoreField calculates relevance score for a field
func (e *Engine) scoreField(text string, terms []string, weight float64) float64 {
	if text == "" {
		return 0
	}

	lower := strings.ToLower(text)
	words := tokenize(text)
	if len(words) == 0 {
		words = []string{lower}
	}

	var score float64
	matchedTerms := 0

	for _, term := range terms {
		termLower := strings.ToLower(term)

		// Substring match anywhere in the field
		if strings.Contains(lower, termLower) {
			score += 2.0
			matchedTerms++
		}

		for _, word := range words {
			if word == termLower {
				score += 1.5
				matchedTerms++
			} else if strings.HasPrefix(word, termLower) || strings.HasSuffix(word, termLower) {
				score += 1.0
				matchedTerms++
			}
		}
	}

	if len(terms) > 1 && matchedTerms > 1 {
		score *= 1.0 + float64(matchedTerms)/float64(len(terms))
	}

	tf := float64(matchedTerms) / float64(len(words))
	score *= 1.0 + math.Log(1.0+tf)

	return score * weight
}

// findBestSnippet finds the most relevant text snippet containing search terms
func (e *Engine) findBestSnippet(text string, terms []string, maxLength int) string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return ""
	}

	windowSize := maxLength / 8
	if windowSize > len(words) {
		return truncate(text, maxLength)
	}

	bestScore := 0.0
	bestStart := 0
	for i := 0; i <= len(words)-windowSize; i++ {
		windowText := strings.ToLower(strings.Join(words[i:i+windowSize], " "))
		score := 0.0
		for _, term := range terms {
			if strings.Contains(windowText, term) {
				score++
			}
		}
		if score > bestScore {
			bestScore = score
			bestStart = i
		}
	}

	return truncate(strings.Join(words[bestStart:bestStart+windowSize], " "), maxLength)
}

// tokenize breaks text into lower-cased searchable terms, dropping single characters.
func tokenize(text string) []string {
	var terms []string
	current := strings.Builder{}

	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			current.WriteRune(unicode.ToLower(r))
		} else if current.Len() > 0 {
			if term := current.String(); len(term) > 1 {
				terms = append(terms, term)
			}
			current.Reset()
		}
	}

	if current.Len() > 1 {
		terms = append(terms, current.String())
	}
	return terms
}

// truncate limits text length with ellipsis
func truncate(text string, maxLen int) string {
	runes := []rune(text)
	if len(runes) <= maxLen {
		return text
	}
	return string(runes[:maxLen-1]) + "…"
}
