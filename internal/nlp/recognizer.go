// Package nlp provides named-entity recognition for email analysis.
package nlp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/joseph-ayodele/docflow/internal/entity"
)

// Entity is one recognised span with an OntoNotes-style label
// (PERSON, ORG, DATE, TIME, MONEY, GPE, LOC, ...).
type Entity struct {
	Text  string `json:"text"`
	Label string `json:"label"`
}

// Recognizer finds named entities in text.
type Recognizer interface {
	Recognize(ctx context.Context, text string) ([]Entity, error)
}

// Group buckets entities into categories, dropping duplicates and labels
// without a category. Every category slice is non-nil.
func Group(ents []Entity) entity.Entities {
	out := entity.Entities{
		Persons:       []string{},
		Organizations: []string{},
		Dates:         []string{},
		Times:         []string{},
		Money:         []string{},
		Locations:     []string{},
	}
	for _, e := range ents {
		text := strings.TrimSpace(e.Text)
		if text == "" {
			continue
		}
		var bucket *[]string
		switch strings.ToUpper(e.Label) {
		case "PERSON":
			bucket = &out.Persons
		case "ORG":
			bucket = &out.Organizations
		case "DATE":
			bucket = &out.Dates
		case "TIME":
			bucket = &out.Times
		case "MONEY":
			bucket = &out.Money
		case "GPE", "LOC":
			bucket = &out.Locations
		default:
			continue
		}
		if !slices.Contains(*bucket, text) {
			*bucket = append(*bucket, text)
		}
	}
	return out
}

// HTTPRecognizer calls an external NER service:
// POST {"text": ...} -> {"entities": [{"text": ..., "label": ...}]}.
type HTTPRecognizer struct {
	url    string
	apiKey string
	client *http.Client
	log    *slog.Logger
}

func NewHTTPRecognizer(url, apiKey string, timeout time.Duration, log *slog.Logger) *HTTPRecognizer {
	if log == nil {
		log = slog.Default()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPRecognizer{url: url, apiKey: apiKey, client: &http.Client{Timeout: timeout}, log: log}
}

type recognizeRequest struct {
	Text string `json:"text"`
}

type recognizeResponse struct {
	Entities []Entity `json:"entities"`
}

func (r *HTTPRecognizer) Recognize(ctx context.Context, text string) ([]Entity, error) {
	headers := map[string]string{}
	if r.apiKey != "" {
		headers["Authorization"] = "Bearer " + r.apiKey
	}
	raw, status, err := SendJSON(ctx, r.client, r.url, recognizeRequest{Text: text}, headers, r.log)
	if err != nil {
		return nil, fmt.Errorf("ner request (status %d): %w", status, err)
	}
	var resp recognizeResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode ner response: %w", err)
	}
	return resp.Entities, nil
}

var (
	reMoney   = regexp.MustCompile(`(?:[€$£]\s?\d[\d.,]*|\b\d[\d.,]*\s?(?:EUR|USD|GBP|euros?|dollars?)\b)`)
	reDateNum = regexp.MustCompile(`\b\d{1,2}[-/.]\d{1,2}[-/.]\d{2,4}\b|\b\d{4}-\d{2}-\d{2}\b`)
	reMonth   = regexp.MustCompile(`\b(?:\d{1,2}\s+)?(?:Jan(?:uary)?|Feb(?:ruary)?|Mar(?:ch)?|Apr(?:il)?|May|June?|July?|Aug(?:ust)?|Sep(?:tember)?|Oct(?:ober)?|Nov(?:ember)?|Dec(?:ember)?)(?:\s+\d{1,2}(?:st|nd|rd|th)?)?(?:,?\s+\d{4})?\b`)
	reRelDay  = regexp.MustCompile(`(?i)\b(?:today|tomorrow|yesterday|next week|(?:next\s+)?(?:monday|tuesday|wednesday|thursday|friday|saturday|sunday))\b`)
	reTime    = regexp.MustCompile(`(?i)\b\d{1,2}:\d{2}(?:\s?[ap]\.?m\.?)?\b|\b\d{1,2}\s?[ap]\.?m\.?\b`)
	reOrg     = regexp.MustCompile(`\b(?:[A-Z][\w&]*\s){0,3}[A-Z][\w&]*\s(?:B\.?V\.?|N\.?V\.?|Inc\.?|Ltd\.?|LLC|GmbH|Corp\.?|Company|Group)\b`)
	rePerson  = regexp.MustCompile(`\b(?:Mr|Mrs|Ms|Dr|Prof)\.?\s[A-Z][a-z]+(?:\s[A-Z][a-z]+)?`)
)

// PatternRecognizer is a dependency-free fallback used when no NER service
// is configured. It recognises money, dates, times, organisations with a
// legal-form suffix, and titled persons.
type PatternRecognizer struct{}

func (PatternRecognizer) Recognize(_ context.Context, text string) ([]Entity, error) {
	var out []Entity
	add := func(re *regexp.Regexp, label string) {
		for _, m := range re.FindAllString(text, -1) {
			out = append(out, Entity{Text: strings.TrimRight(strings.TrimSpace(m), ".,"), Label: label})
		}
	}
	add(reMoney, "MONEY")
	add(reDateNum, "DATE")
	add(reMonth, "DATE")
	add(reRelDay, "DATE")
	add(reTime, "TIME")
	add(reOrg, "ORG")
	add(rePerson, "PERSON")
	return out, nil
}
