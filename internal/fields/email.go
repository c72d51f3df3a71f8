package fields

import (
	"context"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/joseph-ayodele/docflow/internal/entity"
	"github.com/joseph-ayodele/docflow/internal/nlp"
)

// Intent labels.
const (
	IntentUrgent       = "urgent_request"
	IntentSupport      = "support_request"
	IntentBilling      = "billing_inquiry"
	IntentMeeting      = "meeting_request"
	IntentAppreciation = "appreciation"
	IntentFeedback     = "feedback"
	IntentGeneral      = "general_inquiry"
)

// Fixed confidences reported for each analysis stage.
const (
	ConfidenceEntities = 0.85
	ConfidenceIntent   = 0.78
	ConfidenceEffort   = 0.65
	ConfidenceUrgency  = 0.72
)

type intentRule struct {
	intent   string
	keywords []string
}

// intentRules are evaluated in order; the first rule with a keyword
// present in the text wins.
var intentRules = []intentRule{
	{IntentUrgent, []string{"urgent", "immediately", "asap", "emergency"}},
	{IntentSupport, []string{"help", "support", "assist", "guidance"}},
	{IntentBilling, []string{"invoice", "payment", "bill", "quote", "price"}},
	{IntentMeeting, []string{"meeting", "call", "appointment", "schedule"}},
	{IntentAppreciation, []string{"thank", "appreciate", "grateful", "thanks"}},
	{IntentFeedback, []string{"feedback", "review", "opinion", "suggestion"}},
}

var intentEffort = map[string]int{
	IntentUrgent:  30,
	IntentSupport: 20,
	IntentBilling: 15,
	IntentMeeting: 10,
}

type urgencyRule struct {
	delta    float64
	keywords []string
}

var urgencyRules = []urgencyRule{
	{0.4, []string{"urgent", "emergency", "asap"}},
	{0.2, []string{"important", "priority"}},
	{0.2, []string{"tomorrow", "today"}},
	{-0.3, []string{"when possible", "no rush"}},
}

// ClassifyIntent matches keywords as substrings of the lowercased
// "subject body" text.
func ClassifyIntent(subject, body string) string {
	text := strings.ToLower(subject + " " + body)
	for _, r := range intentRules {
		if containsAny(text, r.keywords) {
			return r.intent
		}
	}
	return IntentGeneral
}

// EstimateEffort returns minutes of handling time.
func EstimateEffort(intent, body string) int {
	if m, ok := intentEffort[intent]; ok {
		return m
	}
	switch n := utf8.RuneCountInString(body); {
	case n > 1000:
		return 25
	case n > 500:
		return 15
	default:
		return 10
	}
}

// UrgencyScore starts at 0.5, applies each matching rule once, and clamps
// the result to [0, 1].
func UrgencyScore(subject, body string) float64 {
	text := strings.ToLower(subject + " " + body)
	score := 0.5
	for _, r := range urgencyRules {
		if containsAny(text, r.keywords) {
			score += r.delta
		}
	}
	return min(1.0, max(0.0, score))
}

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}

// EmailAnalyzer combines entity recognition with the keyword rules.
type EmailAnalyzer struct {
	recognizer nlp.Recognizer
	log        *slog.Logger
}

func NewEmailAnalyzer(recognizer nlp.Recognizer, log *slog.Logger) *EmailAnalyzer {
	if log == nil {
		log = slog.Default()
	}
	if recognizer == nil {
		recognizer = nlp.PatternRecognizer{}
	}
	return &EmailAnalyzer{recognizer: recognizer, log: log}
}

// Analyze never fails: a recognizer error leaves the entity groups empty,
// drops the entity confidence to 0 and is returned as entityErr.
func (a *EmailAnalyzer) Analyze(ctx context.Context, in entity.EmailInput) (fields *entity.EmailFields, confidence map[string]float64, entityErr error) {
	confidence = map[string]float64{
		"entity_extraction":     ConfidenceEntities,
		"intent_classification": ConfidenceIntent,
		"effort_estimation":     ConfidenceEffort,
		"urgency_detection":     ConfidenceUrgency,
	}

	ents, err := a.recognizer.Recognize(ctx, in.Subject+". "+in.Content)
	if err != nil {
		a.log.Warn("email.entities.error", "error", err)
		confidence["entity_extraction"] = 0
		ents = nil
		entityErr = err
	}

	intent := ClassifyIntent(in.Subject, in.Content)
	fields = &entity.EmailFields{
		Subject:          in.Subject,
		SenderEmail:      in.SenderEmail,
		SenderName:       in.SenderName,
		RecipientEmails:  nonNil(in.RecipientEmails),
		CCEmails:         nonNil(in.CCEmails),
		BodyText:         in.Content,
		Entities:         nlp.Group(ents),
		Intent:           intent,
		IntentConfidence: ConfidenceIntent,
		UrgencyScore:     UrgencyScore(in.Subject, in.Content),
		EffortEstimate:   EstimateEffort(intent, in.Content),
	}
	return fields, confidence, entityErr
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
