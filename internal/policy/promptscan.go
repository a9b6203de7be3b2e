package policy

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/forgeworks/warden/internal/dispatch"
	"github.com/forgeworks/warden/internal/hookio"
)

type piiPattern struct {
	label string
	re    *regexp.Regexp
}

// Ordered so the advisory lists credential classes before softer PII.
var piiPatterns = []piiPattern{
	{"AWS access key", regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`)},
	{"GitHub token", regexp.MustCompile(`\b(?:ghp_[A-Za-z0-9]{36}|github_pat_[A-Za-z0-9_]{22,})\b`)},
	{"private key material", regexp.MustCompile(`-----BEGIN (?:RSA |EC |OPENSSH |DSA )?PRIVATE KEY-----`)},
	{"password assignment", regexp.MustCompile(`(?i)\b(?:password|passwd|pwd)\s*[:=]\s*\S+`)},
	{"API key/secret assignment", regexp.MustCompile(`(?i)\b(?:api[_-]?key|secret[_-]?key|auth[_-]?token|access[_-]?token)\s*[:=]\s*['"]?[A-Za-z0-9_\-./+]{8,}`)},
	{"social security number", regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
	{"email address", regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)},
	{"phone number", regexp.MustCompile(`\b(?:\+?1[-.\s]?)?\(?\d{3}\)?[-.\s]\d{3}[-.\s]\d{4}\b`)},
	{"credit card number", regexp.MustCompile(`\b(?:\d[ -]?){13,16}\b`)},
}

// creditCardLike guards the broad card pattern against matching plain
// numbers and private IPs: it must have separators or Luhn-plausible length.
func creditCardLike(match string) bool {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, match)
	if len(digits) < 13 || len(digits) > 16 {
		return false
	}
	return strings.ContainsAny(match, " -")
}

// PromptScanner surfaces an advisory when a submitted prompt carries
// credentials or personally identifying data. It never denies: the user
// stays in control of their own prompt text.
type PromptScanner struct{}

func NewPromptScanner() *PromptScanner { return &PromptScanner{} }

func (s *PromptScanner) Name() string { return "promptscan" }

func (s *PromptScanner) Handle(_ context.Context, ev *hookio.Event) (*dispatch.Result, error) {
	if ev.Prompt == "" {
		return dispatch.Allow(), nil
	}
	found := ScanPII(ev.Prompt)
	if len(found) == 0 {
		return dispatch.Allow(), nil
	}
	var b strings.Builder
	b.WriteString("PII Detection Warning: the prompt appears to contain sensitive data:\n")
	for _, label := range found {
		fmt.Fprintf(&b, "  - %s\n", label)
	}
	b.WriteString("Avoid pasting credentials or personal data into prompts.")
	return dispatch.AdviseResult(b.String()), nil
}

// ScanPII returns the labels of all sensitive-data classes detected in text,
// deduplicated, in pattern-table order.
func ScanPII(text string) []string {
	var found []string
	for _, p := range piiPatterns {
		match := p.re.FindString(text)
		if match == "" {
			continue
		}
		if p.label == "credit card number" && !creditCardLike(match) {
			continue
		}
		found = append(found, p.label)
	}
	return found
}
