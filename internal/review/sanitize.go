package review

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	json "github.com/goccy/go-json"
)

// Default size limits applied by the Sanitizer.
const (
	DefaultMaxInput    = 50_000
	DefaultMaxResponse = 100_000
)

const truncatedMarker = "\n# ... (truncated)"

// Response validation failures.
var (
	ErrResponseTooShort = errors.New("response too short")
	ErrResponseNotJSON  = errors.New("response is not valid JSON")
	ErrResponseRefusal  = errors.New("response reads as a refusal or error")
)

// Patterns annotated in code sent to the models. Matches are kept and
// prefixed so reviewers still see the original text.
var flaggedPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:^|\s)(?:rm|format|shutdown|reboot|kill|killall)\s`),
	regexp.MustCompile(`(?i)(?:^|\s)(?:sudo|su|chmod|chown)\s`),
	regexp.MustCompile(`(?i)(?:^|\s)(?:wget|curl|nc|netcat|telnet|ssh)\s`),
	regexp.MustCompile(`(?i)\b(?:eval|exec|system|shell_exec|passthru)\s*\(`),
	regexp.MustCompile(`/etc/(?:passwd|shadow)`),
	regexp.MustCompile(`(?i)<script[^>]*>`),
	regexp.MustCompile(`(?i)javascript:`),
	regexp.MustCompile(`(?i)\bon(?:click|load|error|mouseover|focus|blur|submit|change)\s*=`),
}

type replacement struct {
	re   *regexp.Regexp
	with string
}

// Phrases that try to steer the model are replaced outright.
var injectionPatterns = []replacement{
	{regexp.MustCompile(`(?i)ignore\s+(?:previous|all|above)\s+(?:instructions?|prompts?|commands?)`), "# SANITIZED: ignore instruction attempt"},
	{regexp.MustCompile(`(?i)forget\s+(?:everything|all|previous)`), "# SANITIZED: forget instruction attempt"},
	{regexp.MustCompile(`(?i)now\s+(?:act|behave|pretend)\s+(?:as|like)`), "# SANITIZED: role change attempt"},
	{regexp.MustCompile(`(?i)you\s+are\s+now\s+`), "# SANITIZED: identity change attempt"},
	{regexp.MustCompile(`(?im)^\s*(?:system|assistant|human)\s*:`), "# SANITIZED: role marker"},
	{regexp.MustCompile("(?i)```\\s*(?:end|stop|exit|quit)"), "# SANITIZED: escape sequence attempt"},
}

var responsePatterns = []replacement{
	{regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`), "# SANITIZED: script content"},
	{regexp.MustCompile(`data:(?:text|application)/[^;]+;base64,[A-Za-z0-9+/=]+`), "# SANITIZED: data URI"},
}

var secretPatterns = []replacement{
	{regexp.MustCompile(`(?i)(?:api[_-]?key|token|secret)["']?\s*[:=]\s*["']?[A-Za-z0-9_\-]{20,}["']?`), `api_key="***MASKED***"`},
	{regexp.MustCompile(`(?i)(?:password|passwd|pwd)["']?\s*[:=]\s*["']?[^\s"']{8,}["']?`), `password="***MASKED***"`},
	{regexp.MustCompile(`\bgh[pousr]_[A-Za-z0-9]{36,}\b`), "***MASKED***"},
	{regexp.MustCompile(`\bsk-[A-Za-z0-9_\-]{20,}\b`), "***MASKED***"},
	{regexp.MustCompile(`\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`), "***EMAIL_MASKED***"},
	{regexp.MustCompile(`\b(?:[0-9]{1,3}\.){3}[0-9]{1,3}\b`), "***IP_MASKED***"},
}

var refusalIndicators = []string{
	"i'm sorry, i can't",
	"i cannot",
	"i'm not able to",
	"error:",
	"exception:",
	"failed to",
}

var allowedPathChars = regexp.MustCompile(`^[A-Za-z0-9._\-/ +@]+$`)

// Sanitizer cleans text crossing the boundary between repository content,
// the models and GitHub.
type Sanitizer struct {
	MaxInput    int
	MaxResponse int
	logger      *slog.Logger
}

// NewSanitizer returns a Sanitizer with the default limits.
func NewSanitizer(logger *slog.Logger) *Sanitizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sanitizer{
		MaxInput:    DefaultMaxInput,
		MaxResponse: DefaultMaxResponse,
		logger:      logger,
	}
}

// SanitizeCode prepares file content for a prompt: it truncates to
// MaxInput bytes, annotates risky shell and script constructs and removes
// prompt injection phrases.
func (s *Sanitizer) SanitizeCode(path, code string) string {
	if code == "" {
		return ""
	}
	out := truncate(code, s.MaxInput)
	if len(out) != len(code) {
		s.logger.Warn("code input truncated", "path", path, "size", len(code), "limit", s.MaxInput)
	}
	for _, re := range flaggedPatterns {
		if !re.MatchString(out) {
			continue
		}
		s.logger.Warn("flagged pattern in code input", "path", path, "pattern", re.String())
		out = re.ReplaceAllStringFunc(out, func(m string) string {
			return "# SANITIZED: " + m
		})
	}
	return s.stripInjection(path, out)
}

func (s *Sanitizer) stripInjection(path, text string) string {
	for _, p := range injectionPatterns {
		if p.re.MatchString(text) {
			s.logger.Warn("prompt injection phrase removed", "path", path, "replacement", p.with)
			text = p.re.ReplaceAllLiteralString(text, p.with)
		}
	}
	return text
}

// SanitizeResponse removes script blocks and data URIs from a model reply
// and caps its length at MaxResponse bytes.
func (s *Sanitizer) SanitizeResponse(resp string) string {
	for _, p := range responsePatterns {
		resp = p.re.ReplaceAllLiteralString(resp, p.with)
	}
	out := truncate(resp, s.MaxResponse)
	if len(out) != len(resp) {
		s.logger.Warn("model response truncated", "size", len(resp), "limit", s.MaxResponse)
	}
	return out
}

// MaskSecrets replaces API keys, tokens, passwords, e-mail addresses and
// IPv4 addresses in text that leaves the process.
func MaskSecrets(text string) string {
	for _, p := range secretPatterns {
		text = p.re.ReplaceAllString(text, p.with)
	}
	return text
}

// ValidatePath reports why a repository path should not be sent for
// review, or nil. Paths must be relative, free of traversal and name a
// recognised source file.
func ValidatePath(path string) error {
	switch {
	case path == "":
		return errors.New("empty path")
	case strings.Contains(path, "..") || strings.Contains(path, "~"):
		return fmt.Errorf("path traversal in %q", path)
	case strings.HasPrefix(path, "/") || (len(path) > 1 && path[1] == ':'):
		return fmt.Errorf("absolute path %q", path)
	case !allowedPathChars.MatchString(path):
		return fmt.Errorf("unexpected characters in %q", path)
	case !isSourceFile(path):
		return fmt.Errorf("not a source file: %q", path)
	}
	return nil
}

// CheckResponse validates a model reply. wantJSON additionally requires the
// reply, once code fences are removed, to parse as JSON.
func CheckResponse(resp string, wantJSON bool) error {
	trimmed := strings.TrimSpace(resp)
	if len(trimmed) < 10 {
		return ErrResponseTooShort
	}
	if wantJSON {
		var v any
		if err := json.Unmarshal([]byte(extractJSON(trimmed)), &v); err != nil {
			return fmt.Errorf("%w: %v", ErrResponseNotJSON, err)
		}
	}
	lower := strings.ToLower(trimmed)
	for _, ind := range refusalIndicators {
		if strings.Contains(lower, ind) {
			return fmt.Errorf("%w: contains %q", ErrResponseRefusal, ind)
		}
	}
	return nil
}

func truncate(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	return s[:limit] + truncatedMarker
}
