package slogging

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
)

// RedactionAction defines how sensitive data should be handled
type RedactionAction string

const (
	// RedactionOmit removes the field entirely from logs
	RedactionOmit RedactionAction = "omit"
	// RedactionObfuscate replaces the value with [REDACTED]
	RedactionObfuscate RedactionAction = "obfuscate"
	// RedactionPartial shows the value's edges with the middle redacted
	RedactionPartial RedactionAction = "partial"
)

// RedactionRule defines a single redaction rule
type RedactionRule struct {
	// FieldPattern is a regex pattern to match field names
	FieldPattern string `yaml:"field_pattern" json:"field_pattern"`
	// Action specifies what to do with matching fields
	Action RedactionAction `yaml:"action" json:"action"`

	compiledPattern *regexp.Regexp `yaml:"-" json:"-"`
}

// RedactionConfig holds all redaction rules
type RedactionConfig struct {
	// Enabled controls whether redaction is active
	Enabled bool `yaml:"enabled" json:"enabled"`
	// Rules contains all redaction rules
	Rules []RedactionRule `yaml:"rules" json:"rules"`
}

// DefaultRedactionConfig provides sensible defaults for security
func DefaultRedactionConfig() RedactionConfig {
	return RedactionConfig{
		Enabled: true,
		Rules: []RedactionRule{
			{
				FieldPattern: "(?i)(authorization|bearer|token|jwt|access_token)",
				Action:       RedactionPartial,
			},
			{
				FieldPattern: "(?i)(password|secret|api_key|private_key|signing_key)",
				Action:       RedactionOmit,
			},
			{
				FieldPattern: "(?i)(cookie|set-cookie)",
				Action:       RedactionPartial,
			},
		},
	}
}

// CompileRules compiles regex patterns for all rules
func (rc *RedactionConfig) CompileRules() error {
	for i := range rc.Rules {
		pattern, err := regexp.Compile(rc.Rules[i].FieldPattern)
		if err != nil {
			return fmt.Errorf("failed to compile redaction pattern '%s': %w", rc.Rules[i].FieldPattern, err)
		}
		rc.Rules[i].compiledPattern = pattern
	}
	return nil
}

// partialRedactValue keeps just enough of a secret to correlate log lines.
func partialRedactValue(value string) string {
	if value == "" {
		return value
	}
	if len(value) <= 12 {
		return "[REDACTED]"
	}

	if strings.HasPrefix(strings.ToLower(value), "bearer ") {
		return value[:7] + partialRedactValue(value[7:])
	}

	// JWTs keep the header prefix and signature tail
	if strings.Count(value, ".") == 2 && strings.HasPrefix(value, "eyJ") {
		parts := strings.Split(value, ".")
		header, sig := parts[0], parts[2]
		if len(header) > 8 {
			header = header[:8] + "..."
		}
		if len(sig) > 4 {
			sig = "..." + sig[len(sig)-4:]
		}
		return header + ".REDACTED." + sig
	}

	visibleStart, visibleEnd := 6, 4
	if len(value) < visibleStart+visibleEnd+10 {
		visibleStart, visibleEnd = 3, 2
	}
	return value[:visibleStart] + "...REDACTED..." + value[len(value)-visibleEnd:]
}

// redactionHandler wraps another slog.Handler to apply redaction rules
type redactionHandler struct {
	handler slog.Handler
	config  RedactionConfig
}

// NewRedactionHandler creates a new redaction handler
func NewRedactionHandler(handler slog.Handler, config RedactionConfig) (slog.Handler, error) {
	if err := config.CompileRules(); err != nil {
		return nil, err
	}
	return &redactionHandler{handler: handler, config: config}, nil
}

func (h *redactionHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

func (h *redactionHandler) Handle(ctx context.Context, record slog.Record) error {
	if !h.config.Enabled {
		return h.handler.Handle(ctx, record)
	}

	newRecord := slog.NewRecord(record.Time, record.Level, record.Message, record.PC)
	record.Attrs(func(attr slog.Attr) bool {
		redacted, omit := h.redactAttribute(attr)
		if !omit {
			newRecord.AddAttrs(redacted)
		}
		return true
	})
	return h.handler.Handle(ctx, newRecord)
}

func (h *redactionHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	redactedAttrs := make([]slog.Attr, 0, len(attrs))
	for _, attr := range attrs {
		redacted, omit := h.redactAttribute(attr)
		if !omit {
			redactedAttrs = append(redactedAttrs, redacted)
		}
	}
	return &redactionHandler{
		handler: h.handler.WithAttrs(redactedAttrs),
		config:  h.config,
	}
}

func (h *redactionHandler) WithGroup(name string) slog.Handler {
	return &redactionHandler{
		handler: h.handler.WithGroup(name),
		config:  h.config,
	}
}

// redactAttribute applies redaction rules to a single attribute. The second
// return value reports whether the attribute must be omitted entirely.
func (h *redactionHandler) redactAttribute(attr slog.Attr) (slog.Attr, bool) {
	for _, rule := range h.config.Rules {
		if rule.compiledPattern == nil || !rule.compiledPattern.MatchString(attr.Key) {
			continue
		}
		switch rule.Action {
		case RedactionOmit:
			return slog.Attr{}, true
		case RedactionObfuscate:
			return slog.String(attr.Key, "[REDACTED]"), false
		case RedactionPartial:
			return slog.String(attr.Key, partialRedactValue(attr.Value.String())), false
		}
	}
	return attr, false
}

// SanitizeLogMessage removes newlines and other control characters so that
// user-controlled values cannot forge log records.
func SanitizeLogMessage(message string) string {
	message = strings.ReplaceAll(message, "\n", " ")
	message = strings.ReplaceAll(message, "\r", " ")
	message = strings.ReplaceAll(message, "\t", " ")
	return strings.TrimSpace(strings.Join(strings.Fields(message), " "))
}

// RedactSensitiveInfo masks token-like strings before they reach the log stream.
func RedactSensitiveInfo(input string) string {
	if input == "" {
		return input
	}
	config := DefaultRedactionConfig()
	for _, rule := range config.Rules {
		pattern, err := regexp.Compile(rule.FieldPattern)
		if err != nil {
			continue
		}
		if pattern.MatchString(input) {
			switch rule.Action {
			case RedactionOmit, RedactionObfuscate:
				return "[REDACTED]"
			case RedactionPartial:
				return partialRedactValue(input)
			}
		}
	}
	return input
}

// RedactTokenQuery masks the token query parameter in a request URI. WebSocket
// clients pass bearer tokens as ?token=... so raw URLs must never be logged
// without going through this.
func RedactTokenQuery(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return RedactSensitiveInfo(rawURL)
	}
	q := u.Query()
	if tok := q.Get("token"); tok != "" {
		q.Set("token", partialRedactValue(tok))
		u.RawQuery = q.Encode()
	}
	return u.String()
}
