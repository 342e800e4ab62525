package logging

import (
	"regexp"
	"strings"
)

// RedactedPlaceholder is the string used to replace sensitive data
const RedactedPlaceholder = "[REDACTED]"

// sensitivePatterns contains compiled regex patterns for detecting sensitive data.
// These patterns are compiled once at package initialization for performance.
//
// No bare hex pattern is included: artifact keys, checksums, and seeds in this
// system are hex strings and must remain loggable.
var sensitivePatterns = []*regexp.Regexp{
	// OpenAI API keys: sk-... (legacy) or sk-proj-... (project-scoped)
	regexp.MustCompile(`(?i)(sk-[a-zA-Z0-9_-]{20,})`),
	regexp.MustCompile(`(?i)(ghp_[a-zA-Z0-9]{36})`),          // GitHub tokens
	regexp.MustCompile(`(?i)(github_pat_[a-zA-Z0-9_]{22,})`), // GitHub fine-grained tokens
	regexp.MustCompile(`(?i)(bearer\s+[a-zA-Z0-9._-]{20,})`), // Bearer tokens

	// Generic secret assignments
	regexp.MustCompile(`(?i)(password\s*[:=]\s*[^\s,;]{8,})`),
	regexp.MustCompile(`(?i)(secret\s*[:=]\s*[^\s,;]{8,})`),
	regexp.MustCompile(`(?i)(token\s*[:=]\s*[^\s,;]{8,})`),
	regexp.MustCompile(`(?i)(api_key\s*[:=]\s*[^\s,;]{8,})`),
	regexp.MustCompile(`(?i)(apikey\s*[:=]\s*[^\s,;]{8,})`),
}

// sensitiveFieldNames are field/env var name fragments that indicate sensitive data.
// Prompt text is on this list: resolved prompt content is the system's protected
// asset and must never reach a log sink at any level.
var sensitiveFieldNames = []string{
	"OPENAI_API_KEY",
	"OPERATOR_TOKEN",
	"PASSWORD",
	"SECRET",
	"TOKEN",
	"API_KEY",
	"APIKEY",
	"PROMPT",
	"NEGATIVE_PROMPT",
}

// loggableFieldNames are exact field names exempted from the name check.
// They identify WHICH prompt was used without exposing its text.
var loggableFieldNames = map[string]bool{
	"PROMPT_VERSION": true,
	"PROMPT_SOURCE":  true,
	"PROMPT_LAYER":   true,
}

// RedactSensitiveData scans a string value and redacts any detected sensitive data.
// This is a pure function - it takes a string and returns a sanitized string.
//
// Example:
//
//	input := "API key is sk-abc123def456..."
//	output := RedactSensitiveData(input)
//	// output: "API key is [REDACTED]"
func RedactSensitiveData(value string) string {
	if value == "" {
		return value
	}

	result := value
	for _, pattern := range sensitivePatterns {
		result = pattern.ReplaceAllString(result, RedactedPlaceholder)
	}
	return result
}

// RedactField redacts a field value if the field name indicates sensitive data.
// This is useful for structured logging where field names are known.
//
// Example:
//
//	RedactField("prompt", "medium format photography, ...")  // "[REDACTED]"
//	RedactField("prompt_version", "v3")                      // "v3" (unchanged)
//	RedactField("style_id", "hasselblad")                    // "hasselblad" (unchanged)
func RedactField(fieldName, fieldValue string) string {
	if IsSensitiveField(fieldName) {
		return RedactedPlaceholder
	}
	return RedactSensitiveData(fieldValue)
}

// IsSensitiveField returns true if the field name indicates sensitive data.
// This is a pure function that only checks the field name, not the value.
//
// Example:
//
//	IsSensitiveField("negative_prompt")  // true
//	IsSensitiveField("prompt_version")   // false
//	IsSensitiveField("style_id")         // false
func IsSensitiveField(fieldName string) bool {
	upperName := strings.ToUpper(fieldName)

	if loggableFieldNames[upperName] {
		return false
	}
	for _, fragment := range sensitiveFieldNames {
		if strings.Contains(upperName, fragment) {
			return true
		}
	}
	return false
}

// ContainsSensitiveData returns true if the value contains any sensitive data patterns.
// This is a pure function that scans the value for known patterns.
func ContainsSensitiveData(value string) bool {
	if value == "" {
		return false
	}

	for _, pattern := range sensitivePatterns {
		if pattern.MatchString(value) {
			return true
		}
	}
	return false
}
