package logging

import (
	"net/url"
	"regexp"
	"strings"
)

// RedactedText is the replacement text for sensitive data.
const RedactedText = "[REDACTED]"

var (
	// password=xxx, pwd=xxx, pass=xxx (until next delimiter)
	passwordPattern = regexp.MustCompile(`(?i)(password|pwd|pass)=[^;&\s]+`)

	bearerPattern = regexp.MustCompile(`(?i)Bearer\s+[A-Za-z0-9-_]+\.[A-Za-z0-9-_]+\.[A-Za-z0-9-_]*`)

	// apikey=, api_key=, api-key=, access_token= in query strings and error text
	apiKeyPattern = regexp.MustCompile(`(?i)(api[_-]?key|access_token|token)=[^&\s"]+`)

	// user:pass@host
	userInfoPattern = regexp.MustCompile(`://[^:/\s]+:[^@\s]+@`)
)

// sensitiveParams are stripped from URLs before they are logged.
var sensitiveParams = []string{"apikey", "api_key", "access_token", "token"}

// SanitizeConnectionString removes credentials from a DSN or URL.
// Use this before logging any connection string.
func SanitizeConnectionString(connStr string) string {
	if connStr == "" {
		return ""
	}
	sanitized := passwordPattern.ReplaceAllString(connStr, "${1}="+RedactedText)
	return userInfoPattern.ReplaceAllString(sanitized, "://"+RedactedText+"@")
}

// SanitizeError returns the error text with credentials, bearer tokens and API
// keys removed. HTTP clients echo request URLs into errors, so every upstream
// error goes through here before logging.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return SanitizeText(err.Error())
}

// SanitizeText applies every redaction rule to s.
func SanitizeText(s string) string {
	s = passwordPattern.ReplaceAllString(s, "${1}="+RedactedText)
	s = bearerPattern.ReplaceAllString(s, "Bearer "+RedactedText)
	s = apiKeyPattern.ReplaceAllString(s, "${1}="+RedactedText)
	return userInfoPattern.ReplaceAllString(s, "://"+RedactedText+"@")
}

// SanitizeURL redacts sensitive query parameters. Unparseable input falls
// back to pattern redaction.
func SanitizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return SanitizeText(raw)
	}
	q := u.Query()
	changed := false
	for key := range q {
		for _, p := range sensitiveParams {
			if strings.EqualFold(key, p) {
				q.Set(key, RedactedText)
				changed = true
			}
		}
	}
	if changed {
		u.RawQuery = q.Encode()
	}
	if u.User != nil {
		u.User = url.User(RedactedText)
	}
	return u.String()
}

// TruncateString truncates a string to maxLen and adds ellipsis if needed.
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
