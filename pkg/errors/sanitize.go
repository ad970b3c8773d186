package errors

import (
	"regexp"
	"strings"
)

// genericMessage is returned by [Sanitize] for any error whose message may
// contain infrastructure details that must not reach external callers.
const genericMessage = "An internal error occurred"

// maxSanitizedLen bounds the length of any message returned by [Sanitize].
const maxSanitizedLen = 200

// safeMessages enumerates the messages that are allowed to pass through
// [Sanitize] unmodified. These are user-actionable and contain no
// infrastructure details. Matching is exact after lowercasing.
var safeMessages = map[string]struct{}{
	"invalid token format":     {},
	"token expired":            {},
	"token is malformed":       {},
	"insufficient permissions": {},
	"authentication required":  {},
	"invalid request":          {},
}

// sensitivePatterns match message content that indicates infrastructure
// internals: backend names, credentials, hostnames, filesystem paths, and
// stack-trace fragments. Any match forces the generic message.
var sensitivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)redis`),
	regexp.MustCompile(`(?i)database`),
	regexp.MustCompile(`(?i)postgres`),
	regexp.MustCompile(`(?i)secret`),
	regexp.MustCompile(`(?i)password`),
	regexp.MustCompile(`(?i)internal`),
	regexp.MustCompile(`(?i)localhost`),
	regexp.MustCompile(`(?i)127\.0\.0\.1`),
	regexp.MustCompile(`(?i)node_modules`),
	regexp.MustCompile(`(?i)\.go:\d+`),
	regexp.MustCompile(`(?i)goroutine \d+`),
	regexp.MustCompile(`(?i)https?://`),
	regexp.MustCompile(`(?i)[a-z0-9-]+\.(svc|local|internal|cluster)`),
	regexp.MustCompile(`/[a-zA-Z0-9_./-]{2,}/`),
}

// Sanitize converts an error into a message that is safe to return to an
// external caller. Known user-actionable messages pass through unmodified;
// everything that matches a sensitive pattern collapses to a generic
// message. The result never exceeds 200 characters.
//
// Sanitize never returns an empty string for a non-nil error; callers can
// use the result directly in API responses.
func Sanitize(err error) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	if e, ok := AsError(err); ok {
		// Only the Message field is candidate for pass-through; the
		// cause chain routinely names backends and hosts.
		msg = e.Message
	}

	if _, ok := safeMessages[strings.ToLower(strings.TrimSpace(msg))]; ok {
		return msg
	}

	for _, p := range sensitivePatterns {
		if p.MatchString(msg) {
			return genericMessage
		}
	}

	if len(msg) > maxSanitizedLen {
		msg = msg[:maxSanitizedLen]
	}
	return msg
}
