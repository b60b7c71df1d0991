package botapi

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"
)

var loggableMIME = regexp.MustCompile(`(?i)^(?:text(?:/.+)?|application/(?:json|javascript|xml|x-www-form-urlencoded))$`)

// loggingTransport dumps requests and responses at debug level. The bot token
// is masked wherever it appears.
type loggingTransport struct {
	next  http.RoundTripper
	token string
}

func newLoggingTransport(next http.RoundTripper, token string) *loggingTransport {
	if next == nil {
		next = http.DefaultTransport
	}
	return &loggingTransport{next: next, token: token}
}

func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if !debugEnabled(req.Context()) {
		return t.next.RoundTrip(req)
	}

	reqBody := ""
	if req.Body != nil && req.Body != http.NoBody {
		data, err := io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return nil, err
		}
		req.Body = io.NopCloser(bytes.NewReader(data))
		reqBody = describeBody(req.Header, data)
	}
	slog.Debug("botapi request",
		"method", req.Method,
		"url", t.mask(req.URL.String()),
		"headers", t.mask(formatHeaders(req.Header)),
		"body", t.mask(reqBody))

	resp, err := t.next.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	data, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, err
	}
	resp.Body = io.NopCloser(bytes.NewReader(data))
	slog.Debug("botapi response",
		"status", resp.Status,
		"headers", t.mask(formatHeaders(resp.Header)),
		"body", t.mask(describeBody(resp.Header, data)))
	return resp, nil
}

func (t *loggingTransport) mask(s string) string {
	if t.token == "" {
		return s
	}
	masked := maskToken(t.token)
	s = strings.ReplaceAll(s, t.token, masked)
	return strings.ReplaceAll(s, url.QueryEscape(t.token), masked)
}

// maskToken keeps the first and last four chars of long tokens.
func maskToken(token string) string {
	if len(token) <= 8 {
		return "***"
	}
	return token[:4] + "***" + token[len(token)-4:]
}

func isLoggable(h http.Header) bool {
	mediaType, _, err := mime.ParseMediaType(h.Get("Content-Type"))
	if err != nil {
		return false
	}
	return loggableMIME.MatchString(mediaType)
}

func describeBody(h http.Header, data []byte) string {
	if len(data) == 0 {
		return ""
	}
	if !isLoggable(h) {
		return "[binary data]"
	}
	return string(data)
}

func formatHeaders(h http.Header) string {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(k + ": " + strings.Join(h[k], ", "))
	}
	return b.String()
}

func debugEnabled(ctx context.Context) bool {
	return slog.Default().Enabled(ctx, slog.LevelDebug)
}
