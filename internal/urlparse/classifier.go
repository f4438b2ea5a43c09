// Package urlparse decides whether free-form text is a supported media URL
package urlparse

import (
	"net/url"
	"regexp"
	"strings"
)

// videoIDPattern matches a YouTube video ID
var videoIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// supportedHosts are the host variants recognized as the same service
var supportedHosts = map[string]bool{
	"youtube.com":       true,
	"www.youtube.com":   true,
	"m.youtube.com":     true,
	"music.youtube.com": true,
	"youtu.be":          true,
}

// Classify reports whether text is a supported media URL and, if so,
// returns its canonical watch form. It is a pure function: unsupported
// input signals "not a candidate", never an error.
func Classify(text string) (string, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", false
	}

	// Bare host/path input is still a candidate
	if !strings.Contains(text, "://") {
		text = "https://" + text
	}

	u, err := url.Parse(text)
	if err != nil {
		return "", false
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}

	host := strings.ToLower(u.Hostname())
	if !supportedHosts[host] {
		return "", false
	}

	id := extractVideoID(host, u)
	if !videoIDPattern.MatchString(id) {
		return "", false
	}

	return "https://www.youtube.com/watch?v=" + id, true
}

// extractVideoID pulls the video ID out of the host-specific URL shape
func extractVideoID(host string, u *url.URL) string {
	path := strings.Trim(u.Path, "/")

	if host == "youtu.be" {
		// Short-link form: youtu.be/<id>
		return firstSegment(path)
	}

	switch {
	case path == "watch":
		return u.Query().Get("v")
	case strings.HasPrefix(path, "shorts/"):
		return firstSegment(strings.TrimPrefix(path, "shorts/"))
	case strings.HasPrefix(path, "embed/"):
		return firstSegment(strings.TrimPrefix(path, "embed/"))
	case strings.HasPrefix(path, "live/"):
		return firstSegment(strings.TrimPrefix(path, "live/"))
	}

	return ""
}

func firstSegment(path string) string {
	if idx := strings.IndexByte(path, '/'); idx >= 0 {
		return path[:idx]
	}
	return path
}
