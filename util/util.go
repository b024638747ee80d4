package util

import (
	"regexp"
	"strings"
)

var replaceHTTPSRe = regexp.MustCompile("^(http)(s?)")

// MakeWsURL converts http:// to ws://
func MakeWsURL(url string) string {
	return replaceHTTPSRe.ReplaceAllString(url, "ws$2")
}

// TrimName strips surrounding slashes and whitespace from a session name taken
// from a URL path.
func TrimName(name string) string {
	return strings.Trim(strings.TrimSpace(name), "/")
}
