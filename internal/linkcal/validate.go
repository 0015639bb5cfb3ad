package linkcal

import (
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strings"
	"time"
)

const (
	dateLayout  = "2006-01-02"
	monthLayout = "2006-01"
)

var (
	isoDateRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	monthRe   = regexp.MustCompile(`^\d{4}-\d{2}$`)
)

// IsCalendarID reports whether s, once trimmed, is a usable calendar key.
// The bounds keep someone from passing megabytes as a key.
func IsCalendarID(s string) bool {
	n := len([]rune(strings.TrimSpace(s)))
	return n >= minCalendarIDLength && n <= maxCalendarIDLength
}

// IsISODate reports whether s is a real calendar day written as YYYY-MM-DD.
func IsISODate(s string) bool {
	if !isoDateRe.MatchString(s) {
		return false
	}
	_, err := time.Parse(dateLayout, s)
	return err == nil
}

// IsMonth reports whether s is a month written as YYYY-MM.
func IsMonth(s string) bool {
	if !monthRe.MatchString(s) {
		return false
	}
	_, err := time.Parse(monthLayout, s)
	return err == nil
}

// MonthBounds gives the first day of the month and the first day of the
// following one, so that a month is the half open range [start, end).
func MonthBounds(month string) (string, string, error) {
	if !IsMonth(month) {
		return "", "", fmt.Errorf("month %q: %w", month, ErrValidation)
	}
	start, _ := time.Parse(monthLayout, month)

	return start.Format(dateLayout), start.AddDate(0, 1, 0).Format(dateLayout), nil
}

// MonthOf returns the YYYY-MM month a date falls in.
func MonthOf(t time.Time) string {
	return t.Format(monthLayout)
}

// DateOf returns the YYYY-MM-DD form of t.
func DateOf(t time.Time) string {
	return t.Format(dateLayout)
}

// ClampText trims s and cuts it down to at most n characters.
func ClampText(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}

	return strings.TrimSpace(string(r[:n]))
}

// NormalizeTitle trims a title and bounds its length. Titles are free text
// and are otherwise stored as given.
func NormalizeTitle(s string) string {
	return ClampText(s, MaxTitleLength)
}

// NormalizeURL turns user input into an absolute url.
//
// Input that parses as an absolute url is kept, otherwise it's retried with an
// https:// prefix. Anything that still doesn't parse becomes empty.
func NormalizeURL(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if u, ok := absoluteURL(s); ok {
		return u
	}
	if u, ok := absoluteURL("https://" + s); ok {
		return u
	}

	return ""
}

func absoluteURL(s string) (string, bool) {
	u, err := url.Parse(s)
	if err != nil || u.Scheme == "" {
		return "", false
	}
	u.Scheme = strings.ToLower(u.Scheme)
	if u.Opaque != "" {
		return u.String(), true
	}
	if u.Host == "" || strings.ContainsAny(u.Host, " \t") {
		return "", false
	}

	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if (u.Scheme == "https" && port == "443") || (u.Scheme == "http" && port == "80") {
		port = ""
	}
	if port != "" {
		u.Host = net.JoinHostPort(host, port)
	} else if strings.Contains(host, ":") {
		u.Host = "[" + host + "]"
	} else {
		u.Host = host
	}
	if u.Path == "" && (u.Scheme == "http" || u.Scheme == "https") {
		u.Path = "/"
	}

	return u.String(), true
}
