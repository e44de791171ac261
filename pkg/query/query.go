// Copyright (c) 2026 Tempora. All rights reserved.
// Author: dev@tempora.app

// Package query provides safe parsing helpers for URL query parameters.
package query

import (
	"net/url"
	"strings"
	"time"
)

// StringSlice parses a single comma-separated query string
// into a trimmed slice of strings.
func StringSlice(val string) []string {
	if val == "" {
		return nil
	}
	var res []string
	for _, v := range strings.Split(val, ",") {
		clean := strings.TrimSpace(v)
		if clean != "" {
			res = append(res, clean)
		}
	}
	return res
}

// Time parses an RFC 3339 timestamp query parameter.
// The second return value reports whether the parameter was present and valid.
func Time(values url.Values, name string) (time.Time, bool) {
	raw := values.Get(name)
	if raw == "" {
		return time.Time{}, false
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false
	}
	return parsed, true
}

// String returns the trimmed value of a query parameter, or "" if absent.
func String(values url.Values, name string) string {
	return strings.TrimSpace(values.Get(name))
}
