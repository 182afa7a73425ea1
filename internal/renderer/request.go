package renderer

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/ccheshirecat/renderd/internal/shared/version"
)

// Request describes a single page render.
type Request struct {
	// URL is the page to load. Required.
	URL string `json:"url"`
	// Cookies is either a JSON object of name/value pairs or a JSON string
	// in "name=value; name2=value2" form. Optional.
	Cookies json.RawMessage `json:"cookies,omitempty"`
	// Headers are merged into the page's extra HTTP headers. A "referrer"
	// entry is additionally used as the navigation referrer.
	Headers map[string]string `json:"headers,omitempty"`
	// ReadySignal switches the render to signal-ready mode: the page is
	// considered loaded once it logs exactly this value to the console.
	ReadySignal string `json:"ready_signal,omitempty"`
	// Script is injected and evaluated on every page load, before any page
	// script runs.
	Script string `json:"script,omitempty"`
}

// Result carries the serialized document produced by a render.
type Result struct {
	HTML       string `json:"html"`
	JobID      int64  `json:"job_id,omitempty"`
	DurationMS int64  `json:"duration_ms,omitempty"`
}

// Cookie is a single name/value pair applied to the page before navigation.
type Cookie struct {
	Name  string
	Value string
}

// parseCookies accepts the two cookie payload shapes: a JSON object mapping
// names to values, or a JSON string holding a "k=v; k2=v2" cookie line.
// The result is sorted by name so protocol calls are deterministic.
func parseCookies(raw json.RawMessage) ([]Cookie, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}

	var asMap map[string]string
	if err := json.Unmarshal(raw, &asMap); err == nil {
		return sortedCookies(asMap), nil
	}

	var asLine string
	if err := json.Unmarshal(raw, &asLine); err != nil {
		return nil, ErrInvalidCookies
	}
	pairs := map[string]string{}
	for _, part := range strings.Split(asLine, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, value, ok := strings.Cut(part, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, ErrInvalidCookies
		}
		pairs[name] = strings.TrimSpace(value)
	}
	return sortedCookies(pairs), nil
}

func sortedCookies(pairs map[string]string) []Cookie {
	if len(pairs) == 0 {
		return nil
	}
	cookies := make([]Cookie, 0, len(pairs))
	for name, value := range pairs {
		cookies = append(cookies, Cookie{Name: name, Value: value})
	}
	sort.Slice(cookies, func(i, j int) bool { return cookies[i].Name < cookies[j].Name })
	return cookies
}

// mergeHeaders combines caller headers with the reserved identifying header
// and extracts the navigation referrer. Caller keys survive untouched except
// the reserved key, which always carries the renderd version. The referrer
// entry stays in the header set as well as becoming the navigation referrer.
func mergeHeaders(caller map[string]string) (headers map[string]string, referrer string) {
	headers = make(map[string]string, len(caller)+1)
	for name, value := range caller {
		headers[name] = value
		if strings.EqualFold(name, "referrer") {
			referrer = value
		}
	}
	headers[version.IdentHeader] = version.Version
	return headers, referrer
}
