package renderer

import (
	"errors"
	"testing"

	"github.com/ccheshirecat/renderd/internal/shared/version"
)

func TestParseCookiesObjectForm(t *testing.T) {
	cookies, err := parseCookies([]byte(`{"session":"abc","theme":"dark"}`))
	if err != nil {
		t.Fatalf("parseCookies: %v", err)
	}
	want := []Cookie{{Name: "session", Value: "abc"}, {Name: "theme", Value: "dark"}}
	if len(cookies) != len(want) {
		t.Fatalf("cookies = %+v, want %+v", cookies, want)
	}
	for i := range want {
		if cookies[i] != want[i] {
			t.Fatalf("cookies[%d] = %+v, want %+v", i, cookies[i], want[i])
		}
	}
}

func TestParseCookiesStringForm(t *testing.T) {
	cookies, err := parseCookies([]byte(`"theme=dark; session=abc;  empty="`))
	if err != nil {
		t.Fatalf("parseCookies: %v", err)
	}
	want := []Cookie{{Name: "empty", Value: ""}, {Name: "session", Value: "abc"}, {Name: "theme", Value: "dark"}}
	if len(cookies) != len(want) {
		t.Fatalf("cookies = %+v, want %+v", cookies, want)
	}
	for i := range want {
		if cookies[i] != want[i] {
			t.Fatalf("cookies[%d] = %+v, want %+v", i, cookies[i], want[i])
		}
	}
}

func TestParseCookiesEmpty(t *testing.T) {
	for _, raw := range []string{"", "null", "{}", `""`} {
		cookies, err := parseCookies([]byte(raw))
		if err != nil {
			t.Fatalf("parseCookies(%q): %v", raw, err)
		}
		if len(cookies) != 0 {
			t.Fatalf("parseCookies(%q) = %+v, want none", raw, cookies)
		}
	}
}

func TestParseCookiesInvalid(t *testing.T) {
	for _, raw := range []string{`42`, `["a"]`, `"no-equals-sign"`, `"=orphan-value"`, `{"n":1}`} {
		if _, err := parseCookies([]byte(raw)); !errors.Is(err, ErrInvalidCookies) {
			t.Fatalf("parseCookies(%q): err = %v, want ErrInvalidCookies", raw, err)
		}
	}
}

func TestMergeHeadersReservedKeyWins(t *testing.T) {
	headers, _ := mergeHeaders(map[string]string{
		version.IdentHeader: "spoofed",
		"accept-language":   "de",
	})
	if headers[version.IdentHeader] != version.Version {
		t.Fatalf("%s = %q, want %q", version.IdentHeader, headers[version.IdentHeader], version.Version)
	}
	if headers["accept-language"] != "de" {
		t.Fatal("caller header lost in merge")
	}
}

func TestMergeHeadersReferrer(t *testing.T) {
	headers, referrer := mergeHeaders(map[string]string{"ReFeRrEr": "https://ref.example"})
	if referrer != "https://ref.example" {
		t.Fatalf("referrer = %q", referrer)
	}
	if headers["ReFeRrEr"] != "https://ref.example" {
		t.Fatal("referrer entry removed from headers")
	}

	if _, referrer := mergeHeaders(nil); referrer != "" {
		t.Fatalf("referrer = %q for empty headers", referrer)
	}
}

func TestErrorKind(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{ErrMissingURL, "missing_url"},
		{ErrInvalidCookies, "invalid_cookies"},
		{ErrRenderTimeout, "render_timeout"},
		{&LoadingFailedError{RequestID: "r", Reason: "dns"}, "loading_failed"},
		{&ProtocolError{Op: "navigate", Err: errors.New("boom")}, "protocol_error"},
		{errors.New("anything else"), "internal"},
	}
	for _, tc := range cases {
		if got := ErrorKind(tc.err); got != tc.want {
			t.Fatalf("ErrorKind(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}
