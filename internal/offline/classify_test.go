package offline

import (
	"net/http"
	"net/url"
	"testing"
)

func TestClassifyPrecedence(t *testing.T) {
	c := newClassifier(testConfig(t, "http://origin.test"))

	cases := []struct {
		name   string
		method string
		rawURL string
		header http.Header
		want   ResourceClass
	}{
		{"static prefix", http.MethodGet, "/assets/index-abc123.js", nil, ClassStatic},
		{"script extension outside prefix", http.MethodGet, "/vendor/chart.mjs", nil, ClassStatic},
		{"stylesheet extension", http.MethodGet, "/theme/dark.css", nil, ClassStatic},
		{"font extension", http.MethodGet, "/fonts/inter.woff2", nil, ClassStatic},
		{"app manifest", http.MethodGet, "/manifest.webmanifest", nil, ClassStatic},

		{"api prefix", http.MethodGet, "/api/pilots", nil, ClassAPI},
		{"data host", http.MethodGet, "https://project.supabase.co/rest/v1/checks", nil, ClassAPI},
		{"data host with port", http.MethodGet, "https://project.supabase.co:443/rest/v1/checks", nil, ClassAPI},
		{"api beats image extension", http.MethodGet, "/api/pilots/avatar.png", nil, ClassAPI},
		{"api beats navigation accept", http.MethodGet, "/api/export",
			http.Header{"Accept": {"text/html"}}, ClassAPI},

		{"image extension", http.MethodGet, "/uploads/photo.jpeg", nil, ClassImage},
		{"icon prefix", http.MethodGet, "/icons/badge", nil, ClassImage},
		{"static beats image under assets", http.MethodGet, "/assets/logo.png", nil, ClassStatic},

		{"navigate fetch mode", http.MethodGet, "/pilots",
			http.Header{"Sec-Fetch-Mode": {"navigate"}}, ClassNavigation},
		{"html accept", http.MethodGet, "/pilots/42",
			http.Header{"Accept": {"text/html,application/xhtml+xml"}}, ClassNavigation},

		{"non-get passes through", http.MethodPost, "/api/pilots", nil, ClassUnhandled},
		{"delete passes through", http.MethodDelete, "/assets/app.js", nil, ClassUnhandled},
		{"unmatched get", http.MethodGet, "/download/report.bin", nil, ClassUnhandled},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			u, err := url.Parse(tc.rawURL)
			if err != nil {
				t.Fatalf("parse url: %v", err)
			}
			header := tc.header
			if header == nil {
				header = http.Header{}
			}
			got := c.Classify(tc.method, u, header)
			if got != tc.want {
				t.Fatalf("Classify(%s %s): got=%s want=%s", tc.method, tc.rawURL, got, tc.want)
			}
		})
	}
}

func TestResourceClassString(t *testing.T) {
	if got := ClassAPI.String(); got != "api" {
		t.Fatalf("String: got=%q want=%q", got, "api")
	}
	if got := ResourceClass(99).String(); got != "unhandled" {
		t.Fatalf("String unknown: got=%q want=%q", got, "unhandled")
	}
}
