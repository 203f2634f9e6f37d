package urlutil

import (
	"crypto/tls"
	"net/http/httptest"
	"testing"
)

func TestResolveURL(t *testing.T) {
	tests := []struct {
		name     string
		ref      string
		page     string
		expected string
	}{
		{
			name:     "absolute URL unchanged",
			ref:      "https://scontent.cdninstagram.com/v/t51/a.jpg?stp=dst-jpg_e35&_nc_ht=x",
			page:     "https://www.instagram.com/p/ABC/",
			expected: "https://scontent.cdninstagram.com/v/t51/a.jpg?stp=dst-jpg_e35&_nc_ht=x",
		},
		{
			name:     "protocol relative",
			ref:      "//static.cdninstagram.com/img.png",
			page:     "https://www.instagram.com/p/ABC/",
			expected: "https://static.cdninstagram.com/img.png",
		},
		{
			name:     "root relative",
			ref:      "/static/images/logo.png",
			page:     "https://www.instagram.com/p/ABC/",
			expected: "https://www.instagram.com/static/images/logo.png",
		},
		{
			name:     "path relative",
			ref:      "cover.jpg",
			page:     "https://example.com/posts/1/index.html",
			expected: "https://example.com/posts/1/cover.jpg",
		},
		{
			name:     "parent directory",
			ref:      "../media/cover.jpg",
			page:     "https://example.com/posts/1/index.html",
			expected: "https://example.com/posts/media/cover.jpg",
		},
		{
			name:     "empty ref",
			ref:      "  ",
			page:     "https://example.com/",
			expected: "",
		},
		{
			name:     "unparseable page",
			ref:      "cover.jpg",
			page:     "",
			expected: "cover.jpg",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ResolveURL(tt.ref, tt.page)
			if result != tt.expected {
				t.Errorf("ResolveURL(%q, %q) = %q, want %q", tt.ref, tt.page, result, tt.expected)
			}
		})
	}
}

func TestRequestBaseURL(t *testing.T) {
	req := httptest.NewRequest("POST", "http://resolver.local:8000/extract", nil)
	if got := RequestBaseURL(req); got != "http://resolver.local:8000" {
		t.Errorf("plain request: got %q", got)
	}

	req.TLS = &tls.ConnectionState{}
	if got := RequestBaseURL(req); got != "https://resolver.local:8000" {
		t.Errorf("TLS request: got %q", got)
	}

	req = httptest.NewRequest("POST", "http://10.0.0.5:8000/extract", nil)
	req.Header.Set("X-Forwarded-Proto", "https, http")
	req.Header.Set("X-Forwarded-Host", "media.example.com")
	if got := RequestBaseURL(req); got != "https://media.example.com" {
		t.Errorf("forwarded request: got %q", got)
	}
}
