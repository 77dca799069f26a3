package security

import (
	"strings"
	"testing"
)

func TestSanitize_KeepsTextStructure(t *testing.T) {
	s := NewContentSanitizer()

	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"paragraph", "<p>段落</p>", []string{"<p>段落</p>"}},
		{"heading", "<h2>見出し</h2>", []string{"<h2>見出し</h2>"}},
		{"list", "<ul><li>a</li><li>b</li></ul>", []string{"<ul>", "<li>a</li>", "</ul>"}},
		{"blockquote", "<blockquote>引用</blockquote>", []string{"<blockquote>引用</blockquote>"}},
		{"table", "<table><tr><td>1</td></tr></table>", []string{"<table>", "<td>1</td>"}},
		{"emphasis", "<strong>強</strong><em>調</em>", []string{"<strong>強</strong>", "<em>調</em>"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.Sanitize(tt.input)
			for _, w := range tt.want {
				if !strings.Contains(got, w) {
					t.Errorf("Sanitize(%q) = %q, want it to contain %q", tt.input, got, w)
				}
			}
		})
	}
}

func TestSanitize_RemovesDangerousContent(t *testing.T) {
	s := NewContentSanitizer()

	tests := []struct {
		name   string
		input  string
		absent []string
	}{
		{"script", `<p>x</p><script>alert(1)</script>`, []string{"<script", "alert"}},
		{"iframe", `<iframe src="https://evil.example"></iframe>`, []string{"<iframe"}},
		{"style", `<style>p{color:red}</style><p>x</p>`, []string{"<style", "color:red"}},
		{"img", `<img src="https://example.com/a.png" onerror="alert(1)">`, []string{"<img", "onerror"}},
		{"event attr", `<p onclick="alert(1)">x</p>`, []string{"onclick"}},
		{"javascript href", `<a href="javascript:alert(1)">x</a>`, []string{"javascript:"}},
		{"relative href", `<a href="/admin">x</a>`, []string{`href="/admin"`}},
		{"svg onload", `<svg onload="alert(1)">`, []string{"<svg", "onload"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := strings.ToLower(s.Sanitize(tt.input))
			for _, a := range tt.absent {
				if strings.Contains(got, strings.ToLower(a)) {
					t.Errorf("Sanitize(%q) = %q, should not contain %q", tt.input, got, a)
				}
			}
		})
	}
}

func TestSanitize_LinksGetRelAttributes(t *testing.T) {
	got := NewContentSanitizer().Sanitize(`<a href="https://example.com/source">出典</a>`)

	if !strings.Contains(got, `href="https://example.com/source"`) {
		t.Errorf("href should be preserved, got %q", got)
	}
	if !strings.Contains(got, "nofollow") || !strings.Contains(got, "noreferrer") {
		t.Errorf("rel should include nofollow and noreferrer, got %q", got)
	}
}

func TestSanitize_EmptyAndIdempotent(t *testing.T) {
	s := NewContentSanitizer()

	if got := s.Sanitize(""); got != "" {
		t.Errorf("Sanitize(\"\") = %q", got)
	}

	once := s.Sanitize(`<p>The <a href="https://a.example">tower</a> is 330m tall.</p>`)
	if twice := s.Sanitize(once); twice != once {
		t.Errorf("Sanitize is not idempotent:\n once=%q\ntwice=%q", once, twice)
	}
}

func TestSanitizeTitle(t *testing.T) {
	s := NewContentSanitizer()

	tests := []struct{ in, want string }{
		{"Plain title", "Plain title"},
		{"<b>Bold</b> title", "Bold title"},
		{"Fish &amp; Chips", "Fish & Chips"},
		{"  spaced \n  out ", "spaced out"},
		{`<script>alert(1)</script>Safe`, "Safe"},
	}
	for _, tt := range tests {
		if got := s.SanitizeTitle(tt.in); got != tt.want {
			t.Errorf("SanitizeTitle(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
