package embed

import "testing"

func TestIsEmbed(t *testing.T) {
	m := MustDefault()
	tests := []struct {
		text string
		want bool
	}{
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ", true},
		{"https://youtu.be/dQw4w9WgXcQ", true},
		{"https://twitter.com/wagtail/status/1234", true},
		{"https://x.com/wagtail/status/1234", true},
		{"http://vimeo.com/76979871", true},
		{"https://example.com/watch", false},
		{"watch this https://youtu.be/dQw4w9WgXcQ", false},
		{"youtu.be/dQw4w9WgXcQ", false},
		{"ftp://youtu.be/x", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := m.IsEmbed(tt.text); got != tt.want {
			t.Errorf("IsEmbed(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestCustomPatterns(t *testing.T) {
	m, err := NewMatcher([]string{"https://media.example.org/*", " "})
	if err != nil {
		t.Fatalf("NewMatcher: %v", err)
	}
	if !m.IsEmbed("https://media.example.org/clip/1") {
		t.Error("custom pattern did not match")
	}
	if m.IsEmbed("https://youtu.be/x") {
		t.Error("default patterns should not apply when custom ones are given")
	}
}
