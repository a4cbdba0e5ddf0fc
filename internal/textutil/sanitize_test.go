package textutil

import "testing"

func TestSanitizeFileName(t *testing.T) {
	tests := map[string]string{
		"  deep sea  ":        "deep sea",
		"AC/DC: live?":        "AC-DC- live",
		`quote "this" <now>`: "quote this now",
		"":                    "",
	}
	for in, want := range tests {
		if got := SanitizeFileName(in); got != want {
			t.Fatalf("SanitizeFileName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSanitizeToken(t *testing.T) {
	tests := map[string]string{
		"Film Noir!": "film_noir",
		"  ":         "unknown",
		"***":        "unknown",
		"lo-fi_2":    "lo-fi_2",
	}
	for in, want := range tests {
		if got := SanitizeToken(in); got != want {
			t.Fatalf("SanitizeToken(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestUnderscoreSpaces(t *testing.T) {
	if got := UnderscoreSpaces(" the  deep\tsea "); got != "the_deep_sea" {
		t.Fatalf("unexpected %q", got)
	}
}

func TestTitleCase(t *testing.T) {
	tests := map[string]string{
		"film_noir":     "Film Noir",
		"lo-fi dreamy": "Lo Fi Dreamy",
		"":              "",
	}
	for in, want := range tests {
		if got := TitleCase(in); got != want {
			t.Fatalf("TitleCase(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("abcdefghij", 6); got != "abc..." {
		t.Fatalf("unexpected %q", got)
	}
	if got := Truncate("short", 10); got != "short" {
		t.Fatalf("unexpected %q", got)
	}
}
