package common

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSummarizeText(t *testing.T) {
	t.Parallel()

	if got := SummarizeText("  hello \n  world "); got != "hello world" {
		t.Fatalf("unexpected summary: %q", got)
	}
	long := strings.Repeat("я", 200)
	got := SummarizeText(long)
	if utf8.RuneCountInString(got) != summaryLimit+3 {
		t.Fatalf("unexpected summary length: %d", utf8.RuneCountInString(got))
	}
}

func TestTruncateBytesKeepsRuneBoundary(t *testing.T) {
	t.Parallel()

	text := strings.Repeat("ё", 10) // 2 bytes each
	got := TruncateBytes(text, 10)
	if !utf8.ValidString(got) {
		t.Fatalf("truncation produced invalid utf8: %q", got)
	}
	if len(got) > 10 || !strings.HasSuffix(got, "...") {
		t.Fatalf("unexpected truncation: %q", got)
	}
	if TruncateBytes("short", 10) != "short" {
		t.Fatal("short text must be unchanged")
	}
}

func TestSanitizeUTF8(t *testing.T) {
	t.Parallel()

	if got := SanitizeUTF8("ok\xffok"); got != "okok" {
		t.Fatalf("unexpected sanitized text: %q", got)
	}
}

func TestDigitsOnly(t *testing.T) {
	t.Parallel()

	if got := DigitsOnly("+7 (999) 000-00-01"); got != "79990000001" {
		t.Fatalf("unexpected digits: %q", got)
	}
}
