package translate_test

import (
	"testing"

	"github.com/visagelab/visagebot/internal/translate"
)

func TestFallback(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"красный фон", "red background"},
		{"Закат, море!", "sunset sea"},
		{"длинные волосы", "long hair"},
		{"suddenly english", "suddenly english"},
		{"кошка на unknown крыше", "cat на unknown крыше"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := translate.Fallback(tt.in); got != tt.want {
			t.Errorf("Fallback(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
