package translate

import "strings"

// fallbackDict maps frequent prompt words to English for when the translation
// service is unavailable. Unknown words pass through untouched; the generative
// model copes with mixed-language prompts better than with no prompt at all.
var fallbackDict = map[string]string{
	"красный": "red",
	"синий": "blue",
	"зелёный": "green",
	"зеленый": "green",
	"белый": "white",
	"чёрный": "black",
	"черный": "black",
	"жёлтый": "yellow",
	"желтый": "yellow",
	"розовый": "pink",
	"фиолетовый": "purple",
	"фон": "background",
	"пляж": "beach",
	"лес": "forest",
	"город": "city",
	"небо": "sky",
	"закат": "sunset",
	"горы": "mountains",
	"море": "sea",
	"офис": "office",
	"студия": "studio",
	"машина": "car",
	"кошка": "cat",
	"собака": "dog",
	"цветы": "flowers",
	"волосы": "hair",
	"короткие": "short",
	"длинные": "long",
}

// Fallback performs a word-by-word dictionary substitution.
func Fallback(text string) string {
	words := strings.Fields(text)
	for i, w := range words {
		key := strings.ToLower(strings.Trim(w, ".,!?;:"))
		if replacement, ok := fallbackDict[key]; ok {
			words[i] = replacement
		}
	}
	return strings.Join(words, " ")
}
