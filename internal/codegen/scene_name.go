package codegen

import (
	"strings"
	"unicode"
)

const (
	fallbackSceneName = "GeneratedScene"
	maxSceneNameWords = 4
)

// DeriveSceneName builds a Python class name from the prompt: the first few
// alphanumeric words in CamelCase, or a fixed fallback for prompts that leave
// nothing usable.
func DeriveSceneName(prompt string) string {
	words := strings.FieldsFunc(prompt, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	var parts []string
	for _, word := range words {
		if len(parts) == maxSceneNameWords {
			break
		}
		runes := []rune(strings.ToLower(word))
		runes[0] = unicode.ToUpper(runes[0])
		parts = append(parts, string(runes))
	}
	if len(parts) == 0 {
		return fallbackSceneName
	}
	name := strings.Join(parts, "")
	// Python identifiers cannot start with a digit.
	if unicode.IsDigit(rune(name[0])) {
		name = "Scene" + name
	}
	return name
}

// NormalizeSceneName validates a caller-supplied scene name, falling back to
// derivation when it is not a usable identifier.
func NormalizeSceneName(requested, prompt string) string {
	requested = strings.TrimSpace(requested)
	if requested == "" || !isIdentifier(requested) {
		return DeriveSceneName(prompt)
	}
	return requested
}

func isIdentifier(s string) bool {
	for i, r := range s {
		if unicode.IsLetter(r) || r == '_' {
			continue
		}
		if i > 0 && unicode.IsDigit(r) {
			continue
		}
		return false
	}
	return s != ""
}
