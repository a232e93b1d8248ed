package codegen

import (
	"fmt"
	"regexp"
	"strings"

	"scenesmith/internal/services/llm"
)

const manimImport = "from manim import *"

var sceneClassRe = regexp.MustCompile(`(?m)^class\s+(\w+)\s*\(\s*(?:VoiceoverScene|ThreeDScene|MovingCameraScene|ZoomedScene|Scene)\s*\)\s*:`)

// CleanSource normalizes a model response into a runnable scene file: strips
// a surrounding code fence and prepends the framework import when missing.
func CleanSource(raw string) string {
	code := llm.StripCodeFence(raw)
	code = strings.TrimSpace(code)
	if code == "" {
		return ""
	}
	if !strings.Contains(code, "from manim import") && !strings.Contains(code, "import manim") {
		code = manimImport + "\n\n" + code
	}
	if !strings.HasSuffix(code, "\n") {
		code += "\n"
	}
	return code
}

// SceneClassName returns the first scene class declared in the source, or an
// empty string when none is found.
func SceneClassName(source string) string {
	if m := sceneClassRe.FindStringSubmatch(source); m != nil {
		return m[1]
	}
	return ""
}

// ValidateSource checks that the cleaned source is plausibly runnable and
// declares the expected scene class with at least one animation event.
func ValidateSource(source, sceneName string) error {
	if strings.TrimSpace(source) == "" {
		return fmt.Errorf("generated source is empty")
	}
	declared := SceneClassName(source)
	if declared == "" {
		return fmt.Errorf("no scene class declaration found")
	}
	if sceneName != "" && declared != sceneName {
		return fmt.Errorf("scene class %q does not match requested %q", declared, sceneName)
	}
	if !strings.Contains(source, "def construct(self") {
		return fmt.Errorf("scene class %q has no construct method", declared)
	}
	if len(ParseEvents(source)) == 0 {
		return fmt.Errorf("source declares no animation events")
	}
	if !balancedBrackets(source) {
		return fmt.Errorf("unbalanced brackets in generated source")
	}
	return nil
}

// balancedBrackets verifies parens, brackets, and braces outside of string
// literals and comments pair up. Triple-quoted strings are tracked well enough
// for generated scene files.
func balancedBrackets(source string) bool {
	depth := map[byte]int{'(': 0, '[': 0, '{': 0}
	closer := map[byte]byte{')': '(', ']': '[', '}': '{'}

	inString := byte(0)
	triple := false
	escaped := false
	for i := 0; i < len(source); i++ {
		ch := source[i]
		if inString != 0 {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == inString:
				if triple {
					if i+2 < len(source) && source[i+1] == inString && source[i+2] == inString {
						inString = 0
						triple = false
						i += 2
					}
				} else {
					inString = 0
				}
			case !triple && (ch == '\n' || ch == '\r'):
				inString = 0
			}
			continue
		}
		switch ch {
		case '#':
			for i < len(source) && source[i] != '\n' {
				i++
			}
		case '"', '\'':
			inString = ch
			if i+2 < len(source) && source[i+1] == ch && source[i+2] == ch {
				triple = true
				i += 2
			}
		case '(', '[', '{':
			depth[ch]++
		case ')', ']', '}':
			open := closer[ch]
			depth[open]--
			if depth[open] < 0 {
				return false
			}
		}
	}
	return depth['('] == 0 && depth['['] == 0 && depth['{'] == 0
}
