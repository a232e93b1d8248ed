package codegen

import (
	"fmt"
	"strings"
)

const generationSystemPrompt = `You are an expert Manim Community Edition animator. You write complete, runnable Python scene files for educational animations.

Rules:
- Output ONLY Python code. No explanations, no Markdown fences.
- Start with "from manim import *".
- Define exactly one scene class with the class name the user requests, inheriting from Scene.
- All animation happens inside construct(self) using self.play(...) and self.wait(...).
- Keep every element inside the visible frame (roughly 14 units wide, 8 units tall).
- Remove or transform out elements before introducing new ones in the same screen region.
- Prefer explicit run_time arguments so pacing is deliberate.
- Use only standard Manim CE objects and animations. No external assets, no file I/O, no network access.`

func generationUserPrompt(prompt, sceneName string) string {
	return fmt.Sprintf("Create a Manim scene class named %s that animates the following:\n\n%s", sceneName, prompt)
}

func regenerationUserPrompt(prompt, sceneName, previous string, reason error) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Create a Manim scene class named %s that animates the following:\n\n%s\n\n", sceneName, prompt)
	fmt.Fprintf(&b, "Your previous attempt was rejected: %v\n\n", reason)
	b.WriteString("Previous attempt:\n")
	b.WriteString(previous)
	b.WriteString("\nProduce a corrected, complete scene file.")
	return b.String()
}
