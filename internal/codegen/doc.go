// Package codegen turns a natural-language prompt into a Manim scene file.
// It owns the generation prompt, response cleanup, scene-class detection, and
// the animation event timeline parsed from the generated source.
package codegen
