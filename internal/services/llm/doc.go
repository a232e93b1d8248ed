// Package llm wraps the OpenRouter chat completion API used for scene code
// generation, repair edits, and frame analysis. The client handles retries,
// JSON-mode responses, and multimodal image attachments.
package llm
