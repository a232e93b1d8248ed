package llm

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Image is a single frame attached to a vision request.
type Image struct {
	Data []byte
	MIME string
}

// Message is one chat message. Plain-text messages serialize their content as
// a string; multimodal messages serialize as a part array, which is what
// OpenRouter expects for image attachments.
type Message struct {
	Role  string
	Parts []contentPart
}

// SystemMessage builds a plain-text system message.
func SystemMessage(text string) Message {
	return Message{Role: "system", Parts: []contentPart{textPart(text)}}
}

// UserMessage builds a plain-text user message.
func UserMessage(text string) Message {
	return Message{Role: "user", Parts: []contentPart{textPart(text)}}
}

type contentPart struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *imageURLPart `json:"image_url,omitempty"`
}

type imageURLPart struct {
	URL string `json:"url"`
}

func textPart(text string) contentPart {
	return contentPart{Type: "text", Text: text}
}

func imagePart(image Image) (contentPart, error) {
	if len(image.Data) == 0 {
		return contentPart{}, errors.New("empty image data")
	}
	mime := strings.TrimSpace(image.MIME)
	if mime == "" {
		mime = "image/png"
	}
	encoded := base64.StdEncoding.EncodeToString(image.Data)
	return contentPart{
		Type:     "image_url",
		ImageURL: &imageURLPart{URL: fmt.Sprintf("data:%s;base64,%s", mime, encoded)},
	}, nil
}

// MarshalJSON collapses single-text messages to the string content form.
func (m Message) MarshalJSON() ([]byte, error) {
	if len(m.Parts) == 1 && m.Parts[0].Type == "text" {
		return json.Marshal(struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		}{Role: m.Role, Content: m.Parts[0].Text})
	}
	return json.Marshal(struct {
		Role    string        `json:"role"`
		Content []contentPart `json:"content"`
	}{Role: m.Role, Content: m.Parts})
}
