package modeljson

import (
	"encoding/base64"
	"testing"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"trailing comma", `{"a":[1,2,],}`, `{"a":[1,2]}`},
		{"block comment", `{/* note */"a":1}`, `{"a":1}`},
		{"line comment", "{\n  // the card\n  \"a\": 1\n}", "{\n\n  \"a\": 1\n}"},
		{"surrounding prose", `Sure! {"a":1} Hope this helps.`, `{"a":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Sanitize(tt.in); got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseVisionResponse(t *testing.T) {
	raw := "```json\n" + `{
  "detections": [
    {"label": "card", "confidence": 0.91, "box": {"x": 0.1, "y": 0.2, "w": 0.4, "h": 0.25}},
    {"label": "thread", "confidence": 0.7, "box": {"x": 0.6, "y": 0.3, "w": 0.1, "h": 0.1}},
  ],
  "description": "a fitting next to a card"
}` + "\n```"

	r := ParseVisionResponse(raw)
	if len(r.Detections) != 2 {
		t.Fatalf("Expected 2 detections, got %d", len(r.Detections))
	}
	if r.Detections[0].Label != "card" || r.Detections[0].Box.W != 0.4 {
		t.Errorf("Unexpected first detection %+v", r.Detections[0])
	}
	if r.Description != "a fitting next to a card" {
		t.Errorf("Unexpected description %q", r.Description)
	}
}

func TestParseVisionResponseFallback(t *testing.T) {
	for _, raw := range []string{"I cannot see a card here.", `{"detections": [oops]}`, `{"description": "nothing"}`} {
		r := ParseVisionResponse(raw)
		if r == nil || r.Detections == nil {
			t.Fatalf("Expected empty detections for %q", raw)
		}
		if len(r.Detections) != 0 {
			t.Errorf("Expected no detections for %q, got %d", raw, len(r.Detections))
		}
	}
}

func TestImageMIME(t *testing.T) {
	png := base64.StdEncoding.EncodeToString([]byte("\x89PNG\r\n\x1a\n"))
	webp := base64.StdEncoding.EncodeToString([]byte("RIFF\x00\x00\x00\x00WEBP"))
	jpg := base64.StdEncoding.EncodeToString([]byte("\xff\xd8\xff\xe0"))

	for in, want := range map[string]string{png: "image/png", webp: "image/webp", jpg: "image/jpeg"} {
		if got := ImageMIME(in); got != want {
			t.Errorf("ImageMIME(%q) = %s, want %s", in, got, want)
		}
	}
}
