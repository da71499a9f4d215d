package llamacpp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newServer(t *testing.T, status int, content interface{}, seen *ChatCompletionRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		if seen != nil {
			if err := json.NewDecoder(r.Body).Decode(seen); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
		}
		if status != http.StatusOK {
			http.Error(w, "model not loaded", status)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id": "cmpl-1",
			"choices": []map[string]interface{}{
				{"index": 0, "message": map[string]interface{}{"role": "assistant", "content": content}},
			},
		})
	}))
}

func TestAnalyzeImage(t *testing.T) {
	var seen ChatCompletionRequest
	srv := newServer(t, http.StatusOK, `{"detections":[{"label":"thread","confidence":0.8,"box":{"x":0.5,"y":0.5,"w":0.1,"h":0.1}},],"description":"fitting"}`, &seen)
	defer srv.Close()

	c, err := NewClient(srv.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	result, err := c.AnalyzeImage(context.Background(), "llava", "find it", "iVBORw0KGgo=")
	if err != nil {
		t.Fatalf("AnalyzeImage failed: %v", err)
	}
	if len(result.Detections) != 1 || result.Detections[0].Label != "thread" {
		t.Errorf("Unexpected detections %+v", result.Detections)
	}

	if seen.Model != "llava" || len(seen.Messages) != 1 {
		t.Fatalf("Unexpected request %+v", seen)
	}
	parts, ok := seen.Messages[0].Content.([]interface{})
	if !ok || len(parts) != 2 {
		t.Fatalf("Expected text and image parts, got %#v", seen.Messages[0].Content)
	}
	img := parts[1].(map[string]interface{})["image_url"].(map[string]interface{})["url"].(string)
	if !strings.HasPrefix(img, "data:image/png;base64,") {
		t.Errorf("Unexpected data URL %s", img)
	}
}

func TestSimpleQueryContentParts(t *testing.T) {
	srv := newServer(t, http.StatusOK, []map[string]string{{"type": "text", "text": "a card and a pipe"}}, nil)
	defer srv.Close()

	c, _ := NewClient(srv.URL)
	text, err := c.SimpleQuery(context.Background(), "llava", "what is this", "")
	if err != nil {
		t.Fatalf("SimpleQuery failed: %v", err)
	}
	if text != "a card and a pipe" {
		t.Errorf("Unexpected text %q", text)
	}
}

func TestServerError(t *testing.T) {
	srv := newServer(t, http.StatusServiceUnavailable, nil, nil)
	defer srv.Close()

	c, _ := NewClient(srv.URL)
	_, err := c.AnalyzeImage(context.Background(), "llava", "p", "")
	if err == nil || !strings.Contains(err.Error(), "503") {
		t.Errorf("Expected status error, got %v", err)
	}
}

func TestNewClientRejectsBadURL(t *testing.T) {
	if _, err := NewClient("localhost:8080"); err == nil {
		t.Error("Expected error for URL without scheme")
	}
}

func TestCheckHealth(t *testing.T) {
	tests := []struct {
		status  int
		wantErr bool
	}{
		{http.StatusOK, false},
		{http.StatusServiceUnavailable, true},
	}

	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/health" {
				http.NotFound(w, r)
				return
			}
			w.WriteHeader(tt.status)
		}))
		c, _ := NewClient(srv.URL + "/")
		err := c.CheckHealth(context.Background())
		if (err != nil) != tt.wantErr {
			t.Errorf("status %d: got err %v", tt.status, err)
		}
		srv.Close()
	}
}
