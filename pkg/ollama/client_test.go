package ollama

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewClientRejectsBadURL(t *testing.T) {
	for _, u := range []string{"", "localhost", "://nope"} {
		if _, err := NewClient(u); err == nil {
			t.Errorf("Expected error for %q", u)
		}
	}
}

func TestAnalyzeImage(t *testing.T) {
	var gotModel string
	var gotImages int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Images []string `json:"images"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		gotModel = req.Model
		if len(req.Messages) > 0 {
			gotImages = len(req.Messages[0].Images)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"model": req.Model,
			"message": map[string]any{
				"role":    "assistant",
				"content": "```json\n{\"detections\":[{\"label\":\"card\",\"confidence\":0.9,\"box\":{\"x\":0.1,\"y\":0.1,\"w\":0.5,\"h\":0.3}}],\"description\":\"card\"}\n```",
			},
			"done": true,
		})
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL + "/api/chat")
	if err != nil {
		t.Fatal(err)
	}
	img := base64.StdEncoding.EncodeToString([]byte("fake image bytes"))
	result, err := c.AnalyzeImage(context.Background(), "qwen2.5vl:7b", "find the card", img)
	if err != nil {
		t.Fatalf("AnalyzeImage failed: %v", err)
	}
	if gotModel != "qwen2.5vl:7b" || gotImages != 1 {
		t.Errorf("Unexpected request: model %q, %d images", gotModel, gotImages)
	}
	if len(result.Detections) != 1 || result.Detections[0].Label != "card" {
		t.Errorf("Unexpected detections %+v", result.Detections)
	}
}

func TestAnalyzeImageBadBase64(t *testing.T) {
	c, err := NewClient("http://127.0.0.1:1")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.AnalyzeImage(context.Background(), "m", "p", "%%%"); err == nil {
		t.Error("Expected base64 error")
	}
}

func TestCheckHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	c, _ := NewClient(srv.URL)
	if err := c.CheckHealth(context.Background()); err != nil {
		t.Errorf("CheckHealth failed: %v", err)
	}

	srv.Close()
	if err := c.CheckHealth(context.Background()); err == nil {
		t.Error("Expected an error once the server is gone")
	}
}
