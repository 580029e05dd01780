package semantic

import (
	"testing"
	"time"

	"mailroom_server/pkg/logger"
)

func TestNewClientWithoutKey(t *testing.T) {
	log := logger.New(logger.Config{Level: logger.LevelError, Service: "test"})
	if c := NewClient(ClientConfig{}, log); c != nil {
		t.Error("missing API key must yield a nil client")
	}
}

func TestNewClientDefaults(t *testing.T) {
	log := logger.New(logger.Config{Level: logger.LevelError, Service: "test"})
	c := NewClient(ClientConfig{APIKey: "test-key"}, log)
	if c == nil {
		t.Fatal("expected a client with an API key")
	}
	if c.model != DefaultModel {
		t.Errorf("model = %q, want %q", c.model, DefaultModel)
	}
	if c.maxTokens != 2048 {
		t.Errorf("maxTokens = %d, want 2048", c.maxTokens)
	}
	if c.temperature != float32(0.1) {
		t.Errorf("temperature = %v, want 0.1", c.temperature)
	}
	if c.timeout != 45*time.Second {
		t.Errorf("timeout = %v, want 45s", c.timeout)
	}
}

func TestNewClientHonorsTuning(t *testing.T) {
	log := logger.New(logger.Config{Level: logger.LevelError, Service: "test"})
	c := NewClient(ClientConfig{
		APIKey:      "test-key",
		Model:       "gpt-4o",
		MaxTokens:   512,
		Temperature: 0.7,
		Timeout:     10 * time.Second,
	}, log)
	if c.model != "gpt-4o" {
		t.Errorf("model = %q, want gpt-4o", c.model)
	}
	if c.maxTokens != 512 {
		t.Errorf("maxTokens = %d, want 512", c.maxTokens)
	}
	if c.temperature != float32(0.7) {
		t.Errorf("temperature = %v, want 0.7", c.temperature)
	}
	if c.timeout != 10*time.Second {
		t.Errorf("timeout = %v, want 10s", c.timeout)
	}
}

func TestAdaptersUnavailableWithNilClient(t *testing.T) {
	classifier := NewClassifierAdapter(nil)
	if classifier.Available() {
		t.Error("classifier should be unavailable without a client")
	}

	extractor := NewExtractorAdapter(nil)
	if extractor.Available() {
		t.Error("extractor should be unavailable without a client")
	}
}

func TestStripJSONFences(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`{"a":1}`, `{"a":1}`},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n{\"a\":1}\n```", `{"a":1}`},
		{"  {\"a\":1}  ", `{"a":1}`},
	}
	for _, tt := range tests {
		if got := stripJSONFences(tt.in); got != tt.want {
			t.Errorf("stripJSONFences(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
