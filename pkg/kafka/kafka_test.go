package kafka

import (
	"testing"
)

type sample struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestEventMessage(t *testing.T) {
	msg, err := Event{Key: "k1", Value: sample{Name: "a", Count: 2}}.message()
	if err != nil {
		t.Fatalf("message() error: %v", err)
	}
	if string(msg.Key) != "k1" {
		t.Errorf("Key = %q", msg.Key)
	}
	if string(msg.Value) != `{"name":"a","count":2}` {
		t.Errorf("Value = %s", msg.Value)
	}
	if msg.Time.IsZero() {
		t.Error("Time should be set")
	}

	if _, err := (Event{Key: "bad", Value: make(chan int)}).message(); err == nil {
		t.Error("expected marshal error for channel value")
	}
}

func TestDecodeJSON(t *testing.T) {
	got, err := DecodeJSON[sample]([]byte(`{"name":"b","count":3}`))
	if err != nil {
		t.Fatalf("DecodeJSON() error: %v", err)
	}
	if got != (sample{Name: "b", Count: 3}) {
		t.Errorf("DecodeJSON() = %+v", got)
	}
	if _, err := DecodeJSON[sample]([]byte(`{`)); err == nil {
		t.Error("expected error for truncated JSON")
	}
}
