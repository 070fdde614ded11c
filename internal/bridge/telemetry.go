package bridge

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMalformedMessage = errors.New("bridge: malformed telemetry message")
	ErrMalformedPayload = errors.New("bridge: malformed telemetry payload")
)

// Message is one telemetry frame split into its topic token and payload.
type Message struct {
	Topic   string
	Payload string
}

func (m Message) String() string {
	return m.Topic + " " + m.Payload
}

// ParseMessage splits raw at the first space. Both halves must be non-empty.
func ParseMessage(raw string) (Message, error) {
	topic, payload, ok := strings.Cut(raw, " ")
	if !ok || topic == "" || strings.TrimSpace(payload) == "" {
		return Message{}, fmt.Errorf("%w: %q", ErrMalformedMessage, truncate(raw, 64))
	}
	return Message{Topic: topic, Payload: payload}, nil
}

// Progress is the payload published on the progress topic.
type Progress struct {
	ID      string  `json:"id"`
	Status  string  `json:"status"`
	Value   float64 `json:"value"`
	Message string  `json:"message"`
}

type progressWire struct {
	ID      string   `json:"id"`
	Status  string   `json:"status"`
	Value   *float64 `json:"value"`
	Message string   `json:"message"`
}

// ParseProgress decodes a progress payload. Payloads written with single
// quotes are accepted by normalizing them to double quotes. value must be
// present and numeric.
func ParseProgress(payload string) (Progress, error) {
	var wire progressWire
	if err := json.Unmarshal([]byte(payload), &wire); err != nil {
		normalized := strings.ReplaceAll(payload, "'", `"`)
		wire = progressWire{}
		if err := json.Unmarshal([]byte(normalized), &wire); err != nil {
			return Progress{}, fmt.Errorf("%w: progress: %v", ErrMalformedPayload, err)
		}
	}
	if wire.Value == nil {
		return Progress{}, fmt.Errorf("%w: progress: missing value", ErrMalformedPayload)
	}
	return Progress{
		ID:      wire.ID,
		Status:  wire.Status,
		Value:   *wire.Value,
		Message: wire.Message,
	}, nil
}

// Result is the payload published on the result topic.
type Result struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Data   string `json:"data"`
}

func ParseResult(payload string) (Result, error) {
	var out Result
	if err := json.Unmarshal([]byte(payload), &out); err != nil {
		return Result{}, fmt.Errorf("%w: result: %v", ErrMalformedPayload, err)
	}
	if strings.TrimSpace(out.ID) == "" {
		return Result{}, fmt.Errorf("%w: result: missing id", ErrMalformedPayload)
	}
	return out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
