package repositories

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestCursorRoundTrip(t *testing.T) {
	c := &Cursor{
		Timestamp: time.Date(2024, 5, 1, 12, 0, 0, 500, time.UTC),
		LogID:     uuid.New(),
	}

	decoded, err := DecodeCursor(c.Encode())
	if err != nil {
		t.Fatalf("DecodeCursor: %v", err)
	}
	if !decoded.Timestamp.Equal(c.Timestamp) {
		t.Errorf("timestamp = %s, want %s", decoded.Timestamp, c.Timestamp)
	}
	if decoded.LogID != c.LogID {
		t.Errorf("log id = %s, want %s", decoded.LogID, c.LogID)
	}
}

func TestDecodeCursorEmpty(t *testing.T) {
	c, err := DecodeCursor("")
	if err != nil {
		t.Fatalf("empty token should mean first page, got %v", err)
	}
	if c != nil {
		t.Errorf("cursor = %+v, want nil", c)
	}
}

func TestDecodeCursorMalformed(t *testing.T) {
	tests := []struct {
		name  string
		token string
	}{
		{"not base64", "!!not-base64!!"},
		{"not json", "bm90LWpzb24"},
		{"missing position", "e30"}, // "{}"
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeCursor(tt.token); err == nil {
				t.Errorf("DecodeCursor(%q) should fail", tt.token)
			}
		})
	}
}
