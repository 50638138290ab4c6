package repositories

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Cursor is a keyset position in one organization's entry ordering.
// Tokens are opaque to callers and must round-trip: a token from one
// page resumes exactly after that page's last item.
type Cursor struct {
	Timestamp time.Time `json:"ts"`
	LogID     uuid.UUID `json:"id"`
}

// Encode renders the cursor as an opaque page token.
func (c *Cursor) Encode() string {
	data, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(data)
}

// DecodeCursor parses a page token produced by Encode. An empty token
// means the first page.
func DecodeCursor(token string) (*Cursor, error) {
	if token == "" {
		return nil, nil
	}
	data, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("malformed page token: %w", err)
	}
	var c Cursor
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("malformed page token: %w", err)
	}
	if c.Timestamp.IsZero() {
		return nil, fmt.Errorf("malformed page token: missing position")
	}
	return &c, nil
}
