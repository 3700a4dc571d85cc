package models

import (
	"fmt"
	"strings"
)

// Default query limits.
const (
	DefaultK = 10
	MaxK     = 100
)

// Query is a retrieval request scoped to one user.
type Query struct {
	UserID string `json:"user_id"`
	Text   string `json:"text"`
	K      int    `json:"k,omitempty"`
}

// Validate ensures the query has a user and text, and normalizes K.
// K <= 0 becomes defaultK and K above maxK is capped; zero limits fall back to DefaultK and MaxK.
func (q *Query) Validate(defaultK, maxK int) error {
	if q.UserID == "" {
		return fmt.Errorf("user id cannot be empty")
	}
	if strings.TrimSpace(q.Text) == "" {
		return fmt.Errorf("query cannot be empty")
	}
	if defaultK <= 0 {
		defaultK = DefaultK
	}
	if maxK <= 0 {
		maxK = MaxK
	}
	if q.K <= 0 {
		q.K = defaultK
	}
	if q.K > maxK {
		q.K = maxK
	}
	return nil
}
