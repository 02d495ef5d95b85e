package whatsapp

import (
	"strings"
	"sync"
)

// Credentials address one gateway session. Only the token changes after construction.
type Credentials struct {
	APIURL    string
	SessionID string
	SecretKey string

	mu    sync.RWMutex
	token string
}

// NewCredentials trims inputs and strips trailing slashes from apiURL.
func NewCredentials(apiURL string, sessionID string, token string, secretKey string) *Credentials {
	return &Credentials{
		APIURL:    strings.TrimRight(strings.TrimSpace(apiURL), "/"),
		SessionID: strings.TrimSpace(sessionID),
		SecretKey: strings.TrimSpace(secretKey),
		token:     strings.TrimSpace(token),
	}
}

// Token returns the current bearer token.
func (c *Credentials) Token() string {
	if c == nil {
		return ""
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// SetToken replaces the token; requests issued afterwards observe the new value.
func (c *Credentials) SetToken(token string) {
	if c == nil {
		return
	}

	c.mu.Lock()
	c.token = strings.TrimSpace(token)
	c.mu.Unlock()
}
