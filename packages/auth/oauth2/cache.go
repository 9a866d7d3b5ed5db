package oauth2

import "sync"

// TokenCache holds tokens by provider key.
type TokenCache struct {
	mu     sync.RWMutex
	tokens map[string]*Token
}

func NewTokenCache() *TokenCache {
	return &TokenCache{tokens: make(map[string]*Token)}
}

func (c *TokenCache) Get(key string) *Token {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tokens[key]
}

func (c *TokenCache) Set(key string, token *Token) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens[key] = token
}

func (c *TokenCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.tokens, key)
}
