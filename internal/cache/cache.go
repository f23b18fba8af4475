// Package cache holds generated texts keyed by the message they were
// generated for.
//
// A Cache is not safe for concurrent use. It is owned by the event loop and
// every access must happen there.
package cache

// Key identifies a message. Telegram message ids are only unique within a
// chat, so the chat is part of the identity.
type Key struct {
	ChatID    int64
	MessageID int64
}

// Valid reports whether k may be stored.
func (k Key) Valid() bool {
	return k.MessageID != 0
}

// Cache is an unbounded map with no expiry. Entries leave only through
// Remove or Clear.
type Cache struct {
	entries map[Key]string
}

// New returns an empty cache.
func New() *Cache {
	return &Cache{entries: make(map[Key]string)}
}

// Get returns the cached text for k.
func (c *Cache) Get(k Key) (string, bool) {
	text, ok := c.entries[k]
	return text, ok
}

// Put stores text under k. Invalid keys are ignored.
func (c *Cache) Put(k Key, text string) {
	if !k.Valid() {
		return
	}
	c.entries[k] = text
}

// Remove drops the entry for k, if any.
func (c *Cache) Remove(k Key) {
	delete(c.entries, k)
}

// Clear drops every entry.
func (c *Cache) Clear() {
	clear(c.entries)
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	return len(c.entries)
}
