// Package conversation tracks per-chat auto-reply state and builds the
// prompts sent for automatic replies.
package conversation

import (
	"slices"
	"strconv"
)

// Dialog is a chat as seen by the scheduler.
type Dialog struct {
	ID          int64
	UnreadCount int
}

// Message is one chat message, as returned by the host.
type Message struct {
	ID       int64
	Text     string
	Outgoing bool
}

// Context is the mutable auto-reply state of one chat.
type Context struct {
	ID             int64
	RecentMessages []Message
	// LastIncorporatedID never decreases. Only messages with a greater id
	// are considered for the next reply.
	LastIncorporatedID int64
	// Processing is true while a completion for this chat is in flight.
	Processing bool
}

// Advance moves the watermark forward to id. Lower ids are ignored.
func (c *Context) Advance(id int64) {
	c.LastIncorporatedID = max(c.LastIncorporatedID, id)
}

// AllowList holds the chats automatic replies are enabled for, as
// stringified absolute ids. Users holds direct chats, Groups holds groups.
type AllowList struct {
	Users  []string
	Groups []string
}

// Allows reports whether chatID is enabled. Positive ids are direct chats and
// negative ids are groups.
func (a AllowList) Allows(chatID int64) bool {
	switch {
	case chatID > 0:
		return slices.Contains(a.Users, strconv.FormatInt(chatID, 10))
	case chatID < 0:
		return slices.Contains(a.Groups, strconv.FormatInt(-chatID, 10))
	default:
		return false
	}
}

// Tracker owns every Context. It is not safe for concurrent use and is
// confined to the event loop.
type Tracker struct {
	contexts map[int64]*Context
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{contexts: make(map[int64]*Context)}
}

// GetOrCreate returns the context for id, creating it on first use.
func (t *Tracker) GetOrCreate(id int64) *Context {
	ctx, ok := t.contexts[id]
	if !ok {
		ctx = &Context{ID: id}
		t.contexts[id] = ctx
	}
	return ctx
}

// Get returns the context for id if one exists.
func (t *Tracker) Get(id int64) (*Context, bool) {
	ctx, ok := t.contexts[id]
	return ctx, ok
}

// Enable makes sure a context exists for id.
func (t *Tracker) Enable(id int64) {
	t.GetOrCreate(id)
}

// Disable discards the context for id, including its watermark.
func (t *Tracker) Disable(id int64) {
	delete(t.contexts, id)
}

// ClearAll forgets every conversation.
func (t *Tracker) ClearAll() {
	clear(t.contexts)
}

// Len returns the number of tracked conversations.
func (t *Tracker) Len() int {
	return len(t.contexts)
}

// InFlight counts contexts with a pending completion.
func (t *Tracker) InFlight() int {
	n := 0
	for _, c := range t.contexts {
		if c.Processing {
			n++
		}
	}
	return n
}

// Eligible reports whether d may get a new completion request: it has unread
// messages, it is allow-listed and nothing is in flight for it. The context
// is created lazily for allow-listed unread dialogs.
func (t *Tracker) Eligible(d Dialog, allow AllowList) bool {
	if d.UnreadCount == 0 || !allow.Allows(d.ID) {
		return false
	}
	return !t.GetOrCreate(d.ID).Processing
}
