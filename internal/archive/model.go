// Package archive defines the value objects the storage layer persists
// and the pure logic that prepares them for disk: attachment
// classification and message serialization.
package archive

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// User owns an archive repository. Created once at storage
// initialization, immutable thereafter.
type User struct {
	ID       string
	Name     string
	Metadata map[string]any
}

// Topic is a logical conversation archived as one message log plus an
// attachment tree. Metadata may carry "source", "group_id" and
// "group_title" to place the topic in the source/group hierarchy.
type Topic struct {
	ID       string
	Name     string
	Metadata map[string]string
}

// Validate checks topic invariants before any side effect occurs.
func (t Topic) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("topic id is required")
	}
	if strings.Contains(t.ID, "/") {
		return fmt.Errorf("topic id %q cannot contain '/'", t.ID)
	}
	if strings.Contains(t.Name, "/") {
		return fmt.Errorf("topic name %q cannot contain '/'", t.Name)
	}
	source := t.Metadata["source"]
	group := t.Metadata["group_id"]
	if (source == "") != (group == "") {
		return fmt.Errorf("topic %q: source and group_id must be set together", t.ID)
	}
	return nil
}

// Source returns the topic's source tag, or "" for the flat layout.
func (t Topic) Source() string { return t.Metadata["source"] }

// GroupID returns the topic's group id, or "" for the flat layout.
func (t Topic) GroupID() string { return t.Metadata["group_id"] }

// Message is a single archived message. Immutable once serialized;
// appended to a per-topic log and never mutated or deleted.
type Message struct {
	ID          string
	Content     []byte
	Source      string
	Timestamp   time.Time
	Metadata    map[string]any
	Attachments []Attachment
}

// NewMessage builds a message with defaults applied: a UUID when id is
// absent and the current UTC time when the timestamp is zero.
func NewMessage(content []byte, source string, metadata map[string]any) Message {
	return Message{
		ID:        uuid.NewString(),
		Content:   content,
		Source:    source,
		Timestamp: time.Now().UTC(),
		Metadata:  metadata,
	}
}

// ApplyDefaults fills in a generated id and the current UTC time for
// messages constructed directly by upstream callers.
func (m *Message) ApplyDefaults() {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now().UTC()
	}
}

// Validate enforces the chat_id/source pairing invariant before any side
// effect: if metadata names a chat it must also name the source platform,
// and vice versa.
func (m Message) Validate() error {
	if m.Metadata == nil {
		return nil
	}
	_, hasChat := m.Metadata["chat_id"]
	_, hasSource := m.Metadata["source"]
	if hasChat != hasSource {
		return fmt.Errorf("message metadata must carry chat_id and source together")
	}
	return nil
}

// Attachment is a binary payload owned by a message. Data may be nil
// when the attachment is referenced by URL instead.
type Attachment struct {
	ID       string
	Type     string // MIME type, e.g. "image/jpeg"
	Filename string
	Data     []byte
	URL      string
}
