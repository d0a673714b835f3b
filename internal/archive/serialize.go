package archive

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"
)

// ErrSerialization means a message could not be encoded as JSON, usually
// because its metadata holds a non-serializable value.
var ErrSerialization = errors.New("serialization failed")

// AttachmentRef is the resolved on-disk descriptor embedded in a
// serialized message.
type AttachmentRef struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Filename string `json:"filename"`
	Path     string `json:"path"`
}

// record is the wire form of one messages.jsonl line.
type record struct {
	ID          string          `json:"id,omitempty"`
	Content     *string         `json:"content"`
	Source      string          `json:"source"`
	Timestamp   time.Time       `json:"timestamp"`
	Metadata    map[string]any  `json:"metadata"`
	Attachments []AttachmentRef `json:"attachments"`
}

// Serialize converts a message plus its resolved attachment descriptors
// into exactly one JSON text line (no trailing newline).
//
// Binary content is decoded as UTF-8 with replacement characters for
// invalid sequences. That transform is one-way: the original bytes are
// not recoverable from the serialized form.
func Serialize(msg Message, refs []AttachmentRef) (string, error) {
	var content *string
	if msg.Content != nil {
		s := string(msg.Content)
		if !utf8.ValidString(s) {
			slog.Warn("Message content is not valid UTF-8, replacing invalid sequences", "message_id", msg.ID)
			s = strings.ToValidUTF8(s, string(utf8.RuneError))
		}
		content = &s
	}

	// Sticker emoji stands in for empty content.
	if set, _ := msg.Metadata["sticker_set"].(string); set != "" {
		if emoji, _ := msg.Metadata["emoji"].(string); emoji != "" && (content == nil || *content == "") {
			content = &emoji
		}
	}

	if refs == nil {
		refs = []AttachmentRef{}
	}
	rec := record{
		ID:          msg.ID,
		Content:     content,
		Source:      msg.Source,
		Timestamp:   msg.Timestamp.UTC(),
		Metadata:    msg.Metadata,
		Attachments: refs,
	}
	out, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	return string(out), nil
}

// Deserialize parses one messages.jsonl line back into a message and its
// attachment descriptors. For messages whose content was textual,
// Deserialize(Serialize(m)) reproduces content, source, metadata and
// attachments; timestamps lose sub-second precision.
func Deserialize(line string) (Message, []AttachmentRef, error) {
	var rec record
	if err := json.Unmarshal([]byte(line), &rec); err != nil {
		return Message{}, nil, fmt.Errorf("failed to parse message line: %w", err)
	}
	msg := Message{
		ID:        rec.ID,
		Source:    rec.Source,
		Timestamp: rec.Timestamp,
		Metadata:  rec.Metadata,
	}
	if rec.Content != nil {
		msg.Content = []byte(*rec.Content)
	}
	return msg, rec.Attachments, nil
}
