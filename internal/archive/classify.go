package archive

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

// ErrInvalidAttachment is a contract violation: the attachment is
// missing required fields (an id). Not caught internally.
var ErrInvalidAttachment = errors.New("invalid attachment")

// Kind is the closed set of attachment kinds. Classification dispatches
// on it so the category/extension/path mapping is exhaustive.
type Kind int

const (
	KindGeneric Kind = iota
	KindSticker
	KindPhoto
	KindDocument
	KindAudio
	KindVoice
)

func (k Kind) String() string {
	switch k {
	case KindSticker:
		return "sticker"
	case KindPhoto:
		return "photo"
	case KindDocument:
		return "document"
	case KindAudio:
		return "audio"
	case KindVoice:
		return "voice"
	default:
		return "generic"
	}
}

// KindOf derives the attachment kind from message context. A sticker set
// in the metadata always wins; otherwise the upstream "type" hint is
// used and anything unrecognized is generic.
func KindOf(msg Message) Kind {
	if s, _ := msg.Metadata["sticker_set"].(string); s != "" {
		return KindSticker
	}
	switch hint, _ := msg.Metadata["type"].(string); hint {
	case "photo", "imageframe":
		return KindPhoto
	case "document", "documentframe":
		return KindDocument
	case "audio", "audioframe":
		return KindAudio
	case "voice", "voiceframe":
		return KindVoice
	default:
		return KindGeneric
	}
}

// Classification says where and under what name an attachment is stored.
type Classification struct {
	Kind      Kind
	Category  string // subdirectory under attachments/
	Extension string
	Filename  string
	PathParts []string // relative to attachments/<category>/
}

// RelPath returns the path relative to the topic directory, always with
// forward slashes, for embedding into serialized message metadata.
func (c Classification) RelPath() string {
	parts := append([]string{"attachments", c.Category}, c.PathParts...)
	return path.Join(parts...)
}

// Classify decides the storage location for an attachment using message
// context hints. Pure function of its inputs.
func Classify(msg Message, att Attachment) (Classification, error) {
	if att.ID == "" {
		return Classification{}, fmt.Errorf("attachment id is required: %w", ErrInvalidAttachment)
	}

	kind := KindOf(msg)
	if kind == KindSticker {
		set, _ := msg.Metadata["sticker_set"].(string)
		ext, _ := msg.Metadata["format"].(string)
		if ext == "" {
			ext = extensionFromMIME(att.Type)
		}
		filename := att.ID + "." + ext
		return Classification{
			Kind:      KindSticker,
			Category:  "sticker",
			Extension: ext,
			Filename:  filename,
			PathParts: []string{set, filename},
		}, nil
	}

	// The on-disk name is always derived from the attachment id so the
	// resolved path is a pure function of (topic, category, id); the
	// original filename survives in the serialized message.
	ext, _ := msg.Metadata["format"].(string)
	if ext == "" {
		ext = extensionFromMIME(att.Type)
	}
	filename := att.ID + "." + ext
	return Classification{
		Kind:      kind,
		Category:  ext,
		Extension: ext,
		Filename:  filename,
		PathParts: []string{filename},
	}, nil
}

// extensionFromMIME maps a MIME type to a file extension: the subtype
// with any "x-" prefix stripped and jpeg normalized to jpg.
func extensionFromMIME(mimeType string) string {
	ext := mimeType
	if i := strings.LastIndex(mimeType, "/"); i >= 0 {
		ext = mimeType[i+1:]
	}
	ext = strings.TrimPrefix(ext, "x-")
	if ext == "jpeg" {
		ext = "jpg"
	}
	if ext == "" {
		ext = "bin"
	}
	return ext
}
