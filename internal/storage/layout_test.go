package storage

import (
	"path/filepath"
	"testing"
)

func TestTopicPath(t *testing.T) {
	t.Parallel()

	t.Run("Nested", func(t *testing.T) {
		t.Parallel()
		got := TopicPath("telegram", "123", "456")
		want := filepath.Join("telegram", "123", "456")
		if got != want {
			t.Errorf("TopicPath() = %q, want %q", got, want)
		}
	})

	t.Run("Flat", func(t *testing.T) {
		t.Parallel()
		got := TopicPath("", "", "t1")
		want := filepath.Join("topics", "t1")
		if got != want {
			t.Errorf("TopicPath() = %q, want %q", got, want)
		}
	})

	t.Run("Deterministic", func(t *testing.T) {
		t.Parallel()
		if TopicPath("a", "b", "c") != TopicPath("a", "b", "c") {
			t.Error("TopicPath is not deterministic")
		}
	})
}

func TestAttachmentPath(t *testing.T) {
	t.Parallel()
	got := AttachmentPath(filepath.Join("telegram", "123", "456"), "sticker", "cats", "s1.webp")
	want := filepath.Join("telegram", "123", "456", "attachments", "sticker", "cats", "s1.webp")
	if got != want {
		t.Errorf("AttachmentPath() = %q, want %q", got, want)
	}
}
