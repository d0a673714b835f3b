package storage

import "path/filepath"

// MessagesFile is the per-topic append-only message log.
const MessagesFile = "messages.jsonl"

// AttachmentsDir is the per-topic attachment tree root.
const AttachmentsDir = "attachments"

// TopicPath maps a (source, groupID, topicID) triple to the topic
// directory, relative to the repository root. When the topic has no
// source/group hierarchy the flat "topics/<id>" layout is used.
// Deterministic; does not create directories.
func TopicPath(source, groupID, topicID string) string {
	if source == "" || groupID == "" {
		return filepath.Join("topics", topicID)
	}
	return filepath.Join(source, groupID, topicID)
}

// AttachmentPath maps an attachment to its file under
// topicPath/attachments/<category>/<parts...>. Deterministic; does not
// create directories.
func AttachmentPath(topicPath, category string, parts ...string) string {
	elems := append([]string{topicPath, AttachmentsDir, category}, parts...)
	return filepath.Join(elems...)
}
