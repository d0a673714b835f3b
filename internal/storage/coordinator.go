package storage

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"chatvault/internal/archive"
	"chatvault/internal/storage/git"
)

// Coordinator orchestrates the path layout, filesystem gateway, metadata
// store and git adapter behind the public archive contract. One
// coordinator owns one repository; a single mutex spans each operation
// so metadata read-modify-write and git work never interleave.
type Coordinator struct {
	fs   *FSGateway
	meta *MetadataStore
	repo *git.Repo

	mu          sync.Mutex
	initialized bool

	lastSyncMu  sync.Mutex
	lastSyncAt  time.Time
	lastSyncErr error
}

// NewCoordinator opens (or initializes) the git repository at root and
// wires the storage components around it.
func NewCoordinator(root, userName, userEmail string) (*Coordinator, error) {
	repo, err := git.Open(root, userName, userEmail)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive repository: %w", err)
	}
	c := &Coordinator{
		fs:   NewFSGateway(root),
		meta: NewMetadataStore(root),
		repo: repo,
	}
	c.initialized = c.meta.Exists()
	return c, nil
}

// Repo exposes the git adapter for the sync scheduler.
func (c *Coordinator) Repo() *git.Repo { return c.repo }

// IsInitialized reports true only if the in-memory flag is set and the
// metadata document exists on disk. The double check guards against a
// partially failed prior run.
func (c *Coordinator) IsInitialized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initialized && c.meta.Exists()
}

// InitStorage creates the initial metadata document for the owning user
// and commits it. A second call fails with ErrAlreadyInitialized.
func (c *Coordinator) InitStorage(user archive.User) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.initialized && c.meta.Exists() {
		return fmt.Errorf("%w: archive at %s", ErrAlreadyInitialized, c.fs.Root())
	}
	doc := NewDocument(user.ID, user.Name)
	if err := c.meta.Write(doc); err != nil {
		return err
	}
	if err := c.repo.StageAndCommit(fmt.Sprintf("Initialize archive for %s", user.ID), MetadataFile); err != nil {
		return err
	}
	c.initialized = true
	slog.Info("Archive initialized", "root", c.fs.Root(), "user_id", user.ID)
	return nil
}

// CreateTopic registers a topic and creates its directory structure
// (message log plus attachments dir), then commits. A duplicate id is
// ErrTopicExists unless ignoreExists, in which case the call is a no-op.
func (c *Coordinator) CreateTopic(topic archive.Topic, ignoreExists bool) error {
	if err := topic.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrConfig, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	doc, err := c.meta.Read()
	if err != nil {
		return err
	}
	if doc.HasTopic(topic.ID) {
		if ignoreExists {
			return nil
		}
		return fmt.Errorf("%w: %s", ErrTopicExists, topic.ID)
	}

	topicPath := TopicPath(topic.Source(), topic.GroupID(), topic.ID)
	if err := c.fs.EnsureDir(topicPath); err != nil {
		return err
	}
	if err := c.fs.EnsureDir(filepath.Join(topicPath, AttachmentsDir)); err != nil {
		return err
	}
	logPath := filepath.Join(topicPath, MessagesFile)
	if !c.fs.Exists(logPath) {
		if err := c.fs.WriteFile(logPath, nil); err != nil {
			return err
		}
	}

	if err := doc.RegisterTopic(topic.ID, topic.Name, topic.Source(), topic.GroupID(), topic.Metadata["group_title"], time.Now().UTC()); err != nil {
		return err
	}
	if err := c.meta.Write(doc); err != nil {
		return err
	}
	if err := c.repo.StageAndCommit(fmt.Sprintf("Created topic: %s", topic.Name), logPath, MetadataFile); err != nil {
		return err
	}
	slog.Info("Topic created", "topic_id", topic.ID, "name", topic.Name)
	return nil
}

// HasTopic reports membership in the metadata registry, not the
// filesystem. Under concurrent external mutation the two can diverge;
// the registry is authoritative.
func (c *Coordinator) HasTopic(topicID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	doc, err := c.meta.Read()
	if err != nil {
		return false
	}
	return doc.HasTopic(topicID)
}

// SaveMessage classifies and writes the message's attachments, appends
// the serialized message to the topic log, and commits everything as one
// commit. Returns the message log path and the attachment paths, all
// relative to the repository root. The write is authoritative only once
// the commit succeeds.
func (c *Coordinator) SaveMessage(topicID string, msg archive.Message) (string, []string, error) {
	if err := msg.Validate(); err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	msg.ApplyDefaults()

	c.mu.Lock()
	defer c.mu.Unlock()

	doc, err := c.meta.Read()
	if err != nil {
		return "", nil, err
	}
	entry, ok := doc.Topics[topicID]
	if !ok {
		return "", nil, fmt.Errorf("%w: %s", ErrTopicNotFound, topicID)
	}
	topicPath := c.topicPathFor(doc, topicID)

	// Classify everything before the first write so a bad attachment
	// leaves the repository untouched.
	classes := make([]archive.Classification, len(msg.Attachments))
	for i, att := range msg.Attachments {
		cls, err := archive.Classify(msg, att)
		if err != nil {
			return "", nil, err
		}
		classes[i] = cls
	}

	var attPaths []string
	refs := make([]archive.AttachmentRef, 0, len(msg.Attachments))
	seen := map[string]struct{}{}
	for i, att := range msg.Attachments {
		cls := classes[i]
		rel := AttachmentPath(topicPath, cls.Category, cls.PathParts...)
		if _, dup := seen[rel]; dup {
			return "", nil, fmt.Errorf("%w: attachment path collision at %s", ErrConfig, rel)
		}
		seen[rel] = struct{}{}
		if att.Data != nil {
			if c.fs.Exists(rel) {
				return "", nil, fmt.Errorf("%w: attachment path collision at %s", ErrConfig, rel)
			}
			if err := c.fs.EnsureDir(filepath.Dir(rel)); err != nil {
				return "", nil, err
			}
			if err := c.fs.WriteFile(rel, att.Data); err != nil {
				return "", nil, err
			}
			attPaths = append(attPaths, rel)
		}
		// The original filename survives in the serialized message even
		// though the stored file is named after the attachment id.
		name := att.Filename
		if name == "" {
			name = cls.Filename
		}
		refs = append(refs, archive.AttachmentRef{
			ID:       att.ID,
			Type:     att.Type,
			Filename: name,
			Path:     cls.RelPath(),
		})
	}

	line, err := archive.Serialize(msg, refs)
	if err != nil {
		return "", nil, err
	}
	logPath := filepath.Join(topicPath, MessagesFile)
	if err := c.fs.AppendLine(logPath, line); err != nil {
		return "", nil, err
	}

	staged := append([]string{logPath}, attPaths...)
	commitMsg := fmt.Sprintf("Added message to topic: %s", entry.Name)
	if n := len(attPaths); n > 0 {
		commitMsg = fmt.Sprintf("Added message to topic: %s (%d attachments)", entry.Name, n)
	}
	if err := c.repo.StageAndCommit(commitMsg, staged...); err != nil {
		return "", nil, err
	}
	slog.Debug("Message saved", "topic_id", topicID, "message_id", msg.ID, "attachments", len(attPaths))
	return logPath, attPaths, nil
}

// SaveAttachment writes one attachment independently of a message save.
// Legacy path, used when attachments arrive after the fact.
func (c *Coordinator) SaveAttachment(topicID, messageID string, att archive.Attachment) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	doc, err := c.meta.Read()
	if err != nil {
		return "", err
	}
	if !doc.HasTopic(topicID) {
		return "", fmt.Errorf("%w: %s", ErrTopicNotFound, topicID)
	}
	msgCtx := archive.Message{ID: messageID, Metadata: map[string]any{}}
	cls, err := archive.Classify(msgCtx, att)
	if err != nil {
		return "", err
	}
	topicPath := c.topicPathFor(doc, topicID)
	rel := AttachmentPath(topicPath, cls.Category, cls.PathParts...)
	if att.Data == nil {
		return rel, nil
	}
	if c.fs.Exists(rel) {
		return "", fmt.Errorf("%w: attachment path collision at %s", ErrConfig, rel)
	}
	if err := c.fs.EnsureDir(filepath.Dir(rel)); err != nil {
		return "", err
	}
	if err := c.fs.WriteFile(rel, att.Data); err != nil {
		return "", err
	}
	if err := c.repo.StageAndCommit(fmt.Sprintf("Added attachment: %s", cls.Filename), rel); err != nil {
		return "", err
	}
	return rel, nil
}

// Sync pushes local history to the remote. Errors surface unchanged;
// retry policy belongs to the scheduler, not here.
func (c *Coordinator) Sync(ctx context.Context) error {
	err := c.repo.Push(ctx)
	c.recordSync(err)
	return err
}

// SetGithubConfig replaces the origin remote and records the repo spec
// in the metadata document so the change shows up in history.
func (c *Coordinator) SetGithubConfig(token, repoSpec string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.repo.SetRemote(token, repoSpec); err != nil {
		return err
	}
	doc, err := c.meta.Read()
	if err != nil {
		return err
	}
	doc.Remote = repoSpec
	if err := c.meta.Write(doc); err != nil {
		return err
	}
	return c.repo.StageAndCommit(fmt.Sprintf("Configured remote: %s", repoSpec), MetadataFile)
}

// Status is the derived view consumed by the command layer.
type Status struct {
	Initialized bool
	TopicCount  int
	CommitCount int
	LastSyncAt  time.Time
	LastSyncErr error
}

// Status reports topic count and the last sync outcome.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	doc, err := c.meta.Read()
	topics := 0
	if err == nil {
		topics = len(doc.Topics)
	}
	initialized := c.initialized && c.meta.Exists()
	c.mu.Unlock()

	c.lastSyncMu.Lock()
	at, serr := c.lastSyncAt, c.lastSyncErr
	c.lastSyncMu.Unlock()
	return Status{
		Initialized: initialized,
		TopicCount:  topics,
		CommitCount: c.repo.CommitCount(),
		LastSyncAt:  at,
		LastSyncErr: serr,
	}
}

func (c *Coordinator) recordSync(err error) {
	c.lastSyncMu.Lock()
	c.lastSyncAt = time.Now()
	c.lastSyncErr = err
	c.lastSyncMu.Unlock()
}

// topicPathFor locates a topic's directory via the nested index,
// falling back to the flat layout.
func (c *Coordinator) topicPathFor(doc *Document, topicID string) string {
	for source, src := range doc.Sources {
		for groupID, grp := range src.Groups {
			if _, ok := grp.Topics[topicID]; ok {
				return TopicPath(source, groupID, topicID)
			}
		}
	}
	return TopicPath("", "", topicID)
}
