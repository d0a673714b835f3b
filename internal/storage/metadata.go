package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// MetadataFile is the sidecar document at the repository root.
const MetadataFile = "metadata.yaml"

// TopicEntry is one topic in the registry.
type TopicEntry struct {
	Name      string    `yaml:"name"`
	CreatedAt time.Time `yaml:"created_at"`
}

// GroupEntry indexes the topics of one group within a source.
type GroupEntry struct {
	Title  string                `yaml:"title,omitempty"`
	Topics map[string]TopicEntry `yaml:"topics"`
}

// SourceEntry indexes the groups of one source platform.
type SourceEntry struct {
	Groups map[string]GroupEntry `yaml:"groups"`
}

// Document is the metadata sidecar: owning user, the flat topic registry
// and the source→group→topic index. The flat registry is authoritative
// for topic existence; the nested index locates topics on disk.
type Document struct {
	UserID   string                 `yaml:"user_id"`
	UserName string                 `yaml:"user_name,omitempty"`
	Remote   string                 `yaml:"remote,omitempty"`
	Topics   map[string]TopicEntry  `yaml:"topics"`
	Sources  map[string]SourceEntry `yaml:"sources,omitempty"`
}

// NewDocument returns an empty document owned by the given user.
func NewDocument(userID, userName string) *Document {
	return &Document{
		UserID:   userID,
		UserName: userName,
		Topics:   map[string]TopicEntry{},
	}
}

// HasTopic reports registry membership for a topic id.
func (d *Document) HasTopic(id string) bool {
	_, ok := d.Topics[id]
	return ok
}

// RegisterTopic adds a topic to the registry and, when source and
// groupID are set, to the nested index. Pure transform of the document.
// A group id without a source (or vice versa) is an ErrConfig.
func (d *Document) RegisterTopic(id, name, source, groupID, groupTitle string, createdAt time.Time) error {
	if (source == "") != (groupID == "") {
		return fmt.Errorf("%w: source and group_id must be set together", ErrConfig)
	}
	if d.Topics == nil {
		d.Topics = map[string]TopicEntry{}
	}
	entry := TopicEntry{Name: name, CreatedAt: createdAt}
	d.Topics[id] = entry
	if source == "" {
		return nil
	}
	if d.Sources == nil {
		d.Sources = map[string]SourceEntry{}
	}
	src, ok := d.Sources[source]
	if !ok {
		src = SourceEntry{Groups: map[string]GroupEntry{}}
	}
	grp, ok := src.Groups[groupID]
	if !ok {
		grp = GroupEntry{Title: groupTitle, Topics: map[string]TopicEntry{}}
	}
	grp.Topics[id] = entry
	src.Groups[groupID] = grp
	d.Sources[source] = src
	return nil
}

// MetadataStore reads and writes the metadata document.
type MetadataStore struct {
	path string
}

// NewMetadataStore returns a store for the document inside root.
func NewMetadataStore(root string) *MetadataStore {
	return &MetadataStore{path: filepath.Join(root, MetadataFile)}
}

// Exists reports whether the document file is present on disk.
func (s *MetadataStore) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Read returns the parsed document, or an empty one if the file is
// absent. A file that exists but does not parse is a *CorruptError.
func (s *MetadataStore) Read() (*Document, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return &Document{Topics: map[string]TopicEntry{}}, nil
	}
	if err != nil {
		return nil, &IOError{Path: s.path, Err: err}
	}
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &CorruptError{Path: s.path, Err: err}
	}
	if doc.Topics == nil {
		doc.Topics = map[string]TopicEntry{}
	}
	return &doc, nil
}

// Write serializes the document and replaces the file via a temp file
// and rename, so readers never observe a partial document.
func (s *MetadataStore) Write(doc *Document) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return &IOError{Path: tmp, Err: err}
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return &IOError{Path: s.path, Err: err}
	}
	return nil
}
