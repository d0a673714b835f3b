// Package main is the entry point for the chatvault archiver.
//
// chatvault archives chat messages and attachments into a git
// repository and keeps it synchronized with a GitHub remote. Message
// frames are read as newline-delimited JSON on stdin; the upstream
// transport that produces them is out of scope here.
package main

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"

	"chatvault/internal/archive"
	"chatvault/internal/config"
	"chatvault/internal/storage"
	"chatvault/internal/syncsvc"
)

func main() {
	if err := mainImpl(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "chatvault: %v\n", err)
		os.Exit(1)
	}
}

func mainImpl() error {
	dataDir := flag.String("data-dir", "./archive", "Archive repository directory")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	userID := flag.String("user", "default", "Owning user id")
	userName := flag.String("user-name", "Default User", "Owning user display name")
	githubConfig := flag.String("github-config", "", "Path to GitHub credentials JSON ({\"token\": ..., \"repo\": \"owner/repo\"})")
	syncInterval := flag.Duration("sync-interval", 5*time.Minute, "Interval between background pushes")
	flag.Parse()
	if len(flag.Args()) > 0 {
		return fmt.Errorf("unknown arguments: %v", flag.Args())
	}

	slog.SetDefault(initLogger(*logLevel))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	coord, err := storage.NewCoordinator(*dataDir, *userName, *userID+"@chatvault.local")
	if err != nil {
		return err
	}
	if !coord.IsInitialized() {
		if err := coord.InitStorage(archive.User{ID: *userID, Name: *userName}); err != nil {
			return err
		}
	}

	if *githubConfig != "" {
		cfg, err := config.LoadGitHub(*githubConfig)
		if err != nil {
			return err
		}
		if cfg.Token != "" && cfg.Repo != "" {
			if err := coord.SetGithubConfig(cfg.Token, cfg.Repo); err != nil {
				return err
			}
		}
		err = config.Watch(ctx, *githubConfig, func(cfg config.GitHub) {
			if cfg.Token == "" || cfg.Repo == "" {
				return
			}
			if err := coord.SetGithubConfig(cfg.Token, cfg.Repo); err != nil {
				slog.Error("Failed to reconfigure remote", "err", err)
			}
		})
		if err != nil {
			return err
		}
	}

	sched := syncsvc.New(coord, coord.Repo(), syncsvc.Options{Interval: *syncInterval})
	sched.Start()
	defer sched.Stop()

	return ingest(ctx, coord, os.Stdin)
}

// frame is one newline-delimited JSON message frame on stdin, already
// populated with platform metadata by the upstream transport.
type frame struct {
	TopicID     string         `json:"topic_id"`
	TopicName   string         `json:"topic_name"`
	Content     string         `json:"content"`
	Source      string         `json:"source"`
	Metadata    map[string]any `json:"metadata"`
	Attachments []struct {
		ID       string `json:"id"`
		Type     string `json:"type"`
		Filename string `json:"filename"`
		Data     string `json:"data"` // base64
		URL      string `json:"url"`
	} `json:"attachments"`
}

// ingest saves frames until EOF or cancellation. Topics are created
// implicitly on the first message to an unknown topic id.
func ingest(ctx context.Context, coord *storage.Coordinator, in *os.File) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 1<<20), 64<<20)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var f frame
		if err := json.Unmarshal(line, &f); err != nil {
			slog.Error("Skipping malformed frame", "err", err)
			continue
		}
		if err := saveFrame(coord, f); err != nil {
			slog.Error("Failed to save frame", "topic_id", f.TopicID, "err", err)
		}
	}
	return scanner.Err()
}

func saveFrame(coord *storage.Coordinator, f frame) error {
	if f.TopicID == "" {
		return fmt.Errorf("frame has no topic_id")
	}
	if !coord.HasTopic(f.TopicID) {
		name := f.TopicName
		if name == "" {
			name = f.TopicID
		}
		topic := archive.Topic{ID: f.TopicID, Name: name, Metadata: topicMetadata(f)}
		if err := coord.CreateTopic(topic, true); err != nil {
			return err
		}
	}

	// The transport puts the source tag on the frame; mirror it into the
	// metadata so the chat_id/source pairing invariant holds.
	if f.Metadata != nil {
		if _, ok := f.Metadata["chat_id"]; ok {
			if _, ok := f.Metadata["source"]; !ok {
				f.Metadata["source"] = f.Source
			}
		}
	}
	msg := archive.NewMessage([]byte(f.Content), f.Source, f.Metadata)
	for _, a := range f.Attachments {
		att := archive.Attachment{ID: a.ID, Type: a.Type, Filename: a.Filename, URL: a.URL}
		if a.Data != "" {
			data, err := base64.StdEncoding.DecodeString(a.Data)
			if err != nil {
				return fmt.Errorf("failed to decode attachment %s: %w", a.ID, err)
			}
			att.Data = data
		}
		msg.Attachments = append(msg.Attachments, att)
	}
	_, _, err := coord.SaveMessage(f.TopicID, msg)
	return err
}

func topicMetadata(f frame) map[string]string {
	md := map[string]string{}
	if group := stringValue(f.Metadata["chat_id"]); f.Source != "" && group != "" {
		md["source"] = f.Source
		md["group_id"] = group
	}
	if title := stringValue(f.Metadata["chat_title"]); title != "" {
		md["group_title"] = title
	}
	return md
}

// stringValue renders a JSON scalar as a path-safe string. Chat ids
// arrive as numbers from some transports.
func stringValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return fmt.Sprintf("%.0f", t)
	case int64:
		return fmt.Sprintf("%d", t)
	default:
		return ""
	}
}

func initLogger(level string) *slog.Logger {
	ll := &slog.LevelVar{}
	switch level {
	case "debug":
		ll.Set(slog.LevelDebug)
	case "warn":
		ll.Set(slog.LevelWarn)
	case "error":
		ll.Set(slog.LevelError)
	default:
		ll.Set(slog.LevelInfo)
	}
	return slog.New(tint.NewHandler(colorable.NewColorable(os.Stderr), &tint.Options{
		Level:      ll,
		TimeFormat: "15:04:05.000",
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
	}))
}
