package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/inletlabs/inlet/cli/render"
	"github.com/inletlabs/inlet/iox"
	"github.com/inletlabs/inlet/journal"
	"github.com/inletlabs/inlet/log"
	"github.com/inletlabs/inlet/runtime"
	"github.com/inletlabs/inlet/sse"
	"github.com/inletlabs/inlet/store"
	"github.com/inletlabs/inlet/types"
)

// ReplayResponse is the response for the replay command.
type ReplayResponse struct {
	Journal         string                 `json:"journal"`
	Entries         int                    `json:"entries"`
	Status          types.SessionStatus    `json:"status"`
	Fault           *types.ClassifiedError `json:"fault,omitempty"`
	TextLen         int                    `json:"text_len"`
	ToolEvents      int64                  `json:"tool_events"`
	DecodeErrors    int64                  `json:"decode_errors"`
	ArtifactID      string                 `json:"artifact_id,omitempty"`
	ArtifactVersion int64                  `json:"artifact_version,omitempty"`
	Duration        string                 `json:"duration"`
}

// TableHeader implements render.Tabular.
func (r ReplayResponse) TableHeader() []string { return []string{"FIELD", "VALUE"} }

// TableRows implements render.Tabular. Optional fields only appear
// when set.
func (r ReplayResponse) TableRows() [][]string {
	rows := [][]string{
		{"journal", r.Journal},
		{"entries", strconv.Itoa(r.Entries)},
		{"status", string(r.Status)},
	}
	if r.Fault != nil {
		rows = append(rows, []string{"fault", fmt.Sprintf("%s (%s)", r.Fault.Message, r.Fault.Kind)})
	}
	rows = append(rows,
		[]string{"text_len", strconv.Itoa(r.TextLen)},
		[]string{"tool_events", strconv.FormatInt(r.ToolEvents, 10)},
		[]string{"decode_errors", strconv.FormatInt(r.DecodeErrors, 10)},
	)
	if r.ArtifactID != "" {
		rows = append(rows,
			[]string{"artifact_id", r.ArtifactID},
			[]string{"artifact_version", strconv.FormatInt(r.ArtifactVersion, 10)},
		)
	}
	return append(rows, []string{"duration", r.Duration})
}

// ReplayCommand returns the replay command. Replay runs a captured
// journal through the full pipeline against an in-memory store, so a
// problematic stream can be re-examined offline.
func ReplayCommand() *cli.Command {
	return &cli.Command{
		Name:  "replay",
		Usage: "Replay a captured journal through the ingestion pipeline",
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:     "journal",
				Usage:    "Path to the journal file",
				Required: true,
			},
			&cli.DurationFlag{
				Name:  "delay",
				Usage: "Delay between replayed records",
			},
			&cli.StringFlag{
				Name:  "pacer",
				Usage: "Reveal pacer: time-sliced or char-paced",
			},
			&cli.Float64Flag{
				Name:  "chars-per-second",
				Usage: "Reveal rate (char-paced pacer)",
			},
			&cli.BoolFlag{
				Name:  "tui",
				Usage: "Show the live reveal view while replaying",
			},
		}, ReadOnlyFlags()...),
		Action: replayAction,
	}
}

func replayAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	path := c.String("journal")
	entries, err := readJournal(path)
	if err != nil {
		return cli.Exit(fmt.Sprintf("cannot read journal: %v", err), exitInvalidConfig)
	}
	if len(entries) == 0 {
		return cli.Exit("journal is empty", exitInvalidConfig)
	}

	sessionConfig := runtime.SessionConfig{
		ConversationID:     "replay",
		AssistantMessageID: uuid.NewString(),
		Open:               journalTransport(entries, c.Duration("delay")),
		Store:              store.NewMemory(),
		Reveal: runtime.RevealOptions{
			Strategy:       c.String("pacer"),
			CharsPerSecond: c.Float64("chars-per-second"),
		},
		Logger: log.NewNopLogger(),
	}

	startedAt := time.Now()
	result, err := driveSession(c, sessionConfig, "inlet replay "+path)
	if err != nil {
		return err
	}

	resp := ReplayResponse{
		Journal:      path,
		Entries:      len(entries),
		Status:       result.Status,
		Fault:        result.Fault,
		TextLen:      len([]rune(result.Text)),
		ToolEvents:   result.Metrics.ToolEvents,
		DecodeErrors: result.Metrics.DecodeErrors,
		Duration:     time.Since(startedAt).Round(time.Millisecond).String(),
	}
	if result.Artifact != nil {
		resp.ArtifactID = result.Artifact.ID
		resp.ArtifactVersion = result.Artifact.Version
	}

	if err := r.Render(resp); err != nil {
		return err
	}
	return cli.Exit("", statusToExitCode(result.Status))
}

// readJournal loads every entry from a journal file.
func readJournal(path string) ([]*journal.Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer iox.DiscardClose(f)

	return journal.NewReader(f).ReadAll()
}

// journalTransport re-encodes journal entries as wire lines and serves
// them as a stream. Safe to call more than once; each open replays from
// the first entry.
func journalTransport(entries []*journal.Entry, delay time.Duration) runtime.Transport {
	return func(ctx context.Context) (io.ReadCloser, error) {
		pr, pw := io.Pipe()
		go func() {
			for _, entry := range entries {
				if delay > 0 {
					select {
					case <-ctx.Done():
						_ = pw.CloseWithError(ctx.Err())
						return
					case <-time.After(delay):
					}
				}

				line, err := sse.EncodeLine(entry.Record)
				if err != nil {
					_ = pw.CloseWithError(err)
					return
				}
				if _, err := pw.Write([]byte(line)); err != nil {
					// Reader side closed; nothing left to serve.
					return
				}
			}
			_ = pw.Close()
		}()
		return pr, nil
	}
}
