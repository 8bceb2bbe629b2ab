package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"unicode/utf8"

	"github.com/urfave/cli/v2"

	"github.com/inletlabs/inlet/cli/render"
	"github.com/inletlabs/inlet/iox"
	"github.com/inletlabs/inlet/journal"
	"github.com/inletlabs/inlet/types"
)

// JournalSummary is the response for the inspect command.
type JournalSummary struct {
	Path       string `json:"path"`
	Entries    int    `json:"entries"`
	TextDeltas int    `json:"text_deltas"`
	TextRunes  int    `json:"text_runes"`
	ToolEvents int    `json:"tool_events"`
	Thinking   int    `json:"thinking"`
	Artifacts  int    `json:"artifacts"`
	Errors     int    `json:"errors"`
	Unknown    int    `json:"unknown"`
	Done       bool   `json:"done"`
	Truncated  bool   `json:"truncated"`
	FirstAt    string `json:"first_at,omitempty"`
	LastAt     string `json:"last_at,omitempty"`
}

// TableHeader implements render.Tabular.
func (s JournalSummary) TableHeader() []string { return []string{"FIELD", "VALUE"} }

// TableRows implements render.Tabular.
func (s JournalSummary) TableRows() [][]string {
	rows := [][]string{
		{"journal", s.Path},
		{"entries", strconv.Itoa(s.Entries)},
		{"text_deltas", strconv.Itoa(s.TextDeltas)},
		{"text_runes", strconv.Itoa(s.TextRunes)},
		{"tool_events", strconv.Itoa(s.ToolEvents)},
		{"thinking", strconv.Itoa(s.Thinking)},
		{"artifacts", strconv.Itoa(s.Artifacts)},
		{"errors", strconv.Itoa(s.Errors)},
		{"unknown", strconv.Itoa(s.Unknown)},
		{"done", strconv.FormatBool(s.Done)},
	}
	if s.Truncated {
		rows = append(rows, []string{"truncated", "true"})
	}
	if s.FirstAt != "" {
		rows = append(rows,
			[]string{"first_at", s.FirstAt},
			[]string{"last_at", s.LastAt},
		)
	}
	return rows
}

// JournalEntryView is one journal entry in record listing mode.
type JournalEntryView struct {
	Seq    int64  `json:"seq"`
	At     string `json:"at"`
	Kind   string `json:"kind"`
	Detail string `json:"detail,omitempty"`
}

// JournalEntryList is the record listing response.
type JournalEntryList []JournalEntryView

// TableHeader implements render.Tabular.
func (l JournalEntryList) TableHeader() []string { return []string{"SEQ", "AT", "KIND", "DETAIL"} }

// TableRows implements render.Tabular.
func (l JournalEntryList) TableRows() [][]string {
	rows := make([][]string, 0, len(l))
	for _, e := range l {
		rows = append(rows, []string{strconv.FormatInt(e.Seq, 10), e.At, e.Kind, e.Detail})
	}
	return rows
}

// InspectCommand returns the inspect command. Inspect summarizes a
// captured journal without running the pipeline.
func InspectCommand() *cli.Command {
	return &cli.Command{
		Name:  "inspect",
		Usage: "Summarize a captured stream journal",
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:     "journal",
				Usage:    "Path to the journal file",
				Required: true,
			},
			&cli.BoolFlag{
				Name:  "records",
				Usage: "List every record instead of the summary",
			},
		}, ReadOnlyFlags()...),
		Action: inspectAction,
	}
}

func inspectAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	path := c.String("journal")
	entries, truncated, err := readJournalTolerant(path)
	if err != nil {
		return cli.Exit(fmt.Sprintf("cannot read journal: %v", err), exitInvalidConfig)
	}

	if c.Bool("records") {
		views := make(JournalEntryList, 0, len(entries))
		for _, entry := range entries {
			views = append(views, JournalEntryView{
				Seq:    entry.Seq,
				At:     entry.At,
				Kind:   string(entry.Record.Kind),
				Detail: recordDetail(entry.Record),
			})
		}
		return r.Render(views)
	}

	return r.Render(summarizeJournal(path, entries, truncated))
}

// readJournalTolerant reads entries up to the first frame error. A
// truncated tail is reported, not fatal: the session may have been
// killed mid-write and the intact prefix is still worth inspecting.
func readJournalTolerant(path string) ([]*journal.Entry, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, false, err
	}
	defer iox.DiscardClose(f)

	reader := journal.NewReader(f)
	var entries []*journal.Entry
	for {
		entry, err := reader.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return entries, false, nil
			}
			if journal.IsFrameError(err) {
				return entries, true, nil
			}
			return entries, false, err
		}
		entries = append(entries, entry)
	}
}

func summarizeJournal(path string, entries []*journal.Entry, truncated bool) JournalSummary {
	summary := JournalSummary{
		Path:      path,
		Entries:   len(entries),
		Truncated: truncated,
	}

	for _, entry := range entries {
		switch entry.Record.Kind {
		case types.RecordText:
			summary.TextDeltas++
			summary.TextRunes += utf8.RuneCountInString(entry.Record.Content)
		case types.RecordTool:
			summary.ToolEvents++
		case types.RecordThinking:
			summary.Thinking++
		case types.RecordArtifact:
			summary.Artifacts++
		case types.RecordError:
			summary.Errors++
		case types.RecordDone:
			summary.Done = true
		case types.RecordUnknown:
			summary.Unknown++
		}
	}

	if len(entries) > 0 {
		summary.FirstAt = entries[0].At
		summary.LastAt = entries[len(entries)-1].At
	}
	return summary
}

// recordDetail renders a one-line description of a record.
func recordDetail(rec types.Record) string {
	switch rec.Kind {
	case types.RecordText:
		return truncateRunes(rec.Content, 60)
	case types.RecordTool:
		return rec.Tool.Progress()
	case types.RecordThinking:
		return rec.Thinking.Message
	case types.RecordArtifact:
		return fmt.Sprintf("%s: %s", rec.Artifact.Type, rec.Artifact.Title)
	case types.RecordError:
		return rec.Error
	case types.RecordConversation:
		return rec.ConversationID
	default:
		return ""
	}
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "…"
}
