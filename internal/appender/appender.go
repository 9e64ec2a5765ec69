package appender

import (
	"context"
	"fmt"
	"strings"

	"lanread/internal/models"
	"lanread/internal/workspace"
)

const placeholderText = "·"

// API is the slice of the workspace client the appender needs.
type API interface {
	AppendBlocks(ctx context.Context, targetID string, children []workspace.Block) error
}

// Appender converts annotation snapshots into ordered remote blocks and
// appends them to a book's page. A single remote call per invocation; the
// call is not idempotent, so an ambiguous failure retried later can leave
// duplicate blocks behind.
type Appender struct {
	api API
}

func New(api API) *Appender {
	return &Appender{api: api}
}

// AppendHighlight posts a quote block with the highlighted passage followed
// by a chapter/date footer.
func (a *Appender) AppendHighlight(ctx context.Context, payload *models.TaskPayload, pageID string) error {
	blocks := []workspace.Block{
		workspace.NewQuoteBlock(NormalizeText(payload.Text)),
		workspace.NewParagraphBlock(Footer(payload)),
	}
	return a.api.AppendBlocks(ctx, pageID, blocks)
}

// AppendNote posts a paragraph block with the note text followed by a
// chapter/date footer.
func (a *Appender) AppendNote(ctx context.Context, payload *models.TaskPayload, pageID string) error {
	blocks := []workspace.Block{
		workspace.NewParagraphBlock(NormalizeText(payload.Note)),
		workspace.NewParagraphBlock(Footer(payload)),
	}
	return a.api.AppendBlocks(ctx, pageID, blocks)
}

// NormalizeText collapses whitespace runs, trims, and caps the result at
// the remote block limit. Empty input becomes a single placeholder so no
// empty block is ever sent.
func NormalizeText(text string) string {
	normalized := strings.Join(strings.Fields(text), " ")
	if normalized == "" {
		return placeholderText
	}
	runes := []rune(normalized)
	if len(runes) > models.MaxBlockTextLength {
		return string(runes[:models.MaxBlockTextLength]) + "…"
	}
	return normalized
}

// Footer renders the "chapter • date" line under every synced block.
func Footer(payload *models.TaskPayload) string {
	chapter := strings.TrimSpace(payload.Chapter)
	if chapter == "" {
		chapter = models.UnknownChapterLabel
	}
	return fmt.Sprintf("%s • %s", chapter, payload.EventAt.Format("2006-01-02"))
}
