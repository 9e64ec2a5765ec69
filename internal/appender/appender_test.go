package appender

import (
	"context"
	"strings"
	"testing"
	"time"

	"lanread/internal/models"
	"lanread/internal/workspace"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturingAPI struct {
	pageID string
	blocks []workspace.Block
	err    error
}

func (a *capturingAPI) AppendBlocks(_ context.Context, targetID string, children []workspace.Block) error {
	a.pageID = targetID
	a.blocks = children
	return a.err
}

func blockText(t *testing.T, b workspace.Block) string {
	t.Helper()
	var body *workspace.RichTextBody
	switch b.Type {
	case "quote":
		body = b.Quote
	case "paragraph":
		body = b.Paragraph
	default:
		t.Fatalf("unexpected block type %q", b.Type)
	}
	require.NotNil(t, body)
	require.Len(t, body.RichText, 1)
	return body.RichText[0].Text.Content
}

func TestAppendHighlightBlockOrder(t *testing.T) {
	api := &capturingAPI{}
	payload := &models.TaskPayload{
		BookID:  "book-1",
		Chapter: "Ch1",
		Text:    "Hello   world",
		EventAt: time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC),
	}

	err := New(api).AppendHighlight(context.Background(), payload, "page-1")
	require.NoError(t, err)
	assert.Equal(t, "page-1", api.pageID)
	require.Len(t, api.blocks, 2)
	assert.Equal(t, "quote", api.blocks[0].Type)
	assert.Equal(t, "Hello world", blockText(t, api.blocks[0]))
	assert.Equal(t, "paragraph", api.blocks[1].Type)
	assert.Equal(t, "Ch1 • 2024-01-01", blockText(t, api.blocks[1]))
}

func TestAppendNoteBlockOrder(t *testing.T) {
	api := &capturingAPI{}
	payload := &models.TaskPayload{
		BookID:  "book-1",
		Note:    "my thought",
		EventAt: time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC),
	}

	err := New(api).AppendNote(context.Background(), payload, "page-2")
	require.NoError(t, err)
	require.Len(t, api.blocks, 2)
	assert.Equal(t, "paragraph", api.blocks[0].Type)
	assert.Equal(t, "my thought", blockText(t, api.blocks[0]))
	assert.Equal(t, "Unknown Chapter • 2024-03-05", blockText(t, api.blocks[1]))
}

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "hello", "hello"},
		{"collapses whitespace", "  a \t b\n\nc ", "a b c"},
		{"empty becomes placeholder", "", "·"},
		{"whitespace only becomes placeholder", " \n\t ", "·"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeText(tt.in))
		})
	}
}

func TestNormalizeTextTruncatesRunes(t *testing.T) {
	long := strings.Repeat("я", models.MaxBlockTextLength+50)
	got := NormalizeText(long)
	runes := []rune(got)
	assert.Len(t, runes, models.MaxBlockTextLength+1)
	assert.Equal(t, '…', runes[len(runes)-1])

	exact := strings.Repeat("a", models.MaxBlockTextLength)
	assert.Equal(t, exact, NormalizeText(exact))
}

func TestFooter(t *testing.T) {
	at := time.Date(2024, 1, 1, 23, 59, 0, 0, time.UTC)
	assert.Equal(t, "Ch1 • 2024-01-01", Footer(&models.TaskPayload{Chapter: "Ch1", EventAt: at}))
	assert.Equal(t, "Unknown Chapter • 2024-01-01", Footer(&models.TaskPayload{EventAt: at}))
	assert.Equal(t, "Unknown Chapter • 2024-01-01", Footer(&models.TaskPayload{Chapter: "  ", EventAt: at}))
}
