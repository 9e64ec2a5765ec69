package workspace

// Block is one content block in the remote document model. Exactly one of
// the typed bodies is set, matching the Type field.
type Block struct {
	Object    string        `json:"object"`
	Type      string        `json:"type"`
	Paragraph *RichTextBody `json:"paragraph,omitempty"`
	Quote     *RichTextBody `json:"quote,omitempty"`
}

type RichTextBody struct {
	RichText []RichText `json:"rich_text"`
}

type RichText struct {
	Type string      `json:"type"`
	Text TextContent `json:"text"`
}

type TextContent struct {
	Content string `json:"content"`
}

// NewQuoteBlock builds a quote block holding plain text.
func NewQuoteBlock(text string) Block {
	return Block{
		Object: "block",
		Type:   "quote",
		Quote:  &RichTextBody{RichText: plainText(text)},
	}
}

// NewParagraphBlock builds a paragraph block holding plain text.
func NewParagraphBlock(text string) Block {
	return Block{
		Object:    "block",
		Type:      "paragraph",
		Paragraph: &RichTextBody{RichText: plainText(text)},
	}
}

func plainText(text string) []RichText {
	return []RichText{{Type: "text", Text: TextContent{Content: text}}}
}

// TitleProperty builds a title property value for card creation.
func TitleProperty(text string) map[string]interface{} {
	return map[string]interface{}{
		"title": []interface{}{
			map[string]interface{}{
				"type": "text",
				"text": map[string]interface{}{"content": text},
			},
		},
	}
}

// RichTextProperty builds a plain rich_text property value.
func RichTextProperty(text string) map[string]interface{} {
	return map[string]interface{}{
		"rich_text": []interface{}{
			map[string]interface{}{
				"type": "text",
				"text": map[string]interface{}{"content": text},
			},
		},
	}
}

// RichTextEquals builds a query filter matching a rich_text property
// exactly. Used to look containers up by their idempotency key.
func RichTextEquals(property, value string) map[string]interface{} {
	return map[string]interface{}{
		"property":  property,
		"rich_text": map[string]interface{}{"equals": value},
	}
}
