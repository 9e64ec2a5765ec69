package models

const (
	TaskTypeHighlight = "highlight"
	TaskTypeNote      = "note"
)

const (
	TaskStatusPending    = "pending"
	TaskStatusInProgress = "in_progress"
	TaskStatusFailed     = "failed"
)

const (
	// MaxTaskRetries is how many delivery attempts a task gets before it is
	// kept as failed for audit.
	MaxTaskRetries = 5

	// MaxBlockTextLength caps the text carried in a single remote block.
	MaxBlockTextLength = 2000

	// DefaultDebounce batches bursts of local writes into one drain.
	DefaultDebounce = 2 // seconds

	// DefaultMappingCacheTTL is the lifetime of cached page mappings.
	DefaultMappingCacheTTL = 24 * 60 * 60 // seconds

	// UnknownChapterLabel is used when an annotation has no chapter.
	UnknownChapterLabel = "Unknown Chapter"
)
