package badger

import (
	"strings"

	"github.com/poiesic/doajsync/core"
)

// Key prefixes for different data types
const (
	cursorPrefix = "cursor:"
)

// makeCursorKey generates a key for a category cursor.
// Format: cursor:<category>
func makeCursorKey(category core.Category) []byte {
	return []byte(cursorPrefix + string(category))
}

// categoryFromCursorKey recovers the category name from a cursor key.
func categoryFromCursorKey(key []byte) core.Category {
	return core.Category(strings.TrimPrefix(string(key), cursorPrefix))
}
