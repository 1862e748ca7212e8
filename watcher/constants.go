package watcher

import (
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounceDuration is the quiet period before a changed project is refreshed
const DefaultDebounceDuration = 500 * time.Millisecond

var (
	// WatchedEvents are the operations that can change a project's contents
	WatchedEvents = fsnotify.Create | fsnotify.Write | fsnotify.Rename | fsnotify.Remove

	// IgnoredPatterns match editor and download leftovers
	IgnoredPatterns = []string{
		":Zone.Identifier",
		".swp",
		"~",
	}
)
