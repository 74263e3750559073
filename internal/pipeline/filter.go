// Package pipeline holds the channel stages between the inbox watcher and
// the capture path.
package pipeline

import (
	"path/filepath"
	"strings"

	"fieldsync/internal/model"
)

// Filter drops events for paths matching any ignore pattern. Patterns are
// matched against every path segment.
func Filter(inCh <-chan model.FileEvent, ignoreList []string) <-chan model.FileEvent {
	outCh := make(chan model.FileEvent, cap(inCh))

	go func() {
		defer close(outCh)

		for event := range inCh {
			if ShouldIgnore(event.Path, ignoreList) {
				continue
			}
			outCh <- event
		}
	}()

	return outCh
}

func ShouldIgnore(path string, ignoreList []string) bool {
	parts := strings.Split(filepath.ToSlash(path), "/")

	for _, part := range parts {
		for _, pattern := range ignoreList {
			matched, err := filepath.Match(pattern, part)
			if err == nil && matched {
				return true
			}
		}
	}

	return false
}
