package gdrive

import (
	"path/filepath"
	"strings"
)

const folderMimeType = "application/vnd.google-apps.folder"

func splitPath(p string) []string {
	p = strings.Trim(filepath.ToSlash(p), "/")
	if p == "" || p == "." {
		return nil
	}

	return strings.Split(p, "/")
}

// escapeName quotes a name for use inside a Drive query string literal.
func escapeName(name string) string {
	name = strings.ReplaceAll(name, `\`, `\\`)
	return strings.ReplaceAll(name, "'", `\'`)
}
