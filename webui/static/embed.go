// Package static embeds the live view assets.
package static

import (
	"embed"
	"io/fs"
)

//go:embed index.html js
var files embed.FS

// FS returns the embedded assets.
func FS() fs.FS {
	return files
}

// ReadFile reads one embedded asset.
func ReadFile(name string) ([]byte, error) {
	return files.ReadFile(name)
}
