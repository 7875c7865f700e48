package service

import (
	"path"
	"strings"

	"github.com/google/uuid"
)

const maxExtensionLen = 16

// StorageName returns a fresh random blob name carrying the extension of
// the client filename. Nothing else from the filename survives, so names
// never collide and can never address a path.
func StorageName(filename string) string {
	name := uuid.NewString()
	if ext := Extension(filename); ext != "" {
		name += "." + ext
	}
	return name
}

// Extension returns the last dot-segment of the base filename, or "" when
// there is none or it is not a short alphanumeric token. In the latter case
// StorageName produces a name without extension.
func Extension(filename string) string {
	base := path.Base(strings.ReplaceAll(filename, `\`, "/"))
	i := strings.LastIndexByte(base, '.')
	if i < 0 || i == len(base)-1 {
		return ""
	}
	ext := base[i+1:]
	if len(ext) > maxExtensionLen {
		return ""
	}
	for _, r := range ext {
		if !('a' <= r && r <= 'z' || 'A' <= r && r <= 'Z' || '0' <= r && r <= '9') {
			return ""
		}
	}
	return ext
}
