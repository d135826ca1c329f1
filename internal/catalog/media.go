package catalog

import (
	"path/filepath"
	"strings"
)

var imageExtensions = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".gif":  {},
	".bmp":  {},
	".webp": {},
	".tiff": {},
	".svg":  {},
}

var textExtensions = map[string]struct{}{
	".txt":  {},
	".log":  {},
	".md":   {},
	".csv":  {},
	".json": {},
	".xml":  {},
	".yml":  {},
	".yaml": {},
	".ini":  {},
	".cfg":  {},
}

var transientSuffixes = []string{".swp", "~", ".tmp"}

// IsImage reports whether name carries an allow-listed image extension.
func IsImage(name string) bool {
	_, ok := imageExtensions[strings.ToLower(filepath.Ext(name))]
	return ok
}

func IsText(name string) bool {
	_, ok := textExtensions[strings.ToLower(filepath.Ext(name))]
	return ok
}

// IsTransient matches editor swap files, backups and Finder metadata.
func IsTransient(name string) bool {
	base := filepath.Base(name)
	if base == ".DS_Store" {
		return true
	}
	for _, suffix := range transientSuffixes {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}
