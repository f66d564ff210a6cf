// Package filetype classifies files into broad categories for the index.
package filetype

import (
	"mime"
	"path/filepath"
	"strings"
)

// DefaultMimeType is used when no MIME type can be guessed.
const DefaultMimeType = "application/octet-stream"

// extensionCategories maps known extensions to categories. Extensions win
// over MIME types so developer and office formats classify precisely.
var extensionCategories = map[string]string{
	// Code & development
	"py": "Code", "js": "Code", "ts": "Code", "html": "Code", "css": "Code",
	"json": "Code", "sql": "Code", "md": "Code", "sh": "Code", "yml": "Code",
	"yaml": "Code", "xml": "Code", "c": "Code", "cpp": "Code", "h": "Code",
	"java": "Code", "go": "Code", "rs": "Code", "php": "Code", "rb": "Code",
	"dockerfile": "Code", "gitignore": "Code", "toml": "Code", "jsx": "Code", "tsx": "Code",

	// Spreadsheets
	"csv": "Spreadsheet", "xlsx": "Spreadsheet", "xls": "Spreadsheet",
	"ods": "Spreadsheet", "numbers": "Spreadsheet", "tsv": "Spreadsheet",

	// Documents
	"pdf": "Document", "docx": "Document", "doc": "Document",
	"txt": "Document", "rtf": "Document", "odt": "Document", "pages": "Document",
	"ppt": "Presentation", "pptx": "Presentation", "key": "Presentation",

	// Archives
	"zip": "Archive", "tar": "Archive", "gz": "Archive", "7z": "Archive",
	"rar": "Archive", "dmg": "Archive", "iso": "Archive", "bz2": "Archive", "xz": "Archive",

	// Disk images
	"img": "Disk Image", "vmdk": "Disk Image", "qcow2": "Disk Image", "vhd": "Disk Image",

	// Databases
	"db": "Database", "sqlite": "Database", "sqlite3": "Database", "mdb": "Database", "accdb": "Database",

	// Executables
	"exe": "Executable", "dll": "Executable", "so": "Executable",
	"bin": "Executable", "app": "Executable", "msi": "Executable", "bat": "Executable",

	// Fonts
	"ttf": "Font", "otf": "Font", "woff": "Font", "woff2": "Font",

	// Configuration
	"ini": "Configuration", "conf": "Configuration", "cfg": "Configuration", "env": "Configuration",
}

// Classifier classifies files by extension and MIME type.
type Classifier struct{}

// Classify returns the MIME type and category for a file path.
func (Classifier) Classify(path string) (mimeType, category string) {
	ext := filepath.Ext(path)

	mimeType = mime.TypeByExtension(ext)
	if mimeType == "" {
		mimeType = DefaultMimeType
	} else if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		// mime.TypeByExtension appends parameters like "; charset=utf-8".
		mimeType = strings.TrimSpace(mimeType[:i])
	}

	return mimeType, Categorize(ext, mimeType)
}

// Categorize determines the category from an extension and a MIME type.
// The extension map is consulted first; general media fall back to the
// MIME type's top-level kind.
func Categorize(extension, mimeType string) string {
	ext := strings.ToLower(strings.TrimPrefix(extension, "."))
	if cat, ok := extensionCategories[ext]; ok {
		return cat
	}

	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return "Image"
	case strings.HasPrefix(mimeType, "video/"):
		return "Video"
	case strings.HasPrefix(mimeType, "audio/"):
		return "Audio"
	case strings.HasPrefix(mimeType, "text/"):
		return "Document"
	}
	return "Other"
}
