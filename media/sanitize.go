package media

import (
	"regexp"
	"strings"
)

// disallowedChars matches everything outside the path charset.
var disallowedChars = regexp.MustCompile(`[^A-Za-z0-9 .\-_/]`)

// PathParts is the sanitized identity of a file path: base name, extension
// (with leading dot) and folder. Any part may be absent.
type PathParts struct {
	Name   string `json:"name,omitempty"`
	Ext    string `json:"extension,omitempty"`
	Folder string `json:"folder,omitempty"`
}

// Empty reports whether no part was recovered from the input.
func (p PathParts) Empty() bool {
	return p.Name == "" && p.Ext == "" && p.Folder == ""
}

// IsDirectory reports whether the parts describe a directory reference
// rather than a file.
func (p PathParts) IsDirectory() bool {
	return p.Name == "" && p.Ext == "" && p.Folder != ""
}

// Src renders the parts back into a slash-separated relative path.
func (p PathParts) Src() string {
	if p.Folder == "" {
		return p.Name + p.Ext
	}

	return p.Folder + "/" + p.Name + p.Ext
}

// CleanPath normalizes a raw filename or path into its name, extension and
// folder, stripping every disallowed character. When the cleaned path holds
// no directory portion the sanitized defaultFolder is used instead. A
// cleaned path without a dot is treated as a directory reference. Empty or
// fully-invalid input yields an empty result. Pure and total.
func CleanPath(raw, defaultFolder string) PathParts {
	cleaned := strings.Trim(disallowedChars.ReplaceAllString(raw, ""), "/")
	if cleaned == "" {
		return PathParts{}
	}

	folder := ""
	base := cleaned
	if idx := strings.LastIndex(cleaned, "/"); idx >= 0 {
		folder = cleaned[:idx]
		base = cleaned[idx+1:]
	}

	dot := strings.LastIndex(base, ".")
	if dot < 0 {
		// Directory reference: the whole cleaned path is the folder.
		return PathParts{Folder: cleaned}
	}

	if folder == "" {
		folder = strings.Trim(disallowedChars.ReplaceAllString(defaultFolder, ""), "/")
	}

	return PathParts{
		Name:   base[:dot],
		Ext:    base[dot:],
		Folder: folder,
	}
}
