// Package validation normalizes and screens client-supplied fields before
// they reach the session layer: file names, sizes, MIME types, and the
// identifiers used to address sessions and endpoints.
package validation

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/beamgate/beamgate/shared/params"
	"github.com/pkg/errors"
)

// Rejection reasons surfaced through Result.Err.
var (
	ErrEmptyFileName    = errors.New("file name must not be empty")
	ErrUnusableFileName = errors.New("file name has no usable characters")
	ErrEmptyFile        = errors.New("file size must be greater than zero")
	ErrNegativeFileSize = errors.New("file size must not be negative")
	ErrFileTooLarge     = errors.New("file size exceeds the allowed maximum")
	ErrEmptyMimeType    = errors.New("file type must not be empty")
	ErrBadSessionID     = errors.New("session id is not a valid identifier")
	ErrEmptyEndpointID  = errors.New("endpoint id must not be empty")
)

// Result is the outcome of validating a single field. Callers must check
// Valid before reading any other field.
type Result struct {
	Valid     bool
	Sanitized string // normalized value when validation rewrites the input
	Dangerous bool   // flagged as risky but not rejected
	Warning   string // caution forwarded to clients alongside the accepted value
	Err       error  // rejection reason when Valid is false
}

var sessionIDPattern = regexp.MustCompile(`^(?i)[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

// blockedExtensions are file extensions that can execute code or install
// software when opened on common desktop platforms.
var blockedExtensions = map[string]bool{
	"exe": true, "dll": true, "bat": true, "cmd": true, "com": true,
	"scr": true, "pif": true, "vbs": true, "js": true, "jse": true,
	"wsf": true, "wsh": true, "msi": true, "msp": true, "hta": true,
	"cpl": true, "jar": true, "ps1": true, "psm1": true, "reg": true,
	"vb": true, "vbe": true, "ws": true, "application": true,
	"gadget": true, "msc": true, "lnk": true,
}

// suspiciousMimeTypes flag executable content; a match marks the transfer
// dangerous without rejecting it.
var suspiciousMimeTypes = []string{
	"application/x-msdownload",
	"application/x-msdos-program",
	"application/x-executable",
	"application/x-bat",
	"application/x-sh",
	"text/x-script.python",
}

const dangerWarning = "This file type can run programs on the receiving machine"

// FileName sanitizes a client-supplied file name and flags names whose
// extension marks executable content. Traversal sequences are stripped,
// path separators and shell-hostile characters become underscores, and the
// result is capped at the configured byte length.
func FileName(name string) Result {
	if name == "" {
		return Result{Err: ErrEmptyFileName}
	}
	sanitized := sanitizeFileName(name)
	if sanitized == "" {
		return Result{Err: ErrUnusableFileName}
	}
	res := Result{Valid: true, Sanitized: sanitized}
	if DangerousExtension(sanitized) {
		res.Dangerous = true
		res.Warning = dangerWarning
	}
	return res
}

func sanitizeFileName(name string) string {
	name = strings.ReplaceAll(name, "..", "")
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r == '/' || r == '\\':
			b.WriteByte('_')
		case r == '<' || r == '>' || r == ':' || r == '"' || r == '|' || r == '?' || r == '*':
			b.WriteByte('_')
		case r < 0x20:
			b.WriteByte('_')
		default:
			b.WriteRune(r)
		}
	}
	return truncateBytes(b.String(), params.Config().MaxFileNameLen)
}

// truncateBytes caps s at max bytes without splitting a multi-byte rune.
func truncateBytes(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// DangerousExtension reports whether the final extension is blocked, or
// whether a benign final extension hides a blocked one directly beneath it,
// as in name.exe.txt.
func DangerousExtension(name string) bool {
	parts := strings.Split(strings.ToLower(name), ".")
	if len(parts) < 2 {
		return false
	}
	if blockedExtensions[parts[len(parts)-1]] {
		return true
	}
	return len(parts) >= 3 && blockedExtensions[parts[len(parts)-2]]
}

// FileSize accepts sizes in (0, MaxFileSize].
func FileSize(size int64) Result {
	switch {
	case size < 0:
		return Result{Err: ErrNegativeFileSize}
	case size == 0:
		return Result{Err: ErrEmptyFile}
	case size > params.Config().MaxFileSize:
		return Result{Err: ErrFileTooLarge}
	}
	return Result{Valid: true}
}

// MimeType lowercases and caps the declared content type. A match against
// the suspicious set marks the result dangerous but never rejects it; the
// declared type is advisory.
func MimeType(mime string) Result {
	if mime == "" {
		return Result{Err: ErrEmptyMimeType}
	}
	sanitized := truncateBytes(strings.ToLower(mime), params.Config().MaxMimeTypeLen)
	res := Result{Valid: true, Sanitized: sanitized}
	for _, suspect := range suspiciousMimeTypes {
		if strings.Contains(sanitized, suspect) {
			res.Dangerous = true
			res.Warning = dangerWarning
			break
		}
	}
	return res
}

// SessionID accepts canonical 36-character hyphenated identifiers in either
// case and normalizes them to lowercase.
func SessionID(id string) Result {
	if !sessionIDPattern.MatchString(id) {
		return Result{Err: ErrBadSessionID}
	}
	return Result{Valid: true, Sanitized: strings.ToLower(id)}
}

// EndpointID accepts any non-empty connection identifier.
func EndpointID(id string) Result {
	if id == "" {
		return Result{Err: ErrEmptyEndpointID}
	}
	return Result{Valid: true, Sanitized: id}
}
