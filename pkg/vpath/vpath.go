// Package vpath implements BadgeVMS's VMS-style path grammar:
// DEVICE:[DIR.SUB]FILE.EXT. It parses that textual form, caches a native
// /DEVICE/DIR/SUB/FILE.EXT translation on the result, and provides the
// handful of concatenation helpers the rest of the system needs to build
// new paths without re-parsing strings by hand.
//
// Grounded on badgevms/pathfuncs.c from the original firmware: a single
// left-to-right scan over device, optional [dir.sub] and optional filename.
package vpath

import (
	"os"
	"strings"

	"github.com/pkg/errors"
)

// ParseResult is the outcome of Parse, mirroring path_parse_result_t.
type ParseResult int

const (
	ParseOK ParseResult = iota
	ParseEmptyPath
	ParseEmptyDevice
	ParseNoDevice
	ParseUnclosedDirectory
	ParseInvalidDeviceChar
	ParseInvalidDirChar
	ParseInvalidFileChar
)

func (r ParseResult) String() string {
	switch r {
	case ParseOK:
		return "ok"
	case ParseEmptyPath:
		return "empty path"
	case ParseEmptyDevice:
		return "empty device"
	case ParseNoDevice:
		return "no device"
	case ParseUnclosedDirectory:
		return "unclosed directory"
	case ParseInvalidDeviceChar:
		return "invalid device character"
	case ParseInvalidDirChar:
		return "invalid directory character"
	case ParseInvalidFileChar:
		return "invalid file character"
	default:
		return "unknown parse result"
	}
}

// ParseError wraps a non-OK ParseResult so callers can errors.Is/As against
// it while still getting a readable message.
type ParseError struct {
	Result ParseResult
	Input  string
}

func (e *ParseError) Error() string {
	return "vpath: " + e.Result.String() + ": " + e.Input
}

// Sentinels so callers can match a specific failure with errors.Is.
var (
	ErrEmptyPath          = &ParseError{Result: ParseEmptyPath}
	ErrEmptyDevice        = &ParseError{Result: ParseEmptyDevice}
	ErrNoDevice           = &ParseError{Result: ParseNoDevice}
	ErrUnclosedDirectory  = &ParseError{Result: ParseUnclosedDirectory}
	ErrInvalidDeviceChar  = &ParseError{Result: ParseInvalidDeviceChar}
	ErrInvalidDirChar     = &ParseError{Result: ParseInvalidDirChar}
	ErrInvalidFileChar    = &ParseError{Result: ParseInvalidFileChar}
)

func (e *ParseError) Is(target error) bool {
	other, ok := target.(*ParseError)
	if !ok {
		return false
	}
	return e.Result == other.Result
}

// Path is a parsed VMS-style path. The zero value is not valid; construct
// with Parse.
type Path struct {
	Device    string
	Directory string // dot-separated components, e.g. "SUBDIR.ANOTHER"
	Filename  string

	native string // cached translation, populated lazily by Native
}

func isValidDeviceChar(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '_' || c == '-' || c == '$'
}

func isValidPathChar(c byte) bool {
	return isValidDeviceChar(c) || c == '.'
}

// Parse tokenizes text in one left-to-right pass per the BadgeVMS path
// grammar. The device alone (e.g. "FLASH0:") is a legal path; a filename
// without a device is never legal.
func Parse(text string) (*Path, error) {
	if text == "" {
		return nil, &ParseError{Result: ParseEmptyPath, Input: text}
	}

	idx := strings.IndexByte(text, ':')
	if idx < 0 {
		return nil, &ParseError{Result: ParseNoDevice, Input: text}
	}
	if idx == 0 {
		return nil, &ParseError{Result: ParseEmptyDevice, Input: text}
	}

	device := text[:idx]
	for i := 0; i < len(device); i++ {
		if !isValidDeviceChar(device[i]) {
			return nil, &ParseError{Result: ParseInvalidDeviceChar, Input: text}
		}
	}

	rest := text[idx+1:]
	p := &Path{Device: device}

	if strings.HasPrefix(rest, "[") {
		close := strings.IndexByte(rest, ']')
		if close < 0 {
			return nil, &ParseError{Result: ParseUnclosedDirectory, Input: text}
		}
		dir := rest[1:close]
		for i := 0; i < len(dir); i++ {
			if !isValidPathChar(dir[i]) {
				return nil, &ParseError{Result: ParseInvalidDirChar, Input: text}
			}
		}
		if dir != "" {
			p.Directory = dir
		}
		rest = rest[close+1:]
	}

	if rest != "" {
		for i := 0; i < len(rest); i++ {
			if !isValidPathChar(rest[i]) {
				return nil, &ParseError{Result: ParseInvalidFileChar, Input: text}
			}
		}
		p.Filename = rest
	}

	return p, nil
}

// Native returns the /DEVICE/DIR/SUB/FILE.EXT translation of the path,
// caching it on the Path so repeated calls are idempotent and free.
func (p *Path) Native() string {
	if p.native != "" {
		return p.native
	}

	var b strings.Builder
	b.WriteByte('/')
	b.WriteString(p.Device)

	if p.Directory != "" {
		b.WriteByte('/')
		b.WriteString(strings.ReplaceAll(p.Directory, ".", "/"))
	}

	if p.Filename != "" {
		b.WriteByte('/')
		b.WriteString(p.Filename)
	}

	p.native = b.String()
	return p.native
}

// Dirname returns the directory component of a native path string, or "" if
// the path has no directory segment.
func Dirname(native string) string {
	i := strings.LastIndexByte(native, '/')
	if i <= 0 {
		return ""
	}
	return native[:i]
}

// Basename returns the final component of a native path string.
func Basename(native string) string {
	i := strings.LastIndexByte(native, '/')
	return native[i+1:]
}

// Devname returns the device segment (first path component) of a native path.
func Devname(native string) string {
	trimmed := strings.TrimPrefix(native, "/")
	i := strings.IndexByte(trimmed, '/')
	if i < 0 {
		return trimmed
	}
	return trimmed[:i]
}

// Dirconcat joins a base native path with a subdirectory component.
func Dirconcat(base string, subdir string) string {
	return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(subdir, "/")
}

// Fileconcat joins a base native path with a filename.
func Fileconcat(base string, filename string) string {
	return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(filename, "/")
}

// Concat joins a base native path with a relative path using '/'. The
// relative part is not parsed or translated from VMS form (a "[DIR]FILE"
// argument is appended as-is), and the result is a native path, not a
// VMS-form one.
func Concat(base string, relative string) string {
	relative = strings.TrimPrefix(relative, "/")
	if relative == "" {
		return base
	}
	return strings.TrimSuffix(base, "/") + "/" + relative
}

// MkdirP recursively creates a native directory path, stopping at (and
// reporting) the first error, exactly as the firmware's mkdir_p does.
func MkdirP(native string) bool {
	if err := os.MkdirAll(native, 0o755); err != nil {
		return false
	}
	return true
}

// RmRf recursively removes a native path, stopping at the first error.
func RmRf(native string) bool {
	if err := os.RemoveAll(native); err != nil {
		return false
	}
	return true
}

// ValidDeviceName reports whether name is legal as a device/filename-style
// identifier — used by apps.Registry to validate application ids before it
// ever tries to turn one into a path.
func ValidDeviceName(name string) bool {
	if name == "" {
		return false
	}
	for i := 0; i < len(name); i++ {
		if !isValidDeviceChar(name[i]) {
			return false
		}
	}
	return true
}

// WrapResult turns a raw ParseResult into the matching sentinel error, used
// by callers that want to classify a failure from Parse without a type
// assertion chain.
func WrapResult(r ParseResult, input string) error {
	if r == ParseOK {
		return nil
	}
	return errors.Wrapf(&ParseError{Result: r, Input: input}, "parsing %q", input)
}
