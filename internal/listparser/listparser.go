// Package listparser turns a raw FTP LIST line into an Entry.
//
// Two line formats are recognized: Unix "ls -l" style and MS-DOS "dir"
// style. Both regexes are ported verbatim (in meaning) from
// original_source/publisher/worker/managers/backends.py's
// FTPLineParser._list_regex_unix / _list_regex_msdos.
package listparser

import (
	"regexp"

	"github.com/sitehost/publisher/internal/fserrors"
)

// unixLine matches lines like:
//
//	drwxr-xr-x   2 user     group        4096 Jan 15 12:34 somedir
//	-rw-r--r--   1 user     group         123 Jan 15 12:34 somefile.txt
var unixLine = regexp.MustCompile(
	`^(?P<type>[A-Za-z-])([r-][w-][xXsStT-]){3}\s+\d+\s+\S+\s+\S+\s+\d+\s+\S+\s+\S+\s+(\d{2}:\d{2}|\d{4})\s(?P<name>.+)$`,
)

// msdosLine matches lines like:
//
//	01-15-21  12:34PM       <DIR>          somedir
//	01-15-21  12:34PM                  123 somefile.txt
//
// The date/time columns are constrained to their real MS-DOS dir shapes
// (MM-DD-YY and HH:MMAM/PM) so an arbitrary whitespace-separated line
// doesn't fall through as a false match; only "<DIR>" or a digit run is
// accepted for the type column.
var msdosLine = regexp.MustCompile(
	`^\d{2}-\d{2}-\d{2,4}\s+\d{2}:\d{2}(?:AM|PM)\s+(?P<type><DIR>|\d+)\s+(?P<name>.+)$`,
)

// EntryType distinguishes a file from a directory in a parsed LIST line.
type EntryType byte

const (
	// TypeFile marks a plain file entry.
	TypeFile EntryType = 'f'
	// TypeDir marks a directory entry.
	TypeDir EntryType = 'd'
)

// Entry is one parsed LIST line.
type Entry struct {
	Type EntryType
	Name string
}

// LineFormatError reports a LIST line neither format recognizes. Retrying
// will not make the remote's LIST output parseable, but the type is not
// itself a fserrors.NoRetryError: callers convert it (see AsNoRetry)
// before it reaches generic error classification.
type LineFormatError struct {
	Line string
}

func (e *LineFormatError) Error() string {
	return "unrecognized LIST line format: " + e.Line
}

// AsNoRetry wraps the error in fserrors.NoRetryError for callers that
// classify errors generically.
func (e *LineFormatError) AsNoRetry() *fserrors.NoRetryError {
	return fserrors.NewNoRetry(e.Error(), nil)
}

// Parse converts a single raw LIST line into an Entry. It tries the Unix
// format first, then the MS-DOS format, matching the order
// FTPLineParser.parse checks them in the original implementation.
func Parse(line string) (Entry, error) {
	if m := unixLine.FindStringSubmatch(line); m != nil {
		typ := m[unixLine.SubexpIndex("type")]
		name := m[unixLine.SubexpIndex("name")]
		return Entry{Type: entryTypeFromUnix(typ), Name: name}, nil
	}
	if m := msdosLine.FindStringSubmatch(line); m != nil {
		typ := m[msdosLine.SubexpIndex("type")]
		name := m[msdosLine.SubexpIndex("name")]
		return Entry{Type: entryTypeFromMSDOS(typ), Name: name}, nil
	}
	return Entry{}, &LineFormatError{Line: line}
}

// ParseAll parses every line in lines, skipping blank lines, and returns
// the first format error encountered (if any) alongside whatever entries
// parsed successfully before it.
func ParseAll(lines []string) ([]Entry, error) {
	entries := make([]Entry, 0, len(lines))
	for _, line := range lines {
		if line == "" {
			continue
		}
		entry, err := Parse(line)
		if err != nil {
			return entries, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func entryTypeFromUnix(typ string) EntryType {
	if typ == "d" {
		return TypeDir
	}
	return TypeFile
}

// entryTypeFromMSDOS maps the MS-DOS dir listing's file-size-or-<DIR>
// column: "<DIR>" means directory, anything else (a byte count) means
// file, matching backends.py's literal `'<DIR>' -> 'd'` mapping.
func entryTypeFromMSDOS(typ string) EntryType {
	if typ == "<DIR>" {
		return TypeDir
	}
	return TypeFile
}
