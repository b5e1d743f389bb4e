// Package script locates embedded-script string values inside JSON document
// text and splices replacement values back in. It deliberately performs no
// JSON parsing: working on raw text lines keeps every byte outside the
// touched value identical, which a parse/reserialize round trip through a
// generic JSON library would not guarantee (key order, whitespace,
// formatting).
package script

import (
	"strings"

	"flint/codec"
)

// Keys is the fixed allow-list of JSON object keys whose string values are
// treated as embedded scripts. FileKey marks whole-file scripts in project
// indexes rather than a JSON key.
var Keys = []string{
	"script",
	"code",
	"eventScript",
	"transform",
	"onActionPerformed",
	"onChange",
	"onStartup",
	"onShutdown",
}

// FileKey is the pseudo-key used for scripts that are whole files rather
// than JSON string values.
const FileKey = "__file__"

// Ref is a located embedded script. It is produced by a scan and never
// persisted; Encoded is exactly the substring between the value's opening
// and closing quote at scan time.
type Ref struct {
	Key      string
	Line     int    // 1-based line number
	Encoded  string // raw encoded content, escapes intact
	Snapshot string // the full line text at scan time
}

// keyValueStart finds the pattern `"key"` + optional whitespace + `:` +
// optional whitespace + `"` in line, starting the search at from. It
// returns the index just after the value's opening quote, or -1.
func keyValueStart(line, key string, from int) int {
	quoted := `"` + key + `"`
	for {
		idx := strings.Index(line[from:], quoted)
		if idx < 0 {
			return -1
		}
		i := from + idx + len(quoted)
		from = from + idx + 1

		for i < len(line) && (line[i] == ' ' || line[i] == '\t') {
			i++
		}
		if i >= len(line) || line[i] != ':' {
			continue
		}
		i++
		for i < len(line) && (line[i] == ' ' || line[i] == '\t') {
			i++
		}
		if i >= len(line) || line[i] != '"' {
			continue
		}
		return i + 1
	}
}

// ExtractStringValue scans text from start for the end of a JSON string
// value. A backslash unconditionally consumes the following character as
// part of the string, which is what keeps an escaped quote from terminating
// it. The value ends at the first unescaped double quote; reaching the end
// of text without one reports false (values are single-line: multi-line
// script content lives in \n escapes inside one JSON string).
func ExtractStringValue(text string, start int) (string, bool) {
	i := start
	for i < len(text) {
		switch text[i] {
		case '\\':
			i += 2
		case '"':
			return text[start:i], true
		default:
			i++
		}
	}
	return "", false
}

// Scan walks document lines and returns a Ref for every key/value pair
// whose key is in keys and whose value looks like an embedded script.
// Line numbers are 1-based. A nil keys slice means the default allow-list.
func Scan(lines []string, keys []string) []Ref {
	if keys == nil {
		keys = Keys
	}

	var refs []Ref
	for n, line := range lines {
		for _, key := range keys {
			from := 0
			for {
				start := keyValueStart(line, key, from)
				if start < 0 {
					break
				}
				value, ok := ExtractStringValue(line, start)
				if ok && codec.LooksEncoded(value) {
					refs = append(refs, Ref{
						Key:      key,
						Line:     n + 1,
						Encoded:  value,
						Snapshot: line,
					})
				}
				from = start
			}
		}
	}
	return refs
}

// ScanText is Scan over a full document text.
func ScanText(text string, keys []string) []Ref {
	return Scan(strings.Split(text, "\n"), keys)
}

// KeyValue returns the string value of the first `"key": "..."` pair on
// line, without the embedded-script heuristic. Used for plain metadata
// keys such as component names.
func KeyValue(line, key string) (string, bool) {
	start := keyValueStart(line, key, 0)
	if start < 0 {
		return "", false
	}
	return ExtractStringValue(line, start)
}

// Replace splices newEncoded into the quoted value of key on line,
// preserving every character before and after the old value, including
// adjacent keys, commas and whitespace. When the key or a terminated value
// is not found the line is returned unchanged: callers have just located
// the key via Scan, so a miss is a caller/state inconsistency to degrade
// from, not an error to raise.
func Replace(line, key, newEncoded string) string {
	start := keyValueStart(line, key, 0)
	if start < 0 {
		return line
	}
	old, ok := ExtractStringValue(line, start)
	if !ok {
		return line
	}
	return line[:start] + newEncoded + line[start+len(old):]
}
