// Package codec implements the bidirectional transform between raw script
// text and the escaped form used to embed it inside a JSON string value.
// The scheme is JSON's own string escapes plus a small fixed set of
// Unicode-escaped punctuation. Both directions are total functions: any
// input is encodable, and decoding never fails on malformed escapes.
package codec

import "strings"

// EscapeRule maps a literal character to its escape sequence.
type EscapeRule struct {
	Literal byte
	Escape  string
}

// EscapeTable is the escape rule set in encode order. Order is load-bearing:
// backslash must come first, because every later rule introduces backslashes
// into the output and a later backslash pass would mangle them.
var EscapeTable = []EscapeRule{
	{'\\', `\\`},
	{'"', `\"`},
	{'\t', `\t`},
	{'\b', `\b`},
	{'\n', `\n`},
	{'\r', `\r`},
	{'\f', `\f`},
	{'<', `\u003c`},
	{'>', `\u003e`},
	{'&', `\u0026`},
	{'=', `\u003d`},
	{'\'', `\u0027`},
}

// Encode transforms raw script text into its embedded form. Each source
// byte is tested against EscapeTable in order in a single left-to-right
// scan; bytes with no rule pass through unchanged, so multi-byte UTF-8
// sequences survive intact.
func Encode(raw string) string {
	var b strings.Builder
	b.Grow(len(raw) + len(raw)/8)

	for i := 0; i < len(raw); i++ {
		c := raw[i]
		replaced := false
		for _, rule := range EscapeTable {
			if c == rule.Literal {
				b.WriteString(rule.Escape)
				replaced = true
				break
			}
		}
		if !replaced {
			b.WriteByte(c)
		}
	}

	return b.String()
}

// shortEscapes maps the character after a backslash to the literal it
// stands for, for the two-character escapes.
var shortEscapes = map[byte]byte{
	'\\': '\\',
	'"':  '"',
	't':  '\t',
	'b':  '\b',
	'n':  '\n',
	'r':  '\r',
	'f':  '\f',
}

// unicodeEscapes maps the recognized four-digit codes after \u to their
// literals. Codes are matched exactly (lowercase hex), anything else passes
// through undecoded.
var unicodeEscapes = map[string]byte{
	"003c": '<',
	"003e": '>',
	"0026": '&',
	"003d": '=',
	"0027": '\'',
}

// Decode transforms embedded text back to raw script text.
//
// This is a single-pass index scan, not a sequence of substring
// replacements: the two characters "\t" appearing right after an escaped
// backslash ("\\" then "t") are a literal backslash followed by the letter
// t, while the same two characters on their own are a tab. Only an
// escape-consuming left-to-right scan tells those apart. Unrecognized
// escapes pass through unchanged: the backslash is emitted literally and
// the character after it is processed on its own.
func Decode(encoded string) string {
	var b strings.Builder
	b.Grow(len(encoded))

	i := 0
	for i < len(encoded) {
		c := encoded[i]
		if c != '\\' || i+1 >= len(encoded) {
			b.WriteByte(c)
			i++
			continue
		}

		next := encoded[i+1]
		if lit, ok := shortEscapes[next]; ok {
			b.WriteByte(lit)
			i += 2
			continue
		}
		if next == 'u' && i+6 <= len(encoded) {
			if lit, ok := unicodeEscapes[encoded[i+2:i+6]]; ok {
				b.WriteByte(lit)
				i += 6
				continue
			}
		}

		// Not a recognized escape. Emit the backslash alone and let the
		// following character be scanned on its own.
		b.WriteByte(c)
		i++
	}

	return b.String()
}

// LooksEncoded reports whether text plausibly holds an embedded script
// rather than ordinary JSON string content. It is a heuristic presence
// check for common escape sequences: a one-line script containing none of
// them is a false negative, and ordinary prose containing a literal "\n"
// is a false positive. Callers wanting certainty must decode and inspect.
func LooksEncoded(text string) bool {
	return strings.Contains(text, `\n`) ||
		strings.Contains(text, `\t`) ||
		strings.Contains(text, `\"`) ||
		strings.Contains(text, `\u003`)
}
