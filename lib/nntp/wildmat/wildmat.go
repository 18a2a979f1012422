// Package wildmat implements RFC 3977 wildmat syntax for LIST
// ACTIVE [wildmat]. Each comma-separated pattern element is translated
// into an equivalent Go regexp fragment; positive elements are combined
// into one compiled regexp and `!`-prefixed elements into another,
// rather than re-walking the pattern on every candidate string. Element
// order does not matter: a name matching any `!` element is rejected.
package wildmat

import (
	"bytes"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
)

var tokenizer = regexp.MustCompile(`\*|\?|\[!?[^]]*\]|[^*?\[]+`)

var caseFolder = cases.Fold()

// Pattern is a compiled wildmat expression. Newsgroup names are
// case-sensitive per RFC, so no folding happens unless Compile is
// called with foldCase set.
type Pattern struct {
	positive *regexp.Regexp
	negative *regexp.Regexp
	foldCase bool
}

// Match reports whether name satisfies the pattern: it must match no
// negative (`!`-prefixed) element and, if the pattern has any positive
// (non-`!`) element, at least one of those.
func (p *Pattern) Match(name string) bool {
	s := name
	if p.foldCase {
		s = caseFolder.String(s)
	}
	if p.negative != nil && p.negative.MatchString(s) {
		return false
	}
	if p.positive == nil {
		return true
	}
	return p.positive.MatchString(s)
}

// Compile parses a wildmat expression (comma-separated elements,
// optionally `!`-prefixed for negation) into a matcher. An empty
// pattern matches everything.
func Compile(expr string, foldCase bool) (*Pattern, error) {
	p := &Pattern{foldCase: foldCase}
	if expr == "" {
		return p, nil
	}

	var positives, negatives []string
	for _, elem := range strings.Split(expr, ",") {
		if elem == "" {
			continue
		}
		if strings.HasPrefix(elem, "!") {
			negatives = append(negatives, elem[1:])
		} else {
			positives = append(positives, elem)
		}
	}
	if foldCase {
		for i := range positives {
			positives[i] = caseFolder.String(positives[i])
		}
		for i := range negatives {
			negatives[i] = caseFolder.String(negatives[i])
		}
	}

	if len(positives) > 0 {
		re, err := compileAlternation(positives)
		if err != nil {
			return nil, err
		}
		p.positive = re
	}
	if len(negatives) > 0 {
		re, err := compileAlternation(negatives)
		if err != nil {
			return nil, err
		}
		p.negative = re
	}
	return p, nil
}

func compileAlternation(elems []string) (*regexp.Regexp, error) {
	var buf bytes.Buffer
	buf.WriteString("^(")
	for i, elem := range elems {
		if i > 0 {
			buf.WriteByte('|')
		}
		writeElement(&buf, elem)
	}
	buf.WriteString(")$")
	return regexp.Compile(buf.String())
}

func writeElement(buf *bytes.Buffer, elem string) {
	for _, tok := range tokenizer.FindAllString(elem, -1) {
		switch {
		case tok == "*":
			buf.WriteString(".*")
		case tok == "?":
			buf.WriteString(".")
		case tok[0] == '[':
			writeCharClass(buf, tok)
		default:
			buf.WriteString(regexp.QuoteMeta(tok))
		}
	}
}

// writeCharClass translates a wildmat "[abc]"/"[!abc]" class into the
// regexp equivalent "[abc]"/"[^abc]"; wildmat's `!` negation inside
// brackets is regexp's `^`.
func writeCharClass(buf *bytes.Buffer, tok string) {
	inner := tok[1 : len(tok)-1]
	buf.WriteByte('[')
	if strings.HasPrefix(inner, "!") {
		buf.WriteByte('^')
		inner = inner[1:]
	}
	// pass ranges like a-z through untouched; only escape characters
	// that would otherwise end or corrupt the class.
	for _, r := range inner {
		switch r {
		case '\\', ']', '^':
			buf.WriteByte('\\')
		}
		buf.WriteRune(r)
	}
	buf.WriteByte(']')
}
