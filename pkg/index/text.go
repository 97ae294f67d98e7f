package index

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/oxidb/oxidb/pkg/document"
)

var foldCaser = cases.Fold()

// Tokenize splits s on Unicode whitespace/punctuation boundaries and
// case-folds each token via NFKC normalization + Unicode case folding.
// Empty tokens are discarded (spec.md §3 "text" index entry, §9 Open
// Question: "pick Unicode default word boundaries + NFKC case-fold").
func Tokenize(s string) []string {
	normalized := norm.NFKC.String(s)
	fields := strings.FieldsFunc(normalized, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		folded := foldCaser.String(f)
		if folded != "" {
			out = append(out, folded)
		}
	}
	return out
}

// textOf concatenates the string content of every indexed text field,
// exploding arrays and skipping non-string values.
func textOf(doc document.Value, fields []document.Path) string {
	var b strings.Builder
	for _, path := range fields {
		for _, v := range document.Realized(doc, path) {
			if v.Kind == document.KindString {
				b.WriteString(v.S)
				b.WriteByte(' ')
			}
		}
	}
	return b.String()
}
