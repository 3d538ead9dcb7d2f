// Package toon implements TOON (Token-Oriented Object Notation) encoding.
package toon

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/phobologic/callindex/internal/model"
)

var (
	needsQuoting = regexp.MustCompile(`[,:"\\{}\[\]]`)
	looksNumeric = regexp.MustCompile(`^-?(?:0|[1-9]\d*)(?:\.\d+)?$`)
	keywords     = map[string]struct{}{
		"true":  {},
		"false": {},
		"null":  {},
	}
)

// Encode converts an IndexMap into TOON format.
func Encode(im *model.IndexMap) string {
	var parts []string

	parts = append(parts, fmt.Sprintf("repo: %s", encodeValue(im.RepoName)))
	parts = append(parts, fmt.Sprintf("root: %s", encodeValue(im.Root)))

	var fileRows [][]string
	for i := range im.Files {
		fi := &im.Files[i]
		fileRows = append(fileRows, []string{
			fi.Path,
			fi.Language,
			fmt.Sprintf("%.4f", fi.Rank),
		})
	}
	parts = append(parts, formatTabular("files", []string{"path", "language", "rank"}, fileRows))

	var callableRows [][]string
	for _, m := range im.Callables {
		callableRows = append(callableRows, []string{
			m.FQSEN.String(),
			callableKind(m),
			m.File,
			fmt.Sprintf("%d", m.Line),
			m.Signature,
		})
	}
	parts = append(parts, formatTabular("callables", []string{"fqsen", "kind", "file", "line", "signature"}, callableRows))

	var depRows [][]string
	for i := range im.Deps {
		d := &im.Deps[i]
		depRows = append(depRows, []string{
			d.Source,
			d.Target,
			strings.Join(d.Symbols, " "),
		})
	}
	parts = append(parts, formatTabular("dependencies", []string{"source", "target", "symbols"}, depRows))

	var callRows [][]string
	for i := range im.CallEdges {
		ce := &im.CallEdges[i]
		callRows = append(callRows, []string{ce.Caller, ce.Callee})
	}
	parts = append(parts, formatTabular("calls", []string{"caller", "callee"}, callRows))

	if len(im.Unresolved) > 0 {
		var rows [][]string
		for i := range im.Unresolved {
			u := &im.Unresolved[i]
			rows = append(rows, []string{
				u.Caller,
				u.Call,
				u.File,
				fmt.Sprintf("%d", u.Line),
			})
		}
		parts = append(parts, formatTabular("unresolved", []string{"caller", "call", "file", "line"}, rows))
	}

	if len(im.Unused) > 0 {
		rows := make([][]string, 0, len(im.Unused))
		for _, name := range im.Unused {
			rows = append(rows, []string{name})
		}
		parts = append(parts, formatTabular("unused", []string{"fqsen"}, rows))
	}

	if len(im.Diagnostics) > 0 {
		var rows [][]string
		for i := range im.Diagnostics {
			d := &im.Diagnostics[i]
			rows = append(rows, []string{
				d.Kind,
				d.Subject,
				d.File,
				fmt.Sprintf("%d", d.Line),
				d.Message,
			})
		}
		parts = append(parts, formatTabular("diagnostics", []string{"kind", "subject", "file", "line", "message"}, rows))
	}

	return strings.Join(parts, "\n")
}

func callableKind(m *model.Method) string {
	switch {
	case m.IsFunction():
		return "function"
	case m.Abstract:
		return "abstract"
	case m.Static:
		return "static"
	}
	return "method"
}

func formatTabular(name string, columns []string, rows [][]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s[%d]{%s}:", name, len(rows), strings.Join(columns, ","))
	for _, row := range rows {
		encoded := make([]string, len(row))
		for i, cell := range row {
			encoded[i] = encodeValue(cell)
		}
		fmt.Fprintf(&b, "\n  %s", strings.Join(encoded, ","))
	}
	return b.String()
}

func encodeValue(value string) string {
	if value == "" {
		return `""`
	}

	if value != strings.TrimSpace(value) {
		return quote(value)
	}

	if strings.ContainsAny(value, "\n\r\t") {
		return quote(value)
	}

	if _, ok := keywords[strings.ToLower(value)]; ok {
		return quote(value)
	}

	if looksNumeric.MatchString(value) {
		return value
	}

	if needsQuoting.MatchString(value) {
		return quote(value)
	}

	if strings.HasPrefix(value, "-") {
		return quote(value)
	}

	return value
}

func quote(value string) string {
	escaped := strings.ReplaceAll(value, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `"`, `\"`)
	escaped = strings.ReplaceAll(escaped, "\n", `\n`)
	escaped = strings.ReplaceAll(escaped, "\r", `\r`)
	escaped = strings.ReplaceAll(escaped, "\t", `\t`)
	return `"` + escaped + `"`
}
