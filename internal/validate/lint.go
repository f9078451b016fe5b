package validate

import (
	"bufio"
	"bytes"
	"fmt"
	"regexp"
	"strings"
)

// decorativeGlyphs break the encoding of the deployment transport.
var decorativeGlyphs = []string{"→", "✓", "✗"}

var dotFieldPathRe = regexp.MustCompile(`json_field_path["']?:\s*["']?\.`)

const problematicSettingKey = "persisting_cursor_settings"

type lintRule struct {
	kind    Kind
	count   func(line string) int
	message func(first lintHit) string
}

type lintHit struct {
	line  int
	count int
	found []string
}

var lintRules = []lintRule{
	{
		kind: KindUnicodeGlyph,
		count: func(line string) int {
			n := 0
			for _, g := range decorativeGlyphs {
				n += strings.Count(line, g)
			}
			return n
		},
		message: func(h lintHit) string {
			return fmt.Sprintf("YAML contains Unicode characters (%s) which may cause API errors (%d occurrences)",
				strings.Join(h.found, ", "), h.count)
		},
	},
	{
		kind: KindDotFieldPath,
		count: func(line string) int {
			return len(dotFieldPathRe.FindAllStringIndex(line, -1))
		},
		message: func(lintHit) string {
			return "json_field_path cannot start with '.' - use '$' instead"
		},
	},
	{
		kind: KindProblematicSetting,
		count: func(line string) int {
			return strings.Count(line, problematicSettingKey)
		},
		message: func(lintHit) string {
			return problematicSettingKey + " may cause API 500 errors - consider removing"
		},
	},
}

// checkLint scans the raw text for problems the parsed tree hides. It is best
// effort: anything that stops the scan becomes a warning.
func checkLint(r *run) {
	if r.doc.Raw == nil {
		r.out.addAt(KindLintUnavailable, Location{}, "could not validate YAML formatting: raw text unavailable")
		return
	}

	hits := make([]*lintHit, len(lintRules))
	sc := bufio.NewScanner(bytes.NewReader(r.doc.Raw))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := sc.Text()
		for i, rule := range lintRules {
			n := rule.count(line)
			if n == 0 {
				continue
			}
			if hits[i] == nil {
				hits[i] = &lintHit{line: lineNo}
			}
			hits[i].count += n
			if rule.kind == KindUnicodeGlyph {
				hits[i].found = appendGlyphs(hits[i].found, line)
			}
		}
	}

	for i, h := range hits {
		if h == nil {
			continue
		}
		r.out.addAt(lintRules[i].kind, Location{Line: h.line}, "%s", lintRules[i].message(*h))
	}

	if err := sc.Err(); err != nil {
		r.out.addAt(KindLintUnavailable, Location{Line: lineNo + 1}, "could not validate YAML formatting: %v", err)
	}
}

func appendGlyphs(found []string, line string) []string {
	for _, g := range decorativeGlyphs {
		if !strings.Contains(line, g) {
			continue
		}
		seen := false
		for _, f := range found {
			if f == g {
				seen = true
				break
			}
		}
		if !seen {
			found = append(found, g)
		}
	}
	return found
}
