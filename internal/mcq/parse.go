package mcq

import (
	"regexp"
	"strings"

	"github.com/ZayedOfficial/truthshield/internal/clinical"
)

var (
	enumeratorSplit  = regexp.MustCompile(`\d+\.\s+`)
	enumeratorPrefix = regexp.MustCompile(`^\d+\.\s*`)
)

// Parse extracts up to limit questions from model output formatted as
// "{n}. {question} | {opt1}, {opt2}, {opt3}", one per line. Output that the
// model collapsed onto a single line is re-split on the enumerators. Lines
// without a question or with fewer than two options are skipped.
func Parse(raw string, limit int) []clinical.Question {
	if limit <= 0 {
		return nil
	}

	lines := strings.Split(strings.TrimSpace(raw), "\n")
	if len(lines) == 1 && strings.Contains(lines[0], "|") {
		parts := enumeratorSplit.Split(lines[0], -1)
		lines = lines[:0]
		for _, p := range parts {
			if strings.Contains(p, "|") {
				lines = append(lines, strings.TrimSpace(p))
			}
		}
	}

	out := make([]clinical.Question, 0, limit)
	for _, line := range lines {
		q, ok := parseLine(line)
		if !ok {
			continue
		}
		out = append(out, q)
		if len(out) >= limit {
			break
		}
	}
	return out
}

func parseLine(line string) (clinical.Question, bool) {
	line = strings.TrimSpace(line)
	questionPart, optionPart, found := strings.Cut(line, "|")
	if !found {
		return clinical.Question{}, false
	}

	text := strings.TrimSpace(enumeratorPrefix.ReplaceAllString(strings.TrimSpace(questionPart), ""))
	if text == "" {
		return clinical.Question{}, false
	}

	var opts []string
	for _, o := range strings.Split(optionPart, ",") {
		if o = strings.TrimSpace(o); o != "" {
			opts = append(opts, o)
		}
	}
	if len(opts) < 2 {
		return clinical.Question{}, false
	}
	return clinical.Question{Text: text, Options: opts}, true
}
