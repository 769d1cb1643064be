package correlate

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/teranos/autoboat/errors"
)

// CooldownExtractor reads an authoritative remaining cooldown from reply text
type CooldownExtractor interface {
	ExtractCooldown(content string) (time.Duration, bool)
}

// PatternExtractor tries each pattern in order. Named groups d, h, m and s
// are summed into a duration. When no pattern matches, the first Go
// duration literal in the text ("4m30s") is used.
type PatternExtractor struct {
	patterns        []*regexp.Regexp
	durationLiteral bool
}

// NewPatternExtractor compiles patterns
func NewPatternExtractor(patterns []string) (*PatternExtractor, error) {
	e := &PatternExtractor{durationLiteral: true}
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, errors.Mark(errors.Wrapf(err, "cooldown pattern %q", p), errors.ErrInvalidConfig)
		}
		e.patterns = append(e.patterns, re)
	}
	return e, nil
}

var unitOf = map[string]time.Duration{
	"d": 24 * time.Hour,
	"h": time.Hour,
	"m": time.Minute,
	"s": time.Second,
}

// ExtractCooldown implements CooldownExtractor
func (e *PatternExtractor) ExtractCooldown(content string) (time.Duration, bool) {
	for _, re := range e.patterns {
		match := re.FindStringSubmatch(content)
		if match == nil {
			continue
		}
		var total time.Duration
		for i, name := range re.SubexpNames() {
			unit, ok := unitOf[name]
			if !ok || match[i] == "" {
				continue
			}
			n, err := strconv.Atoi(match[i])
			if err != nil {
				continue
			}
			total += time.Duration(n) * unit
		}
		if total > 0 {
			return total, true
		}
	}

	if e.durationLiteral {
		return firstDurationLiteral(content)
	}
	return 0, false
}

// firstDurationLiteral finds a token like "4m30s" or "1h"
func firstDurationLiteral(content string) (time.Duration, bool) {
	for _, field := range strings.Fields(content) {
		token := strings.TrimFunc(field, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '.'
		})
		token = strings.TrimRight(token, ".")
		if token == "" || !unicode.IsDigit(rune(token[0])) {
			continue
		}
		if d, err := time.ParseDuration(token); err == nil && d > 0 {
			return d, true
		}
	}
	return 0, false
}
