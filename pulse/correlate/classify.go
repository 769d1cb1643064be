package correlate

import (
	"regexp"
	"strings"
	"sync"

	"github.com/teranos/autoboat/logger"
	"github.com/teranos/autoboat/pulse/schedule"
	"github.com/teranos/autoboat/transport"
)

// Verdict is a Classifier's opinion of one inbound event
type Verdict int

const (
	// Ignore leaves the pending action armed
	Ignore Verdict = iota
	// Match resolves the pending action with this event
	Match
)

func (v Verdict) String() string {
	if v == Match {
		return "match"
	}
	return "ignore"
}

// Classifier decides whether an event looks like the bot's reply to cmd.
// It sees only events inside the pending action's time window.
type Classifier interface {
	Classify(cmd schedule.CommandSpec, ev transport.InboundEvent) Verdict
}

// ClassifierFunc adapts a function to Classifier
type ClassifierFunc func(cmd schedule.CommandSpec, ev transport.InboundEvent) Verdict

// Classify calls f
func (f ClassifierFunc) Classify(cmd schedule.CommandSpec, ev transport.InboundEvent) Verdict {
	return f(cmd, ev)
}

// RuleClassifier matches by author, mention and per-command content patterns.
//
// With no rules configured every event from someone other than ourselves
// matches. An event whose text is exactly the invocation is our own message
// echoed back and never matches, whoever the bridge says wrote it.
type RuleClassifier struct {
	botAuthors     map[string]bool // empty = any author
	selfAuthor     string          // our own echoes never match
	requireMention string

	mu       sync.Mutex
	compiled map[string][]*regexp.Regexp // pattern set per command
}

// RuleOption configures a RuleClassifier
type RuleOption func(*RuleClassifier)

// WithBotAuthors restricts matches to these authors
func WithBotAuthors(authors ...string) RuleOption {
	return func(c *RuleClassifier) {
		for _, a := range authors {
			if a = strings.TrimSpace(a); a != "" {
				c.botAuthors[strings.ToLower(a)] = true
			}
		}
	}
}

// WithSelfAuthor ignores events authored by us
func WithSelfAuthor(author string) RuleOption {
	return func(c *RuleClassifier) { c.selfAuthor = strings.ToLower(author) }
}

// WithRequiredMention only matches replies containing text (for example our handle)
func WithRequiredMention(text string) RuleOption {
	return func(c *RuleClassifier) { c.requireMention = text }
}

// NewRuleClassifier creates a rule-based classifier
func NewRuleClassifier(opts ...RuleOption) *RuleClassifier {
	c := &RuleClassifier{
		botAuthors: make(map[string]bool),
		compiled:   make(map[string][]*regexp.Regexp),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify implements Classifier
func (c *RuleClassifier) Classify(cmd schedule.CommandSpec, ev transport.InboundEvent) Verdict {
	author := strings.ToLower(ev.Author)
	if c.selfAuthor != "" && author == c.selfAuthor {
		return Ignore
	}
	if isEcho(cmd, ev) {
		return Ignore
	}
	if len(c.botAuthors) > 0 && !c.botAuthors[author] {
		return Ignore
	}
	if c.requireMention != "" && !strings.Contains(ev.Content, c.requireMention) {
		return Ignore
	}

	patterns := c.patterns(cmd)
	if len(patterns) == 0 {
		return Match
	}
	for _, re := range patterns {
		if re.MatchString(ev.Content) {
			return Match
		}
	}
	return Ignore
}

func isEcho(cmd schedule.CommandSpec, ev transport.InboundEvent) bool {
	sent := strings.TrimSpace(cmd.Invocation)
	return sent != "" && strings.EqualFold(strings.TrimSpace(ev.Content), sent)
}

// patterns compiles cmd.MatchPatterns once per distinct pattern set.
// Invalid patterns are skipped; configuration validation rejects them earlier.
func (c *RuleClassifier) patterns(cmd schedule.CommandSpec) []*regexp.Regexp {
	if len(cmd.MatchPatterns) == 0 {
		return nil
	}
	key := cmd.Name + "\x00" + strings.Join(cmd.MatchPatterns, "\x00")

	c.mu.Lock()
	defer c.mu.Unlock()
	if res, ok := c.compiled[key]; ok {
		return res
	}

	res := make([]*regexp.Regexp, 0, len(cmd.MatchPatterns))
	for _, p := range cmd.MatchPatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			logger.Warnw("Skipping invalid match pattern",
				logger.FieldCommand, cmd.Name,
				"pattern", p,
				logger.FieldError, err)
			continue
		}
		res = append(res, re)
	}
	c.compiled[key] = res
	return res
}
