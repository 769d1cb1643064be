package correlate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/autoboat/pulse/schedule"
	"github.com/teranos/autoboat/transport"
)

func ev(author, content string) transport.InboundEvent {
	return transport.InboundEvent{Author: author, Content: content}
}

func TestRuleClassifier(t *testing.T) {
	work := schedule.CommandSpec{Name: "work", MatchPatterns: []string{`(?i)you worked`, `(?i)wait \d+`}}
	plain := schedule.CommandSpec{Name: "collect"}
	deposit := schedule.CommandSpec{Name: "deposit", Invocation: "deposit all"}

	tests := []struct {
		name string
		c    *RuleClassifier
		cmd  schedule.CommandSpec
		ev   transport.InboundEvent
		want Verdict
	}{
		{"no rules matches anyone", NewRuleClassifier(), plain, ev("x", "hi"), Match},
		{"own echo ignored", NewRuleClassifier(WithSelfAuthor("Me")), plain, ev("me", "collect"), Ignore},
		{"author allow-list", NewRuleClassifier(WithBotAuthors("EconomyBot")), plain, ev("random", "hi"), Ignore},
		{"author case-insensitive", NewRuleClassifier(WithBotAuthors("EconomyBot")), plain, ev("ECONOMYBOT", "hi"), Match},
		{"pattern hit", NewRuleClassifier(), work, ev("bot", "You worked as a chef"), Match},
		{"second pattern hit", NewRuleClassifier(), work, ev("bot", "Wait 30 seconds"), Match},
		{"pattern miss", NewRuleClassifier(), work, ev("bot", "Deposited 40 coins"), Ignore},
		{"mention required", NewRuleClassifier(WithRequiredMention("@me")), plain, ev("bot", "hello"), Ignore},
		{"mention present", NewRuleClassifier(WithRequiredMention("@me")), plain, ev("bot", "@me hello"), Match},
		{"echo of invocation ignored", NewRuleClassifier(), deposit, ev("me", "deposit all"), Ignore},
		{"echo ignored with padding and case", NewRuleClassifier(), deposit, ev("me", "  Deposit All\n"), Ignore},
		{"reply quoting invocation matches", NewRuleClassifier(), deposit, ev("bot", "deposit all: 300 coins deposited"), Match},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.c.Classify(tt.cmd, tt.ev))
		})
	}
}

func TestRuleClassifier_InvalidPatternSkipped(t *testing.T) {
	c := NewRuleClassifier()
	cmd := schedule.CommandSpec{Name: "work", MatchPatterns: []string{"(broken", "ok"}}
	assert.Equal(t, Match, c.Classify(cmd, ev("bot", "ok")))
	assert.Equal(t, Ignore, c.Classify(cmd, ev("bot", "broken")))
}

func TestClassifierFunc(t *testing.T) {
	var c Classifier = ClassifierFunc(func(schedule.CommandSpec, transport.InboundEvent) Verdict { return Match })
	assert.Equal(t, Match, c.Classify(schedule.CommandSpec{}, transport.InboundEvent{}))
	assert.Equal(t, "match", Match.String())
	assert.Equal(t, "ignore", Ignore.String())
}

func TestPatternExtractor(t *testing.T) {
	e, err := NewPatternExtractor([]string{
		`(?i)wait (?:(?P<h>\d+)h )?(?:(?P<m>\d+)m )?(?P<s>\d+)s`,
		`(?i)try again in (?P<m>\d+) minutes?`,
	})
	require.NoError(t, err)

	tests := []struct {
		content string
		want    time.Duration
		ok      bool
	}{
		{"Slow down! Wait 4m 59s before working again", 4*time.Minute + 59*time.Second, true},
		{"wait 1h 2m 3s", time.Hour + 2*time.Minute + 3*time.Second, true},
		{"wait 12s", 12 * time.Second, true},
		{"Try again in 45 minutes.", 45 * time.Minute, true},
		{"cooldown: 1h30m.", 90 * time.Minute, true},
		{"You worked and earned 200 coins", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.content, func(t *testing.T) {
			got, ok := e.ExtractCooldown(tt.content)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPatternExtractor_InvalidPattern(t *testing.T) {
	_, err := NewPatternExtractor([]string{"(unclosed"})
	assert.Error(t, err)
}
