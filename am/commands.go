package am

import (
	"sort"
	"strings"

	"github.com/teranos/autoboat/pulse/schedule"
)

// CommandSpecs converts the command table into scheduler specs, ordered by
// explicit order, then built-in order (work, collect, deposit), then name.
// Disabled commands are included with Enabled=false.
func (c *Config) CommandSpecs() []schedule.CommandSpec {
	names := orderedCommandNames(c.Commands)
	specs := make([]schedule.CommandSpec, 0, len(names))

	for i, name := range names {
		cmd := c.Commands[name]
		specs = append(specs, schedule.CommandSpec{
			Name:          name,
			Invocation:    c.Invocation(cmd),
			Enabled:       cmd.IsEnabled(),
			Cooldown:      cmd.Cooldown(),
			ResponseWait:  cmd.ResponseWait(),
			FollowUp:      cmd.FollowUp,
			FollowUpDelay: cmd.FollowUpDelay(),
			FollowUpOnly:  cmd.FollowUpOnly,
			MatchPatterns: append([]string(nil), cmd.MatchPatterns...),
			SlashID:       cmd.SlashCommandID,
			Order:         i,
		})
	}
	return specs
}

// Invocation returns the text sent for cmd: "<prefix> <command>".
// An empty prefix sends the bare command.
func (c *Config) Invocation(cmd CommandConfig) string {
	return strings.TrimSpace(c.Gateway.Prefix + " " + cmd.Command)
}

// SlashMode reports whether invocations go out as slash commands
func (c *Config) SlashMode() bool {
	return c.Gateway.Prefix == "/"
}

func orderedCommandNames(commands map[string]CommandConfig) []string {
	builtin := make(map[string]int, len(builtinCommandOrder))
	for i, name := range builtinCommandOrder {
		builtin[name] = i
	}

	names := sortedCommandNames(commands)
	sort.SliceStable(names, func(i, j int) bool {
		a, b := commands[names[i]], commands[names[j]]
		// Explicitly ordered commands come first
		if (a.Order != nil) != (b.Order != nil) {
			return a.Order != nil
		}
		if a.Order != nil && *a.Order != *b.Order {
			return *a.Order < *b.Order
		}
		bi, aok := builtin[names[i]]
		bj, bok := builtin[names[j]]
		if aok != bok {
			return aok
		}
		if aok && bi != bj {
			return bi < bj
		}
		return false
	})
	return names
}

func sortedCommandNames(commands map[string]CommandConfig) []string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
