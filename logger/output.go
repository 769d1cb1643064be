package logger

// OutputCategory defines a category of output that can be enabled/disabled.
//
// Unlike log levels (which filter by severity), output categories control
// WHAT types of information are displayed regardless of severity.
type OutputCategory int

const (
	// Level 0 (default) - Always shown
	OutputFires   OutputCategory = iota // Command sent to the channel
	OutputReplies                       // Correlated bot replies
	OutputErrors                        // Errors with hints

	// Level 1 (-v)
	OutputSchedule // Next-due decisions, sleep durations
	OutputConfig   // Config loaded/reloaded

	// Level 2 (-vv)
	OutputInbound   // Every inbound event, matched or not
	OutputRateLimit // Budget and send-rate throttling
	OutputSQL       // State store reads/writes

	// Level 3 (-vvv)
	OutputFrames // Raw gateway frames
)

// categoryLevels maps each output category to its minimum verbosity level
var categoryLevels = map[OutputCategory]int{
	OutputFires:   VerbosityUser,
	OutputReplies: VerbosityUser,
	OutputErrors:  VerbosityUser,

	OutputSchedule: VerbosityInfo,
	OutputConfig:   VerbosityInfo,

	OutputInbound:   VerbosityDebug,
	OutputRateLimit: VerbosityDebug,
	OutputSQL:       VerbosityDebug,

	OutputFrames: VerbosityTrace,
}

// ShouldOutput returns true if the given category should be shown at the given verbosity
func ShouldOutput(verbosity int, category OutputCategory) bool {
	minLevel, ok := categoryLevels[category]
	if !ok {
		return verbosity >= VerbosityTrace
	}
	return verbosity >= minLevel
}

var categoryNames = map[OutputCategory]string{
	OutputFires:     "fires",
	OutputReplies:   "replies",
	OutputErrors:    "errors",
	OutputSchedule:  "schedule",
	OutputConfig:    "config",
	OutputInbound:   "inbound",
	OutputRateLimit: "rate-limit",
	OutputSQL:       "sql",
	OutputFrames:    "frames",
}

// CategoryName returns the human-readable name for an output category
func CategoryName(category OutputCategory) string {
	if name, ok := categoryNames[category]; ok {
		return name
	}
	return "unknown"
}
