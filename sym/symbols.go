// Package sym defines canonical symbols for autoboat components and lifecycle markers.
// These symbols are stable across log output, CLI, and documentation.
package sym

// System infrastructure symbols.
const (
	Pulse      = "꩜" // cooldown scheduling and dispatch
	PulseOpen  = "✿" // graceful startup (state restore, countdown)
	PulseClose = "❀" // graceful shutdown (final settle and persist)
	DB         = "⊔" // database/storage layer
	AM         = "≡" // configuration
	Gateway    = "⇌" // chat transport
	Reply      = "↩" // correlated reply
)

// entry binds a glyph to its component name and description.
type entry struct {
	glyph       string
	component   string
	description string
}

var registry = []entry{
	{Pulse, "pulse", "Cooldown scheduling and dispatch"},
	{PulseOpen, "startup", "Graceful startup with state restore"},
	{PulseClose, "shutdown", "Graceful shutdown with final persist"},
	{DB, "db", "Database/storage layer"},
	{AM, "am", "Configuration and hot reload"},
	{Gateway, "gateway", "Chat transport connection"},
	{Reply, "correlate", "Reply correlation"},
}

// SymbolToComponent maps glyph strings to the component they mark.
var SymbolToComponent = map[string]string{}

// ComponentToSymbol maps component names to their canonical glyph strings.
var ComponentToSymbol = map[string]string{}

// Descriptions provides human-readable explanations per component.
var Descriptions = map[string]string{}

func init() {
	for _, e := range registry {
		SymbolToComponent[e.glyph] = e.component
		ComponentToSymbol[e.component] = e.glyph
		Descriptions[e.component] = e.description
	}
}

// For returns the glyph for a component name, or the empty string.
func For(component string) string {
	return ComponentToSymbol[component]
}
