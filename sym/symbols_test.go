package sym

import (
	"testing"
	"unicode/utf8"
)

func TestSymbolToComponentAndComponentToSymbolAreBidirectional(t *testing.T) {
	for symbol, component := range SymbolToComponent {
		got, ok := ComponentToSymbol[component]
		if !ok {
			t.Errorf("SymbolToComponent has %q → %q, but ComponentToSymbol has no entry for %q", symbol, component, component)
			continue
		}
		if got != symbol {
			t.Errorf("bidirectional mismatch: SymbolToComponent[%q] = %q, but ComponentToSymbol[%q] = %q", symbol, component, component, got)
		}
	}
}

func TestMapsHaveSameSize(t *testing.T) {
	if len(SymbolToComponent) != len(ComponentToSymbol) {
		t.Errorf("map size mismatch: SymbolToComponent has %d entries, ComponentToSymbol has %d",
			len(SymbolToComponent), len(ComponentToSymbol))
	}
	if len(SymbolToComponent) != len(registry) {
		t.Errorf("duplicate glyph or component in registry: %d unique, %d entries", len(SymbolToComponent), len(registry))
	}
}

func TestEveryComponentHasDescription(t *testing.T) {
	for component := range ComponentToSymbol {
		if Descriptions[component] == "" {
			t.Errorf("component %q has no description", component)
		}
	}
}

func TestGlyphsAreSingleRune(t *testing.T) {
	for _, e := range registry {
		if n := utf8.RuneCountInString(e.glyph); n != 1 {
			t.Errorf("glyph for %q has %d runes, want 1", e.component, n)
		}
	}
}

func TestFor(t *testing.T) {
	if For("pulse") != Pulse {
		t.Errorf("For(pulse) = %q, want %q", For("pulse"), Pulse)
	}
	if For("unknown") != "" {
		t.Errorf("For(unknown) = %q, want empty", For("unknown"))
	}
}
