package adapters

import "strings"

// StaticSymbolMap is a bidirectional canonical<->native symbol table, the Go
// equivalent of the per-venue replacement tables used for Kraken-style pair
// normalization: a fixed map built once at construction time, looked up
// both directions without any string-surgery heuristics.
type StaticSymbolMap struct {
	canonicalToNative map[string]string
	nativeToCanonical map[string]string
}

// NewStaticSymbolMap builds a StaticSymbolMap from a canonical->native table.
func NewStaticSymbolMap(canonicalToNative map[string]string) *StaticSymbolMap {
	m := &StaticSymbolMap{
		canonicalToNative: make(map[string]string, len(canonicalToNative)),
		nativeToCanonical: make(map[string]string, len(canonicalToNative)),
	}
	for canonical, native := range canonicalToNative {
		m.canonicalToNative[canonical] = native
		m.nativeToCanonical[native] = canonical
	}
	return m
}

func (m *StaticSymbolMap) NativeSymbol(canonical string) (string, bool) {
	native, ok := m.canonicalToNative[strings.ToUpper(canonical)]
	return native, ok
}

func (m *StaticSymbolMap) NormalizeSymbol(native string) (string, bool) {
	canonical, ok := m.nativeToCanonical[native]
	return canonical, ok
}

// CanonicalForm reports whether a symbol is already in BASE-QUOTE-PERP form.
func CanonicalForm(symbol string) bool {
	parts := strings.Split(symbol, "-")
	return len(parts) == 3 && parts[2] == "PERP"
}
