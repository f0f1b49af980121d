package magiccode

import "github.com/MrEthical07/magiccode/internal/flows"

// Lookup returns the value of field from the first source that contains it.
// Presence is structural: a source holding the key with a nil or empty value
// still wins over later sources. nil sources are skipped.
func Lookup(sources []Source, field string) (any, bool) {
	return flows.LookupField(toFlowSources(sources), field)
}

// Stringify renders a resolved field value the way the verifier compares it.
func Stringify(v any) string {
	return flows.Stringify(v)
}

func toFlowSources(sources []Source) []map[string]any {
	out := make([]map[string]any, len(sources))
	for i, s := range sources {
		out[i] = s
	}
	return out
}
