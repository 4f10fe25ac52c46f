package chat

import "strings"

// MarkerKind identifies which delimiter pair wrapped a structured segment.
type MarkerKind string

const (
	MarkerNone MarkerKind = "none"
	MarkerTZ   MarkerKind = "tz"
	MarkerIdea MarkerKind = "idea"
)

// Marker delimiter pairs, in evaluation order. The technical-specification
// pair is checked first; when both kinds appear in one response the first
// kind in this order wins regardless of position in the text.
var markerPairs = []struct {
	kind  MarkerKind
	start string
	end   string
}{
	{MarkerTZ, "[ТЗ_START]", "[ТЗ_END]"},
	{MarkerIdea, "[IDEA_START]", "[IDEA_END]"},
}

// Segments is the result of splitting a finished response around its first
// marker block. With no marker present, Kind is MarkerNone and Before holds
// the full text.
type Segments struct {
	Before  string
	Payload string
	After   string
	Kind    MarkerKind
}

// Structured reports whether the text contained a marker block.
func (s Segments) Structured() bool {
	return s.Kind != MarkerNone
}

// ExtractMarkers splits text into prose and a single structured payload.
// Only the first complete pair of the winning kind is honored; repeated or
// nested pairs of the same kind are left in the After segment. The function
// is pure: identical input always yields identical output.
func ExtractMarkers(text string) Segments {
	for _, pair := range markerPairs {
		if seg, ok := scanPair(text, pair.kind, pair.start, pair.end); ok {
			return seg
		}
	}
	return Segments{Before: text, Kind: MarkerNone}
}

// scanPair walks the text once, first looking for the opening delimiter and
// then for the closing one. An opener without a closer is treated as prose.
func scanPair(text string, kind MarkerKind, start, end string) (Segments, bool) {
	open := strings.Index(text, start)
	if open < 0 {
		return Segments{}, false
	}

	inner := open + len(start)
	rel := strings.Index(text[inner:], end)
	if rel < 0 {
		return Segments{}, false
	}
	closing := inner + rel

	return Segments{
		Before:  text[:open],
		Payload: strings.TrimSpace(text[inner:closing]),
		After:   text[closing+len(end):],
		Kind:    kind,
	}, true
}
