package enums

import "fmt"

// Segment classifies a customer's current engagement state.
type Segment string

const (
	SegmentNew       Segment = "new"
	SegmentActive    Segment = "active"
	SegmentHighValue Segment = "high_value"
	SegmentAtRisk    Segment = "at_risk"
	SegmentDormant   Segment = "dormant"
	SegmentChurned   Segment = "churned"
)

var validSegments = []Segment{
	SegmentNew,
	SegmentActive,
	SegmentHighValue,
	SegmentAtRisk,
	SegmentDormant,
	SegmentChurned,
}

// String implements fmt.Stringer.
func (s Segment) String() string {
	return string(s)
}

// IsValid reports whether the value is a known Segment.
func (s Segment) IsValid() bool {
	for _, candidate := range validSegments {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseSegment converts raw input into a Segment.
func ParseSegment(value string) (Segment, error) {
	for _, candidate := range validSegments {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid segment %q", value)
}
