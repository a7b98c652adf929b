package limits

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Rect is a width x height pair in pixels. In minimum-dimension bounds a zero
// component leaves that axis unconstrained.
type Rect struct {
	W int
	H int
}

func (r Rect) String() string {
	return fmt.Sprintf("%dx%d", r.W, r.H)
}

// UnmarshalYAML decodes [width, height].
func (r *Rect) UnmarshalYAML(value *yaml.Node) error {
	var pair []int
	if err := value.Decode(&pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("line %d: rectangle needs [width, height], got %d values", value.Line, len(pair))
	}
	*r = Rect{W: pair[0], H: pair[1]}
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (r Rect) MarshalYAML() (interface{}, error) {
	return flowSeq(r.W, r.H), nil
}

// BoundKind tags the shape of a DimensionBound.
type BoundKind int

const (
	// BoundRect is a single rectangle.
	BoundRect BoundKind = iota + 1
	// BoundLShaped is a pair of alternative rectangles, usually landscape and portrait.
	BoundLShaped
)

// DimensionBound is either one rectangle or an L-shaped pair of rectangles.
type DimensionBound struct {
	Kind  BoundKind
	Rects [2]Rect
}

// RectBound returns a rectangular bound.
func RectBound(w, h int) DimensionBound {
	return DimensionBound{Kind: BoundRect, Rects: [2]Rect{{W: w, H: h}}}
}

// LShapedBound returns a bound satisfied by fitting inside either rectangle.
func LShapedBound(landscape, portrait Rect) DimensionBound {
	return DimensionBound{Kind: BoundLShaped, Rects: [2]Rect{landscape, portrait}}
}

// Choose picks the rectangle that applies to a w x h file. For an L-shaped
// bound that is the rectangle allowing the larger fit ratio; ties go to the
// second rectangle.
func (b DimensionBound) Choose(w, h int) Rect {
	if b.Kind != BoundLShaped {
		return b.Rects[0]
	}
	a, c := b.Rects[0], b.Rects[1]
	if fitRatio(a, w, h) > fitRatio(c, w, h) {
		return a
	}
	return c
}

func fitRatio(r Rect, w, h int) float64 {
	return math.Min(float64(r.W)/float64(w), float64(r.H)/float64(h))
}

// UnmarshalYAML decodes [w, h] or [[w, h], [w, h]].
func (b *DimensionBound) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.SequenceNode || len(value.Content) != 2 {
		return fmt.Errorf("line %d: dimension bound must be [w, h] or [[w, h], [w, h]]", value.Line)
	}
	if value.Content[0].Kind == yaml.SequenceNode {
		var rects [2]Rect
		for i, n := range value.Content {
			if err := n.Decode(&rects[i]); err != nil {
				return err
			}
		}
		*b = LShapedBound(rects[0], rects[1])
		return nil
	}
	var r Rect
	if err := value.Decode(&r); err != nil {
		return err
	}
	*b = RectBound(r.W, r.H)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (b DimensionBound) MarshalYAML() (interface{}, error) {
	if b.Kind == BoundLShaped {
		return []interface{}{flowSeq(b.Rects[0].W, b.Rects[0].H), flowSeq(b.Rects[1].W, b.Rects[1].H)}, nil
	}
	return flowSeq(b.Rects[0].W, b.Rects[0].H), nil
}

func flowSeq(vals ...int) *yaml.Node {
	n := &yaml.Node{Kind: yaml.SequenceNode, Style: yaml.FlowStyle}
	for _, v := range vals {
		n.Content = append(n.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: strconv.Itoa(v)})
	}
	return n
}

// AspectRatio is a width:height ratio with the label shown in messages.
type AspectRatio struct {
	Value float64
	Label string
	// fromString records whether the ratio was written as "W:H".
	fromString bool
}

// ParseAspectRatio accepts "W:H" strings and decimal numbers (meaning W:1).
func ParseAspectRatio(s string) (AspectRatio, error) {
	s = strings.TrimSpace(s)
	if w, h, ok := strings.Cut(s, ":"); ok {
		wf, err := strconv.ParseFloat(strings.TrimSpace(w), 64)
		if err != nil {
			return AspectRatio{}, fmt.Errorf("aspect ratio %q: %w", s, err)
		}
		hf, err := strconv.ParseFloat(strings.TrimSpace(h), 64)
		if err != nil {
			return AspectRatio{}, fmt.Errorf("aspect ratio %q: %w", s, err)
		}
		if wf <= 0 || hf <= 0 {
			return AspectRatio{}, fmt.Errorf("aspect ratio %q must be positive", s)
		}
		return AspectRatio{Value: wf / hf, Label: s, fromString: true}, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return AspectRatio{}, fmt.Errorf("aspect ratio %q: %w", s, err)
	}
	if v <= 0 {
		return AspectRatio{}, fmt.Errorf("aspect ratio %q must be positive", s)
	}
	return RatioOf(v), nil
}

// MustAspectRatio is ParseAspectRatio for literals known to be valid.
func MustAspectRatio(s string) AspectRatio {
	r, err := ParseAspectRatio(s)
	if err != nil {
		panic(err)
	}
	return r
}

// RatioOf returns a decimal ratio labelled like "1.500:1".
func RatioOf(v float64) AspectRatio {
	return AspectRatio{Value: v, Label: fmt.Sprintf("%.3f:1", v)}
}

// Is16x9 reports whether the ratio is 16:9, however it was written.
func (a AspectRatio) Is16x9() bool {
	return a.Value == 16.0/9.0 || a.Label == "16:9" || a.Label == "1.778:1"
}

func (a AspectRatio) String() string { return a.Label }

// UnmarshalYAML decodes "W:H" strings or numbers.
func (a *AspectRatio) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: aspect ratio must be a number or \"W:H\"", value.Line)
	}
	r, err := ParseAspectRatio(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*a = r
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (a AspectRatio) MarshalYAML() (interface{}, error) {
	if a.fromString {
		return a.Label, nil
	}
	return a.Value, nil
}
