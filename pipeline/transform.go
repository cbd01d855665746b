package pipeline

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Transform maps a sample on its way into a stage.
type Transform func(v float32) float32

// Identity passes samples through unchanged.
func Identity(v float32) float32 { return v }

// Scale multiplies by factor.
func Scale(factor float64) Transform {
	f := float32(factor)
	return func(v float32) float32 { return v * f }
}

// Offset adds delta.
func Offset(delta float64) Transform {
	d := float32(delta)
	return func(v float32) float32 { return v + d }
}

// Invert flips the sign.
func Invert(v float32) float32 { return -v }

// Abs rectifies the signal.
func Abs(v float32) float32 { return float32(math.Abs(float64(v))) }

var transforms = map[string]func(factor float64) Transform{
	"identity": func(float64) Transform { return Identity },
	"scale":    Scale,
	"offset":   Offset,
	"invert":   func(float64) Transform { return Invert },
	"abs":      func(float64) Transform { return Abs },
}

// ParseTransform resolves a transform by name. factor is the argument for
// scale and offset and ignored otherwise. An empty name is identity.
func ParseTransform(name string, factor float64) (Transform, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return Identity, nil
	}
	build, ok := transforms[name]
	if !ok {
		return nil, fmt.Errorf("unknown transform %q (want one of %s)", name, strings.Join(TransformNames(), ", "))
	}
	return build(factor), nil
}

// TransformNames lists the known transform names, sorted.
func TransformNames() []string {
	names := make([]string, 0, len(transforms))
	for n := range transforms {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
