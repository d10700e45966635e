package board

import (
	"fmt"
	"math"
)

// Direction is the discrete output of the gesture state machine.
type Direction int

const (
	Neutral Direction = iota
	Up
	Down
	Left
	Right
)

func (d Direction) String() string {
	switch d {
	case Up:
		return "Up"
	case Down:
		return "Down"
	case Left:
		return "Left"
	case Right:
		return "Right"
	default:
		return "Neutral"
	}
}

// MarshalText lets Direction encode as its name in JSON.
func (d Direction) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Default hysteresis thresholds, in degrees.
const (
	DefaultActivation = 5.0
	DefaultRelease    = 3.0
)

// Gesture is a two-threshold hysteresis over a (pitch, roll) tilt.
// A direction fires once tilt exceeds the activation threshold and holds
// until both axes fall back within the release threshold.
type Gesture struct {
	activation float64
	release    float64
	state      Direction
}

// NewGesture returns a Gesture in the Neutral state.
// release must be non-negative and strictly below activation.
func NewGesture(activation, release float64) (*Gesture, error) {
	if err := ValidateThresholds(activation, release); err != nil {
		return nil, err
	}
	return &Gesture{activation: activation, release: release}, nil
}

// ValidateThresholds checks 0 <= release < activation.
func ValidateThresholds(activation, release float64) error {
	if math.IsNaN(activation) || math.IsNaN(release) {
		return fmt.Errorf("thresholds must be numbers")
	}
	if release < 0 {
		return fmt.Errorf("release threshold %.2f must be >= 0", release)
	}
	if release >= activation {
		return fmt.Errorf("release threshold %.2f must be < activation threshold %.2f", release, activation)
	}
	return nil
}

// Update steps the machine with a resolved tilt and returns the new state.
// Pitch is checked before roll when both exceed activation.
func (g *Gesture) Update(pitch, roll float64) Direction {
	if g.state == Neutral {
		switch {
		case pitch > g.activation:
			g.state = Up
		case pitch < -g.activation:
			g.state = Down
		case roll > g.activation:
			g.state = Right
		case roll < -g.activation:
			g.state = Left
		}
		return g.state
	}

	if math.Abs(pitch) <= g.release && math.Abs(roll) <= g.release {
		g.state = Neutral
	}
	return g.state
}

// State returns the current direction without stepping.
func (g *Gesture) State() Direction { return g.state }
