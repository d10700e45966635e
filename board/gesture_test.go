package board

import "testing"

func mustGesture(t *testing.T) *Gesture {
	t.Helper()
	g, err := NewGesture(DefaultActivation, DefaultRelease)
	if err != nil {
		t.Fatalf("NewGesture() error: %v", err)
	}
	return g
}

func TestGesture_Activation(t *testing.T) {
	cases := []struct {
		name        string
		pitch, roll float64
		want        Direction
	}{
		{"Flat", 0, 0, Neutral},
		{"AtThreshold", 5, -5, Neutral},
		{"Up", 5.1, 0, Up},
		{"Down", -6, 0, Down},
		{"Right", 0, 7, Right},
		{"Left", 0, -7, Left},
		{"PitchBeatsRoll", 6, 9, Up},
		{"DownBeatsLeft", -6, -9, Down},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			g := mustGesture(t)
			if got := g.Update(c.pitch, c.roll); got != c.want {
				t.Fatalf("Update(%v, %v)=%v want %v", c.pitch, c.roll, got, c.want)
			}
		})
	}
}

func TestGesture_HoldsUntilRelease(t *testing.T) {
	g := mustGesture(t)
	steps := []struct {
		pitch, roll float64
		want        Direction
	}{
		{6, 0, Up},
		{4, 0, Up},      // below activation, above release
		{3.5, 0, Up},    // still above release
		{-8, 0, Up},     // sign flip does not switch direction
		{0, 9, Up},      // neither does the other axis
		{2, 3.5, Up},    // roll outside release band
		{2, 3, Neutral}, // both within release
		{0, 0, Neutral},
		{0, -6, Left},
		{-3, -3, Neutral},
	}
	for i, s := range steps {
		if got := g.Update(s.pitch, s.roll); got != s.want {
			t.Fatalf("step %d Update(%v, %v)=%v want %v", i, s.pitch, s.roll, got, s.want)
		}
	}
}

func TestGesture_NoChatterNearBoundary(t *testing.T) {
	g := mustGesture(t)
	g.Update(5.5, 0)
	changes := 0
	last := g.State()
	for i := 0; i < 100; i++ {
		pitch := 4.9
		if i%2 == 0 {
			pitch = 5.1
		}
		if d := g.Update(pitch, 0); d != last {
			changes++
			last = d
		}
	}
	if changes != 0 {
		t.Fatalf("direction changed %d times on noise around activation", changes)
	}
}

func TestValidateThresholds(t *testing.T) {
	if err := ValidateThresholds(5, 3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := ValidateThresholds(5, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, c := range [][2]float64{{3, 3}, {3, 5}, {5, -1}} {
		if err := ValidateThresholds(c[0], c[1]); err == nil {
			t.Fatalf("ValidateThresholds(%v, %v) expected error", c[0], c[1])
		}
	}
}

func TestDirectionString(t *testing.T) {
	want := map[Direction]string{Neutral: "Neutral", Up: "Up", Down: "Down", Left: "Left", Right: "Right"}
	for d, s := range want {
		if d.String() != s {
			t.Fatalf("%d.String()=%q want %q", d, d.String(), s)
		}
	}
}
