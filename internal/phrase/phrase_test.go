package phrase

import "testing"

func TestChoose(t *testing.T) {
	templates := []string{"hello {name}", "goodbye {name}"}

	t.Run("Substitutes placeholders", func(t *testing.T) {
		got := Choose(&Sequential{}, templates, map[string]string{"name": "alice"})
		if got != "hello alice" {
			t.Fatalf("got %q", got)
		}
	})

	t.Run("Sequential cycles", func(t *testing.T) {
		s := &Sequential{}
		first := Choose(s, templates, nil)
		second := Choose(s, templates, nil)
		third := Choose(s, templates, nil)
		if first != "hello {name}" || second != "goodbye {name}" || third != first {
			t.Fatalf("unexpected cycle: %q, %q, %q", first, second, third)
		}
	})

	t.Run("Empty templates", func(t *testing.T) {
		if got := Choose(&Sequential{}, nil, nil); got != "" {
			t.Fatalf("expected empty, got %q", got)
		}
	})
}

func TestRandPickerBounds(t *testing.T) {
	p := NewRandPicker(42)
	for i := 0; i < 100; i++ {
		if got := p.Pick(5); got < 0 || got >= 5 {
			t.Fatalf("pick out of range: %d", got)
		}
	}
	if p.Pick(1) != 0 {
		t.Fatal("single-element pick must be 0")
	}
}
