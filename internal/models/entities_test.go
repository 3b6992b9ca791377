package models

import "testing"

func TestEntitiesString(t *testing.T) {
	e := Entities{
		"name":   "vm-100",
		"count":  float64(3),
		"cores":  4,
		"tags":   []string{"prod", "web"},
		"mixed":  []any{"first", 2},
		"absent": nil,
	}

	cases := map[string]string{
		"name":    "vm-100",
		"count":   "3",
		"cores":   "4",
		"tags":    "prod",
		"mixed":   "first",
		"absent":  "",
		"missing": "",
	}
	for key, want := range cases {
		if got := e.String(key); got != want {
			t.Errorf("String(%q) = %q, want %q", key, got, want)
		}
	}
}

func TestEntitiesClone(t *testing.T) {
	var nilEntities Entities
	cloned := nilEntities.Clone()
	if cloned == nil {
		t.Fatal("clone of nil must not be nil")
	}

	e := Entities{"vm_name": "vm-1"}
	c := e.Clone()
	c["vm_name"] = "vm-2"
	if e.String("vm_name") != "vm-1" {
		t.Fatal("clone shares storage with original")
	}
}

func TestEntitiesCodec(t *testing.T) {
	t.Run("Empty encodes to empty string", func(t *testing.T) {
		if got := EncodeEntities(nil); got != "" {
			t.Fatalf("expected empty, got %q", got)
		}
		if got := EncodeEntities(Entities{}); got != "" {
			t.Fatalf("expected empty, got %q", got)
		}
	})

	t.Run("Round trip", func(t *testing.T) {
		raw := EncodeEntities(Entities{"vm_name": "vm-100"})
		decoded := DecodeEntities(raw)
		if decoded.String("vm_name") != "vm-100" {
			t.Fatalf("round trip failed: %+v", decoded)
		}
	})

	t.Run("Malformed blob decodes to nil", func(t *testing.T) {
		if got := DecodeEntities("{not json"); got != nil {
			t.Fatalf("expected nil for garbage, got %+v", got)
		}
	})
}
