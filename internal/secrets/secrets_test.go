package secrets

import "testing"

func TestEnvStore_Lookup(t *testing.T) {
	t.Setenv("WEATHER_KEY", "direct")
	t.Setenv("AI_GATEWAY_MAPS_KEY", "prefixed")
	t.Setenv("EMPTY_KEY", "")

	s := EnvStore{Prefix: "AI_GATEWAY_"}

	if v, ok := s.Lookup("WEATHER_KEY"); !ok || v != "direct" {
		t.Errorf("Lookup(WEATHER_KEY) = %q, %v", v, ok)
	}
	if v, ok := s.Lookup("MAPS_KEY"); !ok || v != "prefixed" {
		t.Errorf("Lookup(MAPS_KEY) = %q, %v", v, ok)
	}
	if _, ok := s.Lookup("EMPTY_KEY"); ok {
		t.Error("Lookup(EMPTY_KEY) should report absent")
	}
	if _, ok := s.Lookup(""); ok {
		t.Error("Lookup(\"\") should report absent")
	}
}

func TestMapStore_Lookup(t *testing.T) {
	s := MapStore{"a": "1", "b": ""}
	if v, ok := s.Lookup("a"); !ok || v != "1" {
		t.Errorf("Lookup(a) = %q, %v", v, ok)
	}
	if _, ok := s.Lookup("b"); ok {
		t.Error("Lookup(b) should report absent")
	}
}
