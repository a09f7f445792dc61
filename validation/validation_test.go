package validation

import (
	"strings"
	"testing"
)

func TestRequiredAndLength(t *testing.T) {
	v := Violations{}
	Required("code", "  ", v)
	Length("code", "  ", 1, 50, v)
	if v["code"] != "required" {
		t.Errorf("expected required, got %q", v["code"])
	}

	v = Violations{}
	Required("code", strings.Repeat("A", 51), v)
	Length("code", strings.Repeat("A", 51), 1, 50, v)
	if v["code"] != "invalid_length" {
		t.Errorf("expected invalid_length, got %q", v["code"])
	}

	v = Violations{}
	Length("code", "WELCOME1", 1, 50, v)
	if !v.Empty() {
		t.Errorf("unexpected violations %v", v)
	}
}

func TestOneOf(t *testing.T) {
	v := Violations{}
	OneOf("type", "premium", []string{"premium", "storage", "custom"}, v)
	if !v.Empty() {
		t.Errorf("unexpected violations %v", v)
	}
	OneOf("type", "gold", []string{"premium", "storage", "custom"}, v)
	if v["type"] != "invalid_choice" {
		t.Errorf("expected invalid_choice, got %q", v["type"])
	}
}

func TestMinInt(t *testing.T) {
	v := Violations{}
	MinInt("max_uses", 0, 1, v)
	if v["max_uses"] != "too_small" {
		t.Errorf("expected too_small, got %q", v["max_uses"])
	}
}
