package gate_test

import (
	"testing"

	"github.com/5vraa/swims.cc-website-sub000/gate"
)

func TestParseRole(t *testing.T) {
	tests := []struct {
		in   string
		want gate.Role
	}{
		{"admin", gate.RoleAdmin},
		{"moderator", gate.RoleModerator},
		{"user", gate.RoleUser},
		{"", gate.RoleUser},
		{"ADMIN", gate.RoleUser},
	}
	for _, tt := range tests {
		if got := gate.ParseRole(tt.in); got != tt.want {
			t.Errorf("ParseRole(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestVerdict_Satisfies(t *testing.T) {
	admin := gate.Verdict{IsStaff: true, Source: gate.SourceProfile, Role: gate.RoleAdmin}
	moderator := gate.Verdict{IsStaff: true, Source: gate.SourceExternal, Role: gate.RoleModerator}
	user := gate.NoPrivilege

	tests := []struct {
		name    string
		verdict gate.Verdict
		level   gate.Level
		want    bool
	}{
		{"user authenticated", user, gate.LevelAuthenticated, true},
		{"user staff", user, gate.LevelStaff, false},
		{"user admin", user, gate.LevelAdmin, false},
		{"moderator staff", moderator, gate.LevelStaff, true},
		{"moderator admin", moderator, gate.LevelAdmin, false},
		{"admin staff", admin, gate.LevelStaff, true},
		{"admin admin", admin, gate.LevelAdmin, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.verdict.Satisfies(tt.level); got != tt.want {
				t.Errorf("Satisfies(%s) = %v, want %v", tt.level, got, tt.want)
			}
		})
	}
}
