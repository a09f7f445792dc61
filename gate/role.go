package gate

// Role is the staff tier stored on a profile row.
type Role string

const (
	RoleUser      Role = "user"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

// ParseRole maps a stored column value to a Role. Unknown values are users.
func ParseRole(s string) Role {
	switch Role(s) {
	case RoleAdmin:
		return RoleAdmin
	case RoleModerator:
		return RoleModerator
	default:
		return RoleUser
	}
}

// IsStaff reports whether the role is one of the elevated tiers.
func (r Role) IsStaff() bool {
	return r == RoleAdmin || r == RoleModerator
}

// Source names which input produced a verdict.
type Source string

const (
	SourceProfile  Source = "profile"
	SourceMetadata Source = "metadata"
	SourceExternal Source = "external"
	SourceNone     Source = "none"
)

// Level is the privilege a guard requires.
type Level int

const (
	LevelAuthenticated Level = iota
	LevelStaff
	LevelAdmin
)

func (l Level) String() string {
	switch l {
	case LevelStaff:
		return "staff"
	case LevelAdmin:
		return "admin"
	default:
		return "authenticated"
	}
}

// Verdict is the outcome of a single resolution. It is derived per call
// and never persisted.
type Verdict struct {
	IsStaff bool   `json:"is_staff"`
	Source  Source `json:"source"`
	Role    Role   `json:"role"`
}

// NoPrivilege is the verdict for any principal no source vouches for.
var NoPrivilege = Verdict{IsStaff: false, Source: SourceNone, Role: RoleUser}

// Satisfies reports whether the verdict meets the required level.
// Admin is only reachable through the profile row or session metadata;
// the external oracle grants moderator-equivalent staff at most.
func (v Verdict) Satisfies(level Level) bool {
	switch level {
	case LevelAuthenticated:
		return true
	case LevelStaff:
		return v.IsStaff
	case LevelAdmin:
		return v.IsStaff && v.Role == RoleAdmin
	default:
		return false
	}
}
