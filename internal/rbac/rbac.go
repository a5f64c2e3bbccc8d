package rbac

type Role string
type Action string

const (
	RoleViewer    Role = "viewer"
	RoleInspector Role = "inspector"
	RoleEditor    Role = "editor"
	RoleAdmin     Role = "admin"
)

const (
	// ActionRead covers layouts, records, search and resolution.
	ActionRead Action = "read"
	// ActionRecord imports or creates as-built records.
	ActionRecord Action = "record"
	// ActionEdit mutates a live layout session.
	ActionEdit Action = "edit"
	// ActionAdmin overwrites stored layouts.
	ActionAdmin Action = "admin"
)

func Can(role Role, action Action) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleEditor:
		return action == ActionRead || action == ActionRecord || action == ActionEdit
	case RoleInspector:
		return action == ActionRead || action == ActionRecord
	case RoleViewer:
		return action == ActionRead
	default:
		return false
	}
}

func Normalize(role string) Role {
	switch Role(role) {
	case RoleViewer, RoleInspector, RoleEditor, RoleAdmin:
		return Role(role)
	default:
		return RoleViewer
	}
}
