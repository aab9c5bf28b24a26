package domain

type Role string

const (
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
)

func (r Role) Valid() bool {
	return r == RoleTeacher || r == RoleStudent
}

// Actor is the current user as supplied by the identity collaborator.
type Actor struct {
	ID   string
	Role Role
}

func (a Actor) IsTeacher() bool { return a.Role == RoleTeacher }

func (a Actor) IsStudent() bool { return a.Role == RoleStudent }
