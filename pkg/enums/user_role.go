package enums

// UserRole is the system-wide role carried in access tokens.
type UserRole string

const (
	UserRoleUser  UserRole = "user"
	UserRoleAdmin UserRole = "admin"
)

var userRoles = values[UserRole]{"user role", []UserRole{UserRoleUser, UserRoleAdmin}}

func (u UserRole) IsValid() bool { return userRoles.has(u) }

func ParseUserRole(value string) (UserRole, error) { return userRoles.parse(value) }
