// Package auth provides the capability model the engine consumes: an
// explicit Context carried into privileged operations instead of ambient
// session state, plus the static user table used by the CLI login flow.
package auth

import (
	"fmt"
	"sort"
)

// Role is the capability level of an authenticated user.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// Context identifies the caller of a privileged operation. The zero Context
// is unauthenticated and holds no capabilities.
type Context struct {
	User string
	Role Role
}

func (c Context) IsAdmin() bool {
	return c.Role == RoleAdmin
}

// PermissionError is returned when an operation requires the admin
// capability and the caller does not hold it.
type PermissionError struct {
	Op   string
	User string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("operation %q requires admin privileges, denied for user %q", e.Op, e.User)
}

// privileged lists the operations that demand an admin Context.
var privileged = map[string]bool{
	"delete":     true,
	"import_csv": true,
	"export_csv": true,
}

// RequiresAdmin reports whether op demands the admin capability.
func RequiresAdmin(op string) bool {
	return privileged[op]
}

// PrivilegedOperations returns the sorted list of admin-only operations.
func PrivilegedOperations() []string {
	out := make([]string, 0, len(privileged))
	for op := range privileged {
		out = append(out, op)
	}
	sort.Strings(out)
	return out
}

// Check returns a PermissionError when op is privileged and ctx lacks the
// admin capability.
func Check(ctx Context, op string) error {
	if RequiresAdmin(op) && !ctx.IsAdmin() {
		return &PermissionError{Op: op, User: ctx.User}
	}
	return nil
}

type credentials struct {
	password string
	role     Role
}

// users is the built-in account table, matching the stock admin/user pair
// the CLI ships with.
var users = map[string]credentials{
	"admin": {password: "admin123", role: RoleAdmin},
	"user":  {password: "user123", role: RoleUser},
}

// Authenticate validates a username/password pair and returns the caller's
// Context. The second result is false on unknown user or bad password.
func Authenticate(username, password string) (Context, bool) {
	cred, ok := users[username]
	if !ok || cred.password != password {
		return Context{}, false
	}
	return Context{User: username, Role: cred.role}, true
}
