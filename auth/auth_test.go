package auth

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestAuthenticate(t *testing.T) {
	ctx, ok := Authenticate("admin", "admin123")
	if !ok {
		t.Fatal("admin login rejected")
	}
	if ctx.User != "admin" || ctx.Role != RoleAdmin {
		t.Errorf("ctx = %+v", ctx)
	}

	ctx, ok = Authenticate("user", "user123")
	if !ok {
		t.Fatal("user login rejected")
	}
	if ctx.Role != RoleUser {
		t.Errorf("role = %v, want user", ctx.Role)
	}

	for _, c := range []struct{ u, p string }{
		{"admin", "wrong"},
		{"user", ""},
		{"nobody", "admin123"},
		{"", ""},
	} {
		if _, ok := Authenticate(c.u, c.p); ok {
			t.Errorf("Authenticate(%q, %q) should fail", c.u, c.p)
		}
	}
}

func TestCheck(t *testing.T) {
	admin := Context{User: "admin", Role: RoleAdmin}
	user := Context{User: "user", Role: RoleUser}

	for _, op := range PrivilegedOperations() {
		if err := Check(admin, op); err != nil {
			t.Errorf("admin denied %q: %v", op, err)
		}
		err := Check(user, op)
		var perm *PermissionError
		if !errors.As(err, &perm) {
			t.Errorf("Check(user, %q) = %v, want PermissionError", op, err)
			continue
		}
		if perm.Op != op || perm.User != "user" {
			t.Errorf("error = %+v", perm)
		}
		if msg := perm.Error(); !strings.Contains(msg, op) || !strings.Contains(msg, `"user"`) {
			t.Errorf("message %q should name the operation and the user", msg)
		}
	}

	// Unprivileged operations pass for everyone.
	for _, op := range []string{"read", "find", "create"} {
		if err := Check(user, op); err != nil {
			t.Errorf("Check(user, %q) = %v, want nil", op, err)
		}
	}
}

func TestRequiresAdmin(t *testing.T) {
	if !RequiresAdmin("delete") {
		t.Error("delete should be privileged")
	}
	if RequiresAdmin("read") {
		t.Error("read should not be privileged")
	}
}

func TestPrivilegedOperations_Sorted(t *testing.T) {
	got := PrivilegedOperations()
	want := []string{"delete", "export_csv", "import_csv"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("PrivilegedOperations() = %v, want %v", got, want)
	}
}

func TestIsAdmin(t *testing.T) {
	if !(Context{Role: RoleAdmin}).IsAdmin() {
		t.Error("admin context should be admin")
	}
	if (Context{Role: RoleUser}).IsAdmin() {
		t.Error("user context should not be admin")
	}
}
