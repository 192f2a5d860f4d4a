package permissions

import (
	"errors"
	"testing"
)

func TestRegisterRejectsDuplicates(t *testing.T) {
	t.Cleanup(reset)
	reset()

	def := &Definition{Name: "user.view", DisplayName: "View Users", Category: CategoryUserManagement}
	if err := Register(def); err != nil {
		t.Fatalf("first registration failed: %v", err)
	}

	err := Register(&Definition{Name: "user.view", Category: CategoryUserManagement})
	if !errors.Is(err, ErrDuplicateName) {
		t.Fatalf("expected ErrDuplicateName, got %v", err)
	}
}

func TestRegisterRequiresName(t *testing.T) {
	t.Cleanup(reset)
	reset()

	if err := Register(&Definition{Name: "   "}); err == nil {
		t.Fatal("expected empty name to be rejected")
	}
	if err := Register(nil); err == nil {
		t.Fatal("expected nil definition to be rejected")
	}
}

func TestByCategoryFilters(t *testing.T) {
	t.Cleanup(reset)
	reset()

	if err := RegisterBuiltin(); err != nil {
		t.Fatalf("builtin registration failed: %v", err)
	}

	admin := ByCategory(CategorySystemAdmin)
	if len(admin) != 3 {
		t.Fatalf("expected 3 system_admin permissions, got %d", len(admin))
	}
	for _, def := range admin {
		if def.Category != CategorySystemAdmin {
			t.Fatalf("unexpected category %q for %q", def.Category, def.Name)
		}
	}
}

func TestValidateReportsUnknownNames(t *testing.T) {
	t.Cleanup(reset)
	reset()

	if err := RegisterBuiltin(); err != nil {
		t.Fatalf("builtin registration failed: %v", err)
	}

	if err := Validate([]string{"user.view", "profile.edit"}); err != nil {
		t.Fatalf("expected known names to validate, got %v", err)
	}

	err := Validate([]string{"user.view", "made.up"})
	if !errors.Is(err, ErrUnknownPermission) {
		t.Fatalf("expected ErrUnknownPermission, got %v", err)
	}
}
