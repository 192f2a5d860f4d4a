package permissions

// Category names used by the built-in catalog.
const (
	CategoryUserManagement = "user_management"
	CategoryProfile        = "profile"
	CategorySystemAdmin    = "system_admin"
)

var builtin = []Definition{
	{Name: "user.view", DisplayName: "View Users", Description: "List and inspect user accounts", Category: CategoryUserManagement},
	{Name: "user.invite", DisplayName: "Invite Users", Description: "Issue and manage invitations", Category: CategoryUserManagement},
	{Name: "user.assign_role", DisplayName: "Assign Roles", Description: "Change a user's role", Category: CategoryUserManagement},
	{Name: "user.deactivate", DisplayName: "Deactivate Users", Description: "Disable user accounts", Category: CategoryUserManagement},

	{Name: "profile.view", DisplayName: "View Profiles", Description: "Read hosted profiles", Category: CategoryProfile},
	{Name: "profile.edit", DisplayName: "Edit Profiles", Description: "Modify profile content", Category: CategoryProfile},
	{Name: "profile.publish", DisplayName: "Publish Profiles", Description: "Make profiles publicly visible", Category: CategoryProfile},

	{Name: "role.manage", DisplayName: "Manage Roles", Description: "Create, update and delete custom roles", Category: CategorySystemAdmin},
	{Name: "system.settings", DisplayName: "System Settings", Description: "Change platform-wide settings", Category: CategorySystemAdmin},
	{Name: "ledger.view", DisplayName: "View Assignment Ledger", Description: "Read the role assignment history", Category: CategorySystemAdmin},
}

// RegisterBuiltin loads the built-in catalog. Safe to call once at bootstrap;
// a duplicate registration means RegisterBuiltin ran twice and is reported.
func RegisterBuiltin() error {
	for i := range builtin {
		if err := Register(&builtin[i]); err != nil {
			return err
		}
	}
	return nil
}
