package auth

// Permission names are the exact strings persisted in the permissions table
// and referenced by role grants.
const (
	PermTaskList   = "task-list"
	PermTaskCreate = "task-create"
	PermTaskEdit   = "task-edit"
	PermTaskDelete = "task-delete"

	PermUserList   = "user-list"
	PermUserCreate = "user-create"
	PermUserEdit   = "user-edit"
	PermUserDelete = "user-delete"

	PermRoleList   = "role-list"
	PermRoleCreate = "role-create"
	PermRoleEdit   = "role-edit"
	PermRoleDelete = "role-delete"

	PermLogList = "log-list"
)

// View sets: listing a resource is open to holders of any of the entity's
// permissions, not only the -list one.
var (
	TaskViewPermissions = []string{PermTaskList, PermTaskCreate, PermTaskEdit, PermTaskDelete}
	UserViewPermissions = []string{PermUserList, PermUserEdit, PermUserDelete, PermUserCreate}
	RoleViewPermissions = []string{PermRoleList, PermRoleCreate, PermRoleEdit, PermRoleDelete}
)

// BuiltinPermissions is the full catalog ensured at migration/seed time.
var BuiltinPermissions = []Permission{
	{Name: PermTaskList},
	{Name: PermTaskCreate},
	{Name: PermTaskEdit},
	{Name: PermTaskDelete},
	{Name: PermUserList},
	{Name: PermUserCreate},
	{Name: PermUserEdit},
	{Name: PermUserDelete},
	{Name: PermRoleList},
	{Name: PermRoleCreate},
	{Name: PermRoleEdit},
	{Name: PermRoleDelete},
	{Name: PermLogList},
}
