package rbac

type Role string

const (
	RoleSuperAdmin   Role = "superadmin"
	RoleCenterAdmin  Role = "center_admin"
	RoleContentAdmin Role = "content_admin"
	RoleTrainer      Role = "trainer"
	RoleStudent      Role = "student"
)

var Roles = []Role{RoleSuperAdmin, RoleCenterAdmin, RoleContentAdmin, RoleTrainer, RoleStudent}

func (r Role) Valid() bool {
	for _, known := range Roles {
		if r == known {
			return true
		}
	}
	return false
}

// A permission ending in "_own" only applies to documents the caller created.
var RolePermissions = map[Role][]string{
	RoleSuperAdmin: {"*"},
	RoleCenterAdmin: {
		"institutes:read",
		"batches:*",
		"groups:*",
		"users:*",
		"courses:*",
		"enrollments:*",
		"tests:*",
		"test-configurations:*",
		"test-visibilities:*",
		"question-sets:*",
		"questions:*",
		"exams:read",
		"subjects:read",
		"chapters:read",
		"results:read",
		"results:analytics",
	},
	RoleContentAdmin: {
		"exams:*",
		"subjects:*",
		"chapters:*",
		"question-sets:*",
		"questions:*",
		"tests:read",
	},
	RoleTrainer: {
		"exams:read",
		"subjects:read",
		"chapters:read",
		"question-sets:read",
		"questions:read",
		"questions:create",
		"questions:update_own",
		"questions:status_own",
		"tests:read",
		"tests:create",
		"tests:update_own",
		"batches:read",
		"groups:read",
		"users:read",
		"courses:read",
		"test-configurations:read",
		"test-visibilities:read",
		"results:read",
		"results:analytics",
	},
	RoleStudent: {
		"tests:read",
		"courses:read",
		"test-configurations:read",
		"results:start",
		"results:submit",
		"results:read_own",
	},
}

// assignable lists the roles each role may give to users it creates.
var assignable = map[Role][]Role{
	RoleSuperAdmin:  Roles,
	RoleCenterAdmin: {RoleContentAdmin, RoleTrainer, RoleStudent},
}
