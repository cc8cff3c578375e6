package authz

import "github.com/kidega/apartments/pkg/model"

// Resource names an entity type guarded by the rule table.
type Resource string

const (
	ResourceBuilding Resource = "building"
	ResourceUnit     Resource = "unit"
	ResourceUser     Resource = "user"
	ResourcePayment  Resource = "payment"
	ResourceReceipt  Resource = "receipt"
	ResourceDocument Resource = "document"
)

// Action names an operation on a resource.
type Action string

const (
	ActionCreate Action = "create"
	ActionRead   Action = "read"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Rule grants an action on a resource to a set of roles. Scoped reads
// (a manager seeing only own-building rows, a tenant seeing only own
// rows) pass the role gate here and are narrowed by the ownership
// predicates on Checker.
type Rule struct {
	Resource Resource
	Action   Action
	Roles    []model.Role
}

// rules is the authorization table for the whole API. One place, no
// per-handler role checks.
var rules = []Rule{
	{ResourceBuilding, ActionCreate, []model.Role{model.RoleAdmin}},
	{ResourceBuilding, ActionRead, []model.Role{model.RoleAdmin, model.RoleManager}},
	{ResourceBuilding, ActionUpdate, []model.Role{model.RoleAdmin}},
	{ResourceBuilding, ActionDelete, []model.Role{model.RoleAdmin}},

	{ResourceUnit, ActionCreate, []model.Role{model.RoleAdmin}},
	{ResourceUnit, ActionRead, []model.Role{model.RoleAdmin, model.RoleManager, model.RoleTenant}},
	{ResourceUnit, ActionUpdate, []model.Role{model.RoleAdmin, model.RoleManager}},
	{ResourceUnit, ActionDelete, []model.Role{model.RoleAdmin}},

	{ResourceUser, ActionCreate, []model.Role{model.RoleAdmin, model.RoleManager}},
	{ResourceUser, ActionRead, []model.Role{model.RoleAdmin, model.RoleManager, model.RoleTenant}},
	{ResourceUser, ActionUpdate, []model.Role{model.RoleAdmin, model.RoleManager, model.RoleTenant}},

	{ResourcePayment, ActionCreate, []model.Role{model.RoleManager}},
	{ResourcePayment, ActionRead, []model.Role{model.RoleAdmin, model.RoleManager, model.RoleTenant}},
	{ResourcePayment, ActionUpdate, []model.Role{model.RoleManager}},

	{ResourceReceipt, ActionCreate, []model.Role{model.RoleAdmin, model.RoleManager, model.RoleTenant}},
	{ResourceReceipt, ActionRead, []model.Role{model.RoleAdmin, model.RoleManager, model.RoleTenant}},

	{ResourceDocument, ActionCreate, []model.Role{model.RoleAdmin, model.RoleManager}},
	{ResourceDocument, ActionRead, []model.Role{model.RoleAdmin, model.RoleManager, model.RoleTenant}},
	{ResourceDocument, ActionUpdate, []model.Role{model.RoleAdmin, model.RoleManager}},
	{ResourceDocument, ActionDelete, []model.Role{model.RoleAdmin, model.RoleManager}},
}

// Allows reports whether the role passes the gate for an action on a
// resource.
func Allows(role model.Role, resource Resource, action Action) bool {
	for _, rule := range rules {
		if rule.Resource != resource || rule.Action != action {
			continue
		}
		for _, r := range rule.Roles {
			if r == role {
				return true
			}
		}
		return false
	}
	return false
}
