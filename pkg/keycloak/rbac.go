package keycloak

import (
	"strings"

	sserr "github.com/StricklySoft/stricklysoft-auth/pkg/errors"
)

// Permission is a single resource/action grant. The wildcard "*" in either
// field matches everything, so {Resource: "*", Action: "*"} is full
// access.
//
// Permissions are derived from token claims with [PermissionsForClaims]
// and checked through a [PermissionSet].
type Permission struct {
	// Resource is the resource being accessed (e.g. "sessions", "users",
	// "clients"). The wildcard "*" matches all resources.
	Resource string

	// Action is the operation being performed (e.g. "read", "write",
	// "delete"). The wildcard "*" matches all actions.
	Action string
}

// String returns the colon-delimited form, e.g. "sessions:read".
func (p Permission) String() string {
	return p.Resource + ":" + p.Action
}

// Match reports whether this permission grants access to the given
// resource and action, honoring wildcards on either field.
func (p Permission) Match(resource, action string) bool {
	if p.Resource != "*" && p.Resource != resource {
		return false
	}
	return p.Action == "*" || p.Action == action
}

// ParsePermission parses a "resource:action" string into a [Permission].
// Both parts may be the wildcard "*". Empty parts are rejected.
func ParsePermission(s string) (Permission, error) {
	resource, action, found := strings.Cut(s, ":")
	if !found {
		return Permission{}, sserr.Newf(sserr.CodeValidationFormat,
			"keycloak: invalid permission %q, want resource:action", s)
	}
	if resource == "" || action == "" {
		return Permission{}, sserr.Newf(sserr.CodeValidationFormat,
			"keycloak: invalid permission %q, resource and action must be non-empty", s)
	}
	return Permission{Resource: resource, Action: action}, nil
}

// RolePermissionMap maps role names to the permissions they grant. Role
// names are matched against the token's realm and client roles verbatim.
type RolePermissionMap map[string][]Permission

// DefaultRolePermissions returns the platform's baseline role mapping:
//
//   - admin: full access to all resources and actions.
//   - operator: full access to sessions and clients, read access to
//     audit data.
//   - viewer: read-only access to all resources.
//
// Callers may extend or replace the mapping per service.
func DefaultRolePermissions() RolePermissionMap {
	return RolePermissionMap{
		"admin": {
			{Resource: "*", Action: "*"},
		},
		"operator": {
			{Resource: "sessions", Action: "*"},
			{Resource: "clients", Action: "*"},
			{Resource: "audit", Action: "read"},
		},
		"viewer": {
			{Resource: "*", Action: "read"},
		},
	}
}

// PermissionsForClaims derives the deduplicated permission set granted by
// validated token claims, merging three sources:
//
//  1. Realm roles, resolved through roleMap. Unknown roles are ignored.
//  2. Client roles for clientID, resolved the same way.
//  3. The OAuth2 scope string, where each space-separated entry in
//     "resource:action" form becomes a direct grant. Scope entries that
//     do not parse (e.g. "openid", "profile") are skipped.
//
// Nil claims yield an empty slice. The function never returns an error;
// authorization decisions degrade to "no access" on malformed input.
func PermissionsForClaims(claims *TokenClaims, clientID string, roleMap RolePermissionMap) []Permission {
	if claims == nil {
		return []Permission{}
	}

	seen := make(map[Permission]struct{})
	result := []Permission{}
	add := func(p Permission) {
		if _, ok := seen[p]; !ok {
			seen[p] = struct{}{}
			result = append(result, p)
		}
	}

	for _, role := range claims.RealmRoles {
		for _, p := range roleMap[role] {
			add(p)
		}
	}
	for _, role := range claims.ClientRoles[clientID] {
		for _, p := range roleMap[role] {
			add(p)
		}
	}
	for _, entry := range strings.Fields(claims.Scope) {
		p, err := ParsePermission(entry)
		if err != nil {
			continue
		}
		add(p)
	}

	return result
}

// PermissionSet is an immutable permission collection with O(1) lookup
// for exact grants and a linear fallback for wildcard grants. Safe for
// concurrent reads after construction.
type PermissionSet struct {
	exact     map[Permission]struct{}
	wildcards []Permission
	all       []Permission
}

// NewPermissionSet builds a [PermissionSet] from perms, deduplicating and
// splitting exact grants from wildcard grants. The input slice is not
// retained.
func NewPermissionSet(perms []Permission) *PermissionSet {
	ps := &PermissionSet{exact: make(map[Permission]struct{}, len(perms))}
	seen := make(map[Permission]struct{}, len(perms))
	for _, p := range perms {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		ps.all = append(ps.all, p)
		if p.Resource == "*" || p.Action == "*" {
			ps.wildcards = append(ps.wildcards, p)
		} else {
			ps.exact[p] = struct{}{}
		}
	}
	return ps
}

// Allows reports whether the set grants access to resource and action,
// consulting exact grants first and wildcard grants second.
func (ps *PermissionSet) Allows(resource, action string) bool {
	if _, ok := ps.exact[Permission{Resource: resource, Action: action}]; ok {
		return true
	}
	for _, p := range ps.wildcards {
		if p.Match(resource, action) {
			return true
		}
	}
	return false
}

// Permissions returns a copy of the set's permissions in insertion order.
func (ps *PermissionSet) Permissions() []Permission {
	out := make([]Permission, len(ps.all))
	copy(out, ps.all)
	return out
}

// Len returns the number of unique permissions in the set.
func (ps *PermissionSet) Len() int {
	return len(ps.all)
}
