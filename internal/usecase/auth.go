package usecase

import (
	"context"
	"slices"

	"concierge-ai/internal/domain"
	"concierge-ai/internal/infra/tracer"
)

// RBACOracle implements domain.PermissionOracle from a static identity -> roles
// table and the role-permission map. Unknown identities are denied. The table
// is fixed at construction.
type RBACOracle struct {
	identities map[domain.Identity][]domain.AuthRole
}

// NewRBACOracle builds an oracle from identity -> role name lists. Unknown
// role names are dropped.
func NewRBACOracle(identities map[string][]string) *RBACOracle {
	o := &RBACOracle{identities: make(map[domain.Identity][]domain.AuthRole, len(identities))}
	for id, roles := range identities {
		o.identities[domain.Identity(id)] = domain.StringsToAuthRoles(roles)
	}
	return o
}

// Check reports whether any of identity's roles grants (action, resource).
func (o *RBACOracle) Check(ctx context.Context, identity domain.Identity, action, resource string) (bool, error) {
	_, span := tracer.StartSpan(ctx, "oracle.check")
	defer span.End()

	if err := ctx.Err(); err != nil {
		tracer.RecordError(span, err)
		return false, domain.WrapOp("RBACOracle.Check", err)
	}

	roles := o.identities[identity]

	want := domain.Permission{Action: action, Resource: resource}
	allowed := slices.ContainsFunc(roles, func(r domain.AuthRole) bool { return r.Grants(want) })
	span.SetAttributes(tracer.BoolAttr("oracle.allowed", allowed))
	return allowed, nil
}

var _ domain.PermissionOracle = (*RBACOracle)(nil)
