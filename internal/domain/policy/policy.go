// Package policy holds the static approval policy: the ordered role
// hierarchy and the per-role financial thresholds.
package policy

import (
	"errors"
	"fmt"
	"math"

	"github.com/garyjia/site-approval/internal/domain/entity"
)

// Default role names of a construction organisation, lowest first.
const (
	RoleSiteEngineer     = "SITE_ENGINEER"
	RoleZoneManager      = "ZONE_MANAGER"
	RoleProjectManager   = "PROJECT_MANAGER"
	RoleAreaManager      = "AREA_MANAGER"
	RoleManagingDirector = "MANAGING_DIRECTOR"
)

// Unlimited is the threshold of a role that may approve any amount. It stays
// finite so that steps snapshotting it remain JSON encodable.
const Unlimited = math.MaxFloat64

// ErrInvalidPolicy is returned by Validate
var ErrInvalidPolicy = errors.New("invalid approval policy")

// Threshold limits what a role may approve
type Threshold struct {
	// OrgLevel is the maximum amount approvable inside the approver's own subtree
	OrgLevel float64
	// CrossOrg is the maximum amount approvable for a request outside that subtree
	CrossOrg float64
	// Escalation is the amount above which the role must hand off
	Escalation float64
}

// UnlimitedThreshold returns a threshold that never forces a hand-off
func UnlimitedThreshold() Threshold {
	return Threshold{OrgLevel: Unlimited, CrossOrg: Unlimited, Escalation: Unlimited}
}

// Hierarchy is the total order of roles, lowest first
type Hierarchy []string

// Rank returns the position of role, or -1 for roles outside the hierarchy
func (h Hierarchy) Rank(role string) int {
	for i, r := range h {
		if r == role {
			return i
		}
	}
	return -1
}

// Contains reports whether role is part of the hierarchy
func (h Hierarchy) Contains(role string) bool {
	return h.Rank(role) >= 0
}

// Top returns the top-of-hierarchy role
func (h Hierarchy) Top() string {
	if len(h) == 0 {
		return ""
	}
	return h[len(h)-1]
}

// Next returns the role one level above role. Roles outside the hierarchy
// rank below its lowest level.
func (h Hierarchy) Next(role string) (string, bool) {
	next := h.Rank(role) + 1
	if next >= len(h) {
		return "", false
	}
	return h[next], true
}

// Policy is the complete routing configuration handed to the chain builder
type Policy struct {
	Hierarchy  Hierarchy
	Thresholds map[string]Threshold
	// TopRoleTypes always require the top-of-hierarchy role's approval
	TopRoleTypes map[entity.RequestType]bool
}

// Default returns the built-in construction policy
func Default() *Policy {
	return &Policy{
		Hierarchy: Hierarchy{
			RoleSiteEngineer,
			RoleZoneManager,
			RoleProjectManager,
			RoleAreaManager,
			RoleManagingDirector,
		},
		Thresholds: map[string]Threshold{
			RoleSiteEngineer:     {OrgLevel: 5_000, CrossOrg: 2_500, Escalation: 5_000},
			RoleZoneManager:      {OrgLevel: 25_000, CrossOrg: 10_000, Escalation: 25_000},
			RoleProjectManager:   {OrgLevel: 100_000, CrossOrg: 50_000, Escalation: 100_000},
			RoleAreaManager:      {OrgLevel: 500_000, CrossOrg: 250_000, Escalation: 500_000},
			RoleManagingDirector: UnlimitedThreshold(),
		},
		TopRoleTypes: map[entity.RequestType]bool{
			entity.RequestTypeSafeAccess:        true,
			entity.RequestTypePayrollAdjustment: true,
		},
	}
}

// Validate checks the hierarchy is non-empty, duplicate free and that every
// role has a threshold.
func (p *Policy) Validate() error {
	if p == nil || len(p.Hierarchy) == 0 {
		return fmt.Errorf("%w: role hierarchy is empty", ErrInvalidPolicy)
	}
	seen := make(map[string]bool, len(p.Hierarchy))
	for _, role := range p.Hierarchy {
		if role == "" {
			return fmt.Errorf("%w: empty role name", ErrInvalidPolicy)
		}
		if seen[role] {
			return fmt.Errorf("%w: duplicate role %s", ErrInvalidPolicy, role)
		}
		seen[role] = true

		th, ok := p.Thresholds[role]
		if !ok {
			return fmt.Errorf("%w: no threshold for role %s", ErrInvalidPolicy, role)
		}
		if th.OrgLevel < 0 || th.CrossOrg < 0 || th.Escalation < 0 {
			return fmt.Errorf("%w: negative threshold for role %s", ErrInvalidPolicy, role)
		}
	}
	for rt := range p.TopRoleTypes {
		if !rt.IsValid() {
			return fmt.Errorf("%w: unknown request type %s", ErrInvalidPolicy, rt)
		}
	}
	return nil
}

// ThresholdFor returns the role's threshold; unknown roles may approve nothing
func (p *Policy) ThresholdFor(role string) Threshold {
	return p.Thresholds[role]
}

// Sufficient reports whether role can be the last approver for amount.
// crossOrg selects the cross-org limit instead of the org-level one.
func (p *Policy) Sufficient(role string, amount float64, crossOrg bool) bool {
	th := p.ThresholdFor(role)
	limit := th.OrgLevel
	if crossOrg {
		limit = th.CrossOrg
	}
	return amount <= limit && amount <= th.Escalation
}

// RequiresTopRole reports whether requests of type rt always need the top role
func (p *Policy) RequiresTopRole(rt entity.RequestType) bool {
	return p.TopRoleTypes[rt]
}
