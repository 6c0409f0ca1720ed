package approval

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/garyjia/site-approval/internal/application/port"
	"github.com/garyjia/site-approval/internal/domain/entity"
	"github.com/garyjia/site-approval/internal/domain/policy"
)

// ChainBuilder computes the ordered approver list of a request at submission
// time. The result is frozen into the request; it is never recomputed.
type ChainBuilder struct {
	directory port.Directory
	policy    *policy.Policy
}

// NewChainBuilder creates a chain builder over a directory and policy
func NewChainBuilder(directory port.Directory, p *policy.Policy) *ChainBuilder {
	return &ChainBuilder{directory: directory, policy: p}
}

// Build resolves the approval chain for req. An empty chain means no approval
// is required.
func (b *ChainBuilder) Build(ctx context.Context, req *entity.ApprovalRequest) ([]entity.ApprovalStep, error) {
	requestor, err := b.lookupUser(ctx, req.Requestor.ID)
	if err != nil {
		return nil, err
	}

	scope, err := b.ancestry(ctx, requestor.OrgUnitID)
	if err != nil {
		return nil, err
	}
	amount := req.AmountValue()

	var approvers []*entity.User
	candidate, err := b.Supervisor(ctx, requestor)
	if err != nil {
		return nil, err
	}
	for candidate != nil {
		approvers = append(approvers, candidate)
		crossOrg := !scope.contains(candidate.OrgUnitID)
		if b.policy.Sufficient(candidate.Role, amount, crossOrg) {
			break
		}
		if candidate, err = b.Supervisor(ctx, candidate); err != nil {
			return nil, err
		}
	}

	top := b.policy.Hierarchy.Top()
	if b.policy.RequiresTopRole(req.Type) && !holdsRole(approvers, top) {
		topApprover, err := b.topApprover(ctx, requestor, scope)
		if err != nil {
			return nil, err
		}
		if topApprover != nil {
			approvers = append(approvers, topApprover)
		}
	}

	steps := make([]entity.ApprovalStep, len(approvers))
	for i, u := range approvers {
		final := i == len(approvers)-1
		steps[i] = b.newStep(i+1, u)
		steps[i].CanEscalate = !(final && u.Role == top)
	}
	return steps, nil
}

// Supervisor walks one level up the role hierarchy from user and returns the
// holder of that role attached to user's org unit or its nearest ancestor.
// It returns nil when no such user exists.
func (b *ChainBuilder) Supervisor(ctx context.Context, user *entity.User) (*entity.User, error) {
	role, ok := b.policy.Hierarchy.Next(user.Role)
	if !ok {
		return nil, nil
	}

	holders, err := b.directory.UsersWithRole(ctx, role)
	if err != nil {
		return nil, fmt.Errorf("list users with role %s: %w", role, err)
	}
	holders = excludeUser(holders, user.ID)
	if len(holders) == 0 {
		return nil, nil
	}

	scope, err := b.ancestry(ctx, user.OrgUnitID)
	if err != nil {
		return nil, err
	}
	return nearestHolder(holders, scope), nil
}

// topApprover prefers a top-role holder inside the requestor's ancestry and
// falls back to any holder, which is then approving cross-org.
func (b *ChainBuilder) topApprover(ctx context.Context, requestor *entity.User, scope orgScope) (*entity.User, error) {
	top := b.policy.Hierarchy.Top()
	holders, err := b.directory.UsersWithRole(ctx, top)
	if err != nil {
		return nil, fmt.Errorf("list users with role %s: %w", top, err)
	}
	holders = excludeUser(holders, requestor.ID)
	if len(holders) == 0 {
		return nil, nil
	}
	if u := nearestHolder(holders, scope); u != nil {
		return u, nil
	}
	sortUsers(holders)
	return holders[0], nil
}

func (b *ChainBuilder) newStep(number int, u *entity.User) entity.ApprovalStep {
	return entity.ApprovalStep{
		StepNumber:         number,
		ApproverID:         u.ID,
		ApproverName:       u.Name,
		ApproverRole:       u.Role,
		ApproverOrgUnitID:  u.OrgUnitID,
		Status:             entity.StepStatusPending,
		FinancialThreshold: b.policy.ThresholdFor(u.Role).OrgLevel,
		CanEscalate:        u.Role != b.policy.Hierarchy.Top(),
	}
}

func (b *ChainBuilder) lookupUser(ctx context.Context, userID string) (*entity.User, error) {
	u, err := b.directory.GetUser(ctx, userID)
	if errors.Is(err, port.ErrUserNotFound) || (err == nil && u == nil) {
		return nil, fmt.Errorf("%w: user %s", ErrNotFound, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", userID, err)
	}
	return u, nil
}

// orgScope is an org unit followed by its ancestors, nearest first
type orgScope []string

func (s orgScope) contains(unitID string) bool {
	return s.rank(unitID) >= 0
}

func (s orgScope) rank(unitID string) int {
	for i, id := range s {
		if id == unitID {
			return i
		}
	}
	return -1
}

// ancestry returns unitID and its ancestors up to the root. A cycle in the
// directory ends the walk instead of looping.
func (b *ChainBuilder) ancestry(ctx context.Context, unitID string) (orgScope, error) {
	if unitID == "" {
		return nil, nil
	}
	scope := orgScope{unitID}
	seen := map[string]bool{unitID: true}
	for current := unitID; ; {
		parent, ok, err := b.directory.ParentOrgUnit(ctx, current)
		if err != nil {
			return nil, fmt.Errorf("resolve parent of org unit %s: %w", current, err)
		}
		if !ok || parent == "" || seen[parent] {
			return scope, nil
		}
		seen[parent] = true
		scope = append(scope, parent)
		current = parent
	}
}

// nearestHolder returns the holder attached closest to the start of scope,
// lowest user ID first on ties.
func nearestHolder(holders []*entity.User, scope orgScope) *entity.User {
	var best *entity.User
	bestRank := -1
	for _, u := range holders {
		r := scope.rank(u.OrgUnitID)
		if r < 0 {
			continue
		}
		if best == nil || r < bestRank || (r == bestRank && u.ID < best.ID) {
			best, bestRank = u, r
		}
	}
	return best
}

func excludeUser(users []*entity.User, userID string) []*entity.User {
	out := make([]*entity.User, 0, len(users))
	for _, u := range users {
		if u != nil && u.ID != userID {
			out = append(out, u)
		}
	}
	return out
}

func holdsRole(users []*entity.User, role string) bool {
	for _, u := range users {
		if u.Role == role {
			return true
		}
	}
	return false
}

func sortUsers(users []*entity.User) {
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
}
