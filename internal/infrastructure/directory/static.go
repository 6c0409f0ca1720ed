// Package directory provides a static, configuration-loaded implementation of
// the identity and org-unit directory.
package directory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/garyjia/site-approval/internal/application/port"
	"github.com/garyjia/site-approval/internal/domain/entity"
)

// Static is an in-memory directory. It can be reloaded at runtime; readers
// always see a consistent snapshot.
type Static struct {
	mu     sync.RWMutex
	users  map[string]*entity.User
	units  map[string]*entity.OrgUnit
	byRole map[string][]*entity.User
}

// NewStatic builds a directory from users and org units. Every user must
// reference a known org unit and every parent must exist.
func NewStatic(units []entity.OrgUnit, users []entity.User) (*Static, error) {
	d := &Static{}
	if err := d.Reload(units, users); err != nil {
		return nil, err
	}
	return d, nil
}

// Reload replaces the directory contents after validating them
func (d *Static) Reload(units []entity.OrgUnit, users []entity.User) error {
	unitMap := make(map[string]*entity.OrgUnit, len(units))
	for i := range units {
		u := units[i]
		if u.ID == "" {
			return fmt.Errorf("org unit %d has no id", i)
		}
		if _, dup := unitMap[u.ID]; dup {
			return fmt.Errorf("duplicate org unit %s", u.ID)
		}
		unitMap[u.ID] = &u
	}
	for _, u := range unitMap {
		if u.ParentID != "" {
			if _, ok := unitMap[u.ParentID]; !ok {
				return fmt.Errorf("org unit %s has unknown parent %s", u.ID, u.ParentID)
			}
		}
	}

	userMap := make(map[string]*entity.User, len(users))
	byRole := make(map[string][]*entity.User)
	for i := range users {
		u := users[i]
		if u.ID == "" || u.Role == "" {
			return fmt.Errorf("user %d needs an id and a role", i)
		}
		if _, dup := userMap[u.ID]; dup {
			return fmt.Errorf("duplicate user %s", u.ID)
		}
		if _, ok := unitMap[u.OrgUnitID]; !ok {
			return fmt.Errorf("user %s references unknown org unit %s", u.ID, u.OrgUnitID)
		}
		userMap[u.ID] = &u
		byRole[u.Role] = append(byRole[u.Role], &u)
	}
	for _, holders := range byRole {
		sort.Slice(holders, func(i, j int) bool { return holders[i].ID < holders[j].ID })
	}

	d.mu.Lock()
	d.users, d.units, d.byRole = userMap, unitMap, byRole
	d.mu.Unlock()
	return nil
}

// GetUser implements port.Directory
func (d *Static) GetUser(ctx context.Context, userID string) (*entity.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	u, ok := d.users[userID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", port.ErrUserNotFound, userID)
	}
	c := *u
	return &c, nil
}

// ParentOrgUnit implements port.Directory
func (d *Static) ParentOrgUnit(ctx context.Context, orgUnitID string) (string, bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	u, ok := d.units[orgUnitID]
	if !ok || u.ParentID == "" {
		return "", false, nil
	}
	return u.ParentID, true, nil
}

// UsersWithRole implements port.Directory
func (d *Static) UsersWithRole(ctx context.Context, role string) ([]*entity.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	holders := d.byRole[role]
	out := make([]*entity.User, len(holders))
	for i, u := range holders {
		c := *u
		out[i] = &c
	}
	return out, nil
}

// OrgUnit returns a copy of the org unit, if known
func (d *Static) OrgUnit(orgUnitID string) (entity.OrgUnit, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	u, ok := d.units[orgUnitID]
	if !ok {
		return entity.OrgUnit{}, false
	}
	return *u, true
}

var _ port.Directory = (*Static)(nil)
