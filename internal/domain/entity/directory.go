package entity

// User is a directory identity that can raise or approve requests
type User struct {
	ID        string `json:"id" mapstructure:"id"`
	Name      string `json:"name" mapstructure:"name"`
	Role      string `json:"role" mapstructure:"role"`
	OrgUnitID string `json:"org_unit_id" mapstructure:"org_unit_id"`
}

// OrgUnit is a node of the organisational tree (site, zone, project, area)
type OrgUnit struct {
	ID       string `json:"id" mapstructure:"id"`
	Name     string `json:"name" mapstructure:"name"`
	ParentID string `json:"parent_id,omitempty" mapstructure:"parent_id"`
}

// AsRequestor snapshots the user as a request's requestor
func (u *User) AsRequestor() Requestor {
	return Requestor{
		ID:        u.ID,
		Name:      u.Name,
		Role:      u.Role,
		OrgUnitID: u.OrgUnitID,
	}
}
