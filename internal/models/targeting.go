package models

import "fmt"

// Role is a recipient role known to the recipient directory.
type Role string

const (
	RoleAdmin          Role = "admin"
	RoleHealthOfficial Role = "health_official"
	RoleAshaWorker     Role = "asha_worker"
	RoleVolunteer      Role = "volunteer"
)

// AreaType is the granularity of a geographic targeting query.
type AreaType string

const (
	AreaVillage  AreaType = "village"
	AreaBlock    AreaType = "block"
	AreaDistrict AreaType = "district"
	AreaState    AreaType = "state"
)

// TargetingType selects the active variant of a TargetSpec.
type TargetingType string

const (
	TargetIndividual TargetingType = "individual"
	TargetRoleBased  TargetingType = "role_based"
	TargetGeographic TargetingType = "geographic"
	TargetCustom     TargetingType = "custom"
)

// IndividualTarget names explicit recipients.
type IndividualTarget struct {
	RecipientIDs []string `json:"recipient_ids"`
}

// RoleTarget selects all active recipients holding any of the roles.
type RoleTarget struct {
	Roles []Role `json:"roles"`
}

// GeoTarget selects recipients by registered area membership, optionally
// narrowed by role.
type GeoTarget struct {
	AreaType     AreaType `json:"area_type"`
	AreaIDs      []string `json:"area_ids"`
	IncludeRoles []Role   `json:"include_roles,omitempty"`
}

// CustomTarget selects recipients by demographic filter criteria.
type CustomTarget struct {
	AgeMin          *int     `json:"age_min,omitempty"`
	AgeMax          *int     `json:"age_max,omitempty"`
	Gender          string   `json:"gender,omitempty"`
	Specializations []string `json:"specializations,omitempty"`
}

// TargetSpec is a tagged variant over the four targeting shapes. Only the
// variant named by Type may be populated.
type TargetSpec struct {
	Type       TargetingType     `json:"targeting_type"`
	Individual *IndividualTarget `json:"individual,omitempty"`
	RoleBased  *RoleTarget       `json:"role_based,omitempty"`
	Geographic *GeoTarget        `json:"geographic,omitempty"`
	Custom     *CustomTarget     `json:"custom,omitempty"`
}

func validRole(r Role) bool {
	switch r {
	case RoleAdmin, RoleHealthOfficial, RoleAshaWorker, RoleVolunteer:
		return true
	}
	return false
}

func validAreaType(a AreaType) bool {
	switch a {
	case AreaVillage, AreaBlock, AreaDistrict, AreaState:
		return true
	}
	return false
}

// Validate checks that exactly the variant named by Type is populated and that
// its fields are usable.
func (t TargetSpec) Validate() error {
	populated := 0
	if t.Individual != nil {
		populated++
	}
	if t.RoleBased != nil {
		populated++
	}
	if t.Geographic != nil {
		populated++
	}
	if t.Custom != nil {
		populated++
	}
	if populated != 1 {
		return fmt.Errorf("targeting spec must populate exactly one variant, got %d", populated)
	}

	switch t.Type {
	case TargetIndividual:
		if t.Individual == nil {
			return fmt.Errorf("targeting_type %q requires the individual variant", t.Type)
		}
		if len(t.Individual.RecipientIDs) == 0 {
			return fmt.Errorf("individual targeting requires at least one recipient id")
		}
	case TargetRoleBased:
		if t.RoleBased == nil {
			return fmt.Errorf("targeting_type %q requires the role_based variant", t.Type)
		}
		if len(t.RoleBased.Roles) == 0 {
			return fmt.Errorf("role_based targeting requires at least one role")
		}
		for _, r := range t.RoleBased.Roles {
			if !validRole(r) {
				return fmt.Errorf("unknown role %q", r)
			}
		}
	case TargetGeographic:
		if t.Geographic == nil {
			return fmt.Errorf("targeting_type %q requires the geographic variant", t.Type)
		}
		if !validAreaType(t.Geographic.AreaType) {
			return fmt.Errorf("unknown area type %q", t.Geographic.AreaType)
		}
		if len(t.Geographic.AreaIDs) == 0 {
			return fmt.Errorf("geographic targeting requires at least one area id")
		}
		for _, r := range t.Geographic.IncludeRoles {
			if !validRole(r) {
				return fmt.Errorf("unknown role %q", r)
			}
		}
	case TargetCustom:
		if t.Custom == nil {
			return fmt.Errorf("targeting_type %q requires the custom variant", t.Type)
		}
		c := t.Custom
		if c.AgeMin == nil && c.AgeMax == nil && c.Gender == "" && len(c.Specializations) == 0 {
			return fmt.Errorf("custom targeting requires at least one criterion")
		}
		if c.AgeMin != nil && c.AgeMax != nil && *c.AgeMax < *c.AgeMin {
			return fmt.Errorf("custom targeting age range is inverted (%d > %d)", *c.AgeMin, *c.AgeMax)
		}
	default:
		return fmt.Errorf("unknown targeting_type %q", t.Type)
	}
	return nil
}
