package directory

import (
	"context"
	"time"

	"alert-engine/internal/models"
)

// Contact holds per-channel contact details for one recipient.
type Contact struct {
	Phone          string `json:"phone,omitempty"`
	Email          string `json:"email,omitempty"`
	TelegramChatID int64  `json:"telegram_chat_id,omitempty"`
}

// Recipient is one contactable person known to the recipient registry.
type Recipient struct {
	ID              string           `json:"id"`
	Name            string           `json:"name"`
	Roles           []models.Role    `json:"roles"`
	VillageID       string           `json:"village_id,omitempty"`
	BlockID         string           `json:"block_id,omitempty"`
	DistrictID      string           `json:"district_id,omitempty"`
	StateID         string           `json:"state_id,omitempty"`
	Age             int              `json:"age,omitempty"`
	Gender          string           `json:"gender,omitempty"`
	Specializations []string         `json:"specializations,omitempty"`
	Channels        []models.Channel `json:"channels"`
	Contact         Contact          `json:"contact"`
}

// HasRole reports whether the recipient holds any of the given roles.
func (r Recipient) HasRole(roles []models.Role) bool {
	for _, want := range roles {
		for _, have := range r.Roles {
			if have == want {
				return true
			}
		}
	}
	return false
}

// AreaID returns the recipient's area id at the given granularity.
func (r Recipient) AreaID(t models.AreaType) string {
	switch t {
	case models.AreaVillage:
		return r.VillageID
	case models.AreaBlock:
		return r.BlockID
	case models.AreaDistrict:
		return r.DistrictID
	case models.AreaState:
		return r.StateID
	}
	return ""
}

// Directory is the recipient registry boundary. All queries return only
// recipients active at asOf, so resolution against an unchanged registry
// snapshot is deterministic.
type Directory interface {
	ByIDs(ctx context.Context, ids []string, asOf time.Time) ([]Recipient, error)
	ByRoles(ctx context.Context, roles []models.Role, asOf time.Time) ([]Recipient, error)
	ByArea(ctx context.Context, areaType models.AreaType, areaIDs []string, asOf time.Time) ([]Recipient, error)
	ByCriteria(ctx context.Context, criteria models.CustomTarget, asOf time.Time) ([]Recipient, error)
}
