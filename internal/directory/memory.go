package directory

import (
	"context"
	"sort"
	"time"

	"alert-engine/internal/models"
)

// Memory is an in-memory Directory for tests and local runs. The snapshot is
// fixed at construction, which makes resolution fully deterministic.
type Memory struct {
	recipients map[string]Recipient
}

// NewMemory builds a Memory directory from the given recipients.
func NewMemory(recipients ...Recipient) *Memory {
	m := &Memory{recipients: make(map[string]Recipient, len(recipients))}
	for _, r := range recipients {
		m.recipients[r.ID] = r
	}
	return m
}

func (m *Memory) all() []Recipient {
	out := make([]Recipient, 0, len(m.recipients))
	for _, r := range m.recipients {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *Memory) ByIDs(_ context.Context, ids []string, _ time.Time) ([]Recipient, error) {
	var out []Recipient
	for _, id := range ids {
		if r, ok := m.recipients[id]; ok {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) ByRoles(_ context.Context, roles []models.Role, _ time.Time) ([]Recipient, error) {
	var out []Recipient
	for _, r := range m.all() {
		if r.HasRole(roles) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *Memory) ByArea(_ context.Context, areaType models.AreaType, areaIDs []string, _ time.Time) ([]Recipient, error) {
	var out []Recipient
	for _, r := range m.all() {
		area := r.AreaID(areaType)
		for _, id := range areaIDs {
			if area != "" && area == id {
				out = append(out, r)
				break
			}
		}
	}
	return out, nil
}

func (m *Memory) ByCriteria(_ context.Context, criteria models.CustomTarget, _ time.Time) ([]Recipient, error) {
	var out []Recipient
	for _, r := range m.all() {
		if criteria.AgeMin != nil && r.Age < *criteria.AgeMin {
			continue
		}
		if criteria.AgeMax != nil && r.Age > *criteria.AgeMax {
			continue
		}
		if criteria.Gender != "" && r.Gender != criteria.Gender {
			continue
		}
		if len(criteria.Specializations) > 0 {
			match := false
			for _, want := range criteria.Specializations {
				for _, have := range r.Specializations {
					if have == want {
						match = true
					}
				}
			}
			if !match {
				continue
			}
		}
		out = append(out, r)
	}
	return out, nil
}
