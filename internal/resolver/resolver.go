package resolver

import (
	"context"
	"fmt"
	"sort"
	"time"

	"alert-engine/internal/directory"
	"alert-engine/internal/logging"
	"alert-engine/internal/models"
)

// Resolved is one recipient with the channels applicable to the alert: the
// intersection of the recipient's available channels and the requested ones.
type Resolved struct {
	Recipient directory.Recipient `json:"recipient"`
	Channels  []models.Channel    `json:"channels"`
}

// Result is a deduplicated recipient set plus the individual ids that could
// not be found in the directory.
type Result struct {
	Recipients map[string]*Resolved `json:"recipients"`
	Unresolved []string             `json:"unresolved,omitempty"`
}

// IDs returns the resolved recipient ids in sorted order.
func (r *Result) IDs() []string {
	ids := make([]string, 0, len(r.Recipients))
	for id := range r.Recipients {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Ordered returns the resolved recipients sorted by id, for deterministic
// dispatch iteration.
func (r *Result) Ordered() []*Resolved {
	out := make([]*Resolved, 0, len(r.Recipients))
	for _, id := range r.IDs() {
		out = append(out, r.Recipients[id])
	}
	return out
}

// Empty reports whether resolution produced no recipients.
func (r *Result) Empty() bool {
	return len(r.Recipients) == 0
}

// Resolver evaluates targeting specs against the recipient directory.
type Resolver struct {
	dir    directory.Directory
	logger *logging.Logger
}

// New constructs a Resolver.
func New(dir directory.Directory, logger *logging.Logger) *Resolver {
	return &Resolver{dir: dir, logger: logger}
}

// Resolve evaluates spec against the directory as of asOf and returns the
// deduplicated recipient set. A recipient matching through multiple criteria
// appears exactly once; its channel list is the recipient's available channels
// intersected with the requested ones. Resolution is a pure function of the
// spec and the directory snapshot.
func (r *Resolver) Resolve(ctx context.Context, spec models.TargetSpec, requested []models.Channel, asOf time.Time) (*Result, error) {
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid targeting spec: %w", err)
	}

	result := &Result{Recipients: make(map[string]*Resolved)}

	var (
		matched []directory.Recipient
		err     error
	)
	switch spec.Type {
	case models.TargetIndividual:
		matched, err = r.dir.ByIDs(ctx, spec.Individual.RecipientIDs, asOf)
		if err == nil {
			result.Unresolved = missingIDs(spec.Individual.RecipientIDs, matched)
			for _, id := range result.Unresolved {
				r.logger.Warnf("Recipient %s not found in directory, dropping from target set", id)
			}
		}
	case models.TargetRoleBased:
		matched, err = r.dir.ByRoles(ctx, spec.RoleBased.Roles, asOf)
	case models.TargetGeographic:
		matched, err = r.dir.ByArea(ctx, spec.Geographic.AreaType, spec.Geographic.AreaIDs, asOf)
		if err == nil && len(spec.Geographic.IncludeRoles) > 0 {
			filtered := matched[:0]
			for _, rec := range matched {
				if rec.HasRole(spec.Geographic.IncludeRoles) {
					filtered = append(filtered, rec)
				}
			}
			matched = filtered
		}
	case models.TargetCustom:
		matched, err = r.dir.ByCriteria(ctx, *spec.Custom, asOf)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s target: %w", spec.Type, err)
	}

	for _, rec := range matched {
		result.add(rec, requested)
	}
	return result, nil
}

// add merges one directory match into the set, deduplicating by recipient id
// and unioning channels before intersecting with the requested list.
func (s *Result) add(rec directory.Recipient, requested []models.Channel) {
	existing, ok := s.Recipients[rec.ID]
	if !ok {
		s.Recipients[rec.ID] = &Resolved{
			Recipient: rec,
			Channels:  intersectChannels(rec.Channels, requested),
		}
		return
	}
	existing.Channels = unionChannels(existing.Channels, intersectChannels(rec.Channels, requested))
}

func intersectChannels(available, requested []models.Channel) []models.Channel {
	var out []models.Channel
	for _, want := range requested {
		for _, have := range available {
			if have == want {
				out = append(out, want)
				break
			}
		}
	}
	return out
}

func unionChannels(a, b []models.Channel) []models.Channel {
	out := append([]models.Channel{}, a...)
	for _, ch := range b {
		seen := false
		for _, have := range out {
			if have == ch {
				seen = true
				break
			}
		}
		if !seen {
			out = append(out, ch)
		}
	}
	return out
}

func missingIDs(wanted []string, found []directory.Recipient) []string {
	present := make(map[string]bool, len(found))
	for _, r := range found {
		present[r.ID] = true
	}
	var missing []string
	for _, id := range wanted {
		if !present[id] {
			missing = append(missing, id)
		}
	}
	return missing
}
