package directory

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"alert-engine/internal/models"
)

// Postgres reads the recipients view replicated from the registry service.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres wraps an existing pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

const recipientColumns = `
        id, name, roles, village_id, block_id, district_id, state_id,
        age, gender, specializations, channels, phone, email, telegram_chat_id`

func (p *Postgres) scanRecipients(ctx context.Context, query string, args ...interface{}) ([]Recipient, error) {
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query recipients: %w", err)
	}
	defer rows.Close()

	var recipients []Recipient
	for rows.Next() {
		var r Recipient
		var roles, specializations, channels []string
		err := rows.Scan(
			&r.ID, &r.Name, &roles, &r.VillageID, &r.BlockID, &r.DistrictID, &r.StateID,
			&r.Age, &r.Gender, &specializations, &channels,
			&r.Contact.Phone, &r.Contact.Email, &r.Contact.TelegramChatID,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan recipient: %w", err)
		}
		for _, role := range roles {
			r.Roles = append(r.Roles, models.Role(role))
		}
		r.Specializations = specializations
		for _, ch := range channels {
			r.Channels = append(r.Channels, models.Channel(ch))
		}
		recipients = append(recipients, r)
	}
	return recipients, rows.Err()
}

func (p *Postgres) ByIDs(ctx context.Context, ids []string, asOf time.Time) ([]Recipient, error) {
	query := `
        SELECT` + recipientColumns + `
        FROM recipients
        WHERE id = ANY($1) AND active_from <= $2 AND (active_until IS NULL OR active_until > $2)
        ORDER BY id`
	return p.scanRecipients(ctx, query, ids, asOf)
}

func (p *Postgres) ByRoles(ctx context.Context, roles []models.Role, asOf time.Time) ([]Recipient, error) {
	names := make([]string, 0, len(roles))
	for _, r := range roles {
		names = append(names, string(r))
	}
	query := `
        SELECT` + recipientColumns + `
        FROM recipients
        WHERE roles && $1 AND active_from <= $2 AND (active_until IS NULL OR active_until > $2)
        ORDER BY id`
	return p.scanRecipients(ctx, query, names, asOf)
}

func (p *Postgres) ByArea(ctx context.Context, areaType models.AreaType, areaIDs []string, asOf time.Time) ([]Recipient, error) {
	var column string
	switch areaType {
	case models.AreaVillage:
		column = "village_id"
	case models.AreaBlock:
		column = "block_id"
	case models.AreaDistrict:
		column = "district_id"
	case models.AreaState:
		column = "state_id"
	default:
		return nil, fmt.Errorf("unknown area type %q", areaType)
	}
	query := fmt.Sprintf(`
        SELECT`+recipientColumns+`
        FROM recipients
        WHERE %s = ANY($1) AND active_from <= $2 AND (active_until IS NULL OR active_until > $2)
        ORDER BY id`, column)
	return p.scanRecipients(ctx, query, areaIDs, asOf)
}

func (p *Postgres) ByCriteria(ctx context.Context, criteria models.CustomTarget, asOf time.Time) ([]Recipient, error) {
	query := `
        SELECT` + recipientColumns + `
        FROM recipients
        WHERE active_from <= $1 AND (active_until IS NULL OR active_until > $1)`
	args := []interface{}{asOf}

	if criteria.AgeMin != nil {
		args = append(args, *criteria.AgeMin)
		query += fmt.Sprintf(" AND age >= $%d", len(args))
	}
	if criteria.AgeMax != nil {
		args = append(args, *criteria.AgeMax)
		query += fmt.Sprintf(" AND age <= $%d", len(args))
	}
	if criteria.Gender != "" {
		args = append(args, criteria.Gender)
		query += fmt.Sprintf(" AND gender = $%d", len(args))
	}
	if len(criteria.Specializations) > 0 {
		args = append(args, criteria.Specializations)
		query += fmt.Sprintf(" AND specializations && $%d", len(args))
	}
	query += " ORDER BY id"
	return p.scanRecipients(ctx, query, args...)
}
