package repository

import (
	"context"
	"database/sql"

	"github.com/lib/pq"
)

const tierColumns = `name, display_name, price_minor, currency, user_limit, duration_days,
    max_searches_per_day, max_law_sections, max_case_histories,
    document_formats, drafting_types, features, sharing_enabled,
    description, sort_order, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTier(row rowScanner) (Tier, error) {
	var (
		i       Tier
		formats pq.StringArray
		drafts  pq.StringArray
		feats   pq.StringArray
	)
	err := row.Scan(
		&i.Name,
		&i.DisplayName,
		&i.PriceMinor,
		&i.Currency,
		&i.UserLimit,
		&i.DurationDays,
		&i.MaxSearchesPerDay,
		&i.MaxLawSections,
		&i.MaxCaseHistories,
		&formats,
		&drafts,
		&feats,
		&i.SharingEnabled,
		&i.Description,
		&i.SortOrder,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	i.DocumentFormats = []string(formats)
	i.DraftingTypes = []string(drafts)
	i.Features = []string(feats)
	return i, err
}

const listTiers = `-- name: ListTiers :many
SELECT ` + tierColumns + `
FROM tiers
ORDER BY sort_order, name
`

func (q *Queries) ListTiers(ctx context.Context) ([]Tier, error) {
	rows, err := q.db.QueryContext(ctx, listTiers)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Tier
	for rows.Next() {
		i, err := scanTier(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getTier = `-- name: GetTier :one
SELECT ` + tierColumns + `
FROM tiers
WHERE name = $1
`

func (q *Queries) GetTier(ctx context.Context, name string) (Tier, error) {
	row := q.db.QueryRowContext(ctx, getTier, name)
	return scanTier(row)
}

const upsertTier = `-- name: UpsertTier :one
INSERT INTO tiers (
    name, display_name, price_minor, currency, user_limit, duration_days,
    max_searches_per_day, max_law_sections, max_case_histories,
    document_formats, drafting_types, features, sharing_enabled,
    description, sort_order
) VALUES (
    $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15
)
ON CONFLICT (name) DO UPDATE SET
    display_name = EXCLUDED.display_name,
    price_minor = EXCLUDED.price_minor,
    currency = EXCLUDED.currency,
    user_limit = EXCLUDED.user_limit,
    duration_days = EXCLUDED.duration_days,
    max_searches_per_day = EXCLUDED.max_searches_per_day,
    max_law_sections = EXCLUDED.max_law_sections,
    max_case_histories = EXCLUDED.max_case_histories,
    document_formats = EXCLUDED.document_formats,
    drafting_types = EXCLUDED.drafting_types,
    features = EXCLUDED.features,
    sharing_enabled = EXCLUDED.sharing_enabled,
    description = EXCLUDED.description,
    sort_order = EXCLUDED.sort_order,
    updated_at = NOW()
RETURNING ` + tierColumns + `
`

type UpsertTierParams struct {
	Name              string
	DisplayName       string
	PriceMinor        int64
	Currency          string
	UserLimit         sql.NullInt32
	DurationDays      int32
	MaxSearchesPerDay sql.NullInt32
	MaxLawSections    sql.NullInt32
	MaxCaseHistories  sql.NullInt32
	DocumentFormats   []string
	DraftingTypes     []string
	Features          []string
	SharingEnabled    bool
	Description       string
	SortOrder         int32
}

func (q *Queries) UpsertTier(ctx context.Context, arg UpsertTierParams) (Tier, error) {
	row := q.db.QueryRowContext(ctx, upsertTier,
		arg.Name,
		arg.DisplayName,
		arg.PriceMinor,
		arg.Currency,
		arg.UserLimit,
		arg.DurationDays,
		arg.MaxSearchesPerDay,
		arg.MaxLawSections,
		arg.MaxCaseHistories,
		pq.Array(nonNil(arg.DocumentFormats)),
		pq.Array(nonNil(arg.DraftingTypes)),
		pq.Array(nonNil(arg.Features)),
		arg.SharingEnabled,
		arg.Description,
		arg.SortOrder,
	)
	return scanTier(row)
}

const deleteTier = `-- name: DeleteTier :execrows
DELETE FROM tiers
WHERE name = $1
`

func (q *Queries) DeleteTier(ctx context.Context, name string) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteTier, name)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const countTierReferences = `-- name: CountTierReferences :one
SELECT
    (SELECT COUNT(*) FROM subscriptions s
     WHERE s.tier_name = $1
       AND s.status IN ('active', 'canceled', 'past_due'))::bigint AS subscription_count,
    (SELECT COUNT(*) FROM organizations o
     WHERE o.tier_name = $1)::bigint AS organization_count
`

type CountTierReferencesRow struct {
	SubscriptionCount int64
	OrganizationCount int64
}

func (q *Queries) CountTierReferences(ctx context.Context, name string) (CountTierReferencesRow, error) {
	row := q.db.QueryRowContext(ctx, countTierReferences, name)
	var i CountTierReferencesRow
	err := row.Scan(&i.SubscriptionCount, &i.OrganizationCount)
	return i, err
}

const lockTier = `-- name: LockTier :one
SELECT name FROM tiers
WHERE name = $1
FOR UPDATE
`

func (q *Queries) LockTier(ctx context.Context, name string) (string, error) {
	row := q.db.QueryRowContext(ctx, lockTier, name)
	var locked string
	err := row.Scan(&locked)
	return locked, err
}

const tierNameExists = `-- name: TierNameExists :one
SELECT EXISTS (SELECT 1 FROM tier_names WHERE name = $1)
`

func (q *Queries) TierNameExists(ctx context.Context, name string) (bool, error) {
	row := q.db.QueryRowContext(ctx, tierNameExists, name)
	var exists bool
	err := row.Scan(&exists)
	return exists, err
}

const insertTierName = `-- name: InsertTierName :exec
INSERT INTO tier_names (name, builtin)
VALUES ($1, FALSE)
ON CONFLICT (name) DO NOTHING
`

func (q *Queries) InsertTierName(ctx context.Context, name string) error {
	_, err := q.db.ExecContext(ctx, insertTierName, name)
	return err
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
