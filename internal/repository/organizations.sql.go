package repository

import (
	"context"

	"github.com/google/uuid"
)

const organizationColumns = `id, name, tier_name, created_at, updated_at`

func scanOrganization(row rowScanner) (Organization, error) {
	var i Organization
	err := row.Scan(
		&i.ID,
		&i.Name,
		&i.TierName,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const getOrganization = `-- name: GetOrganization :one
SELECT ` + organizationColumns + `
FROM organizations
WHERE id = $1
`

func (q *Queries) GetOrganization(ctx context.Context, id uuid.UUID) (Organization, error) {
	row := q.db.QueryRowContext(ctx, getOrganization, id)
	return scanOrganization(row)
}

const listOrganizations = `-- name: ListOrganizations :many
SELECT ` + organizationColumns + `
FROM organizations
ORDER BY name, id
`

func (q *Queries) ListOrganizations(ctx context.Context) ([]Organization, error) {
	rows, err := q.db.QueryContext(ctx, listOrganizations)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Organization
	for rows.Next() {
		i, err := scanOrganization(rows)
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

const createOrganization = `-- name: CreateOrganization :one
INSERT INTO organizations (name, tier_name)
VALUES ($1, $2)
RETURNING ` + organizationColumns + `
`

type CreateOrganizationParams struct {
	Name     string
	TierName string
}

func (q *Queries) CreateOrganization(ctx context.Context, arg CreateOrganizationParams) (Organization, error) {
	row := q.db.QueryRowContext(ctx, createOrganization, arg.Name, arg.TierName)
	return scanOrganization(row)
}

const updateOrganizationTier = `-- name: UpdateOrganizationTier :one
UPDATE organizations
SET tier_name = $2, updated_at = NOW()
WHERE id = $1
RETURNING ` + organizationColumns + `
`

type UpdateOrganizationTierParams struct {
	ID       uuid.UUID
	TierName string
}

func (q *Queries) UpdateOrganizationTier(ctx context.Context, arg UpdateOrganizationTierParams) (Organization, error) {
	row := q.db.QueryRowContext(ctx, updateOrganizationTier, arg.ID, arg.TierName)
	return scanOrganization(row)
}
