package repository

import (
	"context"

	"github.com/google/uuid"
)

const userProfileColumns = `user_id, role, timezone, organization_id, created_at, updated_at`

func scanUserProfile(row rowScanner) (UserProfile, error) {
	var i UserProfile
	err := row.Scan(
		&i.UserID,
		&i.Role,
		&i.Timezone,
		&i.OrganizationID,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const getUserProfile = `-- name: GetUserProfile :one
SELECT ` + userProfileColumns + `
FROM user_profiles
WHERE user_id = $1
`

func (q *Queries) GetUserProfile(ctx context.Context, userID uuid.UUID) (UserProfile, error) {
	row := q.db.QueryRowContext(ctx, getUserProfile, userID)
	return scanUserProfile(row)
}

const upsertUserProfile = `-- name: UpsertUserProfile :one
INSERT INTO user_profiles (user_id, timezone, organization_id)
VALUES ($1, $2, $3)
ON CONFLICT (user_id) DO UPDATE SET
    timezone = EXCLUDED.timezone,
    organization_id = EXCLUDED.organization_id,
    updated_at = NOW()
RETURNING ` + userProfileColumns + `
`

// UpsertUserProfileParams leaves the role alone; roles only change through
// UpdateUserRoleGuarded.
type UpsertUserProfileParams struct {
	UserID         uuid.UUID
	Timezone       string
	OrganizationID uuid.NullUUID
}

func (q *Queries) UpsertUserProfile(ctx context.Context, arg UpsertUserProfileParams) (UserProfile, error) {
	row := q.db.QueryRowContext(ctx, upsertUserProfile,
		arg.UserID,
		arg.Timezone,
		arg.OrganizationID,
	)
	return scanUserProfile(row)
}

const listUserProfiles = `-- name: ListUserProfiles :many
SELECT ` + userProfileColumns + `
FROM user_profiles
ORDER BY created_at, user_id
LIMIT $1 OFFSET $2
`

type ListUserProfilesParams struct {
	Limit  int32
	Offset int32
}

func (q *Queries) ListUserProfiles(ctx context.Context, arg ListUserProfilesParams) ([]UserProfile, error) {
	rows, err := q.db.QueryContext(ctx, listUserProfiles, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []UserProfile
	for rows.Next() {
		i, err := scanUserProfile(rows)
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

const upsertUserRole = `-- name: UpsertUserRole :one
INSERT INTO user_profiles (user_id, role)
VALUES ($1, $2)
ON CONFLICT (user_id) DO UPDATE SET
    role = EXCLUDED.role,
    updated_at = NOW()
RETURNING ` + userProfileColumns + `
`

type UpsertUserRoleParams struct {
	UserID uuid.UUID
	Role   string
}

func (q *Queries) UpsertUserRole(ctx context.Context, arg UpsertUserRoleParams) (UserProfile, error) {
	row := q.db.QueryRowContext(ctx, upsertUserRole, arg.UserID, arg.Role)
	return scanUserProfile(row)
}

const listUserIDsByRoleForUpdate = `-- name: ListUserIDsByRoleForUpdate :many
SELECT user_id
FROM user_profiles
WHERE role = $1
FOR UPDATE
`

func (q *Queries) ListUserIDsByRoleForUpdate(ctx context.Context, role string) ([]uuid.UUID, error) {
	rows, err := q.db.QueryContext(ctx, listUserIDsByRoleForUpdate, role)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		items = append(items, id)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const countUsersByRole = `-- name: CountUsersByRole :one
SELECT COUNT(*) FROM user_profiles
WHERE role = $1
`

func (q *Queries) CountUsersByRole(ctx context.Context, role string) (int64, error) {
	row := q.db.QueryRowContext(ctx, countUsersByRole, role)
	var count int64
	err := row.Scan(&count)
	return count, err
}
