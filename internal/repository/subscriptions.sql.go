package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

const subscriptionColumns = `id, user_id, tier_name, status, started_at, ends_at, created_at, updated_at`

func scanSubscription(row rowScanner) (Subscription, error) {
	var i Subscription
	err := row.Scan(
		&i.ID,
		&i.UserID,
		&i.TierName,
		&i.Status,
		&i.StartedAt,
		&i.EndsAt,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const listSubscriptionsByUser = `-- name: ListSubscriptionsByUser :many
SELECT ` + subscriptionColumns + `
FROM subscriptions
WHERE user_id = $1
ORDER BY started_at DESC
`

func (q *Queries) ListSubscriptionsByUser(ctx context.Context, userID uuid.UUID) ([]Subscription, error) {
	rows, err := q.db.QueryContext(ctx, listSubscriptionsByUser, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Subscription
	for rows.Next() {
		i, err := scanSubscription(rows)
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

const getSubscription = `-- name: GetSubscription :one
SELECT ` + subscriptionColumns + `
FROM subscriptions
WHERE id = $1
`

func (q *Queries) GetSubscription(ctx context.Context, id uuid.UUID) (Subscription, error) {
	row := q.db.QueryRowContext(ctx, getSubscription, id)
	return scanSubscription(row)
}

const createSubscription = `-- name: CreateSubscription :one
INSERT INTO subscriptions (user_id, tier_name, status, started_at, ends_at)
VALUES ($1, $2, $3, $4, $5)
RETURNING ` + subscriptionColumns + `
`

type CreateSubscriptionParams struct {
	UserID    uuid.UUID
	TierName  string
	Status    string
	StartedAt time.Time
	EndsAt    sql.NullTime
}

func (q *Queries) CreateSubscription(ctx context.Context, arg CreateSubscriptionParams) (Subscription, error) {
	row := q.db.QueryRowContext(ctx, createSubscription,
		arg.UserID,
		arg.TierName,
		arg.Status,
		arg.StartedAt,
		arg.EndsAt,
	)
	return scanSubscription(row)
}

const updateSubscriptionStatus = `-- name: UpdateSubscriptionStatus :one
UPDATE subscriptions
SET status = $2, ends_at = $3, updated_at = NOW()
WHERE id = $1
RETURNING ` + subscriptionColumns + `
`

type UpdateSubscriptionStatusParams struct {
	ID     uuid.UUID
	Status string
	EndsAt sql.NullTime
}

func (q *Queries) UpdateSubscriptionStatus(ctx context.Context, arg UpdateSubscriptionStatusParams) (Subscription, error) {
	row := q.db.QueryRowContext(ctx, updateSubscriptionStatus, arg.ID, arg.Status, arg.EndsAt)
	return scanSubscription(row)
}

const cancelActiveSubscriptions = `-- name: CancelActiveSubscriptions :execrows
UPDATE subscriptions
SET status = 'canceled', ends_at = $2, updated_at = NOW()
WHERE user_id = $1 AND status = 'active'
`

type CancelActiveSubscriptionsParams struct {
	UserID uuid.UUID
	EndsAt sql.NullTime
}

func (q *Queries) CancelActiveSubscriptions(ctx context.Context, arg CancelActiveSubscriptionsParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, cancelActiveSubscriptions, arg.UserID, arg.EndsAt)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
