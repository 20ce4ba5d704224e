package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

const createUsageRecord = `-- name: CreateUsageRecord :one
INSERT INTO usage_records (user_id, action, occurred_at, metadata)
VALUES ($1, $2, $3, $4)
RETURNING id, user_id, action, occurred_at, metadata
`

type CreateUsageRecordParams struct {
	UserID     uuid.UUID
	Action     string
	OccurredAt time.Time
	Metadata   pqtype.NullRawMessage
}

func (q *Queries) CreateUsageRecord(ctx context.Context, arg CreateUsageRecordParams) (UsageRecord, error) {
	row := q.db.QueryRowContext(ctx, createUsageRecord,
		arg.UserID,
		arg.Action,
		arg.OccurredAt,
		arg.Metadata,
	)
	var i UsageRecord
	err := row.Scan(
		&i.ID,
		&i.UserID,
		&i.Action,
		&i.OccurredAt,
		&i.Metadata,
	)
	return i, err
}

const countUsageRecords = `-- name: CountUsageRecords :one
SELECT COUNT(*) FROM usage_records
WHERE user_id = $1
  AND action = $2
  AND occurred_at >= $3
  AND occurred_at < $4
`

type CountUsageRecordsParams struct {
	UserID uuid.UUID
	Action string
	Start  time.Time
	End    time.Time
}

func (q *Queries) CountUsageRecords(ctx context.Context, arg CountUsageRecordsParams) (int64, error) {
	row := q.db.QueryRowContext(ctx, countUsageRecords,
		arg.UserID,
		arg.Action,
		arg.Start,
		arg.End,
	)
	var count int64
	err := row.Scan(&count)
	return count, err
}

const countUsageRecordsByAction = `-- name: CountUsageRecordsByAction :many
SELECT action, COUNT(*)::bigint AS count
FROM usage_records
WHERE user_id = $1
  AND occurred_at >= $2
  AND occurred_at < $3
GROUP BY action
ORDER BY action
`

type CountUsageRecordsByActionParams struct {
	UserID uuid.UUID
	Start  time.Time
	End    time.Time
}

type CountUsageRecordsByActionRow struct {
	Action string
	Count  int64
}

func (q *Queries) CountUsageRecordsByAction(ctx context.Context, arg CountUsageRecordsByActionParams) ([]CountUsageRecordsByActionRow, error) {
	rows, err := q.db.QueryContext(ctx, countUsageRecordsByAction, arg.UserID, arg.Start, arg.End)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []CountUsageRecordsByActionRow
	for rows.Next() {
		var i CountUsageRecordsByActionRow
		if err := rows.Scan(&i.Action, &i.Count); err != nil {
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
