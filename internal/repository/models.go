package repository

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

type Organization struct {
	ID        uuid.UUID
	Name      string
	TierName  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Subscription struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	TierName  string
	Status    string
	StartedAt time.Time
	EndsAt    sql.NullTime
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Tier struct {
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
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type UsageRecord struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	Action     string
	OccurredAt time.Time
	Metadata   pqtype.NullRawMessage
}

type UserProfile struct {
	UserID         uuid.UUID
	Role           string
	Timezone       string
	OrganizationID uuid.NullUUID
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
