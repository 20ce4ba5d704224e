package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
)

var (
	// ErrTierInUse is returned when a tier still has subscriptions or
	// organizations pointing at it.
	ErrTierInUse = errors.New("tier is still referenced")

	// ErrLastSuperAdmin is returned when a role change would leave no
	// super_admin.
	ErrLastSuperAdmin = errors.New("cannot demote the last super_admin")
)

// Store runs queries that need a transaction on top of Queries.
type Store struct {
	*Queries
	db *sql.DB
}

// NewStore creates a Store backed by db.
func NewStore(db *sql.DB) *Store {
	return &Store{
		Queries: New(db),
		db:      db,
	}
}

// Ping checks connectivity to the database.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) execTx(ctx context.Context, fn func(*Queries) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(s.Queries.WithTx(tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}
	return tx.Commit()
}

// DeleteTierIfUnreferenced deletes a tier only when no subscription or
// organization references it. The reference count and the delete share a
// transaction and the tier row is locked first. Returns sql.ErrNoRows when
// the tier does not exist and ErrTierInUse when it is referenced.
func (s *Store) DeleteTierIfUnreferenced(ctx context.Context, name string) (CountTierReferencesRow, error) {
	var refs CountTierReferencesRow
	err := s.execTx(ctx, func(q *Queries) error {
		if _, err := q.LockTier(ctx, name); err != nil {
			return err
		}
		var err error
		refs, err = q.CountTierReferences(ctx, name)
		if err != nil {
			return err
		}
		if refs.SubscriptionCount > 0 || refs.OrganizationCount > 0 {
			return ErrTierInUse
		}
		n, err := q.DeleteTier(ctx, name)
		if err != nil {
			return err
		}
		if n == 0 {
			return sql.ErrNoRows
		}
		return nil
	})
	return refs, err
}

// UpdateUserRoleGuarded sets a user's role, refusing to demote the only
// remaining super_admin. Existing super_admin rows are locked for the
// duration so concurrent demotions serialise.
func (s *Store) UpdateUserRoleGuarded(ctx context.Context, arg UpsertUserRoleParams) (UserProfile, error) {
	var profile UserProfile
	err := s.execTx(ctx, func(q *Queries) error {
		supers, err := q.ListUserIDsByRoleForUpdate(ctx, "super_admin")
		if err != nil {
			return err
		}
		if arg.Role != "super_admin" && slices.Contains(supers, arg.UserID) && len(supers) <= 1 {
			return ErrLastSuperAdmin
		}
		profile, err = q.UpsertUserRole(ctx, arg)
		return err
	})
	return profile, err
}

// ReplaceActiveSubscription ends any active subscription the user holds at
// arg.StartedAt and creates arg in the same transaction, so the user never
// holds two active subscriptions.
func (s *Store) ReplaceActiveSubscription(ctx context.Context, arg CreateSubscriptionParams) (Subscription, error) {
	var sub Subscription
	err := s.execTx(ctx, func(q *Queries) error {
		if _, err := q.CancelActiveSubscriptions(ctx, CancelActiveSubscriptionsParams{
			UserID: arg.UserID,
			EndsAt: sql.NullTime{Time: arg.StartedAt, Valid: true},
		}); err != nil {
			return err
		}
		var err error
		sub, err = q.CreateSubscription(ctx, arg)
		return err
	})
	return sub, err
}
