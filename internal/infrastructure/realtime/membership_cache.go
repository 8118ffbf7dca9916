package realtime

import (
	"context"
	"time"

	"workhub/internal/core/domain"
	"workhub/internal/core/ports"
	"workhub/pkg/cache"
)

// membershipCache absorbs reconnect bursts. Member events evict the user so
// a reconnect after a change sees the store again.
type membershipCache struct {
	next  ports.MembershipLister
	cache *cache.Cache[domain.UserID, []domain.Membership]
}

func newMembershipCache(next ports.MembershipLister, ttl time.Duration) *membershipCache {
	return &membershipCache{
		next:  next,
		cache: cache.New[domain.UserID, []domain.Membership](ttl),
	}
}

func (m *membershipCache) ListByUser(ctx context.Context, userID domain.UserID) ([]domain.Membership, error) {
	return m.cache.GetOrLoad(ctx, userID, func(ctx context.Context) ([]domain.Membership, error) {
		return m.next.ListByUser(ctx, userID)
	})
}

func (m *membershipCache) forget(userID domain.UserID) {
	m.cache.Delete(userID)
}

func (m *membershipCache) stop() {
	m.cache.Stop()
}
