package memory

import (
	"context"
	"slices"
	"time"

	"github.com/viralforge/mesh/services/commerce/M46-engagement-engine/internal/domain"
	"github.com/viralforge/mesh/services/commerce/M46-engagement-engine/internal/ports"
)

type userActivity struct {
	createdAt time.Time
	orders    []domain.OrderSummary
	orderIDs  map[string]struct{}
	viewed    map[string]time.Time
	version   int64
}

func (s *Store) EnsureUser(_ context.Context, userID string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[userID]; ok {
		return false, nil
	}
	s.users[userID] = &userActivity{
		createdAt: at,
		orderIDs:  make(map[string]struct{}),
		viewed:    make(map[string]time.Time),
	}
	return true, nil
}

func (s *Store) AppendPurchase(_ context.Context, order domain.OrderSummary) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[order.UserID]
	if !ok {
		return 0, false, domain.ErrNotFound
	}
	if _, seen := u.orderIDs[order.OrderID]; seen {
		return u.version, false, nil
	}
	order.Lines = slices.Clone(order.Lines)
	u.orders = append(u.orders, order)
	u.orderIDs[order.OrderID] = struct{}{}
	u.version++
	return u.version, true, nil
}

func (s *Store) AppendView(_ context.Context, userID, productID string, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return 0, domain.ErrNotFound
	}
	u.viewed[productID] = at
	u.version++
	return u.version, nil
}

func (s *Store) LoadActivity(_ context.Context, userID string) (ports.UserActivity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return ports.UserActivity{}, domain.ErrNotFound
	}
	orders := make([]domain.OrderSummary, 0, len(u.orders))
	for _, o := range u.orders {
		o.Lines = slices.Clone(o.Lines)
		orders = append(orders, o)
	}
	views := make([]string, 0, len(u.viewed))
	for productID := range u.viewed {
		views = append(views, productID)
	}
	slices.Sort(views)
	return ports.UserActivity{UserID: userID, Orders: orders, ViewedProducts: views, Version: u.version}, nil
}

func (s *Store) ActivityVersion(_ context.Context, userID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return 0, domain.ErrNotFound
	}
	return u.version, nil
}

var _ ports.ActivityRepository = (*Store)(nil)
