// Package memory holds process-local repositories used for local runs and tests.
package memory

import (
	"sync"

	"github.com/viralforge/mesh/services/commerce/M46-engagement-engine/internal/domain"
	"github.com/viralforge/mesh/services/commerce/M46-engagement-engine/internal/ports"
)

type Repositories struct {
	Activity    ports.ActivityRepository
	Ledger      ports.LedgerRepository
	Redemptions ports.RedemptionRepository
	Outbox      ports.OutboxRepository
	EventDedup  ports.EventDedupRepository
}

func NewRepositories() Repositories {
	store := NewStore()
	return Repositories{
		Activity:    store,
		Ledger:      store,
		Redemptions: store,
		Outbox:      store,
		EventDedup:  store,
	}
}

// Store keeps all engine state behind one RWMutex. Ledger units additionally
// serialize on a per-user mutex and stage their writes until commit.
type Store struct {
	mu sync.RWMutex

	users        map[string]*userActivity
	accounts     map[string]domain.LoyaltyAccount
	accountSeq   int64
	transactions map[string][]domain.PointsTransaction
	orderCredits map[string]domain.PointsTransaction
	codes        map[string]domain.RedemptionCode
	outbox       []*outboxEntry
	dedup        map[string]dedupRecord

	lockMu    sync.Mutex
	userLocks map[string]*sync.Mutex
}

func NewStore() *Store {
	return &Store{
		users:        make(map[string]*userActivity),
		accounts:     make(map[string]domain.LoyaltyAccount),
		transactions: make(map[string][]domain.PointsTransaction),
		orderCredits: make(map[string]domain.PointsTransaction),
		codes:        make(map[string]domain.RedemptionCode),
		dedup:        make(map[string]dedupRecord),
		userLocks:    make(map[string]*sync.Mutex),
	}
}

func (s *Store) userLock(userID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.userLocks[userID]
	if !ok {
		lock = &sync.Mutex{}
		s.userLocks[userID] = lock
	}
	return lock
}

func orderCreditKey(userID, orderID string) string {
	return userID + "\x00" + orderID
}
