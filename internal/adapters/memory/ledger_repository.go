package memory

import (
	"context"
	"slices"
	"strings"

	"github.com/viralforge/mesh/services/commerce/M46-engagement-engine/internal/domain"
	"github.com/viralforge/mesh/services/commerce/M46-engagement-engine/internal/ports"
)

func (s *Store) WithinUserLock(ctx context.Context, userID string, fn func(tx ports.LedgerTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	tx := &ledgerTx{
		store:      s,
		userID:     userID,
		readStatus: make(map[string]domain.RedemptionStatus),
		updated:    make(map[string]domain.RedemptionCode),
	}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.commit(tx)
}

func (s *Store) commit(tx *ledgerTx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, code := range tx.created {
		if _, exists := s.codes[code.Code]; exists {
			return domain.ErrConflict
		}
	}
	for code, status := range tx.readStatus {
		if _, staged := tx.updated[code]; !staged {
			continue
		}
		if current, ok := s.codes[code]; ok && current.Status != status {
			return domain.ErrConflict
		}
	}

	if tx.account != nil {
		s.accounts[tx.userID] = *tx.account
	}
	for _, t := range tx.txs {
		s.transactions[t.UserID] = append(s.transactions[t.UserID], t)
		if t.OrderID != "" && t.Reason == domain.ReasonOrderEarn {
			s.orderCredits[orderCreditKey(t.UserID, t.OrderID)] = t
		}
	}
	for _, code := range tx.created {
		s.codes[code.Code] = code
	}
	for code, r := range tx.updated {
		s.codes[code] = r
	}
	for _, event := range tx.outbox {
		s.outbox = append(s.outbox, &outboxEntry{record: ports.OutboxRecord{
			OutboxID:     event.EventID,
			EventType:    event.EventType,
			PartitionKey: event.PartitionKey,
			Payload:      slices.Clone(event.Payload),
			FirstSeenAt:  event.OccurredAt,
		}})
	}
	return nil
}

func (s *Store) GetAccount(_ context.Context, userID string) (domain.LoyaltyAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	account, ok := s.accounts[userID]
	if !ok {
		return domain.LoyaltyAccount{}, domain.ErrNotFound
	}
	return account, nil
}

func (s *Store) ListTransactions(_ context.Context, userID string) ([]domain.PointsTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.transactions[userID]), nil
}

func (s *Store) TopAccounts(_ context.Context, limit int) ([]domain.LoyaltyAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]domain.LoyaltyAccount, 0, len(s.accounts))
	for _, account := range s.accounts {
		if !account.IsActive || account.IsBlocked {
			continue
		}
		items = append(items, account)
	}
	slices.SortFunc(items, func(a, b domain.LoyaltyAccount) int {
		if a.TotalPoints != b.TotalPoints {
			if a.TotalPoints > b.TotalPoints {
				return -1
			}
			return 1
		}
		if a.Sequence != b.Sequence {
			if a.Sequence < b.Sequence {
				return -1
			}
			return 1
		}
		return strings.Compare(a.UserID, b.UserID)
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

// ledgerTx stages writes for one unit. Reads fall through to committed state.
type ledgerTx struct {
	store  *Store
	userID string

	account    *domain.LoyaltyAccount
	txs        []domain.PointsTransaction
	created    []domain.RedemptionCode
	updated    map[string]domain.RedemptionCode
	readStatus map[string]domain.RedemptionStatus
	outbox     []ports.OutboxEvent
}

func (t *ledgerTx) LockAccount(_ context.Context) (domain.LoyaltyAccount, bool, error) {
	if t.account != nil {
		return *t.account, true, nil
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	account, ok := t.store.accounts[t.userID]
	return account, ok, nil
}

func (t *ledgerTx) CreateAccount(_ context.Context, account domain.LoyaltyAccount) (domain.LoyaltyAccount, error) {
	t.store.mu.Lock()
	if _, exists := t.store.accounts[t.userID]; exists {
		t.store.mu.Unlock()
		return domain.LoyaltyAccount{}, domain.ErrConflict
	}
	t.store.accountSeq++
	account.Sequence = t.store.accountSeq
	t.store.mu.Unlock()

	account.UserID = t.userID
	t.account = &account
	return account, nil
}

func (t *ledgerTx) SaveAccount(_ context.Context, account domain.LoyaltyAccount) error {
	if account.UserID != t.userID {
		return domain.ErrInvalidInput
	}
	t.account = &account
	return nil
}

func (t *ledgerTx) AppendTransaction(_ context.Context, txn domain.PointsTransaction) error {
	if txn.UserID != t.userID {
		return domain.ErrInvalidInput
	}
	t.txs = append(t.txs, txn)
	return nil
}

func (t *ledgerTx) FindOrderCredit(_ context.Context, orderID string) (*domain.PointsTransaction, error) {
	for i := range t.txs {
		if t.txs[i].OrderID == orderID && t.txs[i].Reason == domain.ReasonOrderEarn {
			found := t.txs[i]
			return &found, nil
		}
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	if found, ok := t.store.orderCredits[orderCreditKey(t.userID, orderID)]; ok {
		return &found, nil
	}
	return nil, nil
}

func (t *ledgerTx) CreateRedemption(_ context.Context, code domain.RedemptionCode) error {
	for _, staged := range t.created {
		if staged.Code == code.Code {
			return domain.ErrConflict
		}
	}
	t.store.mu.RLock()
	_, exists := t.store.codes[code.Code]
	t.store.mu.RUnlock()
	if exists {
		return domain.ErrConflict
	}
	t.created = append(t.created, code)
	return nil
}

func (t *ledgerTx) GetRedemption(_ context.Context, code string) (domain.RedemptionCode, error) {
	if r, ok := t.updated[code]; ok {
		return r, nil
	}
	for _, staged := range t.created {
		if staged.Code == code {
			return staged, nil
		}
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	r, ok := t.store.codes[code]
	if !ok {
		return domain.RedemptionCode{}, domain.ErrNotFound
	}
	if _, seen := t.readStatus[code]; !seen {
		t.readStatus[code] = r.Status
	}
	return r, nil
}

func (t *ledgerTx) SaveRedemption(_ context.Context, code domain.RedemptionCode) error {
	for i := range t.created {
		if t.created[i].Code == code.Code {
			t.created[i] = code
			return nil
		}
	}
	t.updated[code.Code] = code
	return nil
}

func (t *ledgerTx) EnqueueOutbox(_ context.Context, event ports.OutboxEvent) error {
	t.outbox = append(t.outbox, event)
	return nil
}

var (
	_ ports.LedgerRepository = (*Store)(nil)
	_ ports.LedgerTx         = (*ledgerTx)(nil)
)
