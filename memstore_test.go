package authcore

import (
	"context"
	"sync"
	"time"
)

// memDurableStore is the in-memory DurableStore used across engine tests.
// Fields are exported to the test package so assertions can inspect state
// directly.
type memDurableStore struct {
	mu          sync.RWMutex
	accounts    map[string]*Account
	byPhone     map[string]string
	byEmail     map[string]string
	sessions    map[string]*SessionMetadata
	cancels     []*CancellationRecord
	suspensions map[string][]*SuspensionRecord
	events      []SecurityEvent

	createAccountErr error
}

func newMemDurableStore() *memDurableStore {
	return &memDurableStore{
		accounts:    make(map[string]*Account),
		byPhone:     make(map[string]string),
		byEmail:     make(map[string]string),
		sessions:    make(map[string]*SessionMetadata),
		suspensions: make(map[string][]*SuspensionRecord),
	}
}

func (m *memDurableStore) Accounts() AccountStore                { return (*memAccountStore)(m) }
func (m *memDurableStore) SessionMetadata() SessionMetadataStore { return (*memSessionMetaStore)(m) }
func (m *memDurableStore) Cancellations() CancellationStore      { return (*memCancelStore)(m) }
func (m *memDurableStore) SecurityEvents() SecurityEventStore    { return (*memEventStore)(m) }

func (m *memDurableStore) setVerified(accountID string, phone, email bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.accounts[accountID]; ok {
		a.PhoneVerified = phone
		a.EmailVerified = email
	}
}

func (m *memDurableStore) eventTypes() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	types := make([]string, 0, len(m.events))
	for _, ev := range m.events {
		types = append(types, ev.EventType)
	}
	return types
}

func (m *memDurableStore) activeSuspensions(accountID string) []*SuspensionRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*SuspensionRecord
	for _, rec := range m.suspensions[accountID] {
		if rec.Active {
			out = append(out, rec)
		}
	}
	return out
}

type memAccountStore memDurableStore

func (m *memAccountStore) Create(_ context.Context, account *Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createAccountErr != nil {
		return m.createAccountErr
	}
	if _, ok := m.byPhone[account.Phone]; ok {
		return ErrPhoneExists
	}
	cp := *account
	m.accounts[account.ID] = &cp
	m.byPhone[account.Phone] = account.ID
	return nil
}

func (m *memAccountStore) get(id string) (*Account, error) {
	account, ok := m.accounts[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	cp := *account
	return &cp, nil
}

func (m *memAccountStore) GetByID(_ context.Context, id string) (*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.get(id)
}

func (m *memAccountStore) GetByPhone(_ context.Context, phone string) (*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.get(m.byPhone[phone])
}

func (m *memAccountStore) GetByEmail(_ context.Context, email string) (*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.get(m.byEmail[email])
}

func (m *memAccountStore) update(id string, fn func(*Account)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.accounts[id]
	if !ok {
		return ErrAccountNotFound
	}
	fn(account)
	return nil
}

func (m *memAccountStore) SetPhoneVerified(_ context.Context, id string, v bool) error {
	return m.update(id, func(a *Account) { a.PhoneVerified = v })
}

func (m *memAccountStore) SetEmailVerified(_ context.Context, id string, v bool) error {
	return m.update(id, func(a *Account) { a.EmailVerified = v })
}

func (m *memAccountStore) SetEmail(_ context.Context, id, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if owner, ok := m.byEmail[email]; ok && owner != id {
		return ErrEmailExists
	}
	account, ok := m.accounts[id]
	if !ok {
		return ErrAccountNotFound
	}
	delete(m.byEmail, account.Email)
	account.Email = email
	account.EmailVerified = false
	m.byEmail[email] = id
	return nil
}

func (m *memAccountStore) SetStatus(_ context.Context, id string, status AccountStatus) error {
	return m.update(id, func(a *Account) { a.Status = status })
}

func (m *memAccountStore) SetLastLogin(_ context.Context, id string, at time.Time) error {
	return m.update(id, func(a *Account) { a.LastLoginAt = at })
}

type memSessionMetaStore memDurableStore

func (m *memSessionMetaStore) Create(_ context.Context, meta *SessionMetadata) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *meta
	m.sessions[meta.SessionID] = &cp
	return nil
}

func (m *memSessionMetaStore) Touch(_ context.Context, sessionID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	meta, ok := m.sessions[sessionID]
	if !ok || !meta.Active {
		return ErrSessionNotFound
	}
	meta.LastActivityAt = at
	return nil
}

func (m *memSessionMetaStore) End(_ context.Context, sessionID, reason string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	meta, ok := m.sessions[sessionID]
	if !ok || !meta.Active {
		return ErrSessionNotFound
	}
	meta.Active = false
	meta.EndedAt = at
	meta.TerminationReason = reason
	return nil
}

func (m *memSessionMetaStore) GetBySessionID(_ context.Context, sessionID string) (*SessionMetadata, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	meta, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	cp := *meta
	return &cp, nil
}

type memCancelStore memDurableStore

func (m *memCancelStore) Insert(_ context.Context, rec *CancellationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	m.cancels = append(m.cancels, &cp)
	return nil
}

func (m *memCancelStore) CountByMonth(_ context.Context, accountID string, t CancellationType, month, year int) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, rec := range m.cancels {
		if rec.AccountID == accountID && rec.Type == t && rec.Month == month && rec.Year == year {
			count++
		}
	}
	return count, nil
}

func (m *memCancelStore) InsertSuspension(_ context.Context, rec *SuspensionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.suspensions[rec.AccountID] {
		if existing.Active {
			return ErrSuspensionExists
		}
	}
	cp := *rec
	m.suspensions[rec.AccountID] = append(m.suspensions[rec.AccountID], &cp)
	return nil
}

func (m *memCancelStore) ActiveSuspension(_ context.Context, accountID string) (*SuspensionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, rec := range m.suspensions[accountID] {
		if rec.Active {
			cp := *rec
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memCancelStore) DeactivateExpired(_ context.Context, now time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for id, recs := range m.suspensions {
		for _, rec := range recs {
			if rec.Active && !rec.EndDate.After(now) {
				rec.Active = false
				ids = append(ids, id)
			}
		}
	}
	return ids, nil
}

type memEventStore memDurableStore

func (m *memEventStore) Append(_ context.Context, event *SecurityEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, *event)
	return nil
}

// captureNotifier records the last code handed to it per destination.
type captureNotifier struct {
	mu    sync.Mutex
	codes map[string]string
	err   error
}

func newCaptureNotifier() *captureNotifier {
	return &captureNotifier{codes: make(map[string]string)}
}

func (n *captureNotifier) Send(_ context.Context, _ Channel, destination, code string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.codes[destination] = code
	return nil
}

func (n *captureNotifier) code(destination string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.codes[destination]
}
