package mocks

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/iho/gocredit/internal/domain"
	"github.com/iho/gocredit/internal/usecase"
)

// Snapshotter is an in-memory store that can undo the writes of a
// transaction that did not commit.
type Snapshotter interface {
	Snapshot() (restore func())
}

// eventLogs keeps event logs the way the postgres store does: appends only,
// with a version check on every write.
type eventLogs[E domain.DomainEvent] struct {
	mu    sync.RWMutex
	logs  map[string][]domain.Event[E]
	order []string
}

func newEventLogs[E domain.DomainEvent]() *eventLogs[E] {
	return &eventLogs[E]{logs: make(map[string][]domain.Event[E])}
}

func (s *eventLogs[E]) create(events *domain.EntityEvents[E]) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := events.EntityID()
	if _, ok := s.logs[id]; ok {
		return fmt.Errorf("%w: %s already exists", domain.ErrConcurrentModification, id)
	}
	s.logs[id] = append([]domain.Event[E](nil), events.Pending()...)
	s.order = append(s.order, id)
	events.MarkPersisted(time.Now().UTC())
	return nil
}

func (s *eventLogs[E]) update(events *domain.EntityEvents[E]) error {
	if !events.HasPending() {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id := events.EntityID()
	stored, ok := s.logs[id]
	if !ok {
		return fmt.Errorf("%w: %s does not exist", domain.ErrConcurrentModification, id)
	}
	if len(stored) != events.LenPersisted() {
		return fmt.Errorf("%w: %s is at version %d, expected %d", domain.ErrConcurrentModification, id, len(stored), events.LenPersisted())
	}
	s.logs[id] = append(stored, events.Pending()...)
	events.MarkPersisted(time.Now().UTC())
	return nil
}

func (s *eventLogs[E]) load(id string) (*domain.EntityEvents[E], bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored, ok := s.logs[id]
	if !ok {
		return nil, false
	}
	events, err := domain.LoadEntityEvents(id, stored)
	if err != nil {
		return nil, false
	}
	return events, true
}

func (s *eventLogs[E]) snapshot() func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	logs := make(map[string][]domain.Event[E], len(s.logs))
	for id, events := range s.logs {
		logs[id] = events[:len(events):len(events)]
	}
	order := append([]string(nil), s.order...)
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.logs = logs
		s.order = order
	}
}

func (s *eventLogs[E]) ids() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.order...)
}

// MockCreditFacilityRepository is an in-memory CreditFacilityRepository.
type MockCreditFacilityRepository struct {
	logs *eventLogs[domain.CreditFacilityEvent]

	UpdateFunc    func(ctx context.Context, tx usecase.Transaction, facility *domain.CreditFacility) error
	GetByIDTxFunc func(ctx context.Context, tx usecase.Transaction, id string) (*domain.CreditFacility, error)
}

func NewMockCreditFacilityRepository() *MockCreditFacilityRepository {
	return &MockCreditFacilityRepository{logs: newEventLogs[domain.CreditFacilityEvent]()}
}

func (m *MockCreditFacilityRepository) Snapshot() func() { return m.logs.snapshot() }

func (m *MockCreditFacilityRepository) Create(ctx context.Context, tx usecase.Transaction, facility *domain.CreditFacility) error {
	return m.logs.create(facility.Events)
}

func (m *MockCreditFacilityRepository) Update(ctx context.Context, tx usecase.Transaction, facility *domain.CreditFacility) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, tx, facility)
	}
	return m.logs.update(facility.Events)
}

func (m *MockCreditFacilityRepository) GetByID(ctx context.Context, id string) (*domain.CreditFacility, error) {
	events, ok := m.logs.load(id)
	if !ok {
		return nil, domain.ErrCreditFacilityNotFound
	}
	return domain.CreditFacilityFromEvents(events)
}

func (m *MockCreditFacilityRepository) GetByIDTx(ctx context.Context, tx usecase.Transaction, id string) (*domain.CreditFacility, error) {
	if m.GetByIDTxFunc != nil {
		return m.GetByIDTxFunc(ctx, tx, id)
	}
	return m.GetByID(ctx, id)
}

func (m *MockCreditFacilityRepository) List(ctx context.Context, limit, offset int) ([]*domain.CreditFacility, error) {
	ids := m.logs.ids()
	var facilities []*domain.CreditFacility
	for i := offset; i < len(ids) && len(facilities) < limit; i++ {
		f, err := m.GetByID(ctx, ids[i])
		if err != nil {
			return nil, err
		}
		facilities = append(facilities, f)
	}
	return facilities, nil
}

func (m *MockCreditFacilityRepository) ListMaturing(ctx context.Context, now time.Time, limit int) ([]string, error) {
	var ids []string
	for _, id := range m.logs.ids() {
		f, err := m.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if f.Status() == domain.CreditFacilityStatusActive && !f.MaturesAt().After(now) {
			ids = append(ids, id)
		}
		if len(ids) == limit {
			break
		}
	}
	return ids, nil
}

// MockDisbursalRepository is an in-memory DisbursalRepository.
type MockDisbursalRepository struct {
	logs *eventLogs[domain.DisbursalEvent]
}

func NewMockDisbursalRepository() *MockDisbursalRepository {
	return &MockDisbursalRepository{logs: newEventLogs[domain.DisbursalEvent]()}
}

func (m *MockDisbursalRepository) Snapshot() func() { return m.logs.snapshot() }

func (m *MockDisbursalRepository) Create(ctx context.Context, tx usecase.Transaction, disbursal *domain.Disbursal) error {
	return m.logs.create(disbursal.Events)
}

func (m *MockDisbursalRepository) Update(ctx context.Context, tx usecase.Transaction, disbursal *domain.Disbursal) error {
	return m.logs.update(disbursal.Events)
}

func (m *MockDisbursalRepository) GetByID(ctx context.Context, id string) (*domain.Disbursal, error) {
	events, ok := m.logs.load(id)
	if !ok {
		return nil, domain.ErrDisbursalNotFound
	}
	return domain.DisbursalFromEvents(events)
}

func (m *MockDisbursalRepository) GetByIDTx(ctx context.Context, tx usecase.Transaction, id string) (*domain.Disbursal, error) {
	return m.GetByID(ctx, id)
}

func (m *MockDisbursalRepository) ListByFacility(ctx context.Context, facilityID string) ([]*domain.Disbursal, error) {
	var disbursals []*domain.Disbursal
	for _, id := range m.logs.ids() {
		d, err := m.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if d.FacilityID == facilityID {
			disbursals = append(disbursals, d)
		}
	}
	return disbursals, nil
}

// MockObligationRepository is an in-memory ObligationRepository.
type MockObligationRepository struct {
	logs *eventLogs[domain.ObligationEvent]
}

func NewMockObligationRepository() *MockObligationRepository {
	return &MockObligationRepository{logs: newEventLogs[domain.ObligationEvent]()}
}

func (m *MockObligationRepository) Snapshot() func() { return m.logs.snapshot() }

func (m *MockObligationRepository) Create(ctx context.Context, tx usecase.Transaction, obligation *domain.Obligation) error {
	return m.logs.create(obligation.Events)
}

func (m *MockObligationRepository) Update(ctx context.Context, tx usecase.Transaction, obligation *domain.Obligation) error {
	return m.logs.update(obligation.Events)
}

func (m *MockObligationRepository) GetByIDTx(ctx context.Context, tx usecase.Transaction, id string) (*domain.Obligation, error) {
	events, ok := m.logs.load(id)
	if !ok {
		return nil, domain.ErrObligationNotFound
	}
	return domain.ObligationFromEvents(events)
}

func (m *MockObligationRepository) ListByFacility(ctx context.Context, facilityID string) ([]*domain.Obligation, error) {
	var obligations []*domain.Obligation
	for _, id := range m.logs.ids() {
		o, err := m.GetByIDTx(ctx, nil, id)
		if err != nil {
			return nil, err
		}
		if o.FacilityID == facilityID {
			obligations = append(obligations, o)
		}
	}
	return obligations, nil
}

func (m *MockObligationRepository) ListByFacilityTx(ctx context.Context, tx usecase.Transaction, facilityID string) ([]*domain.Obligation, error) {
	return m.ListByFacility(ctx, facilityID)
}

func (m *MockObligationRepository) ListDueForTransition(ctx context.Context, now time.Time, limit int) ([]string, error) {
	var ids []string
	for _, id := range m.logs.ids() {
		o, err := m.GetByIDTx(ctx, nil, id)
		if err != nil {
			return nil, err
		}
		if at, ok := o.NextTransitionAt(); ok && !at.After(now) {
			ids = append(ids, id)
		}
		if len(ids) == limit {
			break
		}
	}
	return ids, nil
}

// MockApprovalProcessRepository is an in-memory ApprovalProcessRepository.
type MockApprovalProcessRepository struct {
	logs *eventLogs[domain.ApprovalProcessEvent]
}

func NewMockApprovalProcessRepository() *MockApprovalProcessRepository {
	return &MockApprovalProcessRepository{logs: newEventLogs[domain.ApprovalProcessEvent]()}
}

func (m *MockApprovalProcessRepository) Snapshot() func() { return m.logs.snapshot() }

func (m *MockApprovalProcessRepository) Create(ctx context.Context, tx usecase.Transaction, process *domain.ApprovalProcess) error {
	return m.logs.create(process.Events)
}

func (m *MockApprovalProcessRepository) Update(ctx context.Context, tx usecase.Transaction, process *domain.ApprovalProcess) error {
	return m.logs.update(process.Events)
}

func (m *MockApprovalProcessRepository) GetByID(ctx context.Context, id string) (*domain.ApprovalProcess, error) {
	events, ok := m.logs.load(id)
	if !ok {
		return nil, domain.ErrApprovalProcessNotFound
	}
	return domain.ApprovalProcessFromEvents(events)
}

func (m *MockApprovalProcessRepository) GetByIDTx(ctx context.Context, tx usecase.Transaction, id string) (*domain.ApprovalProcess, error) {
	return m.GetByID(ctx, id)
}

// MockPaymentRepository is an in-memory PaymentRepository.
type MockPaymentRepository struct {
	mu       sync.RWMutex
	payments []*domain.Payment
}

func NewMockPaymentRepository() *MockPaymentRepository {
	return &MockPaymentRepository{}
}

func (m *MockPaymentRepository) Snapshot() func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	payments := append([]*domain.Payment(nil), m.payments...)
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.payments = payments
	}
}

func (m *MockPaymentRepository) Create(ctx context.Context, tx usecase.Transaction, payment *domain.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payments = append(m.payments, payment)
	return nil
}

func (m *MockPaymentRepository) GetByID(ctx context.Context, id string) (*domain.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.payments {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, domain.ErrPaymentNotFound
}

func (m *MockPaymentRepository) ListByFacility(ctx context.Context, facilityID string, limit, offset int) ([]*domain.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var payments []*domain.Payment
	for _, p := range m.payments {
		if p.FacilityID == facilityID {
			payments = append(payments, p)
		}
	}
	if offset >= len(payments) {
		return nil, nil
	}
	payments = payments[offset:]
	if len(payments) > limit {
		payments = payments[:limit]
	}
	return payments, nil
}

// MockGovernanceRepository is an in-memory GovernanceRepository.
type MockGovernanceRepository struct {
	mu         sync.RWMutex
	committees map[string]*domain.Committee
	policies   map[domain.ApprovalProcessType]*domain.Policy
}

func NewMockGovernanceRepository() *MockGovernanceRepository {
	return &MockGovernanceRepository{
		committees: make(map[string]*domain.Committee),
		policies:   make(map[domain.ApprovalProcessType]*domain.Policy),
	}
}

func (m *MockGovernanceRepository) CreateCommittee(ctx context.Context, tx usecase.Transaction, committee *domain.Committee) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *committee
	c.Members = append([]string(nil), committee.Members...)
	m.committees[committee.ID] = &c
	return nil
}

func (m *MockGovernanceRepository) UpdateCommittee(ctx context.Context, tx usecase.Transaction, committee *domain.Committee) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.committees[committee.ID]; !ok {
		return domain.ErrCommitteeNotFound
	}
	c := *committee
	c.Members = append([]string(nil), committee.Members...)
	m.committees[committee.ID] = &c
	return nil
}

func (m *MockGovernanceRepository) GetCommittee(ctx context.Context, id string) (*domain.Committee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.committees[id]
	if !ok {
		return nil, domain.ErrCommitteeNotFound
	}
	copied := *c
	copied.Members = append([]string(nil), c.Members...)
	return &copied, nil
}

func (m *MockGovernanceRepository) GetCommitteeTx(ctx context.Context, tx usecase.Transaction, id string) (*domain.Committee, error) {
	return m.GetCommittee(ctx, id)
}

func (m *MockGovernanceRepository) ListCommittees(ctx context.Context) ([]*domain.Committee, error) {
	m.mu.RLock()
	ids := make([]string, 0, len(m.committees))
	for id := range m.committees {
		ids = append(ids, id)
	}
	m.mu.RUnlock()
	sort.Strings(ids)

	committees := make([]*domain.Committee, 0, len(ids))
	for _, id := range ids {
		c, _ := m.GetCommittee(ctx, id)
		committees = append(committees, c)
	}
	return committees, nil
}

func (m *MockGovernanceRepository) SavePolicy(ctx context.Context, tx usecase.Transaction, policy *domain.Policy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := *policy
	m.policies[policy.ProcessType] = &p
	return nil
}

func (m *MockGovernanceRepository) GetPolicyTx(ctx context.Context, tx usecase.Transaction, processType domain.ApprovalProcessType) (*domain.Policy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.policies[processType]
	if !ok {
		return nil, domain.ErrPolicyNotFound
	}
	copied := *p
	return &copied, nil
}

func (m *MockGovernanceRepository) ListPolicies(ctx context.Context) ([]*domain.Policy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var policies []*domain.Policy
	for _, p := range m.policies {
		copied := *p
		policies = append(policies, &copied)
	}
	sort.Slice(policies, func(i, j int) bool { return policies[i].ProcessType < policies[j].ProcessType })
	return policies, nil
}

// MockOutboxRepository is an in-memory OutboxRepository assigning sequences
// in insertion order.
type MockOutboxRepository struct {
	mu     sync.RWMutex
	events []*domain.OutboxEvent

	CreateFunc func(ctx context.Context, tx usecase.Transaction, event *domain.OutboxEvent) error
}

func NewMockOutboxRepository() *MockOutboxRepository {
	return &MockOutboxRepository{}
}

func (m *MockOutboxRepository) Snapshot() func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	events := append([]*domain.OutboxEvent(nil), m.events...)
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.events = events
	}
}

func (m *MockOutboxRepository) Create(ctx context.Context, tx usecase.Transaction, event *domain.OutboxEvent) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, tx, event)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	event.Sequence = int64(len(m.events) + 1)
	m.events = append(m.events, event)
	return nil
}

func (m *MockOutboxRepository) GetUnpublished(ctx context.Context, limit int) ([]*domain.OutboxEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var events []*domain.OutboxEvent
	for _, e := range m.events {
		if !e.Published {
			events = append(events, e)
		}
		if len(events) == limit {
			break
		}
	}
	return events, nil
}

func (m *MockOutboxRepository) GetAfterSequence(ctx context.Context, sequence int64, limit int) ([]*domain.OutboxEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var events []*domain.OutboxEvent
	for _, e := range m.events {
		if e.Sequence > sequence {
			events = append(events, e)
		}
		if len(events) == limit {
			break
		}
	}
	return events, nil
}

func (m *MockOutboxRepository) MarkPublished(ctx context.Context, id string, publishedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.events {
		if e.ID == id {
			e.Published = true
			at := publishedAt
			e.PublishedAt = &at
		}
	}
	return nil
}

func (m *MockOutboxRepository) GetByAggregate(ctx context.Context, aggregateType, aggregateID string, limit, offset int) ([]*domain.OutboxEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var events []*domain.OutboxEvent
	for _, e := range m.events {
		if e.AggregateType == aggregateType && e.AggregateID == aggregateID {
			events = append(events, e)
		}
	}
	if offset >= len(events) {
		return nil, nil
	}
	events = events[offset:]
	if len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

func (m *MockOutboxRepository) DeletePublished(ctx context.Context, before time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.events[:0]
	for _, e := range m.events {
		if !e.Published || e.PublishedAt == nil || !e.PublishedAt.Before(before) {
			kept = append(kept, e)
		}
	}
	m.events = kept
	return nil
}

// Events returns every stored event in sequence order.
func (m *MockOutboxRepository) Events() []*domain.OutboxEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*domain.OutboxEvent(nil), m.events...)
}

// EventsOfType returns the stored events with the given type.
func (m *MockOutboxRepository) EventsOfType(eventType string) []*domain.OutboxEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var events []*domain.OutboxEvent
	for _, e := range m.events {
		if e.EventType == eventType {
			events = append(events, e)
		}
	}
	return events
}

// MockAuditRepository is an in-memory AuditRepository.
type MockAuditRepository struct {
	mu   sync.RWMutex
	Logs []*domain.AuditLog

	CreateTxFunc func(ctx context.Context, tx usecase.Transaction, log *domain.AuditLog) error
}

func NewMockAuditRepository() *MockAuditRepository {
	return &MockAuditRepository{}
}

func (m *MockAuditRepository) Create(ctx context.Context, log *domain.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Logs = append(m.Logs, log)
	return nil
}

func (m *MockAuditRepository) CreateTx(ctx context.Context, tx usecase.Transaction, log *domain.AuditLog) error {
	if m.CreateTxFunc != nil {
		return m.CreateTxFunc(ctx, tx, log)
	}
	return m.Create(ctx, log)
}

func (m *MockAuditRepository) GetByResourceID(ctx context.Context, object domain.AuditObject, resourceID string) ([]*domain.AuditLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var logs []*domain.AuditLog
	for _, l := range m.Logs {
		if l.Object == object && l.ResourceID == resourceID {
			logs = append(logs, l)
		}
	}
	return logs, nil
}

// MockHistoryRepository is an in-memory HistoryRepository.
type MockHistoryRepository struct {
	mu      sync.RWMutex
	entries []*domain.HistoryEntry
	cursors map[string]int64
}

func NewMockHistoryRepository() *MockHistoryRepository {
	return &MockHistoryRepository{cursors: make(map[string]int64)}
}

func (m *MockHistoryRepository) Snapshot() func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := append([]*domain.HistoryEntry(nil), m.entries...)
	cursors := make(map[string]int64, len(m.cursors))
	for name, sequence := range m.cursors {
		cursors[name] = sequence
	}
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.entries = entries
		m.cursors = cursors
	}
}

func (m *MockHistoryRepository) Append(ctx context.Context, tx usecase.Transaction, entry *domain.HistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return nil
}

func (m *MockHistoryRepository) ListByFacility(ctx context.Context, facilityID string, limit, offset int) ([]*domain.HistoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var entries []*domain.HistoryEntry
	for _, e := range m.entries {
		if e.FacilityID == facilityID {
			entries = append(entries, e)
		}
	}
	if offset >= len(entries) {
		return nil, nil
	}
	entries = entries[offset:]
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (m *MockHistoryRepository) GetCursor(ctx context.Context, tx usecase.Transaction, name string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cursors[name], nil
}

func (m *MockHistoryRepository) SaveCursor(ctx context.Context, tx usecase.Transaction, name string, sequence int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cursors[name] = sequence
	return nil
}

// MockAuthorizer allows every action unless EnforceFunc says otherwise.
type MockAuthorizer struct {
	mu      sync.Mutex
	Actions []domain.AuditAction

	EnforceFunc   func(ctx context.Context, tx usecase.Transaction, object domain.AuditObject, resourceID string, action domain.AuditAction) (domain.AuditInfo, error)
	AuthorizeFunc func(ctx context.Context, action domain.AuditAction) error
}

func NewMockAuthorizer() *MockAuthorizer {
	return &MockAuthorizer{}
}

func (m *MockAuthorizer) Enforce(ctx context.Context, tx usecase.Transaction, object domain.AuditObject, resourceID string, action domain.AuditAction) (domain.AuditInfo, error) {
	if m.EnforceFunc != nil {
		return m.EnforceFunc(ctx, tx, object, resourceID, action)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Actions = append(m.Actions, action)
	return domain.AuditInfo{
		EntryID:    fmt.Sprintf("audit-%d", len(m.Actions)),
		Subject:    domain.UserFromContext(ctx).ID,
		RecordedAt: time.Now().UTC(),
	}, nil
}

func (m *MockAuthorizer) Authorize(ctx context.Context, action domain.AuditAction) error {
	if m.AuthorizeFunc != nil {
		return m.AuthorizeFunc(ctx, action)
	}
	return nil
}

// MockTransactionManager is a mock implementation of TransactionManager.
// Writes to tracked stores are undone when a transaction rolls back or fails
// to commit.
type MockTransactionManager struct {
	mu          sync.Mutex
	Begun       int
	Committed   int
	stores      []Snapshotter
	failCommits int
	commitErr   error

	BeginFunc func(ctx context.Context) (usecase.Transaction, error)
}

func NewMockTransactionManager() *MockTransactionManager {
	return &MockTransactionManager{}
}

// Track registers stores whose writes belong to the transactions.
func (m *MockTransactionManager) Track(stores ...Snapshotter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stores = append(m.stores, stores...)
}

// FailCommits makes the next n commits fail with err.
func (m *MockTransactionManager) FailCommits(n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failCommits = n
	m.commitErr = err
}

func (m *MockTransactionManager) Begin(ctx context.Context) (usecase.Transaction, error) {
	if m.BeginFunc != nil {
		return m.BeginFunc(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Begun++

	restores := make([]func(), 0, len(m.stores))
	for _, s := range m.stores {
		restores = append(restores, s.Snapshot())
	}
	done := false
	undo := func() {
		for i := len(restores) - 1; i >= 0; i-- {
			restores[i]()
		}
	}

	return &MockTransaction{
		CommitFunc: func(context.Context) error {
			m.mu.Lock()
			defer m.mu.Unlock()
			done = true
			if m.failCommits > 0 {
				m.failCommits--
				undo()
				return m.commitErr
			}
			m.Committed++
			return nil
		},
		RollbackFunc: func(context.Context) error {
			if done {
				return nil
			}
			done = true
			undo()
			return nil
		},
	}, nil
}

// MockTransaction is a mock implementation of Transaction.
type MockTransaction struct {
	CommitFunc   func(ctx context.Context) error
	RollbackFunc func(ctx context.Context) error
}

func (m *MockTransaction) Commit(ctx context.Context) error {
	if m.CommitFunc != nil {
		return m.CommitFunc(ctx)
	}
	return nil
}

func (m *MockTransaction) Rollback(ctx context.Context) error {
	if m.RollbackFunc != nil {
		return m.RollbackFunc(ctx)
	}
	return nil
}

// MockIDGenerator returns sequential ids.
type MockIDGenerator struct {
	GenerateFunc func() string
	counter      int
	mu           sync.Mutex
}

func NewMockIDGenerator() *MockIDGenerator {
	return &MockIDGenerator{}
}

func (m *MockIDGenerator) Generate() string {
	if m.GenerateFunc != nil {
		return m.GenerateFunc()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counter++
	return fmt.Sprintf("id-%03d", m.counter)
}
