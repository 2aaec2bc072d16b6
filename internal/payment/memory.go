package payment

import (
	"context"
	"sync"
	"time"
)

type memoryStore struct {
	mu    sync.Mutex
	byID  map[string]*Payment
	byRef map[string]string // provider:providerPaymentID -> id
}

// NewMemoryStore creates a concurrency-safe in-memory payment store for tests.
func NewMemoryStore() Store {
	return &memoryStore{byID: make(map[string]*Payment), byRef: make(map[string]string)}
}

func refKey(providerName, providerPaymentID string) string {
	return providerName + ":" + providerPaymentID
}

func (s *memoryStore) Insert(_ context.Context, p *Payment) (*Payment, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := refKey(p.ProviderName, p.ProviderPaymentID)
	if id, exists := s.byRef[key]; exists {
		return clonePayment(s.byID[id]), false, nil
	}
	s.byID[p.ID] = clonePayment(p)
	s.byRef[key] = p.ID
	return clonePayment(p), true, nil
}

func (s *memoryStore) Get(_ context.Context, id string) (*Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clonePayment(p), nil
}

func (s *memoryStore) FindByProviderRef(_ context.Context, providerName, providerPaymentID string) (*Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byRef[refKey(providerName, providerPaymentID)]
	if !ok {
		return nil, ErrNotFound
	}
	return clonePayment(s.byID[id]), nil
}

func (s *memoryStore) UpdateStatus(_ context.Context, id string, to Status, providerData map[string]string) (*Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	if p.Status != to {
		if !CanTransition(p.Status, to) {
			return clonePayment(p), ErrAnomalousStatus
		}
		p.Status = to
	}
	if p.ProviderData == nil {
		p.ProviderData = make(map[string]string, len(providerData))
	}
	for k, v := range providerData {
		p.ProviderData[k] = v
	}
	p.UpdatedAt = time.Now().UTC()
	return clonePayment(p), nil
}

func clonePayment(p *Payment) *Payment {
	cp := *p
	cp.Metadata = cloneMap(p.Metadata)
	cp.ProviderData = cloneMap(p.ProviderData)
	return &cp
}

func cloneMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
