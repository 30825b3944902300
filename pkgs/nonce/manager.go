// Package nonce hands out transaction sequence numbers for one signing
// account. Callers must serialize Acquire/Commit; the submission queue does.
package nonce

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	log "github.com/sirupsen/logrus"
)

// Source reports the node's pending nonce for an account
type Source interface {
	PendingNonce(ctx context.Context, account common.Address) (uint64, error)
}

// Manager tracks the next nonce locally and reconciles it with the node.
// The node's pending count is always consulted; the local sequence moves it
// forward, covering transactions the node has accepted but not yet
// reflected. Rewind moves it back when a committed transaction was lost.
type Manager struct {
	mu      sync.Mutex
	source  Source
	account common.Address
	next    uint64
	synced  bool
}

// NewManager creates a manager for account
func NewManager(source Source, account common.Address) *Manager {
	return &Manager{source: source, account: account}
}

// Acquire returns the nonce the next transaction must use
func (m *Manager) Acquire(ctx context.Context) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pending, err := m.source.PendingNonce(ctx, m.account)
	if err != nil {
		return 0, err
	}

	if !m.synced || pending > m.next {
		if m.synced {
			log.WithFields(log.Fields{
				"account": m.account.Hex(),
				"local":   m.next,
				"pending": pending,
			}).Warn("Node nonce ahead of local sequence, adopting node value")
		}
		m.next = pending
		m.synced = true
	}
	return m.next, nil
}

// Commit records that nonce was consumed by a broadcast transaction
func (m *Manager) Commit(nonce uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if nonce+1 > m.next {
		m.next = nonce + 1
	}
}

// Reset drops the local sequence so the next Acquire trusts the node alone
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.synced = false
	m.next = 0
}

// Rewind moves the local sequence back to the node's pending nonce when the
// node no longer accounts for nonce, a value handed out earlier. A dropped or
// evicted transaction otherwise leaves every later one queued behind a gap.
// It reports whether the sequence moved.
func (m *Manager) Rewind(ctx context.Context, nonce uint64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pending, err := m.source.PendingNonce(ctx, m.account)
	if err != nil {
		return false, err
	}
	if !m.synced || pending > nonce || pending >= m.next {
		return false, nil
	}

	log.WithFields(log.Fields{
		"account": m.account.Hex(),
		"local":   m.next,
		"pending": pending,
		"lost":    nonce,
	}).Warn("Node lost a committed nonce, rewinding local sequence")
	m.next = pending
	return true, nil
}
