package wallet

import (
	"context"
	"errors"
	"sync"

	"github.com/gagliardetto/solana-go"
)

var (
	ErrNotInstalled    = errors.New("wallet extension is not installed")
	ErrNotConnected    = errors.New("wallet is not connected")
	ErrSigningRejected = errors.New("wallet signing was rejected")
)

// Extension is the narrow capability surface of the buyer's wallet. Connect
// may prompt the user; SignAndSend signs and broadcasts in a single call so
// the raw key never crosses this boundary.
type Extension interface {
	Connect(ctx context.Context) (solana.PublicKey, error)
	SignAndSend(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
	OnAccountChange(fn func(solana.PublicKey)) (unsubscribe func())
}

// Session owns the wallet connection for one buyer session. The connection is
// established lazily on first use and reused afterwards; an account change
// signalled by the extension invalidates it, so the next use reconnects
// against the new account.
type Session struct {
	mu          sync.Mutex
	ext         Extension
	account     *solana.PublicKey
	unsubscribe func()
}

func NewSession(ext Extension) *Session {
	return &Session{ext: ext}
}

func (s *Session) Account(ctx context.Context) (solana.PublicKey, error) {
	if s == nil || s.ext == nil {
		return solana.PublicKey{}, ErrNotInstalled
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.account != nil {
		return *s.account, nil
	}

	account, err := s.ext.Connect(ctx)
	if err != nil {
		return solana.PublicKey{}, err
	}

	s.account = &account
	if s.unsubscribe == nil {
		s.unsubscribe = s.ext.OnAccountChange(func(next solana.PublicKey) {
			s.invalidate(next)
		})
	}

	return account, nil
}

func (s *Session) SignAndSend(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	if s == nil || s.ext == nil {
		return solana.Signature{}, ErrNotInstalled
	}

	s.mu.Lock()
	connected := s.account != nil
	s.mu.Unlock()
	if !connected {
		return solana.Signature{}, ErrNotConnected
	}

	return s.ext.SignAndSend(ctx, tx)
}

func (s *Session) Connected() bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.account != nil
}

func (s *Session) Disconnect() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.account = nil
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
}

// invalidate drops the cached account after the extension reports a switch.
// The subscription stays alive; only the connection is re-established.
func (s *Session) invalidate(next solana.PublicKey) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.account != nil && s.account.Equals(next) {
		return
	}
	s.account = nil
}
