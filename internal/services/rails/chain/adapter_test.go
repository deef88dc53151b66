package chain

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/craftora/marketplace/internal/domain/model"
	"github.com/craftora/marketplace/internal/services/wallet"
)

type stubRPC struct {
	blockhash       solana.Hash
	lastValidHeight uint64
	height          uint64
	balance         uint64

	states     []SignatureState
	statusHits int
}

func (s *stubRPC) LatestBlockhash(_ context.Context) (solana.Hash, uint64, error) {
	return s.blockhash, s.lastValidHeight, nil
}

func (s *stubRPC) BlockHeight(_ context.Context) (uint64, error) {
	return s.height, nil
}

func (s *stubRPC) Balance(_ context.Context, _ solana.PublicKey) (uint64, error) {
	return s.balance, nil
}

func (s *stubRPC) SignatureStatus(_ context.Context, _ solana.Signature) (SignatureState, error) {
	s.statusHits++
	if len(s.states) == 0 {
		return SignatureProcessing, nil
	}
	state := s.states[0]
	if len(s.states) > 1 {
		s.states = s.states[1:]
	}
	return state, nil
}

type stubWallet struct {
	account solana.PublicKey
	signErr error
	lastTx  *solana.Transaction
}

func (s *stubWallet) Account(_ context.Context) (solana.PublicKey, error) {
	return s.account, nil
}

func (s *stubWallet) SignAndSend(_ context.Context, tx *solana.Transaction) (solana.Signature, error) {
	s.lastTx = tx
	if s.signErr != nil {
		return solana.Signature{}, s.signErr
	}
	return solana.Signature{7}, nil
}

type captureRecorder struct {
	mu       sync.Mutex
	requests []RecordRequest
	failures int
	done     chan struct{}
}

func newCaptureRecorder(failures int) *captureRecorder {
	return &captureRecorder{failures: failures, done: make(chan struct{}, 8)}
}

func (r *captureRecorder) RecordTransfer(_ context.Context, req RecordRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failures > 0 {
		r.failures--
		return errors.New("ledger unavailable")
	}
	r.requests = append(r.requests, req)
	r.done <- struct{}{}
	return nil
}

const (
	testBuyerAddr     = "11111111111111111111111111111112"
	testRecipientAddr = "So11111111111111111111111111111111111111112"
)

func newTestAdapter(t *testing.T, rpcStub *stubRPC, walletStub *stubWallet, recorder Recorder) *Adapter {
	t.Helper()

	converter, err := NewConverter("1000")
	if err != nil {
		t.Fatalf("new converter: %v", err)
	}

	adapter, err := NewAdapter(Config{
		RPC:              rpcStub,
		Wallet:           walletStub,
		Recorder:         recorder,
		Converter:        converter,
		RecipientAddress: testRecipientAddr,
		Network:          "mainnet",
		PollInterval:     time.Millisecond,
		RecordRetries:    3,
		RecordBackoff:    time.Millisecond,
	})
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	return adapter
}

func TestNewAdapterRejectsUnsetConverter(t *testing.T) {
	_, err := NewAdapter(Config{
		RPC:              &stubRPC{},
		Wallet:           &stubWallet{},
		Recorder:         newCaptureRecorder(0),
		RecipientAddress: testRecipientAddr,
	})
	if err == nil {
		t.Fatalf("expected an error for a zero-value converter")
	}
}

func TestPayConfirmsAndRecordsInBackground(t *testing.T) {
	rpcStub := &stubRPC{
		lastValidHeight: 100,
		height:          50,
		balance:         1 << 40,
		states:          []SignatureState{SignatureProcessing, SignatureConfirmed},
	}
	walletStub := &stubWallet{account: solana.MustPublicKeyFromBase58(testBuyerAddr)}
	recorder := newCaptureRecorder(0)
	adapter := newTestAdapter(t, rpcStub, walletStub, recorder)

	sig, err := adapter.Pay(context.Background(), 5, model.Item{ID: "itm-1", PriceMinor: 1000})
	if err != nil {
		t.Fatalf("pay: %v", err)
	}
	if sig == "" {
		t.Fatalf("expected a transaction signature")
	}
	if walletStub.lastTx == nil {
		t.Fatalf("wallet never received the transaction")
	}

	select {
	case <-recorder.done:
	case <-time.After(time.Second):
		t.Fatalf("record call never happened")
	}

	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	if len(recorder.requests) != 1 {
		t.Fatalf("expected one record, got %d", len(recorder.requests))
	}
	req := recorder.requests[0]
	if req.Signature != sig || req.ItemID != "itm-1" || req.BuyerID != 5 || req.AmountMinor != 1000 {
		t.Fatalf("unexpected record request: %+v", req)
	}
}

func TestPayRetriesRecordWithBackoff(t *testing.T) {
	rpcStub := &stubRPC{lastValidHeight: 100, height: 50, balance: 1 << 40, states: []SignatureState{SignatureConfirmed}}
	walletStub := &stubWallet{account: solana.MustPublicKeyFromBase58(testBuyerAddr)}
	recorder := newCaptureRecorder(2)
	adapter := newTestAdapter(t, rpcStub, walletStub, recorder)

	if _, err := adapter.Pay(context.Background(), 5, model.Item{ID: "itm-1", PriceMinor: 1000}); err != nil {
		t.Fatalf("pay: %v", err)
	}

	select {
	case <-recorder.done:
	case <-time.After(time.Second):
		t.Fatalf("record did not succeed after retries")
	}
}

func TestPayFailsWhenHorizonExpires(t *testing.T) {
	rpcStub := &stubRPC{lastValidHeight: 100, height: 101, balance: 1 << 40}
	walletStub := &stubWallet{account: solana.MustPublicKeyFromBase58(testBuyerAddr)}
	adapter := newTestAdapter(t, rpcStub, walletStub, newCaptureRecorder(0))

	_, err := adapter.Pay(context.Background(), 5, model.Item{ID: "itm-1", PriceMinor: 1000})
	if !errors.Is(err, ErrBlockhashExpired) {
		t.Fatalf("expected ErrBlockhashExpired, got %v", err)
	}
}

func TestPayRejectsUnderfundedAccount(t *testing.T) {
	// 1000 minor units at ratio 1000 needs 1_000_000 lamports.
	rpcStub := &stubRPC{lastValidHeight: 100, height: 50, balance: 999_999}
	walletStub := &stubWallet{account: solana.MustPublicKeyFromBase58(testBuyerAddr)}
	adapter := newTestAdapter(t, rpcStub, walletStub, newCaptureRecorder(0))

	_, err := adapter.Pay(context.Background(), 5, model.Item{ID: "itm-1", PriceMinor: 1000})
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if walletStub.lastTx != nil {
		t.Fatalf("underfunded payment must never reach the wallet")
	}
}

func TestPaySurfacesSigningRejection(t *testing.T) {
	rpcStub := &stubRPC{lastValidHeight: 100, height: 50, balance: 1 << 40}
	walletStub := &stubWallet{
		account: solana.MustPublicKeyFromBase58(testBuyerAddr),
		signErr: wallet.ErrSigningRejected,
	}
	recorder := newCaptureRecorder(0)
	adapter := newTestAdapter(t, rpcStub, walletStub, recorder)

	_, err := adapter.Pay(context.Background(), 5, model.Item{ID: "itm-1", PriceMinor: 1000})
	if !errors.Is(err, wallet.ErrSigningRejected) {
		t.Fatalf("expected signing rejection, got %v", err)
	}

	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	if len(recorder.requests) != 0 {
		t.Fatalf("no record may exist after a rejected signing")
	}
}

func TestConverterClampsToOneLamport(t *testing.T) {
	converter, err := NewConverter("0.0001")
	if err != nil {
		t.Fatalf("new converter: %v", err)
	}

	if got := converter.Lamports(1); got != 1 {
		t.Fatalf("expected minimum of 1 lamport, got %d", got)
	}
	if got := converter.Lamports(50000); got != 5 {
		t.Fatalf("expected 5 lamports for 50000 minor units, got %d", got)
	}
	if got := converter.Lamports(0); got != 0 {
		t.Fatalf("expected 0 lamports for non-positive amount, got %d", got)
	}
}
