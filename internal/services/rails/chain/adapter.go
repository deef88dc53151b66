package chain

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"go.uber.org/zap"

	"github.com/craftora/marketplace/internal/domain/model"
)

type Wallet interface {
	Account(ctx context.Context) (solana.PublicKey, error)
	SignAndSend(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
}

// Recorder persists a settled transfer as a completed purchase. The recipient
// already has the funds when it runs, so implementations must be idempotent
// on the signature.
type Recorder interface {
	RecordTransfer(ctx context.Context, req RecordRequest) error
}

type RecordRequest struct {
	BuyerID     int64
	ItemID      string
	AmountMinor int64
	Network     string
	Signature   string
}

// Adapter settles purchases over the native chain. Unlike the other rails the
// payment happens before anything is persisted: the buyer's wallet signs and
// broadcasts, confirmation is awaited against the blockhash validity horizon,
// and only then is the ledger row recorded. The record call retries with
// backoff off the caller's path since the transfer is already irreversible.
type Adapter struct {
	rpc       RPC
	wallet    Wallet
	recorder  Recorder
	converter Converter
	recipient solana.PublicKey
	network   string

	pollInterval  time.Duration
	recordRetries int
	recordBackoff time.Duration

	logger *zap.Logger
}

type Config struct {
	RPC              RPC
	Wallet           Wallet
	Recorder         Recorder
	Converter        Converter
	RecipientAddress string
	Network          string
	PollInterval     time.Duration
	RecordRetries    int
	RecordBackoff    time.Duration
	Logger           *zap.Logger
}

func NewAdapter(cfg Config) (*Adapter, error) {
	if cfg.RPC == nil || cfg.Wallet == nil || cfg.Recorder == nil {
		return nil, fmt.Errorf("chain adapter dependencies are incomplete")
	}
	// A zero-value converter would clamp every price to one lamport.
	if !cfg.Converter.lamportsPerMinor.IsPositive() {
		return nil, fmt.Errorf("chain adapter requires a converter with a positive ratio")
	}

	recipient, err := solana.PublicKeyFromBase58(cfg.RecipientAddress)
	if err != nil {
		return nil, fmt.Errorf("parse recipient address: %w", err)
	}

	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.RecordRetries <= 0 {
		cfg.RecordRetries = 5
	}
	if cfg.RecordBackoff <= 0 {
		cfg.RecordBackoff = time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Adapter{
		rpc:           cfg.RPC,
		wallet:        cfg.Wallet,
		recorder:      cfg.Recorder,
		converter:     cfg.Converter,
		recipient:     recipient,
		network:       cfg.Network,
		pollInterval:  cfg.PollInterval,
		recordRetries: cfg.RecordRetries,
		recordBackoff: cfg.RecordBackoff,
		logger:        cfg.Logger,
	}, nil
}

// Pay transfers the item price from the buyer's wallet to the platform
// recipient and returns the transaction signature once confirmed. The caller
// may treat the purchase as fulfilled immediately; recording happens in the
// background.
func (a *Adapter) Pay(ctx context.Context, buyerID int64, item model.Item) (string, error) {
	if buyerID <= 0 || item.ID == "" || item.PriceMinor <= 0 {
		return "", fmt.Errorf("invalid chain payment payload")
	}

	account, err := a.wallet.Account(ctx)
	if err != nil {
		return "", err
	}

	lamports := a.converter.Lamports(item.PriceMinor)
	balance, err := a.rpc.Balance(ctx, account)
	if err != nil {
		return "", err
	}
	if balance < lamports {
		return "", ErrInsufficientFunds
	}

	blockhash, lastValidHeight, err := a.rpc.LatestBlockhash(ctx)
	if err != nil {
		return "", err
	}

	transfer := system.NewTransferInstruction(lamports, account, a.recipient).Build()
	tx, err := solana.NewTransaction(
		[]solana.Instruction{transfer},
		blockhash,
		solana.TransactionPayer(account),
	)
	if err != nil {
		return "", fmt.Errorf("build transfer transaction: %w", err)
	}

	sig, err := a.wallet.SignAndSend(ctx, tx)
	if err != nil {
		return "", err
	}

	if err := a.awaitConfirmation(ctx, sig, lastValidHeight); err != nil {
		return "", err
	}

	go a.recordWithRetry(RecordRequest{
		BuyerID:     buyerID,
		ItemID:      item.ID,
		AmountMinor: item.PriceMinor,
		Network:     a.network,
		Signature:   sig.String(),
	})

	return sig.String(), nil
}

// awaitConfirmation polls at the confirmed commitment level. The blockhash
// validity horizon is the hard timeout: once the chain moves past it the
// transaction can no longer land.
func (a *Adapter) awaitConfirmation(ctx context.Context, sig solana.Signature, lastValidHeight uint64) error {
	ticker := time.NewTicker(a.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		state, err := a.rpc.SignatureStatus(ctx, sig)
		if err == nil {
			switch state {
			case SignatureConfirmed:
				return nil
			case SignatureFailed:
				return ErrTransferFailed
			}
		}

		height, heightErr := a.rpc.BlockHeight(ctx)
		if heightErr != nil {
			continue
		}
		if height > lastValidHeight {
			return ErrBlockhashExpired
		}
	}
}

func (a *Adapter) recordWithRetry(req RecordRequest) {
	// Detached from the request context: the buyer already saw success.
	ctx := context.Background()

	var err error
	for attempt := 1; attempt <= a.recordRetries; attempt++ {
		recordCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err = a.recorder.RecordTransfer(recordCtx, req)
		cancel()
		if err == nil {
			return
		}
		time.Sleep(a.recordBackoff * time.Duration(attempt))
	}

	a.logger.Error("chain purchase record failed after retries",
		zap.String("signature", req.Signature),
		zap.String("item_id", req.ItemID),
		zap.Int64("buyer_id", req.BuyerID),
		zap.Error(err),
	)
}
