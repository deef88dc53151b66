package chain

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

type SignatureState int

const (
	SignatureProcessing SignatureState = iota
	SignatureConfirmed
	SignatureFailed
)

// RPC is the slice of chain node functionality the adapter needs. The real
// implementation wraps a single shared rpc.Client.
type RPC interface {
	LatestBlockhash(ctx context.Context) (solana.Hash, uint64, error)
	BlockHeight(ctx context.Context) (uint64, error)
	Balance(ctx context.Context, account solana.PublicKey) (uint64, error)
	SignatureStatus(ctx context.Context, sig solana.Signature) (SignatureState, error)
}

type rpcNode struct {
	client *rpc.Client
}

func NewRPC(url string) (RPC, error) {
	if url == "" {
		return nil, fmt.Errorf("chain rpc url is required")
	}
	return &rpcNode{client: rpc.New(url)}, nil
}

func (n *rpcNode) LatestBlockhash(ctx context.Context) (solana.Hash, uint64, error) {
	out, err := n.client.GetLatestBlockhash(ctx, rpc.CommitmentConfirmed)
	if err != nil {
		return solana.Hash{}, 0, fmt.Errorf("get latest blockhash: %w", err)
	}
	if out == nil || out.Value == nil {
		return solana.Hash{}, 0, fmt.Errorf("empty blockhash response")
	}

	return out.Value.Blockhash, out.Value.LastValidBlockHeight, nil
}

func (n *rpcNode) BlockHeight(ctx context.Context) (uint64, error) {
	height, err := n.client.GetBlockHeight(ctx, rpc.CommitmentConfirmed)
	if err != nil {
		return 0, fmt.Errorf("get block height: %w", err)
	}
	return height, nil
}

func (n *rpcNode) Balance(ctx context.Context, account solana.PublicKey) (uint64, error) {
	out, err := n.client.GetBalance(ctx, account, rpc.CommitmentConfirmed)
	if err != nil {
		return 0, fmt.Errorf("get balance: %w", err)
	}
	if out == nil {
		return 0, fmt.Errorf("empty balance response")
	}
	return out.Value, nil
}

func (n *rpcNode) SignatureStatus(ctx context.Context, sig solana.Signature) (SignatureState, error) {
	out, err := n.client.GetSignatureStatuses(ctx, false, sig)
	if err != nil {
		return SignatureProcessing, fmt.Errorf("get signature status: %w", err)
	}
	if out == nil || len(out.Value) == 0 || out.Value[0] == nil {
		return SignatureProcessing, nil
	}

	status := out.Value[0]
	if status.Err != nil {
		return SignatureFailed, nil
	}
	switch status.ConfirmationStatus {
	case rpc.ConfirmationStatusConfirmed, rpc.ConfirmationStatusFinalized:
		return SignatureConfirmed, nil
	default:
		return SignatureProcessing, nil
	}
}
