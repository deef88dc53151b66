package chain

import "errors"

var (
	ErrInsufficientFunds = errors.New("insufficient on-chain balance")
	ErrBlockhashExpired  = errors.New("blockhash validity horizon expired before confirmation")
	ErrTransferFailed    = errors.New("on-chain transfer failed")
)
