// Package submission turns a stage request into a signed addStage
// transaction broadcast from the relay's account.
package submission

import (
	"math/big"
	"time"

	"github.com/naveenchin/tt-backend/pkgs/fields"
	"github.com/naveenchin/tt-backend/pkgs/media"
)

const (
	DefaultGasBufferPercent    = 20
	DefaultConfirmationTimeout = 2 * time.Minute
	DefaultQueueSize           = 64
)

// Request is one stage to record for a product
type Request struct {
	ProductID string
	Fields    []fields.Pair
	Comments  string
	Media     []media.Blob
}

// TransactionRecord describes the broadcast addStage transaction.
// GasUsedEstimate is the buffered gas limit the transaction carried.
type TransactionRecord struct {
	EventID         string   `json:"eventId"`
	TransactionHash string   `json:"transactionHash"`
	GasUsedEstimate uint64   `json:"gasUsedEstimate"`
	GasPriceUsed    *big.Int `json:"gasPriceUsed"`
	Nonce           uint64   `json:"nonce"`
	MediaRef        string   `json:"mediaRef,omitempty"`

	// Set only when the pipeline waits for the receipt
	Confirmed   bool   `json:"confirmed"`
	BlockNumber uint64 `json:"blockNumber,omitempty"`
	GasUsed     uint64 `json:"gasUsed,omitempty"`
}

// Config tunes the pipeline
type Config struct {
	GasBufferPercent    uint64
	WaitForConfirmation bool
	ConfirmationTimeout time.Duration
	QueueSize           int
}

// DefaultConfig returns the pipeline defaults
func DefaultConfig() Config {
	return Config{
		GasBufferPercent:    DefaultGasBufferPercent,
		WaitForConfirmation: true,
		ConfirmationTimeout: DefaultConfirmationTimeout,
		QueueSize:           DefaultQueueSize,
	}
}

// BufferedGasLimit adds percent on top of the estimate, rounding down
func BufferedGasLimit(estimate, percent uint64) uint64 {
	return estimate * (100 + percent) / 100
}
