// Package redis builds the Redis keys and channels the relay writes.
package redis

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// KeyBuilder provides methods to generate namespaced Redis keys
type KeyBuilder struct {
	Namespace string
	Contract  string
}

// checksumAddress converts an Ethereum address to checksummed format (EIP-55).
// Non-address identifiers are returned unchanged.
func checksumAddress(addr string) string {
	if addr == "" {
		return addr
	}
	if common.IsHexAddress(addr) {
		return common.HexToAddress(addr).Hex()
	}
	return addr
}

// NewKeyBuilder creates a KeyBuilder scoped to one tracker contract
func NewKeyBuilder(namespace, contract string) *KeyBuilder {
	if namespace == "" {
		namespace = "relay"
	}
	return &KeyBuilder{
		Namespace: namespace,
		Contract:  checksumAddress(contract),
	}
}

// Media Keys

// MediaReference returns the key holding the content reference for a blob digest
func (kb *KeyBuilder) MediaReference(digest string) string {
	return fmt.Sprintf("%s:media:%s", kb.Namespace, digest)
}

// Event Keys

// EventsChannel returns the pub/sub channel for relay events
func (kb *KeyBuilder) EventsChannel() string {
	return fmt.Sprintf("%s:%s:events", kb.Namespace, kb.Contract)
}

// SubmissionTimeline returns the sorted set of submitted event ids, scored by time
func (kb *KeyBuilder) SubmissionTimeline() string {
	return fmt.Sprintf("%s:%s:submissions:timeline", kb.Namespace, kb.Contract)
}

// ProductTimeline returns the sorted set of event ids submitted for one product
func (kb *KeyBuilder) ProductTimeline(productID string) string {
	return fmt.Sprintf("%s:%s:product:%s:submissions", kb.Namespace, kb.Contract, productID)
}

// Submission returns the hash holding one submission's transaction record
func (kb *KeyBuilder) Submission(eventID string) string {
	return fmt.Sprintf("%s:%s:submission:%s", kb.Namespace, kb.Contract, eventID)
}
