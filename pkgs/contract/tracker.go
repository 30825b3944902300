// Package contract packs and unpacks calls to the provenance tracker contract.
package contract

import (
	"context"
	"fmt"
	"math"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/naveenchin/tt-backend/pkgs/chain"
	"github.com/naveenchin/tt-backend/pkgs/fault"
)

// MaxTimestamp is the largest stored timestamp, in seconds, that still fits
// in int64 once converted to milliseconds
const MaxTimestamp = math.MaxInt64 / 1000

// Tracker binds the tracker ABI to a deployed address
type Tracker struct {
	abi     abi.ABI
	address common.Address
}

// StageMeta is the decoded result of getStageMeta
type StageMeta struct {
	Comments  string
	MediaRef  string
	Timestamp uint64 // seconds, as stored by the block
	Submitter common.Address
}

// stageMetaOutput mirrors the named outputs of getStageMeta for abi unpacking
type stageMetaOutput struct {
	Comments  string
	MediaIpfs string
	Timestamp *big.Int
	Submitter common.Address
}

// NewTracker creates a tracker binding
func NewTracker(parsed abi.ABI, address common.Address) *Tracker {
	return &Tracker{abi: parsed, address: address}
}

// Address returns the contract address
func (t *Tracker) Address() common.Address {
	return t.address
}

// PackAddStage builds calldata for addStage
func (t *Tracker) PackAddStage(productID, eventID string, keyValuePairs []string, comments, mediaRef string) ([]byte, error) {
	if keyValuePairs == nil {
		keyValuePairs = []string{}
	}
	data, err := t.abi.Pack("addStage", productID, eventID, keyValuePairs, comments, mediaRef)
	if err != nil {
		return nil, fmt.Errorf("failed to pack addStage call: %w", err)
	}
	return data, nil
}

// Reader performs the read-only tracker calls through a chain client
type Reader struct {
	tracker *Tracker
	client  chain.Client
}

// NewReader creates a tracker reader
func NewReader(tracker *Tracker, client chain.Client) *Reader {
	return &Reader{tracker: tracker, client: client}
}

// StageIDs lists every recorded event id for productID in contract order
func (r *Reader) StageIDs(ctx context.Context, productID string) ([]string, error) {
	var ids []string
	if err := r.call(ctx, &ids, "getStageIds", productID); err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

// StageData returns the encoded field entries of one event
func (r *Reader) StageData(ctx context.Context, productID, eventID string) ([]string, error) {
	var entries []string
	if err := r.call(ctx, &entries, "getStageData", productID, eventID); err != nil {
		return nil, err
	}
	return entries, nil
}

// StageMeta returns comments, media reference, block timestamp and submitter
// of one event
func (r *Reader) StageMeta(ctx context.Context, productID, eventID string) (*StageMeta, error) {
	var out stageMetaOutput
	if err := r.call(ctx, &out, "getStageMeta", productID, eventID); err != nil {
		return nil, err
	}
	if out.Timestamp == nil || !out.Timestamp.IsUint64() || out.Timestamp.Uint64() > MaxTimestamp {
		return nil, fault.Newf(fault.Read, "unpack getStageMeta", "timestamp out of range: %v", out.Timestamp)
	}

	return &StageMeta{
		Comments:  out.Comments,
		MediaRef:  out.MediaIpfs,
		Timestamp: out.Timestamp.Uint64(),
		Submitter: out.Submitter,
	}, nil
}

func (r *Reader) call(ctx context.Context, out interface{}, method string, args ...interface{}) error {
	data, err := r.tracker.abi.Pack(method, args...)
	if err != nil {
		return fault.Wrap(fault.Internal, "pack "+method, err)
	}

	result, err := r.client.Call(ctx, ethereum.CallMsg{
		To:   &r.tracker.address,
		Data: data,
	})
	if err != nil {
		return err
	}
	if len(result) == 0 {
		return fault.Newf(fault.Read, method, "empty return data from %s", r.tracker.address.Hex())
	}

	if err := r.tracker.abi.UnpackIntoInterface(out, method, result); err != nil {
		return fault.Wrap(fault.Read, "unpack "+method, err)
	}
	return nil
}
