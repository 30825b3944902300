package submission

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"github.com/naveenchin/tt-backend/pkgs/chain"
	"github.com/naveenchin/tt-backend/pkgs/contract"
	"github.com/naveenchin/tt-backend/pkgs/events"
	"github.com/naveenchin/tt-backend/pkgs/fault"
	"github.com/naveenchin/tt-backend/pkgs/fields"
	"github.com/naveenchin/tt-backend/pkgs/media"
	"github.com/naveenchin/tt-backend/pkgs/metrics"
	"github.com/naveenchin/tt-backend/pkgs/nonce"
	log "github.com/sirupsen/logrus"
)

const (
	component          = "submission"
	nonceRewindTimeout = 10 * time.Second
)

// Pipeline validates, encodes, signs and broadcasts stage submissions
type Pipeline struct {
	client   chain.Client
	tracker  *contract.Tracker
	signer   chain.Signer
	nonces   *nonce.Manager
	resolver media.Resolver
	sink     events.Sink
	queue    *Queue
	cfg      Config

	newEventID func() string
}

// NewPipeline wires a pipeline. resolver and sink may be nil; without a
// resolver media references are content digests.
func NewPipeline(client chain.Client, tracker *contract.Tracker, signer chain.Signer, resolver media.Resolver, sink events.Sink, cfg Config) *Pipeline {
	if resolver == nil {
		resolver = media.DigestResolver{}
	}
	if cfg.ConfirmationTimeout <= 0 {
		cfg.ConfirmationTimeout = DefaultConfirmationTimeout
	}
	return &Pipeline{
		client:     client,
		tracker:    tracker,
		signer:     signer,
		nonces:     nonce.NewManager(client, signer.Address()),
		resolver:   resolver,
		sink:       sink,
		queue:      NewQueue(cfg.QueueSize),
		cfg:        cfg,
		newEventID: uuid.NewString,
	}
}

// Start launches the signing queue
func (p *Pipeline) Start() {
	p.queue.Start()
	log.WithFields(log.Fields{
		"account":  p.signer.Address().Hex(),
		"contract": p.tracker.Address().Hex(),
	}).Info("Submission pipeline started")
}

// Stop drains queued submissions
func (p *Pipeline) Stop() {
	p.queue.Stop()
	log.Info("Submission pipeline stopped")
}

// Account returns the signing address
func (p *Pipeline) Account() string {
	return p.signer.Address().Hex()
}

// Submit records one stage on chain. Validation and estimation failures
// never reach the network; broadcast failures are classified and returned
// without retry.
func (p *Pipeline) Submit(ctx context.Context, req *Request) (*TransactionRecord, error) {
	start := time.Now()

	if req == nil || strings.TrimSpace(req.ProductID) == "" {
		return nil, p.fail(ctx, req, "", fault.New(fault.Validation, "submit stage", "productId is required"))
	}
	if err := fields.Validate(req.Fields); err != nil {
		return nil, p.fail(ctx, req, "", err)
	}

	eventID := p.newEventID()
	keyValuePairs := fields.Encode(req.Fields)

	// Stored media is not rolled back if a later step fails
	refs, err := p.resolver.Resolve(ctx, req.Media)
	if err != nil {
		return nil, p.fail(ctx, req, eventID, err)
	}
	mediaRef := media.JoinReferences(refs)

	data, err := p.tracker.PackAddStage(req.ProductID, eventID, keyValuePairs, req.Comments, mediaRef)
	if err != nil {
		return nil, p.fail(ctx, req, eventID, fault.Wrap(fault.Validation, "pack addStage", err))
	}

	to := p.tracker.Address()
	estimate, err := p.client.EstimateGas(ctx, ethereum.CallMsg{
		From: p.signer.Address(),
		To:   &to,
		Data: data,
	})
	if err != nil {
		return nil, p.fail(ctx, req, eventID, err)
	}
	gasLimit := BufferedGasLimit(estimate, p.cfg.GasBufferPercent)

	record := &TransactionRecord{
		EventID:         eventID,
		GasUsedEstimate: gasLimit,
		MediaRef:        mediaRef,
	}

	var signedTx *types.Transaction
	err = p.queue.Do(ctx, func(ctx context.Context) error {
		tx, err := p.broadcast(ctx, data, gasLimit, record)
		signedTx = tx
		return err
	})
	if err != nil {
		return nil, p.fail(ctx, req, eventID, fault.Classify("queue submission", err, fault.Internal))
	}

	metrics.GasLimit.Observe(float64(gasLimit))
	metrics.SubmissionDuration.WithLabelValues("broadcast").Observe(time.Since(start).Seconds())

	log.WithFields(log.Fields{
		"product_id": req.ProductID,
		"event_id":   eventID,
		"tx_hash":    record.TransactionHash,
		"nonce":      record.Nonce,
		"gas_limit":  gasLimit,
		"estimate":   estimate,
	}).Info("Stage transaction broadcast")

	p.emit(ctx, events.EventStageSubmitted, events.SeverityInfo, req.ProductID, eventID, "", payloadFor(record, start))

	if p.cfg.WaitForConfirmation {
		if err := p.confirm(ctx, signedTx, record); err != nil {
			return nil, p.fail(ctx, req, eventID, err)
		}
		if record.Confirmed {
			metrics.SubmissionDuration.WithLabelValues("confirmed").Observe(time.Since(start).Seconds())
			p.emit(ctx, events.EventStageConfirmed, events.SeverityInfo, req.ProductID, eventID, "", payloadFor(record, start))
		}
	}

	metrics.Submissions.WithLabelValues("success").Inc()
	return record, nil
}

// broadcast runs inside the queue: nonce, price, sign, send
func (p *Pipeline) broadcast(ctx context.Context, data []byte, gasLimit uint64, record *TransactionRecord) (*types.Transaction, error) {
	gasPrice, err := p.client.GasPrice(ctx)
	if err != nil {
		return nil, err
	}

	n, err := p.nonces.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	tx := types.NewTransaction(n, p.tracker.Address(), big.NewInt(0), gasLimit, gasPrice, data)
	signedTx, err := p.signer.SignTx(tx)
	if err != nil {
		return nil, fault.Wrap(fault.Internal, "sign transaction", err)
	}

	hash, err := p.client.SendSigned(ctx, signedTx)
	if err != nil {
		if fault.IsNonceConflict(err) {
			log.WithError(err).WithField("nonce", n).Warn("Nonce rejected by node, resyncing")
			p.nonces.Reset()
		}
		return nil, err
	}
	p.nonces.Commit(n)

	record.TransactionHash = hash.Hex()
	record.GasPriceUsed = gasPrice
	record.Nonce = n
	return signedTx, nil
}

// confirm waits for the receipt. A timeout leaves the record unconfirmed;
// a failed receipt is a Revert.
func (p *Pipeline) confirm(ctx context.Context, tx *types.Transaction, record *TransactionRecord) error {
	waitCtx, cancel := context.WithTimeout(ctx, p.cfg.ConfirmationTimeout)
	defer cancel()

	receipt, err := p.client.WaitMined(waitCtx, tx)
	if err != nil {
		log.WithFields(log.Fields{
			"tx_hash":  record.TransactionHash,
			"event_id": record.EventID,
			"timeout":  p.cfg.ConfirmationTimeout,
		}).WithError(err).Warn("Stage transaction not confirmed in time, it may still be mined")
		p.rewindNonce(ctx, record.Nonce)
		return nil
	}

	if receipt.BlockNumber != nil {
		record.BlockNumber = receipt.BlockNumber.Uint64()
	}
	record.GasUsed = receipt.GasUsed

	if receipt.Status == types.ReceiptStatusFailed {
		return fault.Newf(fault.Revert, "confirm stage", "transaction %s reverted in block %d", record.TransactionHash, record.BlockNumber)
	}

	record.Confirmed = true
	log.WithFields(log.Fields{
		"tx_hash":  record.TransactionHash,
		"block":    record.BlockNumber,
		"gas_used": record.GasUsed,
	}).Info("Stage transaction confirmed")
	return nil
}

// rewindNonce checks, in queue order, whether the node still accounts for an
// unconfirmed transaction's nonce and moves the local sequence back if not
func (p *Pipeline) rewindNonce(ctx context.Context, n uint64) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), nonceRewindTimeout)
	defer cancel()

	var moved bool
	err := p.queue.Do(ctx, func(ctx context.Context) error {
		var err error
		moved, err = p.nonces.Rewind(ctx, n)
		return err
	})
	if err != nil {
		log.WithError(err).WithField("nonce", n).Warn("Could not check nonce of unconfirmed transaction")
		return
	}
	if moved {
		metrics.NonceRewinds.Inc()
	}
}

func (p *Pipeline) fail(ctx context.Context, req *Request, eventID string, err error) error {
	kind := fault.KindOf(err)
	metrics.Submissions.WithLabelValues(string(kind)).Inc()

	productID := ""
	if req != nil {
		productID = req.ProductID
	}

	entry := log.WithFields(log.Fields{
		"product_id": productID,
		"event_id":   eventID,
		"category":   kind,
	}).WithError(err)
	if kind == fault.Validation {
		entry.Debug("Stage submission rejected")
	} else {
		entry.Error("Stage submission failed")
	}

	var fe *fault.Error
	if !errors.As(err, &fe) {
		err = fault.Wrap(kind, "submit stage", err)
	}

	p.emit(ctx, events.EventSubmissionFailed, events.SeverityError, productID, eventID, err.Error(),
		events.FailurePayload{Category: string(kind), Retryable: kind.Retryable()})
	return err
}

func (p *Pipeline) emit(ctx context.Context, t events.EventType, sev events.EventSeverity, productID, eventID, errMsg string, payload interface{}) {
	if p.sink == nil {
		return
	}
	evt, err := events.NewEvent(t, sev, component, payload)
	if err != nil {
		log.WithError(err).Warn("Failed to build relay event")
		return
	}
	evt.Contract = p.tracker.Address().Hex()
	evt.ProductID = productID
	evt.EventID = eventID
	evt.Error = errMsg
	// Publishing must outlive a cancelled request
	events.Emit(context.WithoutCancel(ctx), p.sink, evt)
}

func payloadFor(record *TransactionRecord, start time.Time) events.SubmissionPayload {
	price := ""
	if record.GasPriceUsed != nil {
		price = record.GasPriceUsed.String()
	}
	return events.SubmissionPayload{
		TransactionHash: record.TransactionHash,
		Nonce:           record.Nonce,
		GasLimit:        record.GasUsedEstimate,
		GasPrice:        price,
		MediaRef:        record.MediaRef,
		BlockNumber:     record.BlockNumber,
		GasUsed:         record.GasUsed,
		DurationMs:      time.Since(start).Milliseconds(),
	}
}
