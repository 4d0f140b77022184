package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/Abrham-amplitude/solana-ticket/utils"
)

// Options tune the RPC client. Zero values fall back to defaults.
type Options struct {
	Commitment     rpc.CommitmentType
	ConfirmTimeout time.Duration
	PollInterval   time.Duration
	SkipPreflight  bool
	// SerializeSubmissions holds a per-client mutex around sendTransaction.
	SerializeSubmissions bool
	// Observe, when set, is called after every RPC round trip.
	Observe func(method string, took time.Duration, err error)
}

const (
	DefaultConfirmTimeout = 60 * time.Second
	DefaultPollInterval   = 2 * time.Second
)

// Client implements Ledger over JSON-RPC.
type Client struct {
	rpc    *rpc.Client
	opts   Options
	log    *utils.Logger
	sendMu sync.Mutex
}

var _ Ledger = (*Client)(nil)

func NewClient(rpcURL string, opts Options, log *utils.Logger) *Client {
	return NewFromRPC(rpc.New(rpcURL), opts, log)
}

func NewFromRPC(c *rpc.Client, opts Options, log *utils.Logger) *Client {
	if opts.Commitment == "" {
		opts.Commitment = rpc.CommitmentConfirmed
	}
	if opts.ConfirmTimeout <= 0 {
		opts.ConfirmTimeout = DefaultConfirmTimeout
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if log == nil {
		log = utils.DefaultLogger
	}
	return &Client{rpc: c, opts: opts, log: log.With("ledger")}
}

func (c *Client) observe(method string, start time.Time, err error) {
	if c.opts.Observe != nil {
		c.opts.Observe(method, time.Since(start), err)
	}
}

func (c *Client) GetBalance(ctx context.Context, address solana.PublicKey) (uint64, error) {
	start := time.Now()
	out, err := c.rpc.GetBalance(ctx, address, c.opts.Commitment)
	c.observe("getBalance", start, err)
	if err != nil {
		return 0, err
	}
	return out.Value, nil
}

func (c *Client) GetMinimumBalanceForRentExemption(ctx context.Context, size uint64) (uint64, error) {
	start := time.Now()
	lamports, err := c.rpc.GetMinimumBalanceForRentExemption(ctx, size, c.opts.Commitment)
	c.observe("getMinimumBalanceForRentExemption", start, err)
	return lamports, err
}

func (c *Client) GetLatestBlockhash(ctx context.Context) (solana.Hash, error) {
	start := time.Now()
	out, err := c.rpc.GetLatestBlockhash(ctx, c.opts.Commitment)
	c.observe("getLatestBlockhash", start, err)
	if err != nil {
		return solana.Hash{}, err
	}
	return out.Value.Blockhash, nil
}

func (c *Client) GetAccount(ctx context.Context, address solana.PublicKey) (*Account, error) {
	start := time.Now()
	out, err := c.rpc.GetAccountInfoWithOpts(ctx, address, &rpc.GetAccountInfoOpts{
		Encoding:   solana.EncodingBase64,
		Commitment: c.opts.Commitment,
	})
	c.observe("getAccountInfo", start, err)
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return nil, fmt.Errorf("%w: account %s", ErrNotFound, address)
		}
		return nil, err
	}
	if out == nil || out.Value == nil {
		return nil, fmt.Errorf("%w: account %s", ErrNotFound, address)
	}
	acc := &Account{
		Lamports:   out.Value.Lamports,
		Owner:      out.Value.Owner,
		Executable: out.Value.Executable,
	}
	if out.Value.Data != nil {
		acc.Data = out.Value.Data.GetBinary()
	}
	return acc, nil
}

// SendTransaction 广播交易（base64 编码，可选 skipPreflight）
// 不重试：重复提交同一笔交易由调用方决定
func (c *Client) SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	encBase64, err := utils.EncodeBase64Tx(tx)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("%w: serialize: %v", ErrRejected, err)
	}

	if c.opts.SerializeSubmissions {
		c.sendMu.Lock()
		defer c.sendMu.Unlock()
	}

	var sig solana.Signature
	start := time.Now()
	err = c.rpc.RPCCallForInto(ctx, &sig, "sendTransaction", []interface{}{
		encBase64,
		map[string]interface{}{
			"skipPreflight":       c.opts.SkipPreflight,
			"preflightCommitment": string(c.opts.Commitment),
			"encoding":            "base64",
		},
	})
	c.observe("sendTransaction", start, err)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("%w: %v", ErrRejected, err)
	}
	if sig.IsZero() {
		return solana.Signature{}, fmt.Errorf("%w: node returned an empty signature", ErrRejected)
	}
	c.log.Debug("submitted %s", sig)
	return sig, nil
}

// ConfirmTransaction polls getSignatureStatuses until the configured
// commitment is reached, the transaction fails, or the deadline passes.
func (c *Client) ConfirmTransaction(ctx context.Context, sig solana.Signature) error {
	ctx, cancel := context.WithTimeout(ctx, c.opts.ConfirmTimeout)
	defer cancel()

	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()

	for {
		start := time.Now()
		statuses, err := c.rpc.GetSignatureStatuses(ctx, false, sig)
		c.observe("getSignatureStatuses", start, err)
		if err == nil && statuses != nil && len(statuses.Value) > 0 && statuses.Value[0] != nil {
			st := statuses.Value[0]
			if st.Err != nil {
				return fmt.Errorf("%w: %s landed with error: %v", ErrRejected, sig, st.Err)
			}
			if reached(st.ConfirmationStatus, c.opts.Commitment) {
				return nil
			}
		} else if err != nil {
			c.log.Warn("status of %s: %v", sig, err)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %s after %s", ErrConfirmationTimeout, sig, c.opts.ConfirmTimeout)
		case <-ticker.C:
		}
	}
}

func reached(status rpc.ConfirmationStatusType, want rpc.CommitmentType) bool {
	switch status {
	case rpc.ConfirmationStatusFinalized:
		return true
	case rpc.ConfirmationStatusConfirmed:
		return want != rpc.CommitmentFinalized
	case rpc.ConfirmationStatusProcessed:
		return want == rpc.CommitmentProcessed
	}
	return false
}

func (c *Client) GetSignaturesForAddress(ctx context.Context, address solana.PublicKey, before solana.Signature, limit int) ([]SignatureInfo, error) {
	opts := &rpc.GetSignaturesForAddressOpts{
		Limit:      &limit,
		Commitment: c.historyCommitment(),
	}
	if !before.IsZero() {
		opts.Before = before
	}

	start := time.Now()
	sigs, err := c.rpc.GetSignaturesForAddressWithOpts(ctx, address, opts)
	c.observe("getSignaturesForAddress", start, err)
	if err != nil {
		return nil, err
	}
	out := make([]SignatureInfo, 0, len(sigs))
	for _, s := range sigs {
		if s == nil {
			continue
		}
		out = append(out, SignatureInfo{
			Signature: s.Signature,
			Slot:      s.Slot,
			BlockTime: blockTime(s.BlockTime),
			Failed:    s.Err != nil,
		})
	}
	return out, nil
}

func (c *Client) GetTransaction(ctx context.Context, sig solana.Signature) (*TransactionRecord, error) {
	version := uint64(0)
	start := time.Now()
	out, err := c.rpc.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
		Encoding:                       solana.EncodingBase64,
		Commitment:                     c.historyCommitment(),
		MaxSupportedTransactionVersion: &version,
	})
	c.observe("getTransaction", start, err)
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return nil, fmt.Errorf("%w: transaction %s", ErrNotFound, sig)
		}
		return nil, err
	}
	if out == nil || out.Transaction == nil {
		return nil, fmt.Errorf("%w: transaction %s", ErrNotFound, sig)
	}
	tx, err := out.Transaction.GetTransaction()
	if err != nil {
		return nil, fmt.Errorf("decode transaction %s: %w", sig, err)
	}
	return &TransactionRecord{
		Signature:   sig,
		Slot:        out.Slot,
		BlockTime:   blockTime(out.BlockTime),
		Failed:      out.Meta != nil && out.Meta.Err != nil,
		Transaction: tx,
	}, nil
}

func (c *Client) RequestAirdrop(ctx context.Context, address solana.PublicKey, lamports uint64) (solana.Signature, error) {
	start := time.Now()
	sig, err := c.rpc.RequestAirdrop(ctx, address, lamports, c.opts.Commitment)
	c.observe("requestAirdrop", start, err)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("%w: airdrop: %v", ErrRejected, err)
	}
	return sig, nil
}

func (c *Client) Health(ctx context.Context) error {
	start := time.Now()
	_, err := c.rpc.GetHealth(ctx)
	c.observe("getHealth", start, err)
	return err
}

// getTransaction and getSignaturesForAddress do not accept "processed".
func (c *Client) historyCommitment() rpc.CommitmentType {
	if c.opts.Commitment == rpc.CommitmentProcessed {
		return rpc.CommitmentConfirmed
	}
	return c.opts.Commitment
}

func blockTime(t *solana.UnixTimeSeconds) *time.Time {
	if t == nil || *t == 0 {
		return nil
	}
	tt := t.Time()
	return &tt
}
