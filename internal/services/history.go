package services

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync/atomic"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/Abrham-amplitude/solana-ticket/internal/ledger"
	"github.com/Abrham-amplitude/solana-ticket/internal/tokenprog"
)

type HistoryType string

const (
	HistoryMint     HistoryType = "Mint"
	HistoryTransfer HistoryType = "Transfer"
	HistoryUsage    HistoryType = "Usage"
	HistoryUnknown  HistoryType = "Unknown"
)

type HistoryEntry struct {
	Signature solana.Signature `json:"signature"`
	BlockTime *time.Time       `json:"block_timestamp"`
	Slot      uint64           `json:"slot"`
	Type      HistoryType      `json:"classified_type"`
	Failed    bool             `json:"failed,omitempty"`

	instructions []tokenprog.Decoded
}

// Classify looks at the decoded top-level instructions of a transaction.
// Mint wins over Transfer, which wins over Usage.
func Classify(ixs []tokenprog.Decoded) HistoryType {
	var transfer, burn bool
	for _, ix := range ixs {
		switch ix.Kind {
		case tokenprog.KindInitializeMint:
			return HistoryMint
		case tokenprog.KindSystemTransfer, tokenprog.KindTokenTransfer:
			transfer = true
		case tokenprog.KindBurn:
			burn = true
		}
	}
	switch {
	case transfer:
		return HistoryTransfer
	case burn:
		return HistoryUsage
	}
	return HistoryUnknown
}

// GetTicketHistory lists the transactions touching mint, newest first. The
// sequence is lazy and can be ranged over once; a second range yields a
// single ErrHistoryConsumed. Each range re-fetches from the ledger.
func (e *Engine) GetTicketHistory(ctx context.Context, mint solana.PublicKey) iter.Seq2[HistoryEntry, error] {
	var consumed atomic.Bool
	return func(yield func(HistoryEntry, error) bool) {
		if consumed.Swap(true) {
			yield(HistoryEntry{}, fmt.Errorf("%w: history of %s", ErrHistoryConsumed, mint))
			return
		}

		var before solana.Signature
		for {
			page, err := e.ledger.GetSignaturesForAddress(ctx, mint, before, e.cfg.HistoryPageSize)
			if err != nil {
				yield(HistoryEntry{}, fmt.Errorf("%w: signatures of %s: %v", ErrSubmissionFailed, mint, err))
				return
			}
			for _, info := range page {
				if err := ctx.Err(); err != nil {
					yield(HistoryEntry{}, err)
					return
				}
				entry, err := e.historyEntry(ctx, info)
				if !yield(entry, err) || err != nil {
					return
				}
			}
			if len(page) < e.cfg.HistoryPageSize {
				return
			}
			before = page[len(page)-1].Signature
		}
	}
}

func (e *Engine) historyEntry(ctx context.Context, info ledger.SignatureInfo) (HistoryEntry, error) {
	entry := HistoryEntry{
		Signature: info.Signature,
		BlockTime: info.BlockTime,
		Slot:      info.Slot,
		Type:      HistoryUnknown,
		Failed:    info.Failed,
	}
	rec, err := e.ledger.GetTransaction(ctx, info.Signature)
	if err != nil {
		// pruned or not yet visible at this commitment
		if errors.Is(err, ledger.ErrNotFound) {
			return entry, nil
		}
		return HistoryEntry{}, fmt.Errorf("%w: transaction %s: %v", ErrSubmissionFailed, info.Signature, err)
	}
	if entry.BlockTime == nil {
		entry.BlockTime = rec.BlockTime
	}
	entry.instructions = tokenprog.DecodeTransaction(rec.Transaction)
	entry.Type = Classify(entry.instructions)
	return entry, nil
}
