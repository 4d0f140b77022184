package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/Abrham-amplitude/solana-ticket/internal/keys"
	"github.com/Abrham-amplitude/solana-ticket/internal/ledger"
	"github.com/Abrham-amplitude/solana-ticket/internal/models"
	"github.com/Abrham-amplitude/solana-ticket/internal/tokenprog"
)

type SeatInfo struct {
	Section string `json:"section,omitempty"`
	Row     string `json:"row,omitempty"`
	Seat    string `json:"seat,omitempty"`
}

// TicketSpec is what the issuer asks for; Price is in lamports.
type TicketSpec struct {
	EventName string   `json:"event_name"`
	EventDate string   `json:"event_date"`
	Seat      SeatInfo `json:"seat_info"`
	Price     uint64   `json:"price"`
	Image     string   `json:"image,omitempty"`
}

type TicketMetadata struct {
	Name      string   `json:"name"`
	EventName string   `json:"event_name"`
	EventDate string   `json:"event_date"`
	Seat      SeatInfo `json:"seat_info"`
	Price     uint64   `json:"price"`
	Image     string   `json:"image"`
}

func (s TicketSpec) Metadata() TicketMetadata {
	return TicketMetadata{
		Name:      s.EventName + " Ticket",
		EventName: s.EventName,
		EventDate: s.EventDate,
		Seat:      s.Seat,
		Price:     s.Price,
		Image:     s.Image,
	}
}

// AssetTicket is a decimals-0 mint with exactly one token in the owner's
// associated token account.
type AssetTicket struct {
	MintAddress         solana.PublicKey `json:"mint_address"`
	TokenAccountAddress solana.PublicKey `json:"token_account_address"`
	OwnerAddress        solana.PublicKey `json:"owner_address"`
	Metadata            TicketMetadata   `json:"metadata"`
	TransactionID       solana.Signature `json:"transaction_id"`
}

type AssetTicketStatus struct {
	MintAddress solana.PublicKey `json:"mint_address"`
	Exists      bool             `json:"exists"`
	Valid       bool             `json:"valid"`
	Supply      uint64           `json:"supply"`
	Decimals    uint8            `json:"decimals"`
	Reason      string           `json:"reason,omitempty"`
}

// AssetTicketInfo joins chain state with what the registry knows.
type AssetTicketInfo struct {
	AssetTicketStatus
	Metadata *TicketMetadata `json:"metadata,omitempty"`
	Owner    string          `json:"owner,omitempty"`
}

// CreateAssetTicket mints a single-supply token for owner in one atomic
// transaction signed by owner and a fresh mint key.
func (e *Engine) CreateAssetTicket(ctx context.Context, owner keys.Keypair, spec TicketSpec) (ticket *AssetTicket, err error) {
	defer e.observe("create_asset_ticket", time.Now(), &err)

	if err := requireSigner(owner, "owner"); err != nil {
		return nil, err
	}
	spec.EventName = strings.TrimSpace(spec.EventName)
	if spec.EventName == "" {
		return nil, fmt.Errorf("%w: event name is required", ErrInvalidRequest)
	}
	meta := spec.Metadata()
	memo, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("%w: metadata: %v", ErrInvalidRequest, err)
	}
	if e.cfg.AttachMetadataMemo && len(memo) > tokenprog.MaxMemoSize {
		return nil, fmt.Errorf("%w: metadata is %d bytes, memo limit is %d", ErrInvalidRequest, len(memo), tokenprog.MaxMemoSize)
	}

	ownerAddr := owner.PublicAddress()
	rent, err := e.ledger.GetMinimumBalanceForRentExemption(ctx, tokenprog.MintSize)
	if err != nil {
		return nil, fmt.Errorf("%w: rent exemption: %v", ErrSubmissionFailed, err)
	}
	bal, err := e.balance(ctx, ownerAddr)
	if err != nil {
		return nil, err
	}
	if err := requireFunds(ownerAddr, bal, rent+e.cfg.AssetFeeMargin); err != nil {
		return nil, err
	}

	mintKey := keys.Generate()
	mint := mintKey.PublicAddress()
	createATA, ata, err := tokenprog.CreateAssociatedTokenAccount(ownerAddr, ownerAddr, mint)
	if err != nil {
		return nil, fmt.Errorf("%w: derive token account: %v", ErrSubmissionFailed, err)
	}

	ixs := []solana.Instruction{
		tokenprog.CreateAccount(ownerAddr, mint, rent, tokenprog.MintSize, tokenprog.TokenProgramID),
		tokenprog.InitializeMint(mint, 0, ownerAddr, nil),
		createATA,
		tokenprog.MintTo(mint, ata, ownerAddr, 1),
	}
	if e.cfg.AttachMetadataMemo {
		ixs = append(ixs, tokenprog.Memo(memo))
	}

	sig, err := e.submit(ctx, ownerAddr, ixs, owner, mintKey)
	if err != nil && !errors.Is(err, ErrConfirmationTimeout) {
		e.log.Error("create asset ticket for %s: %v", ownerAddr, err)
		return nil, err
	}

	ticket = &AssetTicket{
		MintAddress:         mint,
		TokenAccountAddress: ata,
		OwnerAddress:        ownerAddr,
		Metadata:            meta,
		TransactionID:       sig,
	}
	status := models.StatusValid
	if err != nil {
		status = models.StatusPending
		e.log.Warn("asset ticket %s submitted as %s but unconfirmed", mint, sig)
	}
	e.record(ctx, &models.Ticket{
		Kind:            models.KindAsset,
		Address:         mint.String(),
		Owner:           ownerAddr.String(),
		TokenAccount:    ata.String(),
		Price:           spec.Price,
		Status:          status,
		CreateSignature: sig.String(),
	})
	if serr := e.store.SaveMetadata(ctx, metadataRecord(mint, meta)); serr != nil {
		e.log.Warn("registry metadata %s: %v", mint, serr)
	}
	if err == nil {
		e.log.Info("asset ticket %s minted to %s for %q (%s)", mint, ata, meta.Name, sig)
	}
	return ticket, err
}

// VerifyAssetTicket is valid iff the mint exists, belongs to the Token
// Program, is initialized, and has supply exactly 1.
func (e *Engine) VerifyAssetTicket(ctx context.Context, mint solana.PublicKey) (*AssetTicketStatus, error) {
	st := &AssetTicketStatus{MintAddress: mint}
	acc, err := e.ledger.GetAccount(ctx, mint)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			st.Reason = "mint account not found"
			return st, nil
		}
		return nil, fmt.Errorf("%w: account %s: %v", ErrSubmissionFailed, mint, err)
	}
	st.Exists = true
	if !acc.Owner.Equals(tokenprog.TokenProgramID) {
		st.Reason = fmt.Sprintf("account is owned by %s, not the token program", acc.Owner)
		return st, nil
	}
	m, err := tokenprog.ParseMint(acc.Data)
	if err != nil {
		st.Reason = "account is not a mint"
		return st, nil
	}
	st.Supply = m.Supply
	st.Decimals = m.Decimals
	switch {
	case !m.IsInitialized:
		st.Reason = "mint is not initialized"
	case m.Supply == 0:
		st.Reason = "ticket token was burned"
	case m.Supply != 1:
		st.Reason = fmt.Sprintf("mint supply is %d, want 1", m.Supply)
	default:
		st.Valid = true
	}
	return st, nil
}

// UseAssetTicket burns the single token from owner's associated account.
func (e *Engine) UseAssetTicket(ctx context.Context, owner keys.Keypair, mint solana.PublicKey) (res *UseResult, err error) {
	defer e.observe("use_asset_ticket", time.Now(), &err)

	if err := requireSigner(owner, "owner"); err != nil {
		return nil, err
	}
	st, err := e.VerifyAssetTicket(ctx, mint)
	if err != nil {
		return nil, err
	}
	if !st.Valid {
		return nil, fmt.Errorf("%w: %s: %s", ErrInvalidTicket, mint, st.Reason)
	}

	ownerAddr := owner.PublicAddress()
	ata, err := tokenprog.AssociatedTokenAddress(ownerAddr, mint)
	if err != nil {
		return nil, fmt.Errorf("%w: derive token account: %v", ErrSubmissionFailed, err)
	}

	sig, err := e.submit(ctx, ownerAddr, []solana.Instruction{
		tokenprog.Burn(ata, mint, ownerAddr, 1),
	}, owner)
	if err != nil && !errors.Is(err, ErrConfirmationTimeout) {
		e.log.Error("use asset ticket %s: %v", mint, err)
		return nil, err
	}
	res = &UseResult{TicketAddress: mint, Holder: ownerAddr, Amount: 1, TransactionID: sig}
	if err != nil {
		e.log.Warn("asset ticket %s burn submitted as %s but unconfirmed", mint, sig)
		return res, err
	}
	e.markUsed(ctx, mint.String(), sig)
	e.log.Info("asset ticket %s used by %s (%s)", mint, ownerAddr, sig)
	return res, nil
}

// GetAssetTicket verifies mint and attaches metadata from the registry,
// falling back to the memo of the mint transaction.
func (e *Engine) GetAssetTicket(ctx context.Context, mint solana.PublicKey) (*AssetTicketInfo, error) {
	st, err := e.VerifyAssetTicket(ctx, mint)
	if err != nil {
		return nil, err
	}
	info := &AssetTicketInfo{AssetTicketStatus: *st}

	if t, err := e.store.Ticket(ctx, mint.String()); err == nil {
		info.Owner = t.Owner
	}
	rec, err := e.store.Metadata(ctx, mint.String())
	switch {
	case err == nil:
		meta := metadataFromRecord(rec)
		info.Metadata = &meta
	case errors.Is(err, ErrNotFound):
		if !st.Exists {
			return nil, fmt.Errorf("%w: asset ticket %s", ErrNotFound, mint)
		}
		meta, err := e.metadataFromMemo(ctx, mint)
		if err != nil {
			e.log.Debug("no memo metadata for %s: %v", mint, err)
		} else {
			info.Metadata = meta
		}
	default:
		return nil, fmt.Errorf("%w: metadata %s: %v", ErrStorage, mint, err)
	}
	return info, nil
}

// metadataFromMemo scans the mint's history for the Mint entry and decodes
// its memo.
func (e *Engine) metadataFromMemo(ctx context.Context, mint solana.PublicKey) (*TicketMetadata, error) {
	for entry, err := range e.GetTicketHistory(ctx, mint) {
		if err != nil {
			return nil, err
		}
		if entry.Type != HistoryMint {
			continue
		}
		for _, ix := range entry.instructions {
			if ix.Kind != tokenprog.KindMemo {
				continue
			}
			var meta TicketMetadata
			if err := json.Unmarshal([]byte(ix.Memo), &meta); err == nil && meta.Name != "" {
				return &meta, nil
			}
		}
		return nil, fmt.Errorf("%w: mint transaction of %s carries no metadata memo", ErrNotFound, mint)
	}
	return nil, fmt.Errorf("%w: no mint transaction for %s", ErrNotFound, mint)
}

func metadataRecord(mint solana.PublicKey, m TicketMetadata) *models.TicketMetadata {
	return &models.TicketMetadata{
		Mint:      mint.String(),
		Name:      m.Name,
		EventName: m.EventName,
		EventDate: m.EventDate,
		Section:   m.Seat.Section,
		Row:       m.Seat.Row,
		Seat:      m.Seat.Seat,
		Price:     m.Price,
		Image:     m.Image,
	}
}

func metadataFromRecord(r *models.TicketMetadata) TicketMetadata {
	return TicketMetadata{
		Name:      r.Name,
		EventName: r.EventName,
		EventDate: r.EventDate,
		Seat:      SeatInfo{Section: r.Section, Row: r.Row, Seat: r.Seat},
		Price:     r.Price,
		Image:     r.Image,
	}
}
