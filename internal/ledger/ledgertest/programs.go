package ledgertest

import (
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/Abrham-amplitude/solana-ticket/internal/ledger"
	"github.com/Abrham-amplitude/solana-ticket/internal/tokenprog"
)

var (
	errInsufficientFunds = errors.New("insufficient funds")
	errMissingSigner     = errors.New("missing required signature")
	errAccountInUse      = errors.New("account already in use")
	errInvalidAccount    = errors.New("invalid account data")
	errInsufficientRent  = errors.New("insufficient funds for rent")
)

type state struct {
	accounts map[solana.PublicKey]*ledger.Account
	signers  map[solana.PublicKey]bool
}

func (s *state) debit(address solana.PublicKey, lamports uint64) error {
	acc := s.accounts[address]
	if acc == nil || acc.Lamports < lamports {
		have := uint64(0)
		if acc != nil {
			have = acc.Lamports
		}
		return fmt.Errorf("%w: %s has %d, needs %d", errInsufficientFunds, address, have, lamports)
	}
	acc.Lamports -= lamports
	return nil
}

func (s *state) credit(address solana.PublicKey, lamports uint64) {
	acc := s.accounts[address]
	if acc == nil {
		acc = &ledger.Account{Owner: tokenprog.SystemProgramID}
		s.accounts[address] = acc
	}
	acc.Lamports += lamports
}

func (s *state) requireSigner(pk solana.PublicKey) error {
	if !s.signers[pk] {
		return fmt.Errorf("%w: %s", errMissingSigner, pk)
	}
	return nil
}

func (s *state) apply(ix tokenprog.Decoded) error {
	switch ix.Kind {
	case tokenprog.KindSystemTransfer:
		return s.systemTransfer(ix)
	case tokenprog.KindCreateAccount:
		return s.createAccount(ix)
	case tokenprog.KindInitializeMint:
		return s.initializeMint(ix)
	case tokenprog.KindCreateAssociatedAccount:
		return s.createAssociated(ix)
	case tokenprog.KindMintTo:
		return s.mintTo(ix)
	case tokenprog.KindBurn:
		return s.burn(ix)
	case tokenprog.KindTokenTransfer:
		return s.tokenTransfer(ix)
	case tokenprog.KindMemo, tokenprog.KindComputeBudget:
		return nil
	}
	return fmt.Errorf("unsupported instruction for program %s", ix.Program)
}

func (s *state) systemTransfer(ix tokenprog.Decoded) error {
	from, to := ix.Account(0), ix.Account(1)
	if err := s.requireSigner(from); err != nil {
		return err
	}
	if acc := s.accounts[from]; acc != nil && (!acc.Owner.Equals(tokenprog.SystemProgramID) || len(acc.Data) > 0) {
		return fmt.Errorf("%w: from must not carry data", errInvalidAccount)
	}
	if err := s.debit(from, ix.Lamports); err != nil {
		return err
	}
	s.credit(to, ix.Lamports)
	return nil
}

func (s *state) createAccount(ix tokenprog.Decoded) error {
	funder, target := ix.Account(0), ix.Account(1)
	if err := s.requireSigner(funder); err != nil {
		return err
	}
	if err := s.requireSigner(target); err != nil {
		return err
	}
	if acc := s.accounts[target]; acc != nil && (acc.Lamports > 0 || len(acc.Data) > 0) {
		return fmt.Errorf("%w: %s", errAccountInUse, target)
	}
	if err := s.debit(funder, ix.Lamports); err != nil {
		return err
	}
	s.accounts[target] = &ledger.Account{
		Lamports: ix.Lamports,
		Owner:    ix.Owner,
		Data:     make([]byte, ix.Space),
	}
	return nil
}

func (s *state) mint(address solana.PublicKey) (*ledger.Account, *tokenprog.Mint, error) {
	acc := s.accounts[address]
	if acc == nil || !acc.Owner.Equals(tokenprog.TokenProgramID) {
		return nil, nil, fmt.Errorf("%w: %s is not a token program account", errInvalidAccount, address)
	}
	m, err := tokenprog.ParseMint(acc.Data)
	if err != nil {
		return nil, nil, err
	}
	return acc, m, nil
}

func (s *state) tokenAccount(address solana.PublicKey) (*ledger.Account, *tokenprog.TokenAccount, error) {
	acc := s.accounts[address]
	if acc == nil || !acc.Owner.Equals(tokenprog.TokenProgramID) || len(acc.Data) != tokenprog.TokenAccountSize {
		return nil, nil, fmt.Errorf("%w: %s is not a token account", errInvalidAccount, address)
	}
	ta, err := tokenprog.ParseTokenAccount(acc.Data)
	if err != nil {
		return nil, nil, err
	}
	return acc, ta, nil
}

func (s *state) initializeMint(ix tokenprog.Decoded) error {
	acc, m, err := s.mint(ix.Account(0))
	if err != nil {
		return err
	}
	if m.IsInitialized {
		return fmt.Errorf("%w: mint already initialized", errAccountInUse)
	}
	authority := ix.Authority
	acc.Data = tokenprog.EncodeMint(tokenprog.Mint{
		MintAuthority: &authority,
		Decimals:      ix.Decimals,
		IsInitialized: true,
	})
	return nil
}

func (s *state) createAssociated(ix tokenprog.Decoded) error {
	payer, ata, wallet, mintAddr := ix.Account(0), ix.Account(1), ix.Account(2), ix.Account(3)
	if err := s.requireSigner(payer); err != nil {
		return err
	}
	want, err := tokenprog.AssociatedTokenAddress(wallet, mintAddr)
	if err != nil {
		return err
	}
	if !want.Equals(ata) {
		return fmt.Errorf("%w: associated address mismatch", errInvalidAccount)
	}
	if _, m, err := s.mint(mintAddr); err != nil {
		return err
	} else if !m.IsInitialized {
		return fmt.Errorf("%w: mint not initialized", errInvalidAccount)
	}
	if acc := s.accounts[ata]; acc != nil && len(acc.Data) > 0 {
		return fmt.Errorf("%w: %s", errAccountInUse, ata)
	}
	rent := RentExempt(tokenprog.TokenAccountSize)
	if err := s.debit(payer, rent); err != nil {
		return err
	}
	s.accounts[ata] = &ledger.Account{
		Lamports: rent,
		Owner:    tokenprog.TokenProgramID,
		Data:     tokenprog.EncodeTokenAccount(tokenprog.TokenAccount{Mint: mintAddr, Owner: wallet}),
	}
	return nil
}

func (s *state) mintTo(ix tokenprog.Decoded) error {
	mintAcc, m, err := s.mint(ix.Account(0))
	if err != nil {
		return err
	}
	destAcc, dest, err := s.tokenAccount(ix.Account(1))
	if err != nil {
		return err
	}
	authority := ix.Account(2)
	if err := s.requireSigner(authority); err != nil {
		return err
	}
	if m.MintAuthority == nil || !m.MintAuthority.Equals(authority) {
		return fmt.Errorf("%w: wrong mint authority", errInvalidAccount)
	}
	if !dest.Mint.Equals(ix.Account(0)) {
		return fmt.Errorf("%w: destination mint mismatch", errInvalidAccount)
	}
	m.Supply += ix.Amount
	dest.Amount += ix.Amount
	mintAcc.Data = tokenprog.EncodeMint(*m)
	destAcc.Data = tokenprog.EncodeTokenAccount(*dest)
	return nil
}

func (s *state) burn(ix tokenprog.Decoded) error {
	srcAcc, src, err := s.tokenAccount(ix.Account(0))
	if err != nil {
		return err
	}
	mintAcc, m, err := s.mint(ix.Account(1))
	if err != nil {
		return err
	}
	owner := ix.Account(2)
	if err := s.requireSigner(owner); err != nil {
		return err
	}
	if !src.Owner.Equals(owner) || !src.Mint.Equals(ix.Account(1)) {
		return fmt.Errorf("%w: owner or mint mismatch", errInvalidAccount)
	}
	if src.Amount < ix.Amount || m.Supply < ix.Amount {
		return fmt.Errorf("%w: burn %d of %d", errInsufficientFunds, ix.Amount, src.Amount)
	}
	src.Amount -= ix.Amount
	m.Supply -= ix.Amount
	srcAcc.Data = tokenprog.EncodeTokenAccount(*src)
	mintAcc.Data = tokenprog.EncodeMint(*m)
	return nil
}

func (s *state) tokenTransfer(ix tokenprog.Decoded) error {
	srcAcc, src, err := s.tokenAccount(ix.Account(0))
	if err != nil {
		return err
	}
	dstAcc, dst, err := s.tokenAccount(ix.Account(1))
	if err != nil {
		return err
	}
	owner := ix.Account(2)
	if err := s.requireSigner(owner); err != nil {
		return err
	}
	if !src.Owner.Equals(owner) || !src.Mint.Equals(dst.Mint) {
		return fmt.Errorf("%w: owner or mint mismatch", errInvalidAccount)
	}
	if src.Amount < ix.Amount {
		return fmt.Errorf("%w: transfer %d of %d", errInsufficientFunds, ix.Amount, src.Amount)
	}
	src.Amount -= ix.Amount
	dst.Amount += ix.Amount
	srcAcc.Data = tokenprog.EncodeTokenAccount(*src)
	dstAcc.Data = tokenprog.EncodeTokenAccount(*dst)
	return nil
}
