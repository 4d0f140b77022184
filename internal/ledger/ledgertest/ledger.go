// Package ledgertest provides an in-memory ledger that executes the System,
// SPL Token, Associated Token Account and Memo instructions tickets use.
package ledgertest

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/Abrham-amplitude/solana-ticket/internal/ledger"
	"github.com/Abrham-amplitude/solana-ticket/internal/tokenprog"
	"github.com/Abrham-amplitude/solana-ticket/utils"
)

const (
	// FeePerSignature matches the cluster base fee.
	FeePerSignature uint64 = 5000

	rentPerByte         uint64 = 6960
	accountStorageExtra uint64 = 128
)

// RentExempt is the rent-exempt minimum for size bytes of data.
func RentExempt(size uint64) uint64 {
	return (size + accountStorageExtra) * rentPerByte
}

// Ledger is safe for concurrent use.
type Ledger struct {
	mu         sync.Mutex
	accounts   map[solana.PublicKey]*ledger.Account
	history    map[solana.PublicKey][]solana.Signature // oldest first
	txs        map[solana.Signature]*ledger.TransactionRecord
	blockhashs map[solana.Hash]bool
	latest     solana.Hash
	slot       uint64
	now        func() time.Time

	sendErr    error
	confirmErr error
	healthErr  error
	submitted  int
}

var _ ledger.Ledger = (*Ledger)(nil)

func New() *Ledger {
	l := &Ledger{
		accounts:   make(map[solana.PublicKey]*ledger.Account),
		history:    make(map[solana.PublicKey][]solana.Signature),
		txs:        make(map[solana.Signature]*ledger.TransactionRecord),
		blockhashs: make(map[solana.Hash]bool),
		slot:       1,
		now:        time.Now,
	}
	l.rotateBlockhash()
	return l
}

// Fund credits a system account.
func (l *Ledger) Fund(address solana.PublicKey, lamports uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	acc := l.accounts[address]
	if acc == nil {
		acc = &ledger.Account{Owner: tokenprog.SystemProgramID}
		l.accounts[address] = acc
	}
	acc.Lamports += lamports
}

// FailSends makes every following SendTransaction fail with err (nil resets).
func (l *Ledger) FailSends(err error) {
	l.mu.Lock()
	l.sendErr = err
	l.mu.Unlock()
}

// FailConfirms makes confirmation fail with err after the transaction has
// been applied, mimicking a landed-but-unobserved submission.
func (l *Ledger) FailConfirms(err error) {
	l.mu.Lock()
	l.confirmErr = err
	l.mu.Unlock()
}

func (l *Ledger) SetHealth(err error) {
	l.mu.Lock()
	l.healthErr = err
	l.mu.Unlock()
}

// Submitted counts transactions that reached SendTransaction.
func (l *Ledger) Submitted() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.submitted
}

// Account returns a copy of the account state.
func (l *Ledger) Account(address solana.PublicKey) (ledger.Account, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	acc, ok := l.accounts[address]
	if !ok {
		return ledger.Account{}, false
	}
	return copyAccount(acc), true
}

// SetAccount replaces raw account state.
func (l *Ledger) SetAccount(address solana.PublicKey, acc ledger.Account) {
	l.mu.Lock()
	defer l.mu.Unlock()
	c := copyAccount(&acc)
	l.accounts[address] = &c
}

func (l *Ledger) GetBalance(ctx context.Context, address solana.PublicKey) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if acc, ok := l.accounts[address]; ok {
		return acc.Lamports, nil
	}
	return 0, nil
}

func (l *Ledger) GetMinimumBalanceForRentExemption(ctx context.Context, size uint64) (uint64, error) {
	return RentExempt(size), nil
}

func (l *Ledger) GetLatestBlockhash(ctx context.Context) (solana.Hash, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.latest, nil
}

func (l *Ledger) GetAccount(ctx context.Context, address solana.PublicKey) (*ledger.Account, error) {
	acc, ok := l.Account(address)
	if !ok {
		return nil, fmt.Errorf("%w: account %s", ledger.ErrNotFound, address)
	}
	return &acc, nil
}

func (l *Ledger) SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	// Round-trip through the wire format so the caller's value is never shared.
	enc, err := utils.EncodeBase64Tx(tx)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("%w: %v", ledger.ErrRejected, err)
	}
	landed, err := utils.DecodeBase64Tx(enc)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("%w: %v", ledger.ErrRejected, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.submitted++
	if l.sendErr != nil {
		return solana.Signature{}, fmt.Errorf("%w: %v", ledger.ErrRejected, l.sendErr)
	}
	if err := l.verify(landed); err != nil {
		return solana.Signature{}, fmt.Errorf("%w: %v", ledger.ErrRejected, err)
	}

	sig := landed.Signatures[0]
	next, err := l.execute(landed)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("%w: %v", ledger.ErrRejected, err)
	}
	l.accounts = next
	l.record(sig, landed)
	return sig, nil
}

func (l *Ledger) ConfirmTransaction(ctx context.Context, sig solana.Signature) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.confirmErr != nil {
		return fmt.Errorf("%w: %v", ledger.ErrConfirmationTimeout, l.confirmErr)
	}
	if _, ok := l.txs[sig]; !ok {
		return fmt.Errorf("%w: %s unknown", ledger.ErrConfirmationTimeout, sig)
	}
	return nil
}

func (l *Ledger) GetSignaturesForAddress(ctx context.Context, address solana.PublicKey, before solana.Signature, limit int) ([]ledger.SignatureInfo, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	sigs := l.history[address]
	end := len(sigs)
	if !before.IsZero() {
		end = -1
		for i, s := range sigs {
			if s == before {
				end = i
				break
			}
		}
		if end < 0 {
			return nil, nil
		}
	}
	var out []ledger.SignatureInfo
	for i := end - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		rec := l.txs[sigs[i]]
		out = append(out, ledger.SignatureInfo{
			Signature: rec.Signature,
			Slot:      rec.Slot,
			BlockTime: rec.BlockTime,
			Failed:    rec.Failed,
		})
	}
	return out, nil
}

func (l *Ledger) GetTransaction(ctx context.Context, sig solana.Signature) (*ledger.TransactionRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.txs[sig]
	if !ok {
		return nil, fmt.Errorf("%w: transaction %s", ledger.ErrNotFound, sig)
	}
	out := *rec
	return &out, nil
}

func (l *Ledger) RequestAirdrop(ctx context.Context, address solana.PublicKey, lamports uint64) (solana.Signature, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sendErr != nil {
		return solana.Signature{}, fmt.Errorf("%w: airdrop: %v", ledger.ErrRejected, l.sendErr)
	}
	acc := l.accounts[address]
	if acc == nil {
		acc = &ledger.Account{Owner: tokenprog.SystemProgramID}
		l.accounts[address] = acc
	}
	acc.Lamports += lamports

	var sig solana.Signature
	h := sha256.Sum256(append(address[:], l.latest[:]...))
	copy(sig[:], h[:])
	copy(sig[32:], l.latest[:])
	l.txs[sig] = &ledger.TransactionRecord{Signature: sig, Slot: l.slot}
	l.slot++
	l.rotateBlockhash()
	return sig, nil
}

func (l *Ledger) Health(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.healthErr
}

func (l *Ledger) rotateBlockhash() {
	var seed [8]byte
	binary.LittleEndian.PutUint64(seed[:], l.slot)
	l.latest = solana.Hash(sha256.Sum256(seed[:]))
	l.blockhashs[l.latest] = true
}

func (l *Ledger) record(sig solana.Signature, tx *solana.Transaction) {
	ts := l.now()
	rec := &ledger.TransactionRecord{
		Signature:   sig,
		Slot:        l.slot,
		BlockTime:   &ts,
		Transaction: tx,
	}
	l.txs[sig] = rec
	seen := make(map[solana.PublicKey]bool)
	for _, k := range tx.Message.AccountKeys {
		if seen[k] {
			continue
		}
		seen[k] = true
		l.history[k] = append(l.history[k], sig)
	}
	l.slot++
	l.rotateBlockhash()
}

// verify checks the blockhash and every required signature.
func (l *Ledger) verify(tx *solana.Transaction) error {
	if !l.blockhashs[tx.Message.RecentBlockhash] {
		return fmt.Errorf("blockhash not found")
	}
	required := int(tx.Message.Header.NumRequiredSignatures)
	if required == 0 || len(tx.Signatures) < required || len(tx.Message.AccountKeys) < required {
		return fmt.Errorf("missing signatures")
	}
	if _, dup := l.txs[tx.Signatures[0]]; dup {
		return fmt.Errorf("already processed")
	}
	msg, err := tx.Message.MarshalBinary()
	if err != nil {
		return err
	}
	for i := 0; i < required; i++ {
		key := tx.Message.AccountKeys[i]
		if !ed25519.Verify(ed25519.PublicKey(key[:]), msg, tx.Signatures[i][:]) {
			return fmt.Errorf("signature verification failure for %s", key)
		}
	}
	return nil
}

// execute applies tx to a copy of the state and returns it.
func (l *Ledger) execute(tx *solana.Transaction) (map[solana.PublicKey]*ledger.Account, error) {
	st := &state{accounts: make(map[solana.PublicKey]*ledger.Account, len(l.accounts)), signers: make(map[solana.PublicKey]bool)}
	for k, v := range l.accounts {
		c := copyAccount(v)
		st.accounts[k] = &c
	}
	for i := 0; i < int(tx.Message.Header.NumRequiredSignatures); i++ {
		st.signers[tx.Message.AccountKeys[i]] = true
	}

	ixs := tokenprog.DecodeTransaction(tx)
	payer := tx.Message.AccountKeys[0]
	fee := FeePerSignature*uint64(tx.Message.Header.NumRequiredSignatures) + priorityFee(ixs)
	if err := st.debit(payer, fee); err != nil {
		return nil, fmt.Errorf("fee payer: %w", err)
	}

	for i, ix := range ixs {
		if err := st.apply(ix); err != nil {
			return nil, fmt.Errorf("instruction %d (%s): %w", i, ix.Kind, err)
		}
	}
	for k, acc := range st.accounts {
		if err := checkRent(l.accounts[k], acc); err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		if acc.Lamports == 0 && len(acc.Data) == 0 {
			delete(st.accounts, k)
		}
	}
	return st.accounts, nil
}

// checkRent 按集群规则校验租金状态：交易后账户要么为空，要么免租；
// 已经欠租的账户只允许在数据大小不变时减少余额
func checkRent(pre, post *ledger.Account) error {
	if post.Lamports == 0 {
		return nil
	}
	size := uint64(len(post.Data))
	if post.Lamports >= RentExempt(size) {
		return nil
	}
	if pre != nil && pre.Lamports == post.Lamports && len(pre.Data) == len(post.Data) {
		return nil
	}
	if pre != nil && pre.Lamports > 0 && pre.Lamports < RentExempt(uint64(len(pre.Data))) &&
		len(pre.Data) == len(post.Data) && post.Lamports <= pre.Lamports {
		return nil
	}
	return fmt.Errorf("%w: %d below %d", errInsufficientRent, post.Lamports, RentExempt(size))
}

// Signatures returns every recorded signature touching address, newest first.
func (l *Ledger) Signatures(address solana.PublicKey) []solana.Signature {
	l.mu.Lock()
	defer l.mu.Unlock()
	sigs := append([]solana.Signature(nil), l.history[address]...)
	sort.SliceStable(sigs, func(i, j int) bool { return l.txs[sigs[i]].Slot > l.txs[sigs[j]].Slot })
	return sigs
}

// priorityFee 按 compute budget 指令计算优先费；未设上限时按 200k CU
func priorityFee(ixs []tokenprog.Decoded) uint64 {
	var price uint64
	units := uint32(200_000)
	for _, ix := range ixs {
		if ix.Kind != tokenprog.KindComputeBudget {
			continue
		}
		if ix.Units > 0 {
			units = ix.Units
		}
		if ix.Price > 0 {
			price = ix.Price
		}
	}
	return tokenprog.PriorityFee(price, units)
}

func copyAccount(a *ledger.Account) ledger.Account {
	c := *a
	c.Data = append([]byte(nil), a.Data...)
	return c
}
