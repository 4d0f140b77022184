// Package listener watches ticket accounts over websocket log subscriptions
// and keeps the registry status in step with the chain.
package listener

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/ws"

	"github.com/Abrham-amplitude/solana-ticket/internal/ledger"
	"github.com/Abrham-amplitude/solana-ticket/internal/models"
	"github.com/Abrham-amplitude/solana-ticket/internal/services"
	"github.com/Abrham-amplitude/solana-ticket/internal/tokenprog"
	"github.com/Abrham-amplitude/solana-ticket/utils"
)

const (
	DefaultMaxRetries      = 5
	DefaultRefreshInterval = 30 * time.Second
)

// Notification is one log notification for a watched address.
type Notification struct {
	Signature solana.Signature
	Slot      uint64
	Failed    bool
}

type Subscription interface {
	Recv(ctx context.Context) (Notification, error)
	Unsubscribe()
}

// Source opens a log subscription mentioning address.
type Source interface {
	Subscribe(address solana.PublicKey) (Subscription, error)
}

// EventObserver counts handled notifications by classified type.
type EventObserver interface {
	TrackListenerEvent(typ string)
}

type wsSource struct {
	client     *ws.Client
	commitment rpc.CommitmentType
}

// NewWSSource 使用 logsSubscribe + mentions 过滤器
func NewWSSource(client *ws.Client, commitment rpc.CommitmentType) Source {
	return &wsSource{client: client, commitment: commitment}
}

func (s *wsSource) Subscribe(address solana.PublicKey) (Subscription, error) {
	sub, err := s.client.LogsSubscribeMentions(address, s.commitment)
	if err != nil {
		return nil, fmt.Errorf("订阅日志失败: %w", err)
	}
	return &wsSubscription{sub: sub}, nil
}

type wsSubscription struct {
	sub *ws.LogSubscription
}

func (s *wsSubscription) Recv(ctx context.Context) (Notification, error) {
	res, err := s.sub.Recv(ctx)
	if err != nil {
		return Notification{}, err
	}
	if res == nil {
		return Notification{}, nil
	}
	return Notification{
		Signature: res.Value.Signature,
		Slot:      res.Context.Slot,
		Failed:    res.Value.Err != nil,
	}, nil
}

func (s *wsSubscription) Unsubscribe() { s.sub.Unsubscribe() }

type seen struct {
	address   solana.PublicKey
	signature solana.Signature
}

type watch struct {
	kind   models.TicketKind
	cancel context.CancelFunc
}

// Watcher holds one subscription per tracked ticket. Asset-Tickets are marked
// used when a burn of their mint lands, Value-Tickets when a transfer drains
// the escrow to zero.
type Watcher struct {
	source Source
	ledger ledger.Ledger
	store  services.Store
	log    *utils.Logger
	events EventObserver

	maxRetries int
	backoff    func(retry int) time.Duration
	refresh    time.Duration

	mu        sync.Mutex
	watched   map[solana.PublicKey]watch
	processed sync.Map // 已处理的 (地址, 交易签名)
	wg        sync.WaitGroup
}

type Option func(*Watcher)

func WithEvents(o EventObserver) Option { return func(w *Watcher) { w.events = o } }

func WithRetry(maxRetries int, backoff func(retry int) time.Duration) Option {
	return func(w *Watcher) {
		w.maxRetries = maxRetries
		w.backoff = backoff
	}
}

func WithRefreshInterval(d time.Duration) Option { return func(w *Watcher) { w.refresh = d } }

func New(src Source, l ledger.Ledger, store services.Store, log *utils.Logger, opts ...Option) *Watcher {
	if log == nil {
		log = utils.DefaultLogger
	}
	w := &Watcher{
		source:     src,
		ledger:     l,
		store:      store,
		log:        log.With("listener"),
		maxRetries: DefaultMaxRetries,
		// 递增重试间隔
		backoff: func(retry int) time.Duration { return time.Duration(retry+1) * 5 * time.Second },
		refresh: DefaultRefreshInterval,
		watched: make(map[solana.PublicKey]watch),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run watches every unused ticket in the registry, re-scanning it each
// refresh interval for new tickets, until ctx ends.
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.refresh)
	defer ticker.Stop()

	for {
		if err := w.Sync(ctx); err != nil {
			w.log.Warn("加载票据列表失败: %v", err)
		}
		select {
		case <-ctx.Done():
			w.Stop()
			w.log.Info("监听器停止")
			return
		case <-ticker.C:
		}
	}
}

// Sync subscribes to registry tickets that are not used and not yet watched.
func (w *Watcher) Sync(ctx context.Context) error {
	for _, status := range []models.TicketStatus{models.StatusValid, models.StatusPending} {
		list, err := w.store.ListTickets(ctx, services.TicketFilter{Status: status})
		if err != nil {
			return err
		}
		for _, t := range list {
			addr, err := solana.PublicKeyFromBase58(t.Address)
			if err != nil {
				w.log.Warn("registry address %q: %v", t.Address, err)
				continue
			}
			if err := w.Watch(ctx, addr, t.Kind); err != nil {
				w.log.Warn("订阅 %s 失败: %v", addr, err)
			}
		}
	}
	return nil
}

// Watch subscribes to address. Watching an address twice is a no-op.
func (w *Watcher) Watch(ctx context.Context, address solana.PublicKey, kind models.TicketKind) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.watched[address]; ok {
		return nil
	}
	sub, err := w.source.Subscribe(address)
	if err != nil {
		return err
	}
	subCtx, cancel := context.WithCancel(ctx)
	w.watched[address] = watch{kind: kind, cancel: cancel}
	w.wg.Add(1)
	go w.receive(subCtx, address, kind, sub)
	w.log.Debug("订阅 %s 票据 %s 的交易日志", kind, address)
	return nil
}

func (w *Watcher) Unwatch(address solana.PublicKey) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if wt, ok := w.watched[address]; ok {
		wt.cancel()
		delete(w.watched, address)
	}
}

func (w *Watcher) Watched() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.watched)
}

// Stop cancels every subscription and waits for the receivers.
func (w *Watcher) Stop() {
	w.mu.Lock()
	for addr, wt := range w.watched {
		wt.cancel()
		delete(w.watched, addr)
	}
	w.mu.Unlock()
	w.wg.Wait()
}

func (w *Watcher) receive(ctx context.Context, address solana.PublicKey, kind models.TicketKind, sub Subscription) {
	defer w.wg.Done()
	defer func() {
		if sub != nil {
			sub.Unsubscribe()
		}
	}()

	retryCount := 0
	for retryCount < w.maxRetries {
		if sub == nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.backoff(retryCount)):
			}
			next, err := w.source.Subscribe(address)
			if err != nil {
				retryCount++
				continue
			}
			sub = next
			retryCount = 0
			w.log.Info("日志订阅重连成功 %s", address)
		}

		n, err := sub.Recv(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.log.Warn("日志通知接收失败 %s: %v，重连中 (第 %d/%d 次)...", address, err, retryCount+1, w.maxRetries)
			sub.Unsubscribe()
			sub = nil
			continue
		}
		retryCount = 0

		if n.Signature.IsZero() || n.Failed {
			continue
		}
		key := seen{address, n.Signature}
		if _, dup := w.processed.LoadOrStore(key, true); dup {
			continue
		}
		done, err := w.Handle(ctx, address, kind, n.Signature)
		if err != nil {
			w.processed.Delete(key)
			w.log.Warn("处理交易 %s 失败: %v", n.Signature, err)
			continue
		}
		if done {
			w.forget(address)
			return
		}
	}
	w.log.Error("日志订阅重连失败 %s，已达最大重试次数", address)
	w.forget(address)
}

// forget drops address from the watch set without waiting for its receiver.
func (w *Watcher) forget(address solana.PublicKey) {
	w.mu.Lock()
	if wt, ok := w.watched[address]; ok {
		wt.cancel()
		delete(w.watched, address)
	}
	w.mu.Unlock()
}

// Handle classifies one transaction touching address and records a use.
// It reports whether the ticket reached its terminal state.
func (w *Watcher) Handle(ctx context.Context, address solana.PublicKey, kind models.TicketKind, sig solana.Signature) (bool, error) {
	rec, err := w.ledger.GetTransaction(ctx, sig)
	if err != nil {
		return false, err
	}
	if rec.Failed {
		return false, nil
	}
	ixs := tokenprog.DecodeTransaction(rec.Transaction)
	typ := services.Classify(ixs)
	if w.events != nil {
		w.events.TrackListenerEvent(string(typ))
	}

	at := time.Now()
	if rec.BlockTime != nil {
		at = *rec.BlockTime
	}

	switch kind {
	case models.KindAsset:
		if !burnsMint(ixs, address) {
			if typ == services.HistoryMint {
				return false, w.confirmCreated(ctx, address)
			}
			return false, nil
		}
	case models.KindValue:
		if typ != services.HistoryTransfer {
			return false, nil
		}
		bal, err := w.ledger.GetBalance(ctx, address)
		if err != nil {
			return false, err
		}
		if bal > 0 {
			return false, w.confirmCreated(ctx, address)
		}
	default:
		return false, nil
	}

	if err := w.store.MarkTicketUsed(ctx, address.String(), sig.String(), at); err != nil && !errors.Is(err, services.ErrNotFound) {
		return false, err
	}
	w.log.Info("票据 %s 已使用 (%s)", address, sig)
	return true, nil
}

// confirmCreated 确认超时而登记为 pending 的票，在创建交易落地后改为 valid
func (w *Watcher) confirmCreated(ctx context.Context, address solana.PublicKey) error {
	rec, err := w.store.Ticket(ctx, address.String())
	if errors.Is(err, services.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if rec.Status != models.StatusPending {
		return nil
	}
	rec.Status = models.StatusValid
	if err := w.store.SaveTicket(ctx, rec); err != nil {
		return err
	}
	w.log.Info("票据 %s 的创建交易已落地，状态改为 valid", address)
	return nil
}

func burnsMint(ixs []tokenprog.Decoded, mint solana.PublicKey) bool {
	for _, ix := range ixs {
		if ix.Kind == tokenprog.KindBurn && ix.Account(1).Equals(mint) {
			return true
		}
	}
	return false
}
