package main

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/Abrham-amplitude/solana-ticket/internal/services"
	"github.com/Abrham-amplitude/solana-ticket/utils"
)

// faucet 重复请求空投直到余额达标，devnet 水龙头经常限流
type faucet struct {
	engine   *services.Engine
	log      *utils.Logger
	attempts int
	delay    time.Duration
}

// fund requests lamports per attempt until address holds want. A zero want
// means one successful airdrop on top of the starting balance.
func (f faucet) fund(ctx context.Context, address solana.PublicKey, lamports, want uint64) (uint64, error) {
	bal, err := f.engine.Balance(ctx, address)
	if err != nil {
		return 0, err
	}
	if want == 0 {
		want = bal + lamports
	}

	for attempt := 1; attempt <= f.attempts && bal < want; attempt++ {
		if _, err := f.engine.Airdrop(ctx, address, lamports); err != nil {
			f.log.Warn("空投失败 (第 %d/%d 次): %v", attempt, f.attempts, err)
			select {
			case <-ctx.Done():
				return bal, ctx.Err()
			case <-time.After(f.delay):
			}
		}
		if bal, err = f.engine.Balance(ctx, address); err != nil {
			return 0, err
		}
	}
	if bal < want {
		return bal, fmt.Errorf("balance %s is below the %s target after %d attempts",
			utils.FormatSOL(bal), utils.FormatSOL(want), f.attempts)
	}
	return bal, nil
}
