package service

import (
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/hhdaadws/atxp2api/common"
	"github.com/hhdaadws/atxp2api/dto"
	"github.com/hhdaadws/atxp2api/logger"
	"github.com/hhdaadws/atxp2api/model"
)

// AccountPool owns the in-memory account registry: round-robin selection with
// health-based skipping, lease bookkeeping and error accounting. The critical
// section is flag manipulation only, no I/O ever happens under the pool lock.
type AccountPool struct {
	mu       sync.Mutex
	accounts []*model.Account
	index    int
}

func NewAccountPool(accounts []*model.Account) *AccountPool {
	return &AccountPool{accounts: accounts}
}

func (p *AccountPool) Len() int {
	return len(p.accounts)
}

// Accounts exposes the registry for the token manager's fixed lock table.
// The slice itself never changes after load.
func (p *AccountPool) Accounts() []*model.Account {
	return p.accounts
}

// Acquire leases one account. It scans at most one full cycle from the
// cursor, skipping leased and unhealthy accounts. If the whole cycle is
// ineligible, the account at the cycle's starting position is force-leased
// anyway: handing out a busy or failing account beats refusing the request
// outright. Returns nil only when the pool is empty.
func (p *AccountPool) Acquire() *model.Account {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.accounts) == 0 {
		return nil
	}
	start := p.index
	for range p.accounts {
		acc := p.accounts[p.index]
		p.index = (p.index + 1) % len(p.accounts)
		if acc.Healthy() && !acc.InUse {
			acc.InUse = true
			return acc
		}
	}
	// Forced fallback: every account is leased or unhealthy.
	acc := p.accounts[start]
	acc.InUse = true
	logger.LogWarn(nil, "[%s] forced lease: no eligible account in pool", acc.Email)
	return acc
}

// Release returns the account to rotation. A non-empty errMsg counts against
// the account's health (saturating at the unhealthy threshold); a clean
// release forgives all prior failures.
func (p *AccountPool) Release(acc *model.Account, errMsg string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	acc.InUse = false
	if errMsg != "" {
		if acc.ErrorCount < common.UnhealthyErrorThreshold {
			acc.ErrorCount++
		}
		acc.LastError = errMsg
	} else {
		acc.ErrorCount = 0
	}
}

// Status snapshots pool health for the /status endpoint.
func (p *AccountPool) Status() dto.PoolStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	return dto.PoolStatus{
		Total:     len(p.accounts),
		Available: lo.CountBy(p.accounts, (*model.Account).Healthy),
		Accounts: lo.Map(p.accounts, func(a *model.Account, _ int) dto.AccountStatus {
			return dto.AccountStatus{
				Identity: a.Email,
				Errors:   a.ErrorCount,
				Leased:   a.InUse,
				HasToken: a.AccessToken != "" && time.Now().Before(a.TokenExpires),
			}
		}),
	}
}
