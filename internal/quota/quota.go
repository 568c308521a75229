package quota

import (
	"context"
	"fmt"
	"time"

	"verepo/internal/store"
)

// Ledger enforces independent daily ceilings per caller IP and, when
// present, per wallet. Windows reset at exact UTC midnight, not on a
// sliding clock.
type Ledger struct {
	store       store.Store
	ipLimit     int
	walletLimit int

	// Now lets tests pin the ledger clock. Nil means time.Now.
	Now func() time.Time
}

func NewLedger(s store.Store, ipLimit, walletLimit int) *Ledger {
	if ipLimit <= 0 {
		ipLimit = 5
	}
	if walletLimit <= 0 {
		walletLimit = 3
	}
	return &Ledger{store: s, ipLimit: ipLimit, walletLimit: walletLimit}
}

// CheckResult is the read-only admission decision.
type CheckResult struct {
	Allowed   bool
	Remaining int
	ResetIn   time.Duration
	Reason    string
}

// Usage is the display view of remaining budgets.
type Usage struct {
	IPRemaining     int
	WalletRemaining *int
	ResetIn         time.Duration
}

func (l *Ledger) now() time.Time {
	if l.Now != nil {
		return l.Now().UTC()
	}
	return time.Now().UTC()
}

// utcDate returns the current counter-window key (YYYY-MM-DD in UTC).
func (l *Ledger) utcDate() string {
	return l.now().Format("2006-01-02")
}

// resetIn is the distance to the next UTC midnight.
func (l *Ledger) resetIn() time.Duration {
	now := l.now()
	midnight := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)
	return midnight.Sub(now)
}

func ipKey(ip string) string { return "ip:" + ip }

// Check decides admission without consuming anything. When both identities
// apply, the caller is allowed only if both have budget and the reported
// remaining is the minimum of the two.
func (l *Ledger) Check(ctx context.Context, ip, wallet string) (CheckResult, error) {
	date := l.utcDate()
	resetIn := l.resetIn()

	ipCount, err := l.store.GetUsage(ctx, ipKey(ip), store.UsageIP, date)
	if err != nil {
		return CheckResult{}, err
	}
	if ipCount >= l.ipLimit {
		return CheckResult{
			ResetIn: resetIn,
			Reason:  fmt.Sprintf("IP daily limit reached (%d/day)", l.ipLimit),
		}, nil
	}

	if wallet != "" {
		walletCount, err := l.store.GetUsage(ctx, wallet, store.UsageWallet, date)
		if err != nil {
			return CheckResult{}, err
		}
		if walletCount >= l.walletLimit {
			return CheckResult{
				ResetIn: resetIn,
				Reason:  fmt.Sprintf("Wallet daily limit reached (%d/day)", l.walletLimit),
			}, nil
		}
		return CheckResult{
			Allowed:   true,
			Remaining: min(l.walletLimit-walletCount, l.ipLimit-ipCount),
			ResetIn:   resetIn,
		}, nil
	}

	return CheckResult{Allowed: true, Remaining: l.ipLimit - ipCount, ResetIn: resetIn}, nil
}

// Commit consumes one unit for each applicable identity. It is called once
// the expensive work has started, not after it finishes, so a failed
// analysis still costs a unit; refunding on failure would make unlimited
// retries free.
func (l *Ledger) Commit(ctx context.Context, ip, wallet string) error {
	date := l.utcDate()
	if err := l.store.IncrementUsage(ctx, ipKey(ip), store.UsageIP, date); err != nil {
		return err
	}
	if wallet != "" {
		return l.store.IncrementUsage(ctx, wallet, store.UsageWallet, date)
	}
	return nil
}

// Peek reports remaining budgets for display; it never mutates.
func (l *Ledger) Peek(ctx context.Context, ip, wallet string) (Usage, error) {
	date := l.utcDate()

	ipCount, err := l.store.GetUsage(ctx, ipKey(ip), store.UsageIP, date)
	if err != nil {
		return Usage{}, err
	}
	usage := Usage{
		IPRemaining: max(0, l.ipLimit-ipCount),
		ResetIn:     l.resetIn(),
	}

	if wallet != "" {
		walletCount, err := l.store.GetUsage(ctx, wallet, store.UsageWallet, date)
		if err != nil {
			return Usage{}, err
		}
		remaining := max(0, l.walletLimit-walletCount)
		usage.WalletRemaining = &remaining
	}
	return usage, nil
}
