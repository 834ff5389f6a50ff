package processor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kryos/kryos-api/internal/model"
	"github.com/kryos/kryos-api/pkg/logger"
	"github.com/kryos/kryos-api/pkg/prom"
	"github.com/robfig/cron/v3"
)

type LedgerReader interface {
	Load(ctx context.Context) ([]*model.Transaction, error)
}

type AdminLister interface {
	ListByRole(ctx context.Context, role model.Role) ([]*model.User, error)
}

// DigestJob mails admins the transactions waiting for approval.
type DigestJob struct {
	ledger     LedgerReader
	admins     AdminLister
	mailer     Mailer
	recipients []string
	timeout    time.Duration
}

func NewDigestJob(ledger LedgerReader, admins AdminLister, mailer Mailer, recipients []string) *DigestJob {
	return &DigestJob{
		ledger:     ledger,
		admins:     admins,
		mailer:     mailer,
		recipients: recipients,
		timeout:    time.Minute,
	}
}

// Run sends one digest. Nothing is sent when no transaction is pending.
func (j *DigestJob) Run(ctx context.Context) error {
	txns, err := j.ledger.Load(ctx)
	if err != nil {
		return fmt.Errorf("load ledger: %w", err)
	}
	var pending []*model.Transaction
	for _, t := range txns {
		if t.Status == model.StatusPending {
			pending = append(pending, t)
		}
	}
	if len(pending) == 0 {
		logger.Debug("[digest] nothing pending")
		return nil
	}

	to := j.collectRecipients(ctx)
	if len(to) == 0 {
		logger.Warn("[digest] no recipients", "pending", len(pending))
		return nil
	}

	if err := j.mailer.Send(ctx, DigestMail(to, pending)); err != nil {
		prom.IncReceiptSent("digest", "error")
		return err
	}
	prom.IncReceiptSent("digest", "ok")
	logger.Info("[digest] sent", "pending", len(pending), "recipients", len(to))
	return nil
}

func (j *DigestJob) collectRecipients(ctx context.Context) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(addr string) {
		addr = strings.ToLower(strings.TrimSpace(addr))
		if addr == "" {
			return
		}
		if _, ok := seen[addr]; ok {
			return
		}
		seen[addr] = struct{}{}
		out = append(out, addr)
	}
	for _, r := range j.recipients {
		add(r)
	}
	if j.admins != nil {
		admins, err := j.admins.ListByRole(ctx, model.RoleAdmin)
		if err != nil {
			logger.Warn("[digest] list admins failed", "error", err)
		}
		for _, a := range admins {
			add(a.Email)
		}
	}
	return out
}

// Schedule registers the job on c with a standard five field spec.
func (j *DigestJob) Schedule(c *cron.Cron, spec string) (cron.EntryID, error) {
	return c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
		defer cancel()
		if err := j.Run(ctx); err != nil {
			logger.Error("[digest] run failed", "error", err)
		}
	})
}

func DigestMail(to []string, pending []*model.Transaction) Mail {
	var b strings.Builder
	fmt.Fprintf(&b, "%d transaction(s) are waiting for approval:\n\n", len(pending))
	for _, t := range pending {
		fmt.Fprintf(&b, "- %s  %s %s  to %s  (user %s, %s)\n",
			t.ID, t.Amount.StringFixed(2), t.Currency, t.Receiver, t.UserID, t.CreatedAt.UTC().Format("2006-01-02 15:04"))
	}
	b.WriteString("\nReview them in the admin panel.\n")
	return Mail{
		To:      to,
		Subject: fmt.Sprintf("Kryos: %d payment(s) pending approval", len(pending)),
		Text:    b.String(),
	}
}
