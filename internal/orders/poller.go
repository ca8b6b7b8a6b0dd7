package orders

import (
	"context"
	"fmt"
	"sync"
	"time"

	"storefront-sync/internal/events"
	"storefront-sync/internal/toast"

	"go.uber.org/zap"
)

// Snapshotter fetches the raw order list visible to viewer.
type Snapshotter interface {
	Snapshot(ctx context.Context, viewer events.Viewer) ([]byte, error)
}

type Poller struct {
	book     *Book
	api      Snapshotter
	interval time.Duration
	log      *zap.Logger
	toaster  toast.Toaster

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewPoller(book *Book, api Snapshotter, interval time.Duration, log *zap.Logger, toaster toast.Toaster) *Poller {
	if toaster == nil {
		toaster = toast.Discard{}
	}
	return &Poller{
		book:     book,
		api:      api,
		interval: interval,
		log:      log,
		toaster:  toaster,
		stopCh:   make(chan struct{}),
	}
}

// Refresh загружает снимок заказов и вливает его в книгу. При ошибке список
// не трогаем и показываем тост.
func (p *Poller) Refresh(ctx context.Context) error {
	if err := p.fetch(ctx); err != nil {
		p.log.Error("order snapshot refresh failed", zap.Error(err))
		p.toaster.Toast(toast.KindWarning, "Couldn't refresh orders, showing the last known list")
		return err
	}
	return nil
}

func (p *Poller) fetch(ctx context.Context) error {
	stamp := p.book.Mark()
	raw, err := p.api.Snapshot(ctx, p.book.Viewer())
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSnapshot, err)
	}
	p.book.ApplySnapshot(Normalize(raw), stamp)
	return nil
}

// Start запускает тихий опрос с фиксированным интервалом
func (p *Poller) Start(ctx context.Context) {
	if p.interval <= 0 {
		p.log.Info("order polling disabled")
		return
	}
	p.log.Info("starting order poller", zap.Duration("interval", p.interval))
	p.wg.Add(1)
	go p.run(ctx)
}

// Stop останавливает опрос и ждёт завершения горутины
func (p *Poller) Stop() {
	p.stopOnce.Do(func() {
		p.log.Info("stopping order poller")
		close(p.stopCh)
	})
	p.wg.Wait()
}

func (p *Poller) run(ctx context.Context) {
	defer p.wg.Done()
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			// фоновый опрос без тостов: только лог
			if err := p.fetch(ctx); err != nil {
				p.log.Warn("silent order poll failed", zap.Error(err))
			}
		case <-p.stopCh:
			p.log.Info("order poller stopped")
			return
		case <-ctx.Done():
			p.log.Info("order poller cancelled")
			return
		}
	}
}
