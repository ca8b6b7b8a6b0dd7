// Package session is the application context of one signed-in client: it
// builds the cart, the realtime channel, the order book and the notification
// feed once, wires them together and owns their lifecycle.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"storefront-sync/internal/cart"
	"storefront-sync/internal/events"
	"storefront-sync/internal/kvstore"
	"storefront-sync/internal/notify"
	"storefront-sync/internal/orders"
	"storefront-sync/internal/realtime"
	"storefront-sync/internal/toast"

	"go.uber.org/zap"
)

var (
	ErrMissingDependency = errors.New("session: missing dependency")
	ErrDisposed          = errors.New("session: disposed")
)

// OrderAPI is the part of the REST API the session talks to.
type OrderAPI interface {
	orders.Snapshotter
	UpdateStatus(ctx context.Context, orderID, status string) error
}

type Deps struct {
	Viewer          events.Viewer
	Store           kvstore.Store
	Dialer          realtime.Dialer
	API             OrderAPI
	Forwarder       notify.Forwarder
	PollInterval    time.Duration
	NotificationCap int
	ChannelOptions  []realtime.Option
}

type Session struct {
	viewer events.Viewer
	log    *zap.Logger
	api    OrderAPI

	Cart          *cart.Engine
	Channel       *realtime.Channel
	Orders        *orders.Book
	Notifications *notify.Feed
	Toasts        *toast.Ring

	poller *orders.Poller

	mu       sync.Mutex
	started  bool
	disposed bool
}

func New(d Deps, log *zap.Logger) (*Session, error) {
	switch {
	case d.Store == nil:
		return nil, errors.Join(ErrMissingDependency, errors.New("store"))
	case d.Dialer == nil:
		return nil, errors.Join(ErrMissingDependency, errors.New("realtime dialer"))
	case d.API == nil:
		return nil, errors.Join(ErrMissingDependency, errors.New("order api"))
	}

	toasts := toast.NewRing(20)
	toasts.OnToast(func(t toast.Toast) {
		log.Info("toast", zap.String("kind", string(t.Kind)), zap.String("message", t.Message))
	})

	feedOpts := []notify.Option{notify.WithViewer(d.Viewer), notify.WithCap(d.NotificationCap)}
	if d.Forwarder != nil {
		feedOpts = append(feedOpts, notify.WithForwarder(d.Forwarder))
	}

	s := &Session{
		viewer:        d.Viewer,
		log:           log,
		api:           d.API,
		Cart:          cart.NewEngine(d.Store, log.Named("cart")),
		Channel:       realtime.NewChannel(d.Dialer, log.Named("realtime"), d.ChannelOptions...),
		Orders:        orders.NewBook(d.Viewer, log.Named("orders"), orders.WithToaster(toasts)),
		Notifications: notify.NewFeed(d.Store, log.Named("notify"), feedOpts...),
		Toasts:        toasts,
	}
	s.poller = orders.NewPoller(s.Orders, d.API, d.PollInterval, log.Named("poller"), toasts)

	s.Orders.Bind(s.Channel)
	s.Notifications.Bind(s.Channel)
	return s, nil
}

func (s *Session) Viewer() events.Viewer { return s.viewer }

// Start connects the channel, joins the viewer's room, loads the first
// snapshot and starts the polling fallback. A failed first snapshot is not
// fatal: the list stays empty, a toast is shown and polling catches up.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return ErrDisposed
	}
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.mu.Unlock()

	if s.viewer.HasRoom() {
		s.Channel.JoinRoom(ctx, string(s.viewer.Kind), s.viewer.ID)
	}
	if err := s.Channel.Start(ctx); err != nil {
		return err
	}
	if err := s.poller.Refresh(ctx); err != nil {
		s.log.Warn("initial order snapshot failed", zap.Error(err))
	}
	s.poller.Start(ctx)
	s.log.Info("session started",
		zap.String("viewer_kind", string(s.viewer.Kind)),
		zap.String("viewer_id", s.viewer.ID),
	)
	return nil
}

// Refresh re-fetches the order snapshot on demand.
func (s *Session) Refresh(ctx context.Context) error {
	return s.poller.Refresh(ctx)
}

// UpdateOrderStatus applies status optimistically and commits it to the API.
func (s *Session) UpdateOrderStatus(ctx context.Context, id string, status orders.Status) error {
	return s.Orders.Mutate(ctx, id, orders.StatusPatch(id, status), statusVerb(status), func(ctx context.Context) error {
		return s.api.UpdateStatus(ctx, id, string(status))
	})
}

func statusVerb(s orders.Status) string {
	switch s {
	case orders.StatusAccepted:
		return "accept"
	case orders.StatusRejected:
		return "reject"
	case orders.StatusReady:
		return "mark ready"
	case orders.StatusDelivered:
		return "deliver"
	}
	return "update"
}

// Dispose tears everything down. Safe to call more than once.
func (s *Session) Dispose() {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.disposed = true
	s.mu.Unlock()

	s.poller.Stop()
	s.Orders.Close()
	s.Notifications.Close()
	s.Cart.Close()
	_ = s.Channel.Close()
	s.log.Info("session disposed")
}
