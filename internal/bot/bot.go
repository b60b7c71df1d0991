// Package bot runs the long-poll worker that feeds fetched events to a
// dispatcher, and controls its lifecycle.
package bot

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/nextlevelbuilder/goicq/internal/botapi"
	"github.com/nextlevelbuilder/goicq/internal/dispatch"
	"github.com/nextlevelbuilder/goicq/internal/event"
)

const DefaultErrorBackoff = time.Second

// Fetcher performs one long poll. *botapi.Client implements it.
type Fetcher interface {
	FetchEvents(ctx context.Context, cursor string, pollTimeout time.Duration) (botapi.FetchResult, error)
}

// IdentitySetter receives the bot's own uin and nick from myInfo events.
type IdentitySetter interface {
	SetIdentity(uin, nick string)
}

// Bot owns one polling worker. At most one worker runs at a time, so at most
// one fetch is ever in flight.
type Bot struct {
	fetcher      Fetcher
	dispatcher   *dispatch.Dispatcher
	pollTimeout  time.Duration
	errorBackoff time.Duration
	exit         func(code int)

	// lifeMu serializes Start and Stop, including Stop's wait for the worker.
	lifeMu  sync.Mutex
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	done    chan struct{}

	// Worker-owned; survive restarts.
	cursor      string
	nextFetchAt time.Time

	idMu sync.RWMutex
	uin  string
	nick string
}

// Option configures a Bot.
type Option func(*Bot)

func WithPollTimeout(d time.Duration) Option {
	return func(b *Bot) {
		if d > 0 {
			b.pollTimeout = d
		}
	}
}

// WithErrorBackoff sets the delay before retrying a failed fetch.
func WithErrorBackoff(d time.Duration) Option {
	return func(b *Bot) {
		if d > 0 {
			b.errorBackoff = d
		}
	}
}

// WithExitFunc replaces os.Exit for the forced-exit path of Idle.
func WithExitFunc(exit func(code int)) Option {
	return func(b *Bot) { b.exit = exit }
}

// New creates a stopped bot. A handler keeping the bot's identity current is
// registered first, ahead of any user handler.
func New(fetcher Fetcher, d *dispatch.Dispatcher, opts ...Option) *Bot {
	b := &Bot{
		fetcher:      fetcher,
		dispatcher:   d,
		pollTimeout:  botapi.DefaultPollTimeout,
		errorBackoff: DefaultErrorBackoff,
		exit:         os.Exit,
	}
	for _, opt := range opts {
		opt(b)
	}
	d.Add(dispatch.NewMyInfoHandler(b.onMyInfo, dispatch.WithName("my-info")))
	return b
}

// Dispatcher returns the dispatcher events are delivered to.
func (b *Bot) Dispatcher() *dispatch.Dispatcher { return b.dispatcher }

func (b *Bot) onMyInfo(_ context.Context, ev event.Event) error {
	attrs := ev.Attributes()
	uin, _ := attrs.String(event.AttrAimID)
	nick, _ := attrs.String(event.AttrFriendly)

	b.idMu.Lock()
	b.uin, b.nick = uin, nick
	b.idMu.Unlock()

	if s, ok := b.fetcher.(IdentitySetter); ok {
		s.SetIdentity(uin, nick)
	}
	slog.Info("bot identity updated", "uin", uin, "nick", nick)
	return nil
}

// UIN returns the bot's own id, empty until the first myInfo event.
func (b *Bot) UIN() string {
	b.idMu.RLock()
	defer b.idMu.RUnlock()
	return b.uin
}

// Nick returns the bot's display name, empty until the first myInfo event.
func (b *Bot) Nick() string {
	b.idMu.RLock()
	defer b.idMu.RUnlock()
	return b.nick
}

// Running reports whether the worker is, or is about to be, polling.
func (b *Bot) Running() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

// Start spawns the polling worker. It is a no-op when already running.
func (b *Bot) Start() {
	b.lifeMu.Lock()
	defer b.lifeMu.Unlock()

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return
	}
	b.running = true
	b.stopCh = make(chan struct{})
	b.done = make(chan struct{})

	slog.Info("starting polling", "poll_timeout", b.pollTimeout)
	go b.pollLoop(b.stopCh, b.done)
}

// Stop asks the worker to exit and waits until it has. An in-flight fetch and
// the dispatch of its batch complete first. It is a no-op when stopped.
// Handlers must not call Stop synchronously: the worker would wait on itself.
func (b *Bot) Stop() {
	b.lifeMu.Lock()
	defer b.lifeMu.Unlock()

	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return
	}
	b.running = false
	close(b.stopCh)
	done := b.done
	b.mu.Unlock()

	slog.Info("stopping polling")
	<-done
	slog.Info("polling stopped")
}

// doneCh returns the current worker's exit channel, nil when stopped.
func (b *Bot) doneCh() <-chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.running {
		return nil
	}
	return b.done
}

// Idle blocks until the bot stops. SIGINT, SIGTERM and SIGABRT stop it; a
// second signal while stopping exits the process with status 1.
func (b *Bot) Idle() {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGABRT)
	defer signal.Stop(sigCh)

	b.idle(sigCh)
}

func (b *Bot) idle(sigCh <-chan os.Signal) {
	done := b.doneCh()
	if done == nil {
		return
	}

	stopping := false
	for {
		select {
		case sig := <-sigCh:
			if stopping {
				slog.Warn("forced exit", "signal", sig.String())
				b.exit(1)
				return
			}
			stopping = true
			slog.Info("stopping bot by signal, repeat to force exit", "signal", sig.String())
			go b.Stop()
		case <-done:
			return
		}
	}
}
