package bot

import (
	"context"
	"log/slog"
	"time"
)

func (b *Bot) pollLoop(stopCh <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	slog.Info("polling loop started")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for {
		if !b.waitNextFetch(stopCh) {
			slog.Info("polling loop stopped")
			return
		}

		res, err := b.fetcher.FetchEvents(ctx, b.cursor, b.pollTimeout)
		if err != nil {
			slog.Warn("fetch events failed", "error", err, "retry_in", b.errorBackoff)
			b.nextFetchAt = time.Now().Add(b.errorBackoff)
			continue
		}
		b.cursor = res.Cursor
		b.nextFetchAt = time.Now().Add(res.TimeToNextFetch)

		for _, ev := range res.Events {
			b.dispatcher.Dispatch(ctx, ev)
		}
	}
}

// waitNextFetch sleeps until nextFetchAt. It returns false when stopCh closes
// first.
func (b *Bot) waitNextFetch(stopCh <-chan struct{}) bool {
	wait := time.Until(b.nextFetchAt)
	if wait <= 0 {
		select {
		case <-stopCh:
			return false
		default:
			return true
		}
	}

	slog.Debug("sleeping before next fetch", "wait", wait)
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-stopCh:
		return false
	case <-timer.C:
		return true
	}
}
