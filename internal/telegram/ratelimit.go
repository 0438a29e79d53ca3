package telegram

import (
	"context"
	"sync"
	"time"

	tgclient "github.com/gotd/td/telegram"
	"github.com/gotd/td/bin"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"
	"golang.org/x/time/rate"
)

// RateLimiter ограничивает частоту RPC-запросов к Telegram. Устанавливается
// как middleware на клиенте, поэтому через него проходят все запросы без
// исключения. При получении FLOOD_WAIT окно замораживается на требуемую
// сервером паузу.
type RateLimiter struct {
	limiter *rate.Limiter

	mu          sync.Mutex
	frozenUntil time.Time

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRateLimiter создаёт ограничитель с заданной частотой запросов в секунду.
// burst определяет размер допустимого всплеска, минимум 1.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		now:     time.Now,
		sleep:   sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Freeze останавливает выдачу запросов на заданную длительность.
// Повторные вызовы продлевают заморозку, но не сокращают её.
func (l *RateLimiter) Freeze(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	until := l.now().Add(d)
	if until.After(l.frozenUntil) {
		l.frozenUntil = until
	}
}

// wait блокируется до тех пор, пока запрос не будет разрешён.
func (l *RateLimiter) wait(ctx context.Context) error {
	for {
		l.mu.Lock()
		remaining := l.frozenUntil.Sub(l.now())
		l.mu.Unlock()
		if remaining <= 0 {
			break
		}
		if err := l.sleep(ctx, remaining); err != nil {
			return err
		}
	}
	return l.limiter.Wait(ctx)
}

// Handle реализует middleware-интерфейс клиента gotd.
func (l *RateLimiter) Handle(next tg.Invoker) tgclient.InvokeFunc {
	return func(ctx context.Context, input bin.Encoder, output bin.Decoder) error {
		if err := l.wait(ctx); err != nil {
			return err
		}
		err := next.Invoke(ctx, input, output)
		if wait, ok := tgerr.AsFloodWait(err); ok {
			l.Freeze(wait)
		}
		return err
	}
}

// rpcTimeout — middleware, ограничивающий длительность каждого RPC-запроса
// собственным дедлайном (telegram.request_timeout). Превышение всплывает
// как context.DeadlineExceeded и классифицируется как network_transient.
type rpcTimeout struct {
	limit time.Duration
}

// Handle реализует middleware-интерфейс клиента gotd.
func (m rpcTimeout) Handle(next tg.Invoker) tgclient.InvokeFunc {
	return func(ctx context.Context, input bin.Encoder, output bin.Decoder) error {
		if m.limit <= 0 {
			return next.Invoke(ctx, input, output)
		}
		ctx, cancel := context.WithTimeout(ctx, m.limit)
		defer cancel()
		return next.Invoke(ctx, input, output)
	}
}
