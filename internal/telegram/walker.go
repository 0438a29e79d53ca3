package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/gotd/td/tg"

	"github.com/quangminh1212/TeleDrive-sub002/internal/domain/model"
)

// ErrEndOfHistory возвращается Next, когда история канала исчерпана.
var ErrEndOfHistory = errors.New("история канала исчерпана")

// historyClient — срез RPC-клиента, нужный обходчику. Отдельный интерфейс
// позволяет подменять клиент в тестах.
type historyClient interface {
	MessagesGetHistory(ctx context.Context, request *tg.MessagesGetHistoryRequest) (tg.MessagesMessagesClass, error)
}

// WalkerOptions — параметры обхода истории.
type WalkerOptions struct {
	Handle          *model.ChannelHandle
	Direction       model.Direction
	BatchSize       int
	InterBatchDelay time.Duration
	// ResumeFrom — последний уже обработанный message_id; обход начинается
	// строго после него. 0 — с начала.
	ResumeFrom int
	// FloodSleepThreshold — максимальная пауза FLOOD_WAIT, которую обходчик
	// отрабатывает сам. Более длинное ожидание отдаётся вызывающему как
	// ошибка rate_limited с заполненным RetryAfter.
	FloodSleepThreshold time.Duration
	Log                 *slog.Logger
}

// Walker обходит историю канала батчами. Между батчами выдерживается пауза,
// FLOOD_WAIT в пределах FloodSleepThreshold приводит к повтору того же батча
// после требуемой паузы.
// Сетевые ошибки отдаются вызывающему: неудачный Next не сдвигает позицию,
// поэтому повторный вызов повторяет тот же батч.
type Walker struct {
	api  historyClient
	opts WalkerOptions

	cursor  int
	started bool
	done    bool

	sleep  func(ctx context.Context, d time.Duration) error
	jitter func() time.Duration
}

// NewWalker создаёт обходчик. BatchSize, InterBatchDelay и
// FloodSleepThreshold без значений получают 100, 1 секунду и 60 секунд
// соответственно.
func NewWalker(api historyClient, opts WalkerOptions) *Walker {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.InterBatchDelay == 0 {
		opts.InterBatchDelay = time.Second
	}
	if opts.FloodSleepThreshold == 0 {
		opts.FloodSleepThreshold = 60 * time.Second
	}
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	return &Walker{
		api:    api,
		opts:   opts,
		cursor: opts.ResumeFrom,
		sleep:  sleepCtx,
		jitter: func() time.Duration { return time.Duration(rand.Int63n(int64(time.Second))) },
	}
}

// Next возвращает следующий батч сообщений в запрошенном направлении.
// Батч атомарен: позиция сдвигается только после успешного разбора всего
// ответа. По исчерпании истории возвращается ErrEndOfHistory.
func (w *Walker) Next(ctx context.Context) ([]*tg.Message, error) {
	if w.done {
		return nil, ErrEndOfHistory
	}

	if w.started {
		if err := w.sleep(ctx, w.opts.InterBatchDelay); err != nil {
			return nil, Classify(err)
		}
	}

	for {
		batch, err := w.fetch(ctx)
		if err == nil {
			w.started = true
			if len(batch) == 0 {
				w.done = true
				return nil, ErrEndOfHistory
			}
			w.advance(batch)
			return batch, nil
		}

		ce := Classify(err)
		if ce.Class == ClassRateLimited {
			if ce.RetryAfter > w.opts.FloodSleepThreshold {
				w.opts.Log.Warn("FLOOD_WAIT превышает порог ожидания",
					slog.Duration("retry_after", ce.RetryAfter),
					slog.Duration("threshold", w.opts.FloodSleepThreshold))
				return nil, ce
			}
			pause := ce.RetryAfter + w.jitter()
			w.opts.Log.Warn("получен FLOOD_WAIT, батч будет повторён",
				slog.Duration("pause", pause),
				slog.Int("cursor", w.cursor))
			if err := w.sleep(ctx, pause); err != nil {
				return nil, Classify(err)
			}
			continue
		}
		return nil, ce
	}
}

// fetch выполняет один запрос истории без изменения позиции.
func (w *Walker) fetch(ctx context.Context) ([]*tg.Message, error) {
	req := &tg.MessagesGetHistoryRequest{
		Peer:  InputPeer(w.opts.Handle),
		Limit: w.opts.BatchSize,
	}
	switch w.opts.Direction {
	case model.OldestFirst:
		// Окно из batchSize сообщений сразу после позиции.
		req.OffsetID = w.cursor + 1
		req.AddOffset = -w.opts.BatchSize
	default:
		// С новейших: сервер отдаёт сообщения с id < offset_id.
		req.OffsetID = w.cursor
	}

	resp, err := w.api.MessagesGetHistory(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("messages.getHistory (offset %d): %w", req.OffsetID, err)
	}

	raw, err := extractMessages(resp)
	if err != nil {
		return nil, err
	}

	// Сервисные сообщения и дыры пропускаются: удалённые сообщения просто
	// отсутствуют, надгробия не синтезируются.
	batch := make([]*tg.Message, 0, len(raw))
	for _, m := range raw {
		if msg, ok := m.(*tg.Message); ok {
			batch = append(batch, msg)
		}
	}

	if w.opts.Direction == model.OldestFirst {
		reverseMessages(batch)
		// При возобновлении окно может зацепить уже обработанные сообщения.
		for len(batch) > 0 && batch[0].ID <= w.cursor {
			batch = batch[1:]
		}
	}
	return batch, nil
}

// advance сдвигает позицию на последний выданный элемент батча.
func (w *Walker) advance(batch []*tg.Message) {
	w.cursor = batch[len(batch)-1].ID
}

func extractMessages(resp tg.MessagesMessagesClass) ([]tg.MessageClass, error) {
	switch m := resp.(type) {
	case *tg.MessagesChannelMessages:
		return m.Messages, nil
	case *tg.MessagesMessagesSlice:
		return m.Messages, nil
	case *tg.MessagesMessages:
		return m.Messages, nil
	case *tg.MessagesMessagesNotModified:
		return nil, nil
	default:
		return nil, newError(ClassRPCFailed, "",
			fmt.Sprintf("неожиданный тип ответа истории: %T", resp), nil)
	}
}

func reverseMessages(batch []*tg.Message) {
	for i, j := 0, len(batch)-1; i < j; i, j = i+1, j-1 {
		batch[i], batch[j] = batch[j], batch[i]
	}
}
