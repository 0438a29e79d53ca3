// Пакет scanner — оркестратор сканирования канала: ведёт конечный автомат,
// прогоняет сообщения через классификатор и фильтры, коммитит батчи
// (артефакты + маркер возобновления) и отдаёт прогресс.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/gotd/td/tg"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/quangminh1212/TeleDrive-sub002/internal/domain/model"
	"github.com/quangminh1212/TeleDrive-sub002/internal/domain/scan"
	"github.com/quangminh1212/TeleDrive-sub002/internal/filters"
	"github.com/quangminh1212/TeleDrive-sub002/internal/logging"
	"github.com/quangminh1212/TeleDrive-sub002/internal/storage/catalog"
	"github.com/quangminh1212/TeleDrive-sub002/internal/storage/cursor"
	"github.com/quangminh1212/TeleDrive-sub002/internal/storage/serializer"
	"github.com/quangminh1212/TeleDrive-sub002/internal/telegram"
)

var (
	metricMessages = promauto.NewCounter(prometheus.CounterOpts{
		Name: "teledrive_scanner_messages_total",
		Help: "Число просмотренных сообщений.",
	})
	metricFiles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "teledrive_scanner_files_indexed_total",
		Help: "Число записей, добавленных в каталог.",
	})
	metricCommits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "teledrive_scanner_commits_total",
		Help: "Число коммитов батчей (артефакты + маркер).",
	})
	metricErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "teledrive_scanner_errors_total",
		Help: "Ошибки сканирования по категориям.",
	}, []string{"class"})
	metricScanSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "teledrive_scanner_duration_seconds",
		Help:    "Длительность завершённых сканирований.",
		Buckets: prometheus.ExponentialBuckets(1, 4, 8),
	})
)

// BatchSource отдаёт историю канала батчами. Реализуется обходчиком
// из пакета telegram; тесты подставляют генератор.
type BatchSource interface {
	Next(ctx context.Context) ([]*tg.Message, error)
}

// Progress — снимок хода сканирования для отображения.
type Progress struct {
	State           scan.State
	MessagesScanned int
	FilesFound      int
	Elapsed         time.Duration
}

// Options — зависимости и параметры одного сканирования.
type Options struct {
	Request model.ScanRequest

	// Resolve разрешает идентификатор канала. Вызывается один раз.
	Resolve func(ctx context.Context) (*model.ChannelHandle, error)
	// NewSource создаёт источник батчей после разрешения канала.
	NewSource func(h *model.ChannelHandle, resumeFrom int) BatchSource

	Catalog    *catalog.Catalog
	Cursors    *cursor.Store
	Serializer *serializer.Serializer
	Logs       *logging.Streams

	GenerateLinks  bool
	IncludePreview bool

	// RetryAttempts и RetryDelay управляют повтором батча при сетевых сбоях.
	RetryAttempts int
	RetryDelay    time.Duration

	// Clock подменяется в тестах для детерминированных артефактов.
	Clock    func() time.Time
	Progress func(Progress)
}

// Result — итог сканирования.
type Result struct {
	State   scan.State
	Info    model.ScanInfo
	Records int
	History []scan.TransitionRecord
}

// Scanner выполняет одно сканирование одного канала.
type Scanner struct {
	opts    Options
	sm      *scan.StateMachine
	filters *filters.Filters

	info      model.ScanInfo
	scanned   int
	other     int
	lastSeen  int
	startedAt time.Time

	jitter func() float64
}

// New подготавливает сканер: компилирует фильтры, проверяет зависимости.
func New(opts Options) (*Scanner, error) {
	if opts.Resolve == nil || opts.NewSource == nil {
		return nil, errors.New("не заданы Resolve и NewSource")
	}
	if opts.Catalog == nil || opts.Cursors == nil || opts.Serializer == nil || opts.Logs == nil {
		return nil, errors.New("не заданы хранилища или логи")
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.RetryAttempts <= 0 {
		opts.RetryAttempts = 3
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 5 * time.Second
	}

	compiled, err := filters.Compile(opts.Request.Filters)
	if err != nil {
		return nil, fmt.Errorf("фильтры: %w", err)
	}

	return &Scanner{
		opts:    opts,
		sm:      scan.NewStateMachine(),
		filters: compiled,
		jitter:  rand.Float64,
	}, nil
}

// State возвращает текущее состояние автомата.
func (s *Scanner) State() scan.State { return s.sm.Current() }

// Run выполняет сканирование до терминального состояния. Ошибка
// возвращается только при переходе в failed; отмена — штатный итог
// с состоянием cancelled.
func (s *Scanner) Run(ctx context.Context) (*Result, error) {
	s.startedAt = s.opts.Clock().UTC()
	log := s.opts.Logs.Main

	stepID := s.opts.Logs.StepStart(log, "scan", fmt.Sprintf("канал %s", s.opts.Request.Channel.Identifier))

	handle, err := s.resolve(ctx)
	if err != nil {
		s.opts.Logs.StepFail(log, stepID, "scan", err)
		return s.finish(), err
	}
	if handle == nil {
		// Отмена на этапе разрешения.
		s.opts.Logs.StepEnd(log, stepID, "scan", "отменено")
		return s.finish(), nil
	}

	s.info = model.ScanInfo{
		Channel:      handle.Ref(),
		StartedAt:    s.startedAt,
		CountsByType: map[string]int{},
		FiltersUsed:  s.filters.Set(),
		Errors:       []model.ErrorItem{},
	}

	resumeFrom := s.resumePoint(handle)
	s.lastSeen = resumeFrom
	links := telegram.NewLinkBuilder(handle, s.opts.GenerateLinks, s.opts.IncludePreview)
	source := s.opts.NewSource(handle, resumeFrom)

	s.mustTransition(scan.StateWalking, "")
	walkErr := s.walk(ctx, handle, source, links)

	switch {
	case walkErr == nil && ctx.Err() != nil:
		s.commit(handle, false)
		s.mustTransition(scan.StateCancelled, "отмена пользователем")
		s.opts.Logs.StepEnd(log, stepID, "scan", "отменено")
		return s.finish(), nil

	case walkErr != nil:
		s.recordError(walkErr, "walking")
		s.commit(handle, false)
		s.mustTransition(scan.StateFailed, walkErr.Error())
		s.opts.Logs.StepFail(log, stepID, "scan", walkErr)
		return s.finish(), walkErr
	}

	s.mustTransition(scan.StateCompleting, "")
	finished := s.opts.Clock().UTC()
	s.info.FinishedAt = &finished
	if err := s.commit(handle, true); err != nil {
		s.mustTransition(scan.StateFailed, err.Error())
		s.opts.Logs.StepFail(log, stepID, "scan", err)
		return s.finish(), err
	}
	if err := s.opts.Cursors.Delete(handle.ResolvedID, s.opts.Request.Direction); err != nil {
		s.mustTransition(scan.StateFailed, err.Error())
		s.opts.Logs.StepFail(log, stepID, "scan", err)
		return s.finish(), err
	}

	s.mustTransition(scan.StateDone, "")
	metricScanSeconds.Observe(time.Since(s.startedAt).Seconds())
	s.opts.Logs.StepEnd(log, stepID, "scan",
		fmt.Sprintf("%d сообщений, %d файлов", s.scanned, s.opts.Catalog.Len()))
	return s.finish(), nil
}

// resolve проводит этап resolving. Возвращает (nil, nil) при отмене.
func (s *Scanner) resolve(ctx context.Context) (*model.ChannelHandle, error) {
	s.mustTransition(scan.StateResolving, "")
	handle, err := s.opts.Resolve(ctx)
	if err != nil {
		if telegram.IsClass(err, telegram.ClassCancelled) {
			s.mustTransition(scan.StateCancelled, "отмена пользователем")
			return nil, nil
		}
		s.recordError(err, "resolving")
		s.mustTransition(scan.StateFailed, err.Error())
		return nil, err
	}
	return handle, nil
}

// resumePoint возвращает позицию возобновления из маркера, если запрошено.
func (s *Scanner) resumePoint(handle *model.ChannelHandle) int {
	if !s.opts.Request.Resume {
		return 0
	}
	c, err := s.opts.Cursors.Load(handle.ResolvedID, s.opts.Request.Direction)
	if err != nil {
		if !errors.Is(err, cursor.ErrNotFound) {
			s.opts.Logs.Main.Warn("маркер возобновления не прочитан", slog.String("error", err.Error()))
		}
		return 0
	}
	s.opts.Logs.Main.Info("сканирование возобновлено",
		slog.Int("last_message_id_seen", c.LastMessageIDSeen))
	return c.LastMessageIDSeen
}

// walk — основной цикл: батчи, сообщения, коммиты. Возвращает nil при
// нормальном конце истории, достижении лимита или отмене (вызывающий
// различает по ctx.Err()).
func (s *Scanner) walk(ctx context.Context, handle *model.ChannelHandle, source BatchSource, links *telegram.LinkBuilder) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		// Нулевой лимит означает пустое сканирование: ни одного запроса
		// истории после разрешения канала.
		if s.limitReached() {
			return nil
		}

		batch, err := s.nextWithRetry(ctx, source)
		if errors.Is(err, telegram.ErrEndOfHistory) {
			return nil
		}
		if err != nil {
			if telegram.IsClass(err, telegram.ClassCancelled) {
				return nil
			}
			return err
		}

		limitReached := false
		for _, msg := range batch {
			if ctx.Err() != nil {
				break
			}
			s.consume(handle, msg, links)
			if s.limitReached() {
				limitReached = true
				break
			}
		}

		if err := s.commit(handle, false); err != nil {
			return err
		}
		if limitReached {
			return nil
		}
	}
}

// limitReached сообщает, исчерпан ли бюджет сообщений. Отрицательный
// MaxMessages означает отсутствие ограничения.
func (s *Scanner) limitReached() bool {
	return s.opts.Request.MaxMessages >= 0 && s.scanned >= s.opts.Request.MaxMessages
}

// consume обрабатывает одно сообщение: классификация, фильтры, дедуп.
func (s *Scanner) consume(handle *model.ChannelHandle, msg *tg.Message, links *telegram.LinkBuilder) {
	s.scanned++
	s.lastSeen = msg.ID
	metricMessages.Inc()

	rec := telegram.ClassifyMessage(handle, msg, s.startedAt)
	if rec == nil {
		// Сообщение без файла учитывается отдельно.
		s.other++
		return
	}
	if !s.filters.Admit(rec) {
		return
	}
	if s.opts.Request.Filters.SkipExisting && s.opts.Catalog.Known(rec.RecordID) {
		return
	}
	if s.opts.Request.Filters.Dedupe && s.opts.Catalog.Has(rec.RecordID) {
		return
	}

	links.Apply(rec)
	if s.opts.Catalog.Append(rec) {
		metricFiles.Inc()
		s.opts.Logs.Files.Info("файл проиндексирован",
			slog.String("record_id", rec.RecordID),
			slog.String("name", rec.File.Name),
			slog.String("type", string(rec.File.Type)),
			slog.Int64("size_bytes", rec.File.SizeBytes))
	}
}

// nextWithRetry повторяет батч при временных сетевых сбоях:
// экспоненциальная задержка с полным джиттером, до RetryAttempts попыток.
func (s *Scanner) nextWithRetry(ctx context.Context, source BatchSource) ([]*tg.Message, error) {
	var lastErr error
	for attempt := 0; attempt <= s.opts.RetryAttempts; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(float64(s.opts.RetryDelay) * float64(int(1)<<(attempt-1)) * s.jitter())
			s.opts.Logs.Main.Warn("повтор батча после сетевой ошибки",
				slog.Int("attempt", attempt),
				slog.Duration("backoff", backoff))
			select {
			case <-ctx.Done():
				return nil, telegram.Classify(ctx.Err())
			case <-time.After(backoff):
			}
		}

		batch, err := source.Next(ctx)
		if err == nil || errors.Is(err, telegram.ErrEndOfHistory) {
			return batch, err
		}
		if !telegram.IsClass(err, telegram.ClassNetworkTransient) {
			return nil, err
		}
		metricErrors.WithLabelValues(string(telegram.ClassNetworkTransient)).Inc()
		lastErr = err
	}
	return nil, fmt.Errorf("исчерпаны повторы батча: %w", lastErr)
}

// commit — точка фиксации: артефакты, маркер возобновления, прогресс.
// Финальный коммит (final=true) не пишет маркер — он будет удалён.
func (s *Scanner) commit(handle *model.ChannelHandle, final bool) error {
	s.info.LastCursor = s.lastSeen
	s.info.CountsByType = s.opts.Catalog.CountsByType()
	if s.other > 0 {
		s.info.CountsByType["other"] = s.other
	}
	s.info.TotalBytes = s.opts.Catalog.TotalBytes()

	if err := s.opts.Serializer.Flush(s.info, s.opts.Catalog.Snapshot()); err != nil {
		return fmt.Errorf("запись артефактов: %w", err)
	}
	if !final && s.lastSeen > 0 {
		if err := s.opts.Cursors.Save(model.ResumeCursor{
			ChannelResolvedID: handle.ResolvedID,
			LastMessageIDSeen: s.lastSeen,
			Direction:         s.opts.Request.Direction,
		}); err != nil {
			return fmt.Errorf("запись маркера: %w", err)
		}
	}
	metricCommits.Inc()

	if s.opts.Progress != nil {
		s.opts.Progress(Progress{
			State:           s.sm.Current(),
			MessagesScanned: s.scanned,
			FilesFound:      s.opts.Catalog.Len(),
			Elapsed:         time.Since(s.startedAt),
		})
	}
	return nil
}

// recordError добавляет ошибку в scan_info и метрики.
func (s *Scanner) recordError(err error, where string) {
	item := model.ErrorItem{
		When:        s.opts.Clock().UTC(),
		Where:       where,
		Kind:        "rpc_failed",
		Detail:      err.Error(),
		Recoverable: false,
	}
	if ce, ok := telegram.AsClassified(err); ok {
		item.Kind = string(ce.Class)
		item.Recoverable = ce.Retriable()
	}
	s.info.Errors = append(s.info.Errors, item)
	metricErrors.WithLabelValues(item.Kind).Inc()
}

// mustTransition выполняет переход; нарушение матрицы — ошибка программиста.
func (s *Scanner) mustTransition(target scan.State, reason string) {
	if err := s.sm.TransitionTo(target, reason); err != nil {
		panic(err)
	}
}

func (s *Scanner) finish() *Result {
	return &Result{
		State:   s.sm.Current(),
		Info:    s.info,
		Records: s.opts.Catalog.Len(),
		History: s.sm.History(),
	}
}
