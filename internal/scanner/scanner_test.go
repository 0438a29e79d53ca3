package scanner

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"
	"github.com/google/go-cmp/cmp"

	"github.com/quangminh1212/TeleDrive-sub002/internal/config"
	"github.com/quangminh1212/TeleDrive-sub002/internal/domain/model"
	"github.com/quangminh1212/TeleDrive-sub002/internal/domain/scan"
	"github.com/quangminh1212/TeleDrive-sub002/internal/logging"
	"github.com/quangminh1212/TeleDrive-sub002/internal/storage/catalog"
	"github.com/quangminh1212/TeleDrive-sub002/internal/storage/cursor"
	"github.com/quangminh1212/TeleDrive-sub002/internal/storage/serializer"
	"github.com/quangminh1212/TeleDrive-sub002/internal/telegram"
)

var scanClock = time.Date(2025, 7, 10, 8, 0, 0, 0, time.UTC)

// fakeSource отдаёт заранее подготовленные батчи; на заданных вызовах
// возвращает ошибку.
type fakeSource struct {
	batches [][]*tg.Message
	idx     int
	calls   int
	errAt   map[int]error // номер вызова (с 1) — ошибка
	sticky  bool          // ошибка повторяется на каждом следующем вызове
}

func (f *fakeSource) Next(_ context.Context) ([]*tg.Message, error) {
	f.calls++
	if err, ok := f.errAt[f.calls]; ok {
		return nil, telegram.Classify(err)
	}
	if f.sticky {
		for at, err := range f.errAt {
			if f.calls >= at {
				return nil, telegram.Classify(err)
			}
		}
	}
	if f.idx >= len(f.batches) {
		return nil, telegram.ErrEndOfHistory
	}
	b := f.batches[f.idx]
	f.idx++
	return b, nil
}

func docMsg(id int, name string, size int64) *tg.Message {
	return &tg.Message{
		ID:   id,
		Date: int(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(id) * time.Minute).Unix()),
		Media: &tg.MessageMediaDocument{Document: &tg.Document{
			ID: int64(id), MimeType: "application/pdf", Size: size,
			Attributes: []tg.DocumentAttributeClass{&tg.DocumentAttributeFilename{FileName: name}},
		}},
	}
}

func textMsg(id int) *tg.Message {
	return &tg.Message{ID: id, Date: int(time.Unix(1700000000, 0).Unix()), Message: "текст"}
}

type env struct {
	scanner *Scanner
	catalog *catalog.Catalog
	cursors *cursor.Store
	ser     *serializer.Serializer
	logs    *logging.Streams
	dir     string
}

func newEnv(t *testing.T, source BatchSource, req model.ScanRequest, tweak func(*Options)) *env {
	t.Helper()
	dir := t.TempDir()

	logs, err := logging.New(logging.Options{Dir: dir + "/logs", Level: slog.LevelDebug})
	if err != nil {
		t.Fatalf("logging.New: %v", err)
	}
	t.Cleanup(func() { logs.Close() })

	cursors, err := cursor.NewStore(dir + "/state")
	if err != nil {
		t.Fatalf("cursor.NewStore: %v", err)
	}

	cat := catalog.New(slog.New(slog.DiscardHandler))
	ser := serializer.New(config.OutputConfig{
		Directory: dir + "/output", RichJSON: true,
	}, serializer.ScanID(scanClock), slog.New(slog.DiscardHandler))

	if req.Channel == nil {
		req.Channel = &model.ChannelHandle{
			Kind: model.KindPublic, Identifier: "@demo", ResolvedID: 4242,
			Title: "Демо", Username: "demo", Joined: true,
			CanReadHistory: true, CanDownloadMedia: true,
		}
	}
	if req.Direction == "" {
		req.Direction = model.NewestFirst
	}
	if req.BatchSize == 0 {
		req.BatchSize = 4
	}
	// Нулевое значение в тестах означает «лимит не задан»; явный нулевой
	// лимит задаётся через tweak.
	if req.MaxMessages == 0 {
		req.MaxMessages = model.UnlimitedMessages
	}

	opts := Options{
		Request: req,
		Resolve: func(context.Context) (*model.ChannelHandle, error) { return req.Channel, nil },
		NewSource: func(*model.ChannelHandle, int) BatchSource {
			return source
		},
		Catalog:       cat,
		Cursors:       cursors,
		Serializer:    ser,
		Logs:          logs,
		GenerateLinks: true,
		RetryAttempts: 2,
		RetryDelay:    time.Millisecond,
		Clock:         func() time.Time { return scanClock },
	}
	if tweak != nil {
		tweak(&opts)
	}

	s, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &env{scanner: s, catalog: cat, cursors: cursors, ser: ser, logs: logs, dir: dir}
}

func snapshotIDs(c *catalog.Catalog) []int {
	var ids []int
	for _, r := range c.Snapshot() {
		ids = append(ids, r.Message.ID)
	}
	return ids
}

// TestRun_HappyPath проверяет полный проход: порядок, счётчики, удаление
// маркера, терминальное состояние done.
func TestRun_HappyPath(t *testing.T) {
	source := &fakeSource{batches: [][]*tg.Message{
		{docMsg(101, "report.pdf", 12345), textMsg(99)},
		{docMsg(95, "old.pdf", 100)},
	}}
	e := newEnv(t, source, model.ScanRequest{}, nil)

	res, err := e.scanner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.State != scan.StateDone {
		t.Errorf("State = %s, ожидалось done", res.State)
	}
	if diff := cmp.Diff([]int{101, 95}, snapshotIDs(e.catalog)); diff != "" {
		t.Errorf("каталог:\n%s", diff)
	}
	if res.Info.CountsByType["document"] != 2 || res.Info.CountsByType["other"] != 1 {
		t.Errorf("counts_by_type = %v", res.Info.CountsByType)
	}
	if res.Info.TotalBytes != 12445 {
		t.Errorf("total_bytes = %d", res.Info.TotalBytes)
	}
	if res.Info.FinishedAt == nil {
		t.Error("finished_at должен быть заполнен")
	}

	// Маркер удалён после успешного завершения.
	if _, err := e.cursors.Load(4242, model.NewestFirst); !errors.Is(err, cursor.ErrNotFound) {
		t.Errorf("маркер должен быть удалён, Load: %v", err)
	}

	// Артефакт содержит записи.
	art, err := serializer.LoadArtifact(e.ser.Paths()["json"])
	if err != nil {
		t.Fatalf("LoadArtifact: %v", err)
	}
	if len(art.Files) != 2 || art.ScanInfo.FinishedAt == nil {
		t.Errorf("артефакт: files=%d, finished_at=%v", len(art.Files), art.ScanInfo.FinishedAt)
	}
	if art.Files[0].Download.WebLink == nil || *art.Files[0].Download.WebLink != "https://t.me/demo/101" {
		t.Errorf("web_link = %v", art.Files[0].Download.WebLink)
	}
}

// TestRun_CancelKeepsPrefixAndCursor проверяет отмену: каталог — префикс,
// маркер остаётся для возобновления.
func TestRun_CancelKeepsPrefixAndCursor(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	source := &fakeSource{batches: [][]*tg.Message{
		{docMsg(10, "a.pdf", 1), docMsg(9, "b.pdf", 1)},
		{docMsg(8, "c.pdf", 1), docMsg(7, "d.pdf", 1)},
		{docMsg(6, "e.pdf", 1)},
	}}
	e := newEnv(t, source, model.ScanRequest{}, func(o *Options) {
		o.Progress = func(p Progress) {
			// Отмена после первого коммита.
			if p.MessagesScanned >= 2 {
				cancel()
			}
		}
	})

	res, err := e.scanner.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.State != scan.StateCancelled {
		t.Errorf("State = %s, ожидалось cancelled", res.State)
	}
	if diff := cmp.Diff([]int{10, 9}, snapshotIDs(e.catalog)); diff != "" {
		t.Errorf("каталог должен быть префиксом:\n%s", diff)
	}

	c, err := e.cursors.Load(4242, model.NewestFirst)
	if err != nil {
		t.Fatalf("маркер должен остаться: %v", err)
	}
	if c.LastMessageIDSeen != 9 {
		t.Errorf("last_message_id_seen = %d, ожидалось 9", c.LastMessageIDSeen)
	}
}

// TestRun_AccessRevokedMidScan проверяет отзыв доступа: частичный каталог
// сериализован, состояние failed, ошибка в scan_info.
func TestRun_AccessRevokedMidScan(t *testing.T) {
	source := &fakeSource{
		batches: [][]*tg.Message{
			{docMsg(30, "a.pdf", 1), docMsg(29, "b.pdf", 1)},
			{docMsg(28, "c.pdf", 1)},
		},
		errAt: map[int]error{3: tgerr.New(400, "CHANNEL_PRIVATE")},
	}
	e := newEnv(t, source, model.ScanRequest{}, nil)

	res, err := e.scanner.Run(context.Background())
	if err == nil {
		t.Fatal("ожидалась ошибка")
	}
	if !telegram.IsClass(err, telegram.ClassAccessDenied) {
		t.Errorf("класс ошибки: %v", err)
	}
	if res.State != scan.StateFailed {
		t.Errorf("State = %s, ожидалось failed", res.State)
	}
	if len(res.Info.Errors) != 1 || res.Info.Errors[0].Kind != "access_denied" {
		t.Errorf("scan_info.errors = %+v", res.Info.Errors)
	}

	// Частичный каталог на диске.
	art, err := serializer.LoadArtifact(e.ser.Paths()["json"])
	if err != nil {
		t.Fatalf("LoadArtifact: %v", err)
	}
	if len(art.Files) != 3 {
		t.Errorf("частичный артефакт: files = %d, ожидалось 3", len(art.Files))
	}
}

// TestRun_NetworkRetryThenSuccess проверяет повтор батча после временной
// сетевой ошибки.
func TestRun_NetworkRetryThenSuccess(t *testing.T) {
	source := &fakeSource{
		batches: [][]*tg.Message{{docMsg(5, "a.pdf", 1)}},
		errAt:   map[int]error{1: context.DeadlineExceeded},
	}
	e := newEnv(t, source, model.ScanRequest{}, nil)

	res, err := e.scanner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.State != scan.StateDone || res.Records != 1 {
		t.Errorf("res = %+v", res)
	}
}

// TestRun_NetworkRetryExhausted проверяет переход в failed после
// исчерпания повторов.
func TestRun_NetworkRetryExhausted(t *testing.T) {
	source := &fakeSource{
		errAt:  map[int]error{1: context.DeadlineExceeded},
		sticky: true,
	}
	e := newEnv(t, source, model.ScanRequest{}, nil)

	res, err := e.scanner.Run(context.Background())
	if err == nil {
		t.Fatal("ожидалась ошибка")
	}
	if res.State != scan.StateFailed {
		t.Errorf("State = %s", res.State)
	}
}

// TestRun_MaxMessages проверяет остановку по лимиту сообщений.
func TestRun_MaxMessages(t *testing.T) {
	source := &fakeSource{batches: [][]*tg.Message{
		{docMsg(10, "a.pdf", 1), docMsg(9, "b.pdf", 1)},
		{docMsg(8, "c.pdf", 1), docMsg(7, "d.pdf", 1)},
	}}
	e := newEnv(t, source, model.ScanRequest{MaxMessages: 3}, nil)

	res, err := e.scanner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.State != scan.StateDone {
		t.Errorf("State = %s", res.State)
	}
	if diff := cmp.Diff([]int{10, 9, 8}, snapshotIDs(e.catalog)); diff != "" {
		t.Errorf("каталог:\n%s", diff)
	}
}

// TestRun_ZeroLimitScansNothing проверяет явный нулевой лимит: каталог
// пуст, после разрешения канала не выполняется ни одного запроса истории.
func TestRun_ZeroLimitScansNothing(t *testing.T) {
	source := &fakeSource{batches: [][]*tg.Message{
		{docMsg(10, "a.pdf", 1), docMsg(9, "b.pdf", 1)},
		{docMsg(8, "c.pdf", 1)},
	}}
	e := newEnv(t, source, model.ScanRequest{}, func(o *Options) {
		o.Request.MaxMessages = 0
	})

	res, err := e.scanner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.State != scan.StateDone {
		t.Errorf("State = %s, ожидалось done", res.State)
	}
	if source.calls != 0 {
		t.Errorf("запросов истории %d, ожидалось 0", source.calls)
	}
	if e.catalog.Len() != 0 {
		t.Errorf("каталог должен быть пуст, записей %d", e.catalog.Len())
	}

	art, err := serializer.LoadArtifact(e.ser.Paths()["json"])
	if err != nil {
		t.Fatalf("LoadArtifact: %v", err)
	}
	if len(art.Files) != 0 {
		t.Errorf("артефакт должен быть пуст, файлов %d", len(art.Files))
	}
}

// TestRun_SkipExisting проверяет пропуск записей, уже попавших в прежний
// артефакт: помеченные известными файлы не индексируются повторно.
func TestRun_SkipExisting(t *testing.T) {
	source := &fakeSource{batches: [][]*tg.Message{
		{docMsg(10, "a.pdf", 1), docMsg(9, "b.pdf", 1), docMsg(8, "c.pdf", 1)},
	}}
	e := newEnv(t, source, model.ScanRequest{
		Filters: model.FilterSet{SkipExisting: true},
	}, nil)
	e.catalog.MarkKnown([]string{model.NewRecordID(4242, 9)})

	res, err := e.scanner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.State != scan.StateDone {
		t.Errorf("State = %s", res.State)
	}
	if diff := cmp.Diff([]int{10, 8}, snapshotIDs(e.catalog)); diff != "" {
		t.Errorf("известные записи должны пропускаться:\n%s", diff)
	}
}

// TestRun_ResumeMatchesUninterrupted проверяет эквивалентность возобновления:
// отмена после первого коммита, затем второй сканер поверх тех же хранилищ —
// итоговый артефакт байт-в-байт совпадает с непрерывным прогоном, маркер
// по завершении удалён.
func TestRun_ResumeMatchesUninterrupted(t *testing.T) {
	full := func() [][]*tg.Message {
		return [][]*tg.Message{
			{docMsg(10, "a.pdf", 1), docMsg(9, "b.pdf", 1)},
			{docMsg(8, "c.pdf", 1), docMsg(7, "d.pdf", 1)},
			{docMsg(6, "e.pdf", 1)},
		}
	}

	// Непрерывный прогон — эталон.
	baseline := newEnv(t, &fakeSource{batches: full()}, model.ScanRequest{}, nil)
	if _, err := baseline.scanner.Run(context.Background()); err != nil {
		t.Fatalf("эталонный Run: %v", err)
	}
	want, err := os.ReadFile(baseline.ser.Paths()["json"])
	if err != nil {
		t.Fatalf("чтение эталонного артефакта: %v", err)
	}

	// Прерванный прогон: отмена после первого коммита.
	ctx, cancel := context.WithCancel(context.Background())
	e := newEnv(t, &fakeSource{batches: full()}, model.ScanRequest{}, func(o *Options) {
		o.Progress = func(p Progress) {
			if p.MessagesScanned >= 2 {
				cancel()
			}
		}
	})
	res, err := e.scanner.Run(ctx)
	if err != nil {
		t.Fatalf("прерванный Run: %v", err)
	}
	if res.State != scan.StateCancelled {
		t.Fatalf("State = %s, ожидалось cancelled", res.State)
	}

	// Возобновление поверх тех же каталога, маркеров и сериализатора.
	handle := &model.ChannelHandle{
		Kind: model.KindPublic, Identifier: "@demo", ResolvedID: 4242,
		Title: "Демо", Username: "demo", Joined: true,
		CanReadHistory: true, CanDownloadMedia: true,
	}
	resumed, err := New(Options{
		Request: model.ScanRequest{
			Channel: handle, MaxMessages: model.UnlimitedMessages,
			Direction: model.NewestFirst, BatchSize: 4, Resume: true,
		},
		Resolve: func(context.Context) (*model.ChannelHandle, error) { return handle, nil },
		NewSource: func(_ *model.ChannelHandle, resumeFrom int) BatchSource {
			if resumeFrom != 9 {
				t.Fatalf("позиция возобновления %d, ожидалось 9", resumeFrom)
			}
			return &fakeSource{batches: [][]*tg.Message{
				{docMsg(8, "c.pdf", 1), docMsg(7, "d.pdf", 1)},
				{docMsg(6, "e.pdf", 1)},
			}}
		},
		Catalog:       e.catalog,
		Cursors:       e.cursors,
		Serializer:    e.ser,
		Logs:          e.logs,
		GenerateLinks: true,
		RetryAttempts: 2,
		RetryDelay:    time.Millisecond,
		Clock:         func() time.Time { return scanClock },
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res, err = resumed.Run(context.Background())
	if err != nil {
		t.Fatalf("возобновлённый Run: %v", err)
	}
	if res.State != scan.StateDone {
		t.Fatalf("State = %s, ожидалось done", res.State)
	}

	got, err := os.ReadFile(e.ser.Paths()["json"])
	if err != nil {
		t.Fatalf("чтение артефакта: %v", err)
	}
	if !bytes.Equal(want, got) {
		t.Errorf("артефакт после возобновления отличается от эталона:\n%s",
			cmp.Diff(string(want), string(got)))
	}

	if _, err := e.cursors.Load(4242, model.NewestFirst); !errors.Is(err, cursor.ErrNotFound) {
		t.Errorf("маркер должен быть удалён, Load: %v", err)
	}
}

// TestRun_DedupeSkipsSeen проверяет отсев повторных record_id при
// пересечении окон возобновления.
func TestRun_DedupeSkipsSeen(t *testing.T) {
	source := &fakeSource{batches: [][]*tg.Message{
		{docMsg(10, "a.pdf", 1), docMsg(9, "b.pdf", 1)},
		{docMsg(9, "b.pdf", 1), docMsg(8, "c.pdf", 1)},
	}}
	e := newEnv(t, source, model.ScanRequest{
		Filters: model.FilterSet{Dedupe: true},
	}, nil)

	res, err := e.scanner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Records != 3 {
		t.Errorf("Records = %d, ожидалось 3", res.Records)
	}
	if diff := cmp.Diff([]int{10, 9, 8}, snapshotIDs(e.catalog)); diff != "" {
		t.Errorf("каталог:\n%s", diff)
	}
}

// TestRun_FiltersApplied проверяет применение пользовательских фильтров.
func TestRun_FiltersApplied(t *testing.T) {
	source := &fakeSource{batches: [][]*tg.Message{
		{docMsg(3, "keep.pdf", 500), docMsg(2, "drop.exe", 500), docMsg(1, "small.pdf", 5)},
	}}
	e := newEnv(t, source, model.ScanRequest{
		Filters: model.FilterSet{SizeMin: 100, ExtDeny: []string{"exe"}},
	}, nil)

	res, err := e.scanner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if diff := cmp.Diff([]int{3}, snapshotIDs(e.catalog)); diff != "" {
		t.Errorf("каталог:\n%s", diff)
	}
	if res.Info.FiltersUsed.SizeMin != 100 {
		t.Errorf("filters_used = %+v", res.Info.FiltersUsed)
	}
}

// TestRun_ResolveFailure проверяет переход в failed при отказе резолва.
func TestRun_ResolveFailure(t *testing.T) {
	e := newEnv(t, &fakeSource{}, model.ScanRequest{}, func(o *Options) {
		o.Resolve = func(context.Context) (*model.ChannelHandle, error) {
			return nil, tgerr.New(400, "USERNAME_NOT_OCCUPIED")
		}
	})

	res, err := e.scanner.Run(context.Background())
	if err == nil {
		t.Fatal("ожидалась ошибка")
	}
	if res.State != scan.StateFailed {
		t.Errorf("State = %s", res.State)
	}
}

// TestRun_BatchSizeEquivalence проверяет, что итоговый каталог не зависит
// от размера батча.
func TestRun_BatchSizeEquivalence(t *testing.T) {
	build := func(batch int) []int {
		msgs := []*tg.Message{
			docMsg(10, "a.pdf", 1), docMsg(9, "b.pdf", 1), docMsg(8, "c.pdf", 1),
			docMsg(7, "d.pdf", 1), docMsg(6, "e.pdf", 1),
		}
		var batches [][]*tg.Message
		for i := 0; i < len(msgs); i += batch {
			end := i + batch
			if end > len(msgs) {
				end = len(msgs)
			}
			batches = append(batches, msgs[i:end])
		}
		e := newEnv(t, &fakeSource{batches: batches}, model.ScanRequest{BatchSize: batch}, nil)
		if _, err := e.scanner.Run(context.Background()); err != nil {
			t.Fatalf("Run(batch=%d): %v", batch, err)
		}
		return snapshotIDs(e.catalog)
	}

	if diff := cmp.Diff(build(2), build(5)); diff != "" {
		t.Errorf("каталоги с разным размером батча различаются:\n%s", diff)
	}
}
