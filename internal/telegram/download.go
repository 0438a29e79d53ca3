package telegram

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gotd/td/telegram/downloader"
	"github.com/gotd/td/tg"

	"github.com/quangminh1212/TeleDrive-sub002/internal/config"
	"github.com/quangminh1212/TeleDrive-sub002/internal/domain/model"
)

// Downloader скачивает байты файлов из каталога. Скачивание независимо от
// индексации: на вход идут готовые записи каталога.
type Downloader struct {
	api     *tg.Client
	dl      *downloader.Downloader
	dir     string
	workers int
	log     *slog.Logger
}

// DownloadResult — итог скачивания одной записи.
type DownloadResult struct {
	RecordID string
	Path     string
	Bytes    int64
	SHA256   string
	Err      error
}

// NewDownloader создаёт загрузчик с настройками из секции download.
func NewDownloader(api *tg.Client, cfg config.DownloadConfig, log *slog.Logger) *Downloader {
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	return &Downloader{
		api:     api,
		dl:      downloader.NewDownloader(),
		dir:     cfg.Directory,
		workers: workers,
		log:     log,
	}
}

// Fetch скачивает один файл: поток пишется во временный файл рядом с
// целевым, затем fsync и атомарное переименование. Попутно считается
// sha256 содержимого.
func (d *Downloader) Fetch(ctx context.Context, rec *model.FileRecord) DownloadResult {
	res := DownloadResult{RecordID: rec.RecordID}

	ref, err := UnpackFileRef(rec.File.TelegramFileID)
	if err != nil {
		res.Err = err
		return res
	}

	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		res.Err = fmt.Errorf("директория загрузок %s: %w", d.dir, err)
		return res
	}

	target := filepath.Join(d.dir, safeFilename(rec))
	tmp, err := os.CreateTemp(d.dir, ".download-*.part")
	if err != nil {
		res.Err = fmt.Errorf("временный файл: %w", err)
		return res
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	hash := sha256.New()
	counter := &countingWriter{w: io.MultiWriter(tmp, hash)}

	if _, err := d.dl.Download(d.api, location(ref)).Stream(ctx, counter); err != nil {
		res.Err = Classify(fmt.Errorf("скачивание %s: %w", rec.File.Name, err))
		return res
	}
	if err := tmp.Sync(); err != nil {
		res.Err = fmt.Errorf("fsync %s: %w", tmp.Name(), err)
		return res
	}
	if err := tmp.Close(); err != nil {
		res.Err = fmt.Errorf("закрытие %s: %w", tmp.Name(), err)
		return res
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		res.Err = fmt.Errorf("переименование в %s: %w", target, err)
		return res
	}

	res.Path = target
	res.Bytes = counter.n
	res.SHA256 = hex.EncodeToString(hash.Sum(nil))
	d.log.Info("файл скачан",
		slog.String("record_id", rec.RecordID),
		slog.String("path", target),
		slog.Int64("bytes", res.Bytes))
	return res
}

// FetchAll скачивает набор записей пулом из workers горутин. Порядок
// результатов совпадает с порядком записей.
func (d *Downloader) FetchAll(ctx context.Context, recs []*model.FileRecord) []DownloadResult {
	results := make([]DownloadResult, len(recs))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for i := 0; i < d.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				results[idx] = d.Fetch(ctx, recs[idx])
			}
		}()
	}

	for i := range recs {
		select {
		case <-ctx.Done():
			results[i] = DownloadResult{RecordID: recs[i].RecordID, Err: Classify(ctx.Err())}
			continue
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()
	return results
}

// ApplyDigests проставляет sha256 скачанных байтов в соответствующие записи
// каталога. Возвращает число обновлённых записей. Неудачные скачивания и
// результаты без совпадения по record_id пропускаются.
func ApplyDigests(recs []*model.FileRecord, results []DownloadResult) int {
	byID := make(map[string]*model.FileRecord, len(recs))
	for _, rec := range recs {
		byID[rec.RecordID] = rec
	}

	var updated int
	for _, res := range results {
		if res.Err != nil || res.SHA256 == "" {
			continue
		}
		rec, ok := byID[res.RecordID]
		if !ok {
			continue
		}
		digest := res.SHA256
		rec.HashDigest = &digest
		updated++
	}
	return updated
}

// location строит RPC-локацию байтов по непрозрачной ссылке.
func location(ref FileRef) tg.InputFileLocationClass {
	if ref.Kind == "photo" {
		return &tg.InputPhotoFileLocation{
			ID:            ref.ID,
			AccessHash:    ref.AccessHash,
			FileReference: ref.FileReference,
			ThumbSize:     ref.ThumbType,
		}
	}
	return &tg.InputDocumentFileLocation{
		ID:            ref.ID,
		AccessHash:    ref.AccessHash,
		FileReference: ref.FileReference,
	}
}

// safeFilename строит имя на диске: недопустимые символы заменяются,
// короткий префикс record_id защищает от коллизий имён.
func safeFilename(rec *model.FileRecord) string {
	name := rec.File.Name
	if name == "" {
		name = rec.RecordID
	}
	var b strings.Builder
	for _, r := range name {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', 0:
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}
	prefix := rec.RecordID
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	return prefix + "_" + b.String()
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
