// Пакет catalog — потокобезопасный append-only каталог записей
// одного сканирования.
//
// Запись, попавшая в каталог, не изменяется; дубликаты отсеиваются
// по record_id за O(1). Snapshot отдаёт замороженную копию в
// детерминированном порядке, пригодную для сериализации.
package catalog

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/quangminh1212/TeleDrive-sub002/internal/domain/model"
)

// Catalog — накопитель записей сканирования. Использует sync.RWMutex
// для конкурентного чтения и эксклюзивной записи.
type Catalog struct {
	mu         sync.RWMutex
	records    []*model.FileRecord
	seen       map[string]struct{}
	known      map[string]struct{}
	counts     map[string]int
	totalBytes int64
	logger     *slog.Logger
}

// New создаёт пустой каталог.
func New(logger *slog.Logger) *Catalog {
	return &Catalog{
		seen:   make(map[string]struct{}),
		known:  make(map[string]struct{}),
		counts: make(map[string]int),
		logger: logger.With(slog.String("component", "catalog")),
	}
}

// Append добавляет запись. Повторный record_id не добавляется,
// возвращается false.
func (c *Catalog) Append(rec *model.FileRecord) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, dup := c.seen[rec.RecordID]; dup {
		c.logger.Debug("дубликат записи пропущен", slog.String("record_id", rec.RecordID))
		return false
	}
	c.seen[rec.RecordID] = struct{}{}
	c.records = append(c.records, rec)
	c.counts[string(rec.File.Type)]++
	c.totalBytes += rec.File.SizeBytes
	return true
}

// MarkKnown регистрирует записи прежних сканирований. Они не попадают
// в текущий каталог, но видны через Known — так фильтр skip_existing
// отсекает уже проиндексированные файлы.
func (c *Catalog) MarkKnown(ids []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		c.known[id] = struct{}{}
	}
}

// Known сообщает, встречалась ли запись в прежних сканированиях.
func (c *Catalog) Known(recordID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.known[recordID]
	return ok
}

// Has сообщает, есть ли запись с таким record_id.
func (c *Catalog) Has(recordID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.seen[recordID]
	return ok
}

// Len возвращает число записей.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}

// TotalBytes возвращает суммарный размер файлов.
func (c *Catalog) TotalBytes() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.totalBytes
}

// CountsByType возвращает копию счётчиков по типам файлов.
func (c *Catalog) CountsByType() map[string]int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]int, len(c.counts))
	for k, v := range c.counts {
		out[k] = v
	}
	return out
}

// Snapshot возвращает замороженный срез записей в каноническом порядке:
// по дате сообщения по убыванию, при равенстве — по message_id по убыванию.
// Порядок не зависит от направления обхода, поэтому повторное сканирование
// даёт байт-в-байт те же артефакты. Сами записи не копируются: после
// Append они неизменяемы.
func (c *Catalog) Snapshot() []*model.FileRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*model.FileRecord, len(c.records))
	copy(out, c.records)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Message.DateUTC.Equal(out[j].Message.DateUTC) {
			return out[i].Message.DateUTC.After(out[j].Message.DateUTC)
		}
		return out[i].Message.ID > out[j].Message.ID
	})
	return out
}
