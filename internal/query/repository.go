// Пакет query — read-only доступ к закоммиченным артефактам каталога:
// страницы, поиск, фильтры и сводная статистика.
//
// Артефакт загружается как снимок на момент чтения и кэшируется по паре
// путь+mtime, поэтому конкурентные чтения безопасны, а перезаписанный
// файл подхватывается без перезапуска.
package query

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/quangminh1212/TeleDrive-sub002/internal/domain/model"
	"github.com/quangminh1212/TeleDrive-sub002/internal/filters"
	"github.com/quangminh1212/TeleDrive-sub002/internal/storage/serializer"
)

// Параметры кэша снимков: немного артефактов, короткое время жизни.
const (
	cacheSize = 16
	cacheTTL  = 5 * time.Minute
)

// SortKey — ключ сортировки страниц.
type SortKey string

const (
	SortByDate SortKey = "by_date"
	SortBySize SortKey = "by_size"
	SortByName SortKey = "by_name"
)

// Order — направление сортировки.
type Order string

const (
	OrderAsc  Order = "asc"
	OrderDesc Order = "desc"
)

// ErrBadRequest помечает некорректные параметры запроса.
var ErrBadRequest = errors.New("некорректный запрос")

// Repository загружает артефакты и выполняет запросы по ним.
type Repository struct {
	cache  *expirable.LRU[string, *snapshot]
	logger *slog.Logger
}

type snapshot struct {
	artifact *serializer.Artifact
	mtime    time.Time
}

// NewRepository создаёт репозиторий с LRU-кэшем снимков.
func NewRepository(logger *slog.Logger) *Repository {
	return &Repository{
		cache:  expirable.NewLRU[string, *snapshot](cacheSize, nil, cacheTTL),
		logger: logger.With(slog.String("component", "query")),
	}
}

// Load возвращает снимок артефакта. Кэш-попадание действительно только
// при неизменном mtime файла.
func (r *Repository) Load(path string) (*serializer.Artifact, error) {
	st, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("артефакт %s: %w", path, err)
	}

	if cached, ok := r.cache.Get(path); ok && cached.mtime.Equal(st.ModTime()) {
		return cached.artifact, nil
	}

	art, err := serializer.LoadArtifact(path)
	if err != nil {
		return nil, err
	}
	r.cache.Add(path, &snapshot{artifact: art, mtime: st.ModTime()})
	r.logger.Debug("артефакт загружен",
		slog.String("path", path),
		slog.Int("files", len(art.Files)))
	return art, nil
}

// ListRequest — параметры страницы.
type ListRequest struct {
	Path     string
	Cursor   int
	PageSize int
	Sort     SortKey
	Order    Order
}

// Page — страница записей с курсором продолжения.
type Page struct {
	Records    []*model.FileRecord `json:"records"`
	NextCursor *int                `json:"next_cursor"`
	Total      int                 `json:"total"`
}

// List возвращает страницу записей в заданном порядке.
func (r *Repository) List(req ListRequest) (*Page, error) {
	if req.PageSize <= 0 || req.PageSize > 1000 {
		return nil, fmt.Errorf("%w: page_size должен быть в диапазоне 1..1000", ErrBadRequest)
	}
	if req.Cursor < 0 {
		return nil, fmt.Errorf("%w: cursor не может быть отрицательным", ErrBadRequest)
	}

	art, err := r.Load(req.Path)
	if err != nil {
		return nil, err
	}

	records := append([]*model.FileRecord(nil), art.Files...)
	if err := sortRecords(records, req.Sort, req.Order); err != nil {
		return nil, err
	}

	total := len(records)
	if req.Cursor >= total {
		return &Page{Records: []*model.FileRecord{}, Total: total}, nil
	}

	end := req.Cursor + req.PageSize
	if end > total {
		end = total
	}
	page := &Page{Records: records[req.Cursor:end], Total: total}
	if end < total {
		next := end
		page.NextCursor = &next
	}
	return page, nil
}

func sortRecords(records []*model.FileRecord, key SortKey, order Order) error {
	if key == "" {
		key = SortByDate
	}
	if order == "" {
		order = OrderDesc
	}
	if order != OrderAsc && order != OrderDesc {
		return fmt.Errorf("%w: order %q", ErrBadRequest, order)
	}

	var less func(a, b *model.FileRecord) bool
	switch key {
	case SortByDate:
		less = func(a, b *model.FileRecord) bool {
			if !a.Message.DateUTC.Equal(b.Message.DateUTC) {
				return a.Message.DateUTC.Before(b.Message.DateUTC)
			}
			return a.Message.ID < b.Message.ID
		}
	case SortBySize:
		less = func(a, b *model.FileRecord) bool { return a.File.SizeBytes < b.File.SizeBytes }
	case SortByName:
		less = func(a, b *model.FileRecord) bool {
			return strings.ToLower(a.File.Name) < strings.ToLower(b.File.Name)
		}
	default:
		return fmt.Errorf("%w: sort %q", ErrBadRequest, key)
	}

	sort.SliceStable(records, func(i, j int) bool {
		if order == OrderAsc {
			return less(records[i], records[j])
		}
		return less(records[j], records[i])
	})
	return nil
}

// SearchScope — область поиска.
type SearchScope string

const (
	ScopeName    SearchScope = "name"
	ScopeCaption SearchScope = "caption"
)

// Search выполняет регистронезависимый поиск подстроки. Совпадения по
// имени ранжируются выше совпадений только по подписи; при равенстве —
// свежие сообщения первыми.
func (r *Repository) Search(path, q string, scopes []SearchScope, typeFilter []model.FileType) ([]*model.FileRecord, error) {
	if strings.TrimSpace(q) == "" {
		return nil, fmt.Errorf("%w: пустой поисковый запрос", ErrBadRequest)
	}
	if len(scopes) == 0 {
		scopes = []SearchScope{ScopeName, ScopeCaption}
	}
	for _, scope := range scopes {
		if scope != ScopeName && scope != ScopeCaption {
			return nil, fmt.Errorf("%w: область поиска %q", ErrBadRequest, scope)
		}
	}

	art, err := r.Load(path)
	if err != nil {
		return nil, err
	}

	types := make(map[model.FileType]bool, len(typeFilter))
	for _, t := range typeFilter {
		types[t] = true
	}

	needle := strings.ToLower(q)
	type ranked struct {
		rec  *model.FileRecord
		rank int // 0 — имя, 1 — только подпись
	}
	var matches []ranked

	for _, rec := range art.Files {
		if len(types) > 0 && !types[rec.File.Type] {
			continue
		}
		rank := -1
		for _, scope := range scopes {
			switch scope {
			case ScopeName:
				if strings.Contains(strings.ToLower(rec.File.Name), needle) {
					rank = 0
				}
			case ScopeCaption:
				if rec.Message.Caption != nil &&
					strings.Contains(strings.ToLower(*rec.Message.Caption), needle) && rank != 0 {
					rank = 1
				}
			}
		}
		if rank >= 0 {
			matches = append(matches, ranked{rec: rec, rank: rank})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].rank != matches[j].rank {
			return matches[i].rank < matches[j].rank
		}
		if !matches[i].rec.Message.DateUTC.Equal(matches[j].rec.Message.DateUTC) {
			return matches[i].rec.Message.DateUTC.After(matches[j].rec.Message.DateUTC)
		}
		return matches[i].rec.Message.ID > matches[j].rec.Message.ID
	})

	out := make([]*model.FileRecord, len(matches))
	for i, m := range matches {
		out[i] = m.rec
	}
	return out, nil
}

// Filter применяет тот же набор предикатов, что и фильтры сканирования.
func (r *Repository) Filter(path string, set model.FilterSet) ([]*model.FileRecord, error) {
	compiled, err := filters.Compile(set)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}

	art, err := r.Load(path)
	if err != nil {
		return nil, err
	}

	out := make([]*model.FileRecord, 0)
	for _, rec := range art.Files {
		if compiled.Admit(rec) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// TypeStat — статистика одного типа файлов.
type TypeStat struct {
	Count int   `json:"count"`
	Bytes int64 `json:"bytes"`
}

// Stats — сводка по артефакту.
type Stats struct {
	TotalFiles int                 `json:"total_files"`
	TotalBytes int64               `json:"total_bytes"`
	ByType     map[string]TypeStat `json:"by_type"`
	Largest    *model.FileRecord   `json:"largest"`
	Oldest     *time.Time          `json:"oldest"`
	Newest     *time.Time          `json:"newest"`
}

// Stats считает сводку: счётчики и байты по типам, крупнейший файл,
// крайние даты.
func (r *Repository) Stats(path string) (*Stats, error) {
	art, err := r.Load(path)
	if err != nil {
		return nil, err
	}

	st := &Stats{ByType: map[string]TypeStat{}}
	for _, rec := range art.Files {
		st.TotalFiles++
		st.TotalBytes += rec.File.SizeBytes

		ts := st.ByType[string(rec.File.Type)]
		ts.Count++
		ts.Bytes += rec.File.SizeBytes
		st.ByType[string(rec.File.Type)] = ts

		if st.Largest == nil || rec.File.SizeBytes > st.Largest.File.SizeBytes {
			st.Largest = rec
		}
		d := rec.Message.DateUTC
		if st.Oldest == nil || d.Before(*st.Oldest) {
			st.Oldest = &d
		}
		if st.Newest == nil || d.After(*st.Newest) {
			st.Newest = &d
		}
	}
	return st, nil
}
