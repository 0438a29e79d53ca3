// files.go — обработчики запросов каталога файлов.
// API читает последний закоммиченный артефакт сканирования и никогда
// не пишет: источником истины остаётся файл на диске.
package handlers

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	apierrors "github.com/quangminh1212/TeleDrive-sub002/internal/api/errors"
	"github.com/quangminh1212/TeleDrive-sub002/internal/domain/model"
	"github.com/quangminh1212/TeleDrive-sub002/internal/query"
)

// FilesHandler — обработчик запросов к каталогу файлов.
type FilesHandler struct {
	repo   *query.Repository
	dir    string
	pinned string
	logger *slog.Logger
}

// NewFilesHandler создаёт обработчик поверх каталога артефактов dir.
func NewFilesHandler(repo *query.Repository, dir string, logger *slog.Logger) *FilesHandler {
	return &FilesHandler{
		repo:   repo,
		dir:    dir,
		logger: logger.With(slog.String("component", "files_handler")),
	}
}

// PinArtifact закрепляет конкретный артефакт: обработчик перестаёт
// искать свежайший файл в каталоге.
func (h *FilesHandler) PinArtifact(path string) {
	h.pinned = path
}

// latestArtifact возвращает путь к свежайшему полному артефакту.
// Идентификатор сканирования в имени файла лексикографически упорядочен
// по времени, поэтому достаточно взять максимальное имя.
func (h *FilesHandler) latestArtifact() (string, error) {
	if h.pinned != "" {
		return h.pinned, nil
	}
	entries, err := os.ReadDir(h.dir)
	if err != nil {
		return "", fmt.Errorf("каталог артефактов %s: %w", h.dir, err)
	}

	// Полный артефакт именуется <scan_id>_telegram_files.json; проверка
	// суффикса отсекает simple-вариант и бэкапы.
	var names []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, "_telegram_files.json") {
			continue
		}
		names = append(names, name)
	}
	if len(names) == 0 {
		return "", fmt.Errorf("в %s нет артефактов сканирования: %w", h.dir, fs.ErrNotExist)
	}
	sort.Strings(names)
	return filepath.Join(h.dir, names[len(names)-1]), nil
}

// ListFiles — GET /api/v1/files.
// Параметры: cursor, page_size, sort (by_date|by_size|by_name), order (asc|desc).
func (h *FilesHandler) ListFiles(w http.ResponseWriter, r *http.Request) {
	path, err := h.latestArtifact()
	if err != nil {
		apierrors.FromError(w, err)
		return
	}

	q := r.URL.Query()
	req := query.ListRequest{
		Path:     path,
		PageSize: 100,
		Sort:     query.SortKey(q.Get("sort")),
		Order:    query.Order(q.Get("order")),
	}
	if raw := q.Get("cursor"); raw != "" {
		cursor, err := strconv.Atoi(raw)
		if err != nil {
			apierrors.ValidationError(w, fmt.Sprintf("cursor %q не является числом", raw))
			return
		}
		req.Cursor = cursor
	}
	if raw := q.Get("page_size"); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil {
			apierrors.ValidationError(w, fmt.Sprintf("page_size %q не является числом", raw))
			return
		}
		req.PageSize = size
	}

	page, err := h.repo.List(req)
	if err != nil {
		apierrors.FromError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// searchResponse — тело ответа поиска.
type searchResponse struct {
	Query   string              `json:"query"`
	Total   int                 `json:"total"`
	Records []*model.FileRecord `json:"records"`
}

// SearchFiles — GET /api/v1/files/search.
// Параметры: q (обязателен), scope (name|caption, повторяемый),
// type (список типов через запятую).
func (h *FilesHandler) SearchFiles(w http.ResponseWriter, r *http.Request) {
	path, err := h.latestArtifact()
	if err != nil {
		apierrors.FromError(w, err)
		return
	}

	params := r.URL.Query()
	q := params.Get("q")

	var scopes []query.SearchScope
	for _, s := range params["scope"] {
		scopes = append(scopes, query.SearchScope(s))
	}

	var typeFilter []model.FileType
	if raw := params.Get("type"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			ft, err := model.ParseFileType(strings.TrimSpace(s))
			if err != nil {
				apierrors.ValidationError(w, err.Error())
				return
			}
			typeFilter = append(typeFilter, ft)
		}
	}

	records, err := h.repo.Search(path, q, scopes, typeFilter)
	if err != nil {
		apierrors.FromError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, searchResponse{
		Query:   q,
		Total:   len(records),
		Records: records,
	})
}

// StatsFiles — GET /api/v1/files/stats.
func (h *FilesHandler) StatsFiles(w http.ResponseWriter, r *http.Request) {
	path, err := h.latestArtifact()
	if err != nil {
		apierrors.FromError(w, err)
		return
	}

	stats, err := h.repo.Stats(path)
	if err != nil {
		apierrors.FromError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
