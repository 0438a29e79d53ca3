// Пакет serializer пишет артефакты каталога: полный JSON, упрощённый JSON,
// CSV и таблицу Excel.
//
// Все записи атомарны (tmp → fsync → rename). Инкрементальные коммиты
// перезаписывают те же файлы; финальный коммит отличается только
// заполненным scan_info.finished_at.
package serializer

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/quangminh1212/TeleDrive-sub002/internal/config"
	"github.com/quangminh1212/TeleDrive-sub002/internal/domain/model"
)

// Artifact — содержимое полного JSON-артефакта.
type Artifact struct {
	ScanInfo model.ScanInfo      `json:"scan_info"`
	Files    []*model.FileRecord `json:"files"`
}

// ScanID строит идентификатор сканирования из момента старта (UTC).
func ScanID(t time.Time) string {
	return t.UTC().Format("20060102_150405")
}

// csvHeader — фиксированный порядок колонок CSV и Excel. Повторяет порядок
// полей FileRecord.
var csvHeader = []string{
	"record_id",
	"channel_id", "channel_title", "channel_kind",
	"message_id", "message_date_utc", "sender_id", "caption", "forward_src",
	"file_name", "file_extension", "file_mime", "file_size_bytes", "file_type",
	"width", "height", "duration_s",
	"tg_link", "web_link", "preview_link",
	"hash_digest", "indexed_at",
}

// Serializer пишет артефакты одного сканирования. Имена файлов включают
// scan_id, поэтому в пределах сканирования стабильны.
type Serializer struct {
	dir      string
	cfg      config.OutputConfig
	scanID   string
	backedUp map[string]bool
	now      func() time.Time
	logger   *slog.Logger
}

// New создаёт сериализатор для сканирования scanID.
func New(cfg config.OutputConfig, scanID string, logger *slog.Logger) *Serializer {
	return &Serializer{
		dir:      cfg.Directory,
		cfg:      cfg,
		scanID:   scanID,
		backedUp: make(map[string]bool),
		now:      time.Now,
		logger:   logger.With(slog.String("component", "serializer")),
	}
}

// Paths возвращает пути включённых артефактов.
func (s *Serializer) Paths() map[string]string {
	out := make(map[string]string)
	if s.cfg.RichJSON {
		out["json"] = s.artifactPath("%s_telegram_files.json")
	}
	if s.cfg.SimpleJSON {
		out["simple_json"] = s.artifactPath("%s_telegram_files_simple.json")
	}
	if s.cfg.CSV {
		out["csv"] = s.artifactPath("%s_telegram_files.csv")
	}
	if s.cfg.Excel {
		out["excel"] = s.artifactPath("%s_telegram_files.xlsx")
	}
	return out
}

func (s *Serializer) artifactPath(pattern string) string {
	return filepath.Join(s.dir, fmt.Sprintf(pattern, s.scanID))
}

// Flush пишет все включённые форматы. files — канонический снимок каталога.
func (s *Serializer) Flush(info model.ScanInfo, files []*model.FileRecord) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("директория вывода %s: %w", s.dir, err)
	}

	if s.cfg.RichJSON {
		if err := s.write(s.artifactPath("%s_telegram_files.json"), func(w io.Writer) error {
			return writeRichJSON(w, info, files)
		}); err != nil {
			return err
		}
	}
	if s.cfg.SimpleJSON {
		if err := s.write(s.artifactPath("%s_telegram_files_simple.json"), func(w io.Writer) error {
			return writeSimpleJSON(w, files)
		}); err != nil {
			return err
		}
	}
	if s.cfg.CSV {
		if err := s.write(s.artifactPath("%s_telegram_files.csv"), func(w io.Writer) error {
			return writeCSV(w, files)
		}); err != nil {
			return err
		}
	}
	if s.cfg.Excel {
		if err := s.write(s.artifactPath("%s_telegram_files.xlsx"), func(w io.Writer) error {
			return writeExcel(w, s.cfg.SheetName, files)
		}); err != nil {
			return err
		}
	}
	return nil
}

// write выполняет атомарную запись одного артефакта с резервной копией
// существующего файла (один раз за сканирование).
func (s *Serializer) write(target string, fill func(io.Writer) error) error {
	if s.cfg.BackupExisting && !s.backedUp[target] {
		if _, err := os.Stat(target); err == nil {
			backup := fmt.Sprintf("%s.bak_%s", target, s.now().UTC().Format("20060102_150405"))
			if err := os.Rename(target, backup); err != nil {
				return fmt.Errorf("резервная копия %s: %w", target, err)
			}
			s.logger.Info("существующий артефакт сохранён в резервную копию",
				slog.String("backup", backup))
		}
		s.backedUp[target] = true
	}

	tmp, err := os.CreateTemp(s.dir, ".artifact-*.tmp")
	if err != nil {
		return fmt.Errorf("временный файл артефакта: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := fill(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("запись %s: %w", target, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("fsync %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("закрытие %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return fmt.Errorf("переименование в %s: %w", target, err)
	}
	return nil
}

func writeRichJSON(w io.Writer, info model.ScanInfo, files []*model.FileRecord) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if files == nil {
		files = []*model.FileRecord{}
	}
	return enc.Encode(Artifact{ScanInfo: info, Files: files})
}

// simpleEntry — строка упрощённого JSON.
type simpleEntry struct {
	Name      string `json:"name"`
	SizeBytes int64  `json:"size_bytes"`
	TgLink    string `json:"tg_link"`
}

func writeSimpleJSON(w io.Writer, files []*model.FileRecord) error {
	entries := make([]simpleEntry, 0, len(files))
	for _, rec := range files {
		entries = append(entries, simpleEntry{
			Name:      rec.File.Name,
			SizeBytes: rec.File.SizeBytes,
			TgLink:    rec.Download.TgLink,
		})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(entries)
}

// utf8BOM добавляется в начало CSV, чтобы таблица открывалась в Excel
// с правильной кодировкой.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

func writeCSV(w io.Writer, files []*model.FileRecord) error {
	if _, err := w.Write(utf8BOM); err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, rec := range files {
		if err := cw.Write(csvRow(rec)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func csvRow(rec *model.FileRecord) []string {
	return []string{
		rec.RecordID,
		strconv.FormatInt(rec.Channel.ID, 10),
		rec.Channel.Title,
		string(rec.Channel.Kind),
		strconv.Itoa(rec.Message.ID),
		rec.Message.DateUTC.UTC().Format(time.RFC3339),
		int64PtrString(rec.Message.SenderID),
		strPtr(rec.Message.Caption),
		strPtr(rec.Message.ForwardSrc),
		rec.File.Name,
		rec.File.Extension,
		rec.File.Mime,
		strconv.FormatInt(rec.File.SizeBytes, 10),
		string(rec.File.Type),
		intPtrString(rec.File.Width),
		intPtrString(rec.File.Height),
		floatPtrString(rec.File.DurationS),
		rec.Download.TgLink,
		strPtr(rec.Download.WebLink),
		strPtr(rec.Download.PreviewLink),
		strPtr(rec.HashDigest),
		rec.IndexedAt.UTC().Format(time.RFC3339),
	}
}

func writeExcel(w io.Writer, sheet string, files []*model.FileRecord) error {
	f := excelize.NewFile()
	defer f.Close()

	if sheet == "" {
		sheet = "Telegram Files"
	}
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return err
	}

	for col, name := range csvHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, name); err != nil {
			return err
		}
	}

	for i, rec := range files {
		row := i + 2
		values := []any{
			rec.RecordID,
			rec.Channel.ID,
			rec.Channel.Title,
			string(rec.Channel.Kind),
			rec.Message.ID,
			rec.Message.DateUTC.UTC().Format(time.RFC3339),
			int64PtrCell(rec.Message.SenderID),
			strPtr(rec.Message.Caption),
			strPtr(rec.Message.ForwardSrc),
			rec.File.Name,
			rec.File.Extension,
			rec.File.Mime,
			rec.File.SizeBytes,
			string(rec.File.Type),
			intPtrCell(rec.File.Width),
			intPtrCell(rec.File.Height),
			floatPtrCell(rec.File.DurationS),
			rec.Download.TgLink,
			strPtr(rec.Download.WebLink),
			strPtr(rec.Download.PreviewLink),
			strPtr(rec.HashDigest),
			rec.IndexedAt.UTC().Format(time.RFC3339),
		}
		for col, v := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return err
			}
		}
	}

	return f.Write(w)
}

// SaveArtifact атомарно перезаписывает полный JSON-артефакт по заданному
// пути. Используется для дозаписи hash_digest после скачивания байтов.
func SaveArtifact(path string, a *Artifact) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".artifact-*.tmp")
	if err != nil {
		return fmt.Errorf("временный файл артефакта: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := writeRichJSON(tmp, a.ScanInfo, a.Files); err != nil {
		tmp.Close()
		return fmt.Errorf("запись %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("fsync %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("закрытие %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("переименование в %s: %w", path, err)
	}
	return nil
}

// LoadArtifact читает полный JSON-артефакт с диска.
func LoadArtifact(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("чтение артефакта %s: %w", path, err)
	}
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("повреждённый артефакт %s: %w", path, err)
	}
	return &a, nil
}

func strPtr(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func int64PtrString(p *int64) string {
	if p == nil {
		return ""
	}
	return strconv.FormatInt(*p, 10)
}

func intPtrString(p *int) string {
	if p == nil {
		return ""
	}
	return strconv.Itoa(*p)
}

func floatPtrString(p *float64) string {
	if p == nil {
		return ""
	}
	return strconv.FormatFloat(*p, 'f', -1, 64)
}

// *PtrCell — значения для ячеек Excel: числа остаются числами,
// отсутствие значения — пустая строка.
func int64PtrCell(p *int64) any {
	if p == nil {
		return ""
	}
	return *p
}

func intPtrCell(p *int) any {
	if p == nil {
		return ""
	}
	return *p
}

func floatPtrCell(p *float64) any {
	if p == nil {
		return ""
	}
	return *p
}
