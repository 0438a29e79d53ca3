// Пакет logging — именованные потоки логов сканера с ротацией по размеру.
//
// Четыре потока: main, api, files, errors. Каждый пишется в отдельный
// файл через lumberjack (по умолчанию 10 МиБ × 5 бэкапов) с опциональным
// зеркалированием в консоль. Для операций сканера поддерживаются
// коррелированные пары step-start / step-end с уникальным step ID.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Имена потоков. Поток errors дополнительно получает структурированные
// записи обо всех ошибках шагов.
const (
	StreamMain   = "main"
	StreamAPI    = "api"
	StreamFiles  = "files"
	StreamErrors = "errors"
)

// DefaultTruncateLimit — предел длины пользовательского содержимого
// в атрибутах лога. Обрезка никогда не выполняется молча: в запись
// добавляется пометка "truncated to N chars".
const DefaultTruncateLimit = 500

// Options — параметры логирования (раздел logging конфигурации).
type Options struct {
	// Dir — директория файлов логов
	Dir string
	// Level — минимальный уровень для потоков main/api/files
	Level slog.Level
	// MaxSizeMB — размер файла до ротации (по умолчанию 10)
	MaxSizeMB int
	// BackupCount — количество бэкапов ротации (по умолчанию 5)
	BackupCount int
	// Console — зеркалировать записи в stderr
	Console bool
	// TruncateLimit — предел длины значений TruncAttr (по умолчанию 500)
	TruncateLimit int
}

// Streams — набор именованных логгеров сканера.
type Streams struct {
	Main   *slog.Logger
	API    *slog.Logger
	Files  *slog.Logger
	Errors *slog.Logger

	opts    Options
	rotated []*lumberjack.Logger
}

// New создаёт потоки логов. Директория создаётся при необходимости.
func New(opts Options) (*Streams, error) {
	if opts.MaxSizeMB <= 0 {
		opts.MaxSizeMB = 10
	}
	if opts.BackupCount <= 0 {
		opts.BackupCount = 5
	}
	if opts.TruncateLimit <= 0 {
		opts.TruncateLimit = DefaultTruncateLimit
	}

	if err := os.MkdirAll(opts.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию логов %s: %w", opts.Dir, err)
	}

	s := &Streams{opts: opts}
	s.Main = s.newStream("scanner.log", StreamMain, opts.Level)
	s.API = s.newStream("api.log", StreamAPI, opts.Level)
	s.Files = s.newStream("files.log", StreamFiles, opts.Level)
	// Поток ошибок всегда пишет начиная с уровня error.
	s.Errors = s.newStream("errors.log", StreamErrors, slog.LevelError)

	return s, nil
}

// newStream создаёт логгер одного потока с ротацией и атрибутом stream.
func (s *Streams) newStream(filename, stream string, level slog.Level) *slog.Logger {
	rot := &lumberjack.Logger{
		Filename:   filepath.Join(s.opts.Dir, filename),
		MaxSize:    s.opts.MaxSizeMB,
		MaxBackups: s.opts.BackupCount,
	}
	s.rotated = append(s.rotated, rot)

	var w io.Writer = rot
	if s.opts.Console {
		w = io.MultiWriter(rot, os.Stderr)
	}

	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(handler).With(slog.String("stream", stream))
}

// Close закрывает файлы всех потоков.
func (s *Streams) Close() error {
	var firstErr error
	for _, rot := range s.rotated {
		if err := rot.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// StepStart логирует начало шага и возвращает уникальный step ID
// для корреляции с StepEnd/StepFail.
func (s *Streams) StepStart(l *slog.Logger, step, details string) string {
	stepID := uuid.New().String()
	l.Info("step_start",
		slog.String("step_id", stepID),
		slog.String("step", step),
		s.TruncAttr("details", details),
	)
	return stepID
}

// StepEnd логирует успешное завершение шага с результатом.
func (s *Streams) StepEnd(l *slog.Logger, stepID, step, result string) {
	l.Info("step_end",
		slog.String("step_id", stepID),
		slog.String("step", step),
		slog.Bool("success", true),
		s.TruncAttr("result", result),
	)
}

// StepFail логирует неуспешное завершение шага. Структурированная запись
// с контекстом шага дополнительно уходит в поток errors.
func (s *Streams) StepFail(l *slog.Logger, stepID, step string, err error) {
	l.Error("step_end",
		slog.String("step_id", stepID),
		slog.String("step", step),
		slog.Bool("success", false),
		slog.String("error", err.Error()),
	)
	s.Errors.Error("step_failed",
		slog.String("step_id", stepID),
		slog.String("step", step),
		slog.String("error", err.Error()),
		slog.String("error_type", fmt.Sprintf("%T", err)),
	)
}

// TruncAttr возвращает строковый атрибут, обрезанный до TruncateLimit.
// Факт обрезки фиксируется в самом значении: "... [truncated to N chars]".
func (s *Streams) TruncAttr(key, value string) slog.Attr {
	limit := s.opts.TruncateLimit
	runes := []rune(value)
	if len(runes) <= limit {
		return slog.String(key, value)
	}
	return slog.String(key, fmt.Sprintf("%s [truncated to %d chars]", string(runes[:limit]), limit))
}
