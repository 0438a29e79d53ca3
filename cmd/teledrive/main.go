// main.go — точка входа сканера каналов Telegram.
// Подкоманды: scan, config, serve, download, logout.
// Код завершения процесса определяется категорией первой фатальной ошибки.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/quangminh1212/TeleDrive-sub002/internal/telegram"
)

// Коды завершения процесса.
const (
	exitOK            = 0
	exitConfigError   = 1
	exitLoginRequired = 2
	exitAccessDenied  = 3
	exitNetworkError  = 4
	exitCancelled     = 5
	exitUnknown       = 6
)

// errConfig помечает ошибки конфигурации и аргументов командной строки.
var errConfig = errors.New("ошибка конфигурации")

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	// .env рядом с бинарником — удобный способ передать API-ключи,
	// его отсутствие не является ошибкой.
	_ = godotenv.Load()

	fs := flag.NewFlagSet("teledrive", flag.ContinueOnError)
	cfgPath := fs.String("config", "config.json", "путь к файлу конфигурации")
	sessionDir := fs.String("session-dir", "session", "каталог файлов сессии Telegram")
	fs.Usage = usage
	if err := fs.Parse(args); err != nil {
		return exitConfigError
	}

	rest := fs.Args()
	if len(rest) == 0 {
		usage()
		return exitConfigError
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch rest[0] {
	case "scan":
		err = cmdScan(ctx, *cfgPath, *sessionDir, rest[1:])
	case "config":
		err = cmdConfig(*cfgPath, rest[1:])
	case "serve":
		err = cmdServe(ctx, *cfgPath, rest[1:])
	case "download":
		err = cmdDownload(ctx, *cfgPath, *sessionDir, rest[1:])
	case "logout":
		err = cmdLogout(ctx, *cfgPath, *sessionDir)
	default:
		fmt.Fprintf(os.Stderr, "неизвестная команда: %s\n", rest[0])
		usage()
		return exitConfigError
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка: %v\nПодробности — в журнале errors.log\n", err)
	}
	return exitCode(err)
}

// exitCode отображает ошибку в код завершения процесса.
func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	if errors.Is(err, errConfig) {
		return exitConfigError
	}
	if errors.Is(err, telegram.ErrLoginRequired) {
		return exitLoginRequired
	}
	if classified, ok := telegram.AsClassified(err); ok {
		switch classified.Class {
		case telegram.ClassSessionInvalid, telegram.ClassLoginRejected:
			return exitLoginRequired
		case telegram.ClassAccessDenied:
			return exitAccessDenied
		case telegram.ClassUnresolvable:
			return exitConfigError
		case telegram.ClassNetworkTransient, telegram.ClassRateLimited:
			return exitNetworkError
		case telegram.ClassCancelled:
			return exitCancelled
		}
	}
	if errors.Is(err, context.Canceled) {
		return exitCancelled
	}
	return exitUnknown
}

func usage() {
	fmt.Fprint(os.Stderr, `teledrive — сканер каналов Telegram и индекс файлов.

Использование:
  teledrive [-config config.json] [-session-dir session] <команда> [флаги]

Команды:
  scan      сканировать канал и записать артефакты каталога
  config    show | set КЛЮЧ ЗНАЧЕНИЕ | sync-env | validate
  serve     поднять read-only HTTP API над артефактами
  download  скачать файлы из последнего артефакта
  logout    завершить сессию Telegram и удалить файл сессии

Флаги команды scan:
  --channel      идентификатор канала (@username, t.me-ссылка, invite, id, "me")
  --limit        максимум сообщений (отрицательное — без ограничения)
  --direction    newest_first | oldest_first
  --resume       продолжить прерванное сканирование
  --format       json | simple_json | csv | excel (можно несколько раз)
`)
}
