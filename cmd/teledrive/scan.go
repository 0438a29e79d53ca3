// scan.go — команда scan: авторизация, разрешение канала, обход истории
// и запись артефактов каталога.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/gotd/td/tg"

	"github.com/quangminh1212/TeleDrive-sub002/internal/config"
	"github.com/quangminh1212/TeleDrive-sub002/internal/domain/model"
	"github.com/quangminh1212/TeleDrive-sub002/internal/domain/scan"
	"github.com/quangminh1212/TeleDrive-sub002/internal/logging"
	"github.com/quangminh1212/TeleDrive-sub002/internal/scanner"
	"github.com/quangminh1212/TeleDrive-sub002/internal/storage/catalog"
	"github.com/quangminh1212/TeleDrive-sub002/internal/storage/cursor"
	"github.com/quangminh1212/TeleDrive-sub002/internal/storage/serializer"
	"github.com/quangminh1212/TeleDrive-sub002/internal/telegram"
)

// formatList — повторяемый флаг --format.
type formatList []string

func (f *formatList) String() string { return strings.Join(*f, ",") }

func (f *formatList) Set(v string) error {
	switch v {
	case "json", "simple_json", "csv", "excel":
		*f = append(*f, v)
		return nil
	default:
		return fmt.Errorf("неизвестный формат %q, допустимые: json, simple_json, csv, excel", v)
	}
}

func (f formatList) has(v string) bool {
	for _, s := range f {
		if s == v {
			return true
		}
	}
	return false
}

// bootstrap загружает конфигурацию и поднимает потоки логов.
func bootstrap(cfgPath string) (*config.Store, *logging.Streams, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", errConfig, err)
	}
	logCfg, err := cfg.Logging()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", errConfig, err)
	}
	logs, err := logging.New(logging.Options{
		Dir:         logCfg.Directory,
		Level:       logCfg.Level,
		MaxSizeMB:   logCfg.MaxSizeMB,
		BackupCount: logCfg.BackupCount,
		Console:     logCfg.ConsoleOutput,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", errConfig, err)
	}
	return cfg, logs, nil
}

func cmdScan(ctx context.Context, cfgPath, sessionDir string, args []string) error {
	fs := flag.NewFlagSet("scan", flag.ContinueOnError)
	channel := fs.String("channel", "", "идентификатор канала")
	limit := fs.Int("limit", -1, "максимум сообщений (отрицательное — без ограничения)")
	directionFlag := fs.String("direction", "", "newest_first | oldest_first")
	resume := fs.Bool("resume", false, "продолжить с сохранённого маркера")
	var formats formatList
	fs.Var(&formats, "format", "формат артефакта (можно несколько раз)")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errConfig, err)
	}
	if *channel == "" {
		return fmt.Errorf("%w: не указан --channel", errConfig)
	}

	cfg, logs, err := bootstrap(cfgPath)
	if err != nil {
		return err
	}
	defer logs.Close()

	if err := cfg.RequireCredentials(); err != nil {
		return fmt.Errorf("%w: %v", errConfig, err)
	}
	tgCfg, err := cfg.Telegram()
	if err != nil {
		return fmt.Errorf("%w: %v", errConfig, err)
	}
	scanCfg, err := cfg.Scanning()
	if err != nil {
		return fmt.Errorf("%w: %v", errConfig, err)
	}
	filterSet, err := cfg.Filters()
	if err != nil {
		return fmt.Errorf("%w: %v", errConfig, err)
	}
	if len(filterSet.FileTypes) == 0 {
		filterSet.FileTypes = scanCfg.FileTypes
	}

	direction := scanCfg.Direction
	if *directionFlag != "" {
		direction, err = model.ParseDirection(*directionFlag)
		if err != nil {
			return fmt.Errorf("%w: %v", errConfig, err)
		}
	}
	maxMessages := scanCfg.MaxMessages
	if *limit >= 0 {
		maxMessages = *limit
	}

	out := cfg.Output()
	if len(formats) > 0 {
		out.RichJSON = formats.has("json")
		out.SimpleJSON = formats.has("simple_json")
		out.CSV = formats.has("csv")
		out.Excel = formats.has("excel")
	}
	dl := cfg.Download()

	session, err := telegram.NewSession(tgCfg, cfg.RateLimit(), sessionDir, logs.Main)
	if err != nil {
		return fmt.Errorf("%w: %v", errConfig, err)
	}

	scanID := serializer.ScanID(time.Now())
	ser := serializer.New(out, scanID, logs.Main)
	cursors, err := cursor.NewStore(out.Directory)
	if err != nil {
		return fmt.Errorf("%w: %v", errConfig, err)
	}
	cat := catalog.New(logs.Files)
	seedCatalog(cat, out.Directory, filterSet.SkipExisting, *resume, logs.Main)

	var result *scanner.Result
	runErr := session.Run(ctx, func(ctx context.Context, api *tg.Client) error {
		if err := session.EnsureAuthorized(ctx, newStdinPrompter()); err != nil {
			return err
		}
		resolver := telegram.NewResolver(api, logs.Main)

		sc, err := scanner.New(scanner.Options{
			Request: model.ScanRequest{
				Channel:     &model.ChannelHandle{Identifier: *channel},
				MaxMessages: maxMessages,
				Direction:   direction,
				BatchSize:   scanCfg.BatchSize,
				Filters:     *filterSet,
				Resume:      *resume,
			},
			Resolve: func(ctx context.Context) (*model.ChannelHandle, error) {
				return resolver.Resolve(ctx, *channel)
			},
			NewSource: func(h *model.ChannelHandle, resumeFrom int) scanner.BatchSource {
				return telegram.NewWalker(api, telegram.WalkerOptions{
					Handle:              h,
					Direction:           direction,
					BatchSize:           scanCfg.BatchSize,
					InterBatchDelay:     scanCfg.InterBatchDelay,
					ResumeFrom:          resumeFrom,
					FloodSleepThreshold: tgCfg.FloodSleepThreshold,
					Log:                 logs.Main,
				})
			},
			Catalog:        cat,
			Cursors:        cursors,
			Serializer:     ser,
			Logs:           logs,
			GenerateLinks:  dl.GenerateLinks,
			IncludePreview: dl.IncludePreview,
			RetryAttempts:  tgCfg.RetryAttempts,
			RetryDelay:     tgCfg.RetryDelay,
			Progress:       printProgress,
		})
		if err != nil {
			return fmt.Errorf("%w: %v", errConfig, err)
		}

		result, err = sc.Run(ctx)
		if err != nil {
			return err
		}

		if dl.AutoDownload && cat.Len() > 0 {
			recs := cat.Snapshot()
			results := downloadAll(ctx, api, dl, recs, logs.Files)
			// Контрольные суммы скачанных байтов дописываются в артефакты.
			if telegram.ApplyDigests(recs, results) > 0 {
				if err := ser.Flush(result.Info, cat.Snapshot()); err != nil {
					return err
				}
			}
		}
		return nil
	})
	fmt.Println()
	if runErr != nil {
		return runErr
	}

	printSummary(result, ser)
	return nil
}

// printProgress пишет однострочный индикатор хода сканирования.
func printProgress(p scanner.Progress) {
	fmt.Printf("\r%-10s сообщений: %d  файлов: %d  прошло: %s",
		p.State, p.MessagesScanned, p.FilesFound, p.Elapsed.Round(time.Second))
}

func printSummary(result *scanner.Result, ser *serializer.Serializer) {
	if result == nil {
		return
	}
	switch result.State {
	case scan.StateDone:
		fmt.Printf("Сканирование завершено: %d файлов, %d байт\n",
			result.Records, result.Info.TotalBytes)
	case scan.StateCancelled:
		fmt.Printf("Сканирование прервано: сохранено %d файлов, продолжение — scan --resume\n",
			result.Records)
	}
	for format, path := range ser.Paths() {
		fmt.Printf("  %-12s %s\n", format, path)
	}
}

// downloadAll скачивает проиндексированные файлы после завершения скана.
// Ошибки отдельных файлов не прерывают остальные.
func downloadAll(ctx context.Context, api *tg.Client, dl config.DownloadConfig, recs []*model.FileRecord, log *slog.Logger) []telegram.DownloadResult {
	d := telegram.NewDownloader(api, dl, log)
	results := d.FetchAll(ctx, recs)

	var ok, failed int
	for _, res := range results {
		if res.Err != nil {
			failed++
			continue
		}
		ok++
	}
	fmt.Fprintf(os.Stdout, "\nСкачано файлов: %d, с ошибками: %d\n", ok, failed)
	return results
}

// seedCatalog подготавливает каталог по свежайшему артефакту: при --resume
// прежние записи переносятся в каталог, чтобы итоговый артефакт был полным;
// при skip_existing они помечаются известными и пропускаются при обходе.
// Отсутствие прежнего артефакта — штатная ситуация первого сканирования.
func seedCatalog(cat *catalog.Catalog, dir string, skipExisting, resume bool, log *slog.Logger) {
	if !skipExisting && !resume {
		return
	}
	prev, err := newestArtifact(dir)
	if err != nil {
		return
	}
	art, err := serializer.LoadArtifact(prev)
	if err != nil {
		log.Warn("прежний артефакт не прочитан",
			slog.String("artifact", prev), slog.String("error", err.Error()))
		return
	}

	if resume {
		for _, rec := range art.Files {
			cat.Append(rec)
		}
		log.Info("каталог продолжен из прежнего артефакта",
			slog.String("artifact", prev), slog.Int("records", len(art.Files)))
		return
	}

	ids := make([]string, 0, len(art.Files))
	for _, rec := range art.Files {
		ids = append(ids, rec.RecordID)
	}
	cat.MarkKnown(ids)
	log.Info("записи прежнего сканирования будут пропущены",
		slog.String("artifact", prev), slog.Int("known", len(ids)))
}
