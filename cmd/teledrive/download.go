// download.go — команды download и logout, работающие поверх живой сессии.
package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gotd/td/tg"

	"github.com/quangminh1212/TeleDrive-sub002/internal/storage/serializer"
	"github.com/quangminh1212/TeleDrive-sub002/internal/telegram"
)

// cmdDownload скачивает файлы из последнего (или указанного) артефакта.
func cmdDownload(ctx context.Context, cfgPath, sessionDir string, args []string) error {
	fs2 := flag.NewFlagSet("download", flag.ContinueOnError)
	artifact := fs2.String("artifact", "", "путь к артефакту (по умолчанию — свежайший)")
	if err := fs2.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errConfig, err)
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

	path := *artifact
	if path == "" {
		path, err = newestArtifact(cfg.Output().Directory)
		if err != nil {
			return err
		}
	}
	art, err := serializer.LoadArtifact(path)
	if err != nil {
		return err
	}
	if len(art.Files) == 0 {
		fmt.Println("В артефакте нет файлов для скачивания")
		return nil
	}

	session, err := telegram.NewSession(tgCfg, cfg.RateLimit(), sessionDir, logs.Main)
	if err != nil {
		return fmt.Errorf("%w: %v", errConfig, err)
	}

	return session.Run(ctx, func(ctx context.Context, api *tg.Client) error {
		if err := session.EnsureAuthorized(ctx, newStdinPrompter()); err != nil {
			return err
		}
		results := downloadAll(ctx, api, cfg.Download(), art.Files, logs.Files)
		if telegram.ApplyDigests(art.Files, results) > 0 {
			if err := serializer.SaveArtifact(path, art); err != nil {
				return err
			}
			fmt.Println("Контрольные суммы записаны в артефакт")
		}
		return nil
	})
}

// newestArtifact ищет свежайший полный артефакт в каталоге вывода.
func newestArtifact(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("каталог артефактов %s: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, "_telegram_files.json") {
			continue
		}
		names = append(names, name)
	}
	if len(names) == 0 {
		return "", fmt.Errorf("%w: в %s нет артефактов, сначала выполните scan: %w",
			errConfig, dir, fs.ErrNotExist)
	}
	sort.Strings(names)
	return filepath.Join(dir, names[len(names)-1]), nil
}

// cmdLogout завершает сессию Telegram и удаляет файл сессии.
func cmdLogout(ctx context.Context, cfgPath, sessionDir string) error {
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

	session, err := telegram.NewSession(tgCfg, cfg.RateLimit(), sessionDir, logs.Main)
	if err != nil {
		return fmt.Errorf("%w: %v", errConfig, err)
	}

	err = session.Run(ctx, func(ctx context.Context, _ *tg.Client) error {
		return session.Logout(ctx, sessionDir)
	})
	if err != nil {
		return err
	}
	fmt.Println("Сессия завершена, файл сессии удалён")
	return nil
}
