// configcmd.go — команда config: просмотр, правка и проверка config.json.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/quangminh1212/TeleDrive-sub002/internal/config"
)

func cmdConfig(cfgPath string, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: config требует подкоманду show|set|sync-env|validate", errConfig)
	}

	cfg, err := config.Open(cfgPath)
	if err != nil {
		return fmt.Errorf("%w: %v", errConfig, err)
	}

	switch args[0] {
	case "show":
		return configShow(cfg)
	case "set":
		if len(args) != 3 {
			return fmt.Errorf("%w: использование: config set КЛЮЧ ЗНАЧЕНИЕ", errConfig)
		}
		return configSet(cfg, args[1], args[2])
	case "sync-env":
		applied, err := cfg.SyncEnv()
		if err != nil {
			return fmt.Errorf("%w: %v", errConfig, err)
		}
		fmt.Printf("Перенесено переменных окружения: %d\n", applied)
		return nil
	case "validate":
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("%w: %v", errConfig, err)
		}
		fmt.Println("Конфигурация корректна")
		return nil
	default:
		return fmt.Errorf("%w: неизвестная подкоманда config %q", errConfig, args[0])
	}
}

// configShow печатает документ конфигурации, скрывая секреты.
func configShow(cfg *config.Store) error {
	doc := cfg.Document()
	if tgSec, ok := doc["telegram"].(map[string]any); ok {
		for _, key := range []string{"api_hash", "phone"} {
			if v, ok := tgSec[key].(string); ok && v != "" {
				tgSec[key] = "***"
			}
		}
	}

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("сериализация конфигурации: %w", err)
	}
	fmt.Fprintln(os.Stdout, string(out))
	return nil
}

// configSet записывает значение по точечному пути. Числовые и булевы
// литералы приводятся к своим типам, остальное сохраняется строкой.
func configSet(cfg *config.Store, key, raw string) error {
	var value any = raw
	if n, err := strconv.Atoi(raw); err == nil {
		value = n
	} else if f, err := strconv.ParseFloat(raw, 64); err == nil {
		value = f
	} else if b, err := strconv.ParseBool(raw); err == nil {
		value = b
	}

	if err := cfg.Set(key, value); err != nil {
		return fmt.Errorf("%w: %v", errConfig, err)
	}
	fmt.Printf("%s = %v\n", key, value)
	return nil
}
