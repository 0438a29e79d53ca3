package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/quangminh1212/TeleDrive-sub002/internal/domain/model"
)

// writeConfig пишет документ во временный config.json и возвращает путь.
func writeConfig(t *testing.T, doc map[string]any) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		t.Fatalf("сериализация тестового документа: %v", err)
	}
	if err := os.WriteFile(path, data, 0o640); err != nil {
		t.Fatalf("запись тестового документа: %v", err)
	}
	return path
}

// validDoc возвращает минимальный корректный документ с учётными данными.
func validDoc() map[string]any {
	return map[string]any{
		"_schema_version": SchemaVersion,
		"telegram": map[string]any{
			"api_id":   123456,
			"api_hash": "0123456789abcdef0123456789abcdef",
			"phone":    "+84901234567",
		},
	}
}

// TestOpen_CreatesDefault проверяет создание документа по умолчанию.
func TestOpen_CreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, statErr := os.Stat(path); statErr != nil {
		t.Errorf("документ по умолчанию не записан: %v", statErr)
	}
	if got := s.GetDefault("scanning.batch_size", 0); asInt(got, 0) != 100 {
		t.Errorf("batch_size по умолчанию: %v", got)
	}
}

// TestOpen_Malformed проверяет отказ на некорректном JSON.
func TestOpen_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{не json"), 0o640); err != nil {
		t.Fatal(err)
	}

	_, err := Open(path)
	if !errors.Is(err, ErrMalformed) {
		t.Errorf("ожидался ErrMalformed, получено %v", err)
	}
}

// TestLoad_Incomplete проверяет отказ без учётных данных.
func TestLoad_Incomplete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	_, err := Load(path)
	if !errors.Is(err, ErrIncomplete) {
		t.Errorf("ожидался ErrIncomplete, получено %v", err)
	}
}

// TestLoad_BadAPIHash проверяет валидацию формата api_hash.
func TestLoad_BadAPIHash(t *testing.T) {
	doc := validDoc()
	doc["telegram"].(map[string]any)["api_hash"] = "not-a-hash-at-all-but-32-chars!!"
	path := writeConfig(t, doc)

	_, err := Load(path)
	if !errors.Is(err, ErrMalformed) {
		t.Errorf("ожидался ErrMalformed, получено %v", err)
	}
}

// TestEnvOverride проверяет приоритет окружения над документом.
func TestEnvOverride(t *testing.T) {
	doc := validDoc()
	path := writeConfig(t, doc)

	t.Setenv("TELEGRAM_API_ID", "999888")
	t.Setenv("TELEGRAM_PHONE", "+79991234567")

	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	tg, err := s.Telegram()
	if err != nil {
		t.Fatalf("Telegram: %v", err)
	}
	if tg.APIID != 999888 {
		t.Errorf("api_id из окружения: %d", tg.APIID)
	}
	if tg.Phone != "+79991234567" {
		t.Errorf("phone из окружения: %s", tg.Phone)
	}
}

// TestSetGet проверяет закон set(k, v); get(k) == v.
func TestSetGet(t *testing.T) {
	path := writeConfig(t, validDoc())
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if err := s.Set("scanning.batch_size", 250); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if got, _ := s.Get("scanning.batch_size"); asInt(got, 0) != 250 {
		t.Errorf("get после set: %v", got)
	}

	// Значение должно пережить перечитывание с диска.
	reloaded, err := Open(path)
	if err != nil {
		t.Fatalf("повторный Open: %v", err)
	}
	if got, _ := reloaded.Get("scanning.batch_size"); asInt(got, 0) != 250 {
		t.Errorf("set не сохранился на диск: %v", got)
	}
}

// TestSet_RejectsInvalid проверяет отказ записи, ломающей схему.
func TestSet_RejectsInvalid(t *testing.T) {
	path := writeConfig(t, validDoc())
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if err := s.Set("scanning.batch_size", 100000); !errors.Is(err, ErrMalformed) {
		t.Errorf("ожидался ErrMalformed, получено %v", err)
	}
	// Документ не должен измениться.
	if got, _ := s.Get("scanning.batch_size"); asInt(got, 0) == 100000 {
		t.Error("отклонённая запись изменила документ")
	}
}

// TestSyncEnv_Idempotent проверяет идемпотентность sync_env_to_config.
func TestSyncEnv_Idempotent(t *testing.T) {
	path := writeConfig(t, validDoc())
	t.Setenv("TELEGRAM_SESSION_NAME", "prod_session")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	n, err := s.SyncEnv()
	if err != nil {
		t.Fatalf("первый SyncEnv: %v", err)
	}
	if n != 1 {
		t.Errorf("первый SyncEnv перенёс %d значений, ожидалось 1", n)
	}
	n, err = s.SyncEnv()
	if err != nil {
		t.Fatalf("второй SyncEnv: %v", err)
	}
	if n != 0 {
		t.Errorf("повторный SyncEnv перенёс %d значений, ожидалось 0", n)
	}

	reloaded, err := Open(path)
	if err != nil {
		t.Fatalf("Open после SyncEnv: %v", err)
	}
	if got := asString(reloaded.GetDefault("telegram.session_name", ""), ""); got != "prod_session" {
		t.Errorf("session_name после SyncEnv: %q", got)
	}
}

// TestMigration проверяет миграцию документа без _schema_version.
func TestMigration(t *testing.T) {
	legacy := map[string]any{
		"telegram": map[string]any{
			"api_id":       123456,
			"api_hash":     "0123456789abcdef0123456789abcdef",
			"phone_number": "+84901234567",
		},
		"custom_section": map[string]any{"kept": true},
	}
	path := writeConfig(t, legacy)

	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	// Историческое phone_number перенесено в phone.
	tg, err := s.Telegram()
	if err != nil {
		t.Fatalf("Telegram: %v", err)
	}
	if tg.Phone != "+84901234567" {
		t.Errorf("phone после миграции: %q", tg.Phone)
	}

	// Мигрированный документ записан назад с версией схемы.
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var onDisk map[string]any
	if err := json.Unmarshal(data, &onDisk); err != nil {
		t.Fatal(err)
	}
	if onDisk["_schema_version"] != SchemaVersion {
		t.Errorf("_schema_version на диске: %v", onDisk["_schema_version"])
	}
	// Неизвестные ключи сохранены.
	if _, ok := onDisk["custom_section"]; !ok {
		t.Error("неизвестная секция потеряна при миграции")
	}
}

// TestFilters_DateParsing проверяет разбор дат фильтров.
func TestFilters_DateParsing(t *testing.T) {
	doc := validDoc()
	doc["filters"] = map[string]any{
		"date_from": "2025-01-01T00:00:00Z",
	}
	path := writeConfig(t, doc)

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	fs, err := s.Filters()
	if err != nil {
		t.Fatalf("Filters: %v", err)
	}
	if fs.DateFrom == nil || fs.DateFrom.Year() != 2025 {
		t.Errorf("date_from: %v", fs.DateFrom)
	}
}

// TestScanning_FileTypes проверяет преобразование флагов file_types.
func TestScanning_FileTypes(t *testing.T) {
	doc := validDoc()
	doc["scanning"] = map[string]any{
		"file_types": map[string]any{
			"documents": true,
			"photos":    false,
			"videos":    true,
		},
	}
	path := writeConfig(t, doc)

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	sc, err := s.Scanning()
	if err != nil {
		t.Fatalf("Scanning: %v", err)
	}

	has := func(name string) bool {
		for _, ft := range sc.FileTypes {
			if string(ft) == name {
				return true
			}
		}
		return false
	}
	if !has("document") || !has("video") {
		t.Errorf("включённые типы потеряны: %v", sc.FileTypes)
	}
	if has("photo") {
		t.Errorf("отключённый тип photo попал в список: %v", sc.FileTypes)
	}
}

// TestScanning_MaxMessages проверяет трактовку лимита: null и отсутствие
// ключа означают «без ограничения», явный ноль — пустое сканирование.
func TestScanning_MaxMessages(t *testing.T) {
	cases := []struct {
		name  string
		value any
		want  int
	}{
		{"absent", "absent", model.UnlimitedMessages},
		{"null", nil, model.UnlimitedMessages},
		{"zero", 0, 0},
		{"positive", 500, 500},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			doc := validDoc()
			if tc.value != "absent" {
				doc["scanning"] = map[string]any{"max_messages": tc.value}
			}
			s, err := Open(writeConfig(t, doc))
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			sc, err := s.Scanning()
			if err != nil {
				t.Fatalf("Scanning: %v", err)
			}
			if sc.MaxMessages != tc.want {
				t.Errorf("MaxMessages = %d, ожидалось %d", sc.MaxMessages, tc.want)
			}
		})
	}
}
