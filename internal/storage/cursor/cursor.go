// Пакет cursor — персистентный маркер возобновления сканирования.
//
// Маркер пишется на каждом коммите батча и удаляется при успешном
// завершении. Запись атомарна (tmp → fsync → rename), поэтому после
// падения на диске всегда лежит целый маркер либо его нет вовсе.
package cursor

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/quangminh1212/TeleDrive-sub002/internal/domain/model"
)

// ErrNotFound возвращается Load, если маркера для канала и направления нет.
var ErrNotFound = errors.New("маркер возобновления не найден")

// Store хранит маркеры в директории, по файлу на пару канал+направление.
type Store struct {
	dir string
}

// NewStore создаёт хранилище маркеров в dir.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("директория маркеров %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) path(channelID int64, direction model.Direction) string {
	return filepath.Join(s.dir, fmt.Sprintf("cursor_%d_%s.json", channelID, direction))
}

// Save атомарно пишет маркер. Единственный писатель — сканер.
func (s *Store) Save(c model.ResumeCursor) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("сериализация маркера: %w", err)
	}

	target := s.path(c.ChannelResolvedID, c.Direction)
	tmp, err := os.CreateTemp(s.dir, ".cursor-*.tmp")
	if err != nil {
		return fmt.Errorf("временный файл маркера: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("запись маркера: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("fsync маркера: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("закрытие маркера: %w", err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return fmt.Errorf("переименование маркера: %w", err)
	}
	return nil
}

// Load читает маркер для канала и направления.
func (s *Store) Load(channelID int64, direction model.Direction) (model.ResumeCursor, error) {
	var c model.ResumeCursor

	data, err := os.ReadFile(s.path(channelID, direction))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return c, ErrNotFound
		}
		return c, fmt.Errorf("чтение маркера: %w", err)
	}
	if err := json.Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("повреждённый маркер %s: %w", s.path(channelID, direction), err)
	}
	if c.ChannelResolvedID != channelID || c.Direction != direction {
		return c, fmt.Errorf("маркер %s принадлежит другому сканированию", s.path(channelID, direction))
	}
	return c, nil
}

// Delete удаляет маркер. Отсутствие маркера не считается ошибкой.
func (s *Store) Delete(channelID int64, direction model.Direction) error {
	err := os.Remove(s.path(channelID, direction))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("удаление маркера: %w", err)
	}
	return nil
}
