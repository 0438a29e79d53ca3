// Пакет model — типизированные сущности сканера каналов Telegram.
// Единственное место, где определяется схема FileRecord и заголовка
// scan_info; сериализация выполняется на границах (serializer, query).
package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// FileType — тип файла, извлечённого из сообщения.
type FileType string

const (
	TypeDocument  FileType = "document"
	TypePhoto     FileType = "photo"
	TypeVideo     FileType = "video"
	TypeAudio     FileType = "audio"
	TypeVoice     FileType = "voice"
	TypeSticker   FileType = "sticker"
	TypeAnimation FileType = "animation"
	TypeVideoNote FileType = "video_note"
)

// AllFileTypes возвращает полный набор известных типов файлов.
func AllFileTypes() []FileType {
	return []FileType{
		TypeDocument, TypePhoto, TypeVideo, TypeAudio,
		TypeVoice, TypeSticker, TypeAnimation, TypeVideoNote,
	}
}

// ParseFileType преобразует строку в FileType.
// Возвращает ошибку для неизвестных значений.
func ParseFileType(s string) (FileType, error) {
	t := FileType(s)
	for _, known := range AllFileTypes() {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("неизвестный тип файла: %q", s)
}

// ChannelKind — вид контейнера сообщений.
type ChannelKind string

const (
	KindPublic  ChannelKind = "public"
	KindPrivate ChannelKind = "private"
	KindGroup   ChannelKind = "group"
)

// Direction — направление обхода истории сообщений.
type Direction string

const (
	NewestFirst Direction = "newest_first"
	OldestFirst Direction = "oldest_first"
)

// ParseDirection преобразует строку в Direction.
func ParseDirection(s string) (Direction, error) {
	switch Direction(s) {
	case NewestFirst, OldestFirst:
		return Direction(s), nil
	default:
		return "", fmt.Errorf("недопустимое направление: %q, допустимые: newest_first, oldest_first", s)
	}
}

// ChannelHandle — результат разрешения идентификатора канала.
// Живёт в пределах одного сканирования.
type ChannelHandle struct {
	Kind       ChannelKind `json:"kind"`
	Identifier string      `json:"identifier"`
	ResolvedID int64       `json:"resolved_id"`
	AccessHash int64       `json:"access_hash,omitempty"`
	InviteHash string      `json:"invite_hash,omitempty"`
	Title      string      `json:"title"`
	Username   string      `json:"username,omitempty"`
	Joined     bool        `json:"joined"`
	// BasicGroup — обычная группа (tg.Chat), а не супергруппа/канал.
	BasicGroup bool `json:"-"`
	// SavedMessages — псевдоканал "me" (Saved Messages текущего пользователя).
	SavedMessages bool `json:"-"`

	// Права текущего пользователя в канале.
	CanReadHistory   bool `json:"can_read_history"`
	CanDownloadMedia bool `json:"can_download_media"`
}

// Ref возвращает компактную ссылку на канал для FileRecord.
func (h *ChannelHandle) Ref() ChannelRef {
	return ChannelRef{ID: h.ResolvedID, Title: h.Title, Kind: h.Kind}
}

// ChannelRef — компактная ссылка на канал внутри FileRecord.
type ChannelRef struct {
	ID    int64       `json:"id"`
	Title string      `json:"title"`
	Kind  ChannelKind `json:"kind"`
}

// MessageInfo — сведения о сообщении-носителе файла.
type MessageInfo struct {
	ID         int        `json:"id"`
	DateUTC    time.Time  `json:"date_utc"`
	SenderID   *int64     `json:"sender_id"`
	Caption    *string    `json:"caption"`
	ForwardSrc *string    `json:"forward_src"`
}

// FileInfo — сведения о самом файле.
type FileInfo struct {
	Name      string   `json:"name"`
	Extension string   `json:"extension"`
	Mime      string   `json:"mime"`
	SizeBytes int64    `json:"size_bytes"`
	Type      FileType `json:"type"`
	// TelegramFileID — непрозрачная ссылка для последующей загрузки байтов.
	TelegramFileID []byte   `json:"telegram_file_id"`
	ThumbnailID    *int64   `json:"thumbnail_id"`
	Width          *int     `json:"width"`
	Height         *int     `json:"height"`
	DurationS      *float64 `json:"duration_s"`
}

// DownloadInfo — ссылки для доступа к файлу.
type DownloadInfo struct {
	TgLink      string  `json:"tg_link"`
	WebLink     *string `json:"web_link"`
	PreviewLink *string `json:"preview_link"`
}

// FileRecord — каноническая строка индекса. После коммита изменяется только
// HashDigest — он заполняется после скачивания байтов.
type FileRecord struct {
	RecordID   string       `json:"record_id"`
	Channel    ChannelRef   `json:"channel"`
	Message    MessageInfo  `json:"message"`
	File       FileInfo     `json:"file"`
	Download   DownloadInfo `json:"download"`
	HashDigest *string      `json:"hash_digest"`
	IndexedAt  time.Time    `json:"indexed_at"`
}

// NewRecordID вычисляет стабильный идентификатор записи:
// первые 16 байт sha256 от "<channel_resolved_id>:<message_id>", hex.
// Идентификатор не меняется между повторными сканированиями
// одного и того же сообщения.
func NewRecordID(channelID int64, messageID int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d:%d", channelID, messageID)))
	return hex.EncodeToString(sum[:16])
}

// ErrorItem — запись об ошибке в scan_info.errors.
type ErrorItem struct {
	When        time.Time `json:"when"`
	Where       string    `json:"where"`
	Kind        string    `json:"kind"`
	Detail      string    `json:"detail"`
	Recoverable bool      `json:"recoverable"`
}

// ScanInfo — заголовок каталога одного сканирования.
type ScanInfo struct {
	Channel      ChannelRef     `json:"channel"`
	StartedAt    time.Time      `json:"started_at"`
	FinishedAt   *time.Time     `json:"finished_at"`
	LastCursor   int            `json:"last_cursor"`
	CountsByType map[string]int `json:"counts_by_type"`
	TotalBytes   int64          `json:"total_bytes"`
	FiltersUsed  FilterSet      `json:"filters_used"`
	Errors       []ErrorItem    `json:"errors"`
}

// FilterSet — снимок пользовательских фильтров сканирования.
// Вычисление предикатов — в пакете filters.
type FilterSet struct {
	FileTypes    []FileType `json:"file_types,omitempty"`
	SizeMin      int64      `json:"size_min,omitempty"`
	SizeMax      int64      `json:"size_max,omitempty"` // 0 = без ограничения
	ExtAllow     []string   `json:"ext_allow,omitempty"`
	ExtDeny      []string   `json:"ext_deny,omitempty"`
	DateFrom     *time.Time `json:"date_from,omitempty"`
	DateTo       *time.Time `json:"date_to,omitempty"`
	NameAllow    []string   `json:"name_allow_patterns,omitempty"`
	NameDeny     []string   `json:"name_deny_patterns,omitempty"`
	Dedupe       bool       `json:"dedupe"`
	SkipExisting bool       `json:"skip_existing"`
}

// ResumeCursor — маркер возобновления прерванного сканирования.
// Пишется на каждом коммите батча, удаляется при успешном завершении.
type ResumeCursor struct {
	ChannelResolvedID int64     `json:"channel_resolved_id"`
	LastMessageIDSeen int       `json:"last_message_id_seen"`
	Direction         Direction `json:"direction"`
}

// UnlimitedMessages — значение MaxMessages без ограничения числа сообщений.
// Явный ноль — это лимит: сканирование завершается пустым каталогом, не
// выполнив ни одного запроса истории.
const UnlimitedMessages = -1

// ScanRequest — параметры одного сканирования.
type ScanRequest struct {
	Channel     *ChannelHandle
	MaxMessages int // UnlimitedMessages = без ограничения, 0 = пустое сканирование
	Direction   Direction
	BatchSize   int
	Filters     FilterSet
	Resume      bool
}
