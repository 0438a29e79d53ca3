package telegram

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/gotd/td/tg"

	"github.com/quangminh1212/TeleDrive-sub002/internal/domain/model"
)

// mimeExt — соответствие MIME-типа расширению для сочинённых имён файлов.
var mimeExt = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/gif":       ".gif",
	"image/webp":      ".webp",
	"video/mp4":       ".mp4",
	"video/avi":       ".avi",
	"video/webm":      ".webm",
	"audio/mpeg":      ".mp3",
	"audio/ogg":       ".ogg",
	"audio/flac":      ".flac",
	"application/pdf": ".pdf",
	"application/zip": ".zip",
	"text/plain":      ".txt",
}

// FileRef — непрозрачная ссылка на байты файла в Telegram. Сериализуется в
// FileInfo.TelegramFileID и разбирается обратно при скачивании.
type FileRef struct {
	Kind          string `json:"kind"` // document | photo
	ID            int64  `json:"id"`
	AccessHash    int64  `json:"access_hash"`
	FileReference []byte `json:"file_reference"`
	ThumbType     string `json:"thumb_type,omitempty"` // для фото: тип крупнейшего варианта
}

func packFileRef(ref FileRef) []byte {
	// Структура фиксирована, ошибка маршалинга невозможна.
	b, _ := json.Marshal(ref)
	return b
}

// UnpackFileRef разбирает ссылку из записи каталога.
func UnpackFileRef(raw []byte) (FileRef, error) {
	var ref FileRef
	if err := json.Unmarshal(raw, &ref); err != nil {
		return FileRef{}, fmt.Errorf("разбор telegram_file_id: %w", err)
	}
	if ref.Kind != "document" && ref.Kind != "photo" {
		return FileRef{}, fmt.Errorf("неизвестный вид ссылки %q", ref.Kind)
	}
	return ref, nil
}

// ClassifyMessage — чистая функция сообщение → запись каталога. Сообщение без
// медиа-вложения (текст, геометка, опрос) даёт nil. Ссылки для скачивания
// заполняет отдельный построитель.
func ClassifyMessage(handle *model.ChannelHandle, msg *tg.Message, indexedAt time.Time) *model.FileRecord {
	if msg == nil || msg.Media == nil {
		return nil
	}

	var info *model.FileInfo
	switch media := msg.Media.(type) {
	case *tg.MessageMediaDocument:
		doc, ok := media.Document.(*tg.Document)
		if !ok {
			return nil
		}
		info = classifyDocument(doc, msg.ID)
	case *tg.MessageMediaPhoto:
		photo, ok := media.Photo.(*tg.Photo)
		if !ok {
			return nil
		}
		info = classifyPhoto(photo, msg.ID)
	default:
		return nil
	}
	if info == nil {
		return nil
	}

	rec := &model.FileRecord{
		RecordID:  model.NewRecordID(handle.ResolvedID, msg.ID),
		Channel:   handle.Ref(),
		Message:   messageInfo(msg),
		File:      *info,
		IndexedAt: indexedAt,
	}
	return rec
}

// classifyDocument определяет тип по MIME-префиксу с учётом атрибутов
// документа (кружок, голосовое, стикер, анимация).
func classifyDocument(doc *tg.Document, messageID int) *model.FileInfo {
	var (
		declaredName string
		round        bool
		voice        bool
		sticker      bool
		animated     bool
		width        *int
		height       *int
		duration     *float64
	)

	for _, attr := range doc.Attributes {
		switch a := attr.(type) {
		case *tg.DocumentAttributeFilename:
			declaredName = a.FileName
		case *tg.DocumentAttributeVideo:
			round = a.RoundMessage
			d := a.Duration
			duration = &d
			w, h := a.W, a.H
			width, height = &w, &h
		case *tg.DocumentAttributeAudio:
			voice = a.Voice
			d := float64(a.Duration)
			duration = &d
		case *tg.DocumentAttributeSticker:
			sticker = true
		case *tg.DocumentAttributeAnimated:
			animated = true
		case *tg.DocumentAttributeImageSize:
			w, h := a.W, a.H
			width, height = &w, &h
		}
	}

	mime := doc.MimeType
	var ft model.FileType
	switch {
	case strings.HasPrefix(mime, "video/") && round:
		ft = model.TypeVideoNote
	case strings.HasPrefix(mime, "video/"):
		ft = model.TypeVideo
	case strings.HasPrefix(mime, "audio/") && voice:
		ft = model.TypeVoice
	case strings.HasPrefix(mime, "audio/"):
		ft = model.TypeAudio
	case strings.HasPrefix(mime, "image/") && sticker:
		ft = model.TypeSticker
	case mime == "image/gif" || animated:
		ft = model.TypeAnimation
	default:
		// Прочие image/* остаются документами с картиночным MIME.
		ft = model.TypeDocument
	}

	name := declaredName
	if name == "" {
		name = fmt.Sprintf("%s_%d%s", ft, messageID, mimeExt[mime])
	}

	info := &model.FileInfo{
		Name:      name,
		Extension: normalizeExt(name),
		Mime:      mime,
		SizeBytes: doc.Size,
		Type:      ft,
		TelegramFileID: packFileRef(FileRef{
			Kind:          "document",
			ID:            doc.ID,
			AccessHash:    doc.AccessHash,
			FileReference: doc.FileReference,
		}),
		Width:     width,
		Height:    height,
		DurationS: duration,
	}
	if len(doc.Thumbs) > 0 {
		id := doc.ID
		info.ThumbnailID = &id
	}
	return info
}

// classifyPhoto берёт крупнейший вариант фото; имя файла синтезируется,
// у фотографий в Telegram его нет.
func classifyPhoto(photo *tg.Photo, messageID int) *model.FileInfo {
	var (
		bestSize  int
		bestType  string
		width     *int
		height    *int
	)
	for _, s := range photo.Sizes {
		size, typ, w, h := photoSizeVariant(s)
		if size > bestSize {
			bestSize = size
			bestType = typ
			width, height = &w, &h
		}
	}

	name := fmt.Sprintf("photo_%d.jpg", messageID)
	id := photo.ID
	return &model.FileInfo{
		Name:      name,
		Extension: "jpg",
		Mime:      "image/jpeg",
		SizeBytes: int64(bestSize),
		Type:      model.TypePhoto,
		TelegramFileID: packFileRef(FileRef{
			Kind:          "photo",
			ID:            photo.ID,
			AccessHash:    photo.AccessHash,
			FileReference: photo.FileReference,
			ThumbType:     bestType,
		}),
		ThumbnailID: &id,
		Width:       width,
		Height:      height,
	}
}

// photoSizeVariant возвращает размер в байтах, тип и габариты варианта фото.
// Урезанные превью (stripped) не участвуют в выборе крупнейшего.
func photoSizeVariant(s tg.PhotoSizeClass) (size int, typ string, w, h int) {
	switch v := s.(type) {
	case *tg.PhotoSize:
		return v.Size, v.Type, v.W, v.H
	case *tg.PhotoSizeProgressive:
		max := 0
		for _, n := range v.Sizes {
			if n > max {
				max = n
			}
		}
		return max, v.Type, v.W, v.H
	case *tg.PhotoCachedSize:
		return len(v.Bytes), v.Type, v.W, v.H
	default:
		return 0, "", 0, 0
	}
}

func messageInfo(msg *tg.Message) model.MessageInfo {
	info := model.MessageInfo{
		ID:      msg.ID,
		DateUTC: time.Unix(int64(msg.Date), 0).UTC(),
	}
	if msg.Message != "" {
		caption := msg.Message
		info.Caption = &caption
	}
	if sender, ok := senderID(msg.FromID); ok {
		info.SenderID = &sender
	}
	if fwd, ok := msg.GetFwdFrom(); ok {
		if src := forwardSource(fwd); src != "" {
			info.ForwardSrc = &src
		}
	}
	return info
}

func senderID(peer tg.PeerClass) (int64, bool) {
	switch p := peer.(type) {
	case *tg.PeerUser:
		return p.UserID, true
	case *tg.PeerChannel:
		return p.ChannelID, true
	case *tg.PeerChat:
		return p.ChatID, true
	default:
		return 0, false
	}
}

func forwardSource(fwd tg.MessageFwdHeader) string {
	if fwd.FromName != "" {
		return fwd.FromName
	}
	if from, ok := fwd.GetFromID(); ok {
		if id, ok := senderID(from); ok {
			return fmt.Sprintf("peer:%d", id)
		}
	}
	return ""
}

// normalizeExt выделяет расширение имени файла: нижний регистр, без точки.
func normalizeExt(name string) string {
	ext := strings.TrimPrefix(filepath.Ext(name), ".")
	return strings.ToLower(ext)
}
