package telegram

import (
	"fmt"

	"github.com/quangminh1212/TeleDrive-sub002/internal/domain/model"
)

// LinkBuilder строит ссылки доступа к файлу. Ссылки детерминированы:
// зависят только от канала и идентификатора сообщения.
type LinkBuilder struct {
	handle         *model.ChannelHandle
	generateWeb    bool
	includePreview bool
}

// NewLinkBuilder создаёт построитель для канала. generateWeb управляет
// web-ссылками t.me, includePreview — ссылками на превью.
func NewLinkBuilder(handle *model.ChannelHandle, generateWeb, includePreview bool) *LinkBuilder {
	return &LinkBuilder{handle: handle, generateWeb: generateWeb, includePreview: includePreview}
}

// Apply заполняет Download у записи. Deep-link tg:// присутствует всегда,
// web-ссылка — у публичных каналов и приватных, где пользователь состоит,
// превью — только при наличии миниатюры.
func (b *LinkBuilder) Apply(rec *model.FileRecord) {
	rec.Download.TgLink = fmt.Sprintf("tg://openmessage?chat_id=%d&message_id=%d",
		b.handle.ResolvedID, rec.Message.ID)

	if b.generateWeb {
		if link := b.webLink(rec.Message.ID); link != "" {
			rec.Download.WebLink = &link
		}
	}

	if b.includePreview && rec.File.ThumbnailID != nil {
		preview := fmt.Sprintf("tg://openmessage?chat_id=%d&message_id=%d&preview=1",
			b.handle.ResolvedID, rec.Message.ID)
		rec.Download.PreviewLink = &preview
	}
}

func (b *LinkBuilder) webLink(messageID int) string {
	switch {
	case b.handle.Username != "":
		return fmt.Sprintf("https://t.me/%s/%d", b.handle.Username, messageID)
	case b.handle.Joined && !b.handle.BasicGroup && !b.handle.SavedMessages:
		// Приватный канал: короткий идентификатор без клиентского префикса -100.
		return fmt.Sprintf("https://t.me/c/%d/%d", shortChannelID(b.handle.ResolvedID), messageID)
	default:
		return ""
	}
}

// shortChannelID приводит идентификатор к короткой форме ссылок t.me/c/.
func shortChannelID(id int64) int64 {
	if id < 0 {
		id = -id
	}
	// Клиентская форма -100XXXXXXXXXX: отрезаем префикс 100.
	const marker = int64(1_000_000_000_000)
	if id > marker {
		return id % marker
	}
	return id
}
