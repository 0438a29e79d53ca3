package telegram

import (
	"testing"

	"github.com/quangminh1212/TeleDrive-sub002/internal/domain/model"
)

func linkRecord(messageID int, withThumb bool) *model.FileRecord {
	rec := &model.FileRecord{Message: model.MessageInfo{ID: messageID}}
	if withThumb {
		id := int64(1)
		rec.File.ThumbnailID = &id
	}
	return rec
}

// TestLinkBuilder_PublicChannel проверяет web-ссылку через username.
func TestLinkBuilder_PublicChannel(t *testing.T) {
	h := &model.ChannelHandle{Kind: model.KindPublic, ResolvedID: 123, Username: "demo", Joined: true}
	b := NewLinkBuilder(h, true, true)

	rec := linkRecord(42, false)
	b.Apply(rec)

	if rec.Download.TgLink != "tg://openmessage?chat_id=123&message_id=42" {
		t.Errorf("TgLink = %q", rec.Download.TgLink)
	}
	if rec.Download.WebLink == nil || *rec.Download.WebLink != "https://t.me/demo/42" {
		t.Errorf("WebLink = %v", rec.Download.WebLink)
	}
	if rec.Download.PreviewLink != nil {
		t.Error("без миниатюры превью-ссылки быть не должно")
	}
}

// TestLinkBuilder_PrivateChannel проверяет короткую форму t.me/c/.
func TestLinkBuilder_PrivateChannel(t *testing.T) {
	h := &model.ChannelHandle{Kind: model.KindPrivate, ResolvedID: 1234567890, Joined: true}
	b := NewLinkBuilder(h, true, false)

	rec := linkRecord(7, false)
	b.Apply(rec)
	if rec.Download.WebLink == nil || *rec.Download.WebLink != "https://t.me/c/1234567890/7" {
		t.Errorf("WebLink = %v", rec.Download.WebLink)
	}
}

// TestLinkBuilder_NotJoined проверяет отсутствие web-ссылки без участия.
func TestLinkBuilder_NotJoined(t *testing.T) {
	h := &model.ChannelHandle{Kind: model.KindPrivate, ResolvedID: 55}
	b := NewLinkBuilder(h, true, false)

	rec := linkRecord(7, false)
	b.Apply(rec)
	if rec.Download.WebLink != nil {
		t.Errorf("WebLink = %v, у недоступного канала быть не должно", *rec.Download.WebLink)
	}
	if rec.Download.TgLink == "" {
		t.Error("deep-link tg:// обязателен всегда")
	}
}

// TestLinkBuilder_Preview проверяет превью только при наличии миниатюры.
func TestLinkBuilder_Preview(t *testing.T) {
	h := &model.ChannelHandle{Kind: model.KindPublic, ResolvedID: 9, Username: "x1234", Joined: true}
	b := NewLinkBuilder(h, true, true)

	with := linkRecord(1, true)
	b.Apply(with)
	if with.Download.PreviewLink == nil {
		t.Error("при наличии миниатюры ожидалась превью-ссылка")
	}

	without := linkRecord(2, false)
	b.Apply(without)
	if without.Download.PreviewLink != nil {
		t.Error("без миниатюры превью-ссылки быть не должно")
	}
}

// TestLinkBuilder_Disabled проверяет выключение web-ссылок конфигурацией.
func TestLinkBuilder_Disabled(t *testing.T) {
	h := &model.ChannelHandle{Kind: model.KindPublic, ResolvedID: 9, Username: "demo1", Joined: true}
	b := NewLinkBuilder(h, false, false)

	rec := linkRecord(1, true)
	b.Apply(rec)
	if rec.Download.WebLink != nil || rec.Download.PreviewLink != nil {
		t.Error("выключенные ссылки не должны заполняться")
	}
}

// TestShortChannelID проверяет отрезание клиентского префикса -100.
func TestShortChannelID(t *testing.T) {
	cases := []struct {
		in, want int64
	}{
		{-1001234567890, 1234567890},
		{1234567890, 1234567890},
		{-1009876543210, 9876543210},
		{55, 55},
	}
	for _, tc := range cases {
		if got := shortChannelID(tc.in); got != tc.want {
			t.Errorf("shortChannelID(%d) = %d, ожидалось %d", tc.in, got, tc.want)
		}
	}
}
