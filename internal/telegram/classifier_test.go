package telegram

import (
	"testing"
	"time"

	"github.com/gotd/td/tg"

	"github.com/quangminh1212/TeleDrive-sub002/internal/domain/model"
)

var classifyAt = time.Date(2025, 7, 1, 10, 0, 0, 0, time.UTC)

func docMessage(id int, doc *tg.Document) *tg.Message {
	return &tg.Message{
		ID:    id,
		Date:  int(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC).Unix()),
		Media: &tg.MessageMediaDocument{Document: doc},
	}
}

// TestClassify_DocumentTypes проверяет таблицу классификации по MIME и атрибутам.
func TestClassify_DocumentTypes(t *testing.T) {
	cases := []struct {
		name string
		doc  *tg.Document
		want model.FileType
	}{
		{
			"обычный документ",
			&tg.Document{MimeType: "application/pdf", Attributes: []tg.DocumentAttributeClass{
				&tg.DocumentAttributeFilename{FileName: "report.pdf"},
			}},
			model.TypeDocument,
		},
		{
			"видео",
			&tg.Document{MimeType: "video/mp4", Attributes: []tg.DocumentAttributeClass{
				&tg.DocumentAttributeVideo{Duration: 12.5, W: 1280, H: 720},
			}},
			model.TypeVideo,
		},
		{
			"кружок",
			&tg.Document{MimeType: "video/mp4", Attributes: []tg.DocumentAttributeClass{
				&tg.DocumentAttributeVideo{RoundMessage: true, Duration: 5},
			}},
			model.TypeVideoNote,
		},
		{
			"аудио",
			&tg.Document{MimeType: "audio/mpeg", Attributes: []tg.DocumentAttributeClass{
				&tg.DocumentAttributeAudio{Duration: 240},
			}},
			model.TypeAudio,
		},
		{
			"голосовое",
			&tg.Document{MimeType: "audio/ogg", Attributes: []tg.DocumentAttributeClass{
				&tg.DocumentAttributeAudio{Voice: true, Duration: 7},
			}},
			model.TypeVoice,
		},
		{
			"стикер",
			&tg.Document{MimeType: "image/webp", Attributes: []tg.DocumentAttributeClass{
				&tg.DocumentAttributeSticker{},
			}},
			model.TypeSticker,
		},
		{
			"gif-анимация",
			&tg.Document{MimeType: "image/gif"},
			model.TypeAnimation,
		},
		{
			"картинка без стикера",
			&tg.Document{MimeType: "image/png"},
			model.TypeDocument,
		},
	}

	handle := testHandle()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := ClassifyMessage(handle, docMessage(100, tc.doc), classifyAt)
			if rec == nil {
				t.Fatal("ожидалась запись, получен nil")
			}
			if rec.File.Type != tc.want {
				t.Errorf("Type = %s, ожидалось %s", rec.File.Type, tc.want)
			}
		})
	}
}

// TestClassify_FilenameSynthesis проверяет имя, сочинённое из типа и MIME.
func TestClassify_FilenameSynthesis(t *testing.T) {
	doc := &tg.Document{MimeType: "video/mp4", Size: 5000, Attributes: []tg.DocumentAttributeClass{
		&tg.DocumentAttributeVideo{Duration: 10},
	}}
	rec := ClassifyMessage(testHandle(), docMessage(321, doc), classifyAt)
	if rec == nil {
		t.Fatal("ожидалась запись")
	}
	if rec.File.Name != "video_321.mp4" {
		t.Errorf("Name = %q, ожидалось video_321.mp4", rec.File.Name)
	}
	if rec.File.Extension != "mp4" {
		t.Errorf("Extension = %q", rec.File.Extension)
	}
}

// TestClassify_DeclaredFilenamePreferred проверяет приоритет заявленного имени.
func TestClassify_DeclaredFilenamePreferred(t *testing.T) {
	doc := &tg.Document{MimeType: "application/zip", Attributes: []tg.DocumentAttributeClass{
		&tg.DocumentAttributeFilename{FileName: "Archive.ZIP"},
	}}
	rec := ClassifyMessage(testHandle(), docMessage(1, doc), classifyAt)
	if rec.File.Name != "Archive.ZIP" {
		t.Errorf("Name = %q", rec.File.Name)
	}
	if rec.File.Extension != "zip" {
		t.Errorf("Extension = %q, расширение должно быть нормализовано", rec.File.Extension)
	}
}

// TestClassify_Photo проверяет синтез имени и выбор крупнейшего варианта.
func TestClassify_Photo(t *testing.T) {
	msg := &tg.Message{
		ID:   555,
		Date: int(classifyAt.Unix()),
		Media: &tg.MessageMediaPhoto{Photo: &tg.Photo{
			ID:         888,
			AccessHash: 999,
			Sizes: []tg.PhotoSizeClass{
				&tg.PhotoSize{Type: "s", Size: 1000, W: 90, H: 60},
				&tg.PhotoSize{Type: "y", Size: 250000, W: 1280, H: 853},
				&tg.PhotoSize{Type: "m", Size: 40000, W: 320, H: 213},
			},
		}},
	}
	rec := ClassifyMessage(testHandle(), msg, classifyAt)
	if rec == nil {
		t.Fatal("ожидалась запись")
	}
	if rec.File.Name != "photo_555.jpg" {
		t.Errorf("Name = %q", rec.File.Name)
	}
	if rec.File.SizeBytes != 250000 {
		t.Errorf("SizeBytes = %d, ожидался крупнейший вариант 250000", rec.File.SizeBytes)
	}
	if rec.File.Width == nil || *rec.File.Width != 1280 {
		t.Errorf("Width = %v", rec.File.Width)
	}
	if rec.File.ThumbnailID == nil {
		t.Error("у фото должен быть ThumbnailID")
	}

	ref, err := UnpackFileRef(rec.File.TelegramFileID)
	if err != nil {
		t.Fatalf("UnpackFileRef: %v", err)
	}
	if ref.Kind != "photo" || ref.ID != 888 || ref.ThumbType != "y" {
		t.Errorf("ref = %+v", ref)
	}
}

// TestClassify_SkipsNonMedia проверяет пропуск сообщений без файлов.
func TestClassify_SkipsNonMedia(t *testing.T) {
	handle := testHandle()
	if rec := ClassifyMessage(handle, &tg.Message{ID: 1, Message: "просто текст"}, classifyAt); rec != nil {
		t.Error("текстовое сообщение должно давать nil")
	}
	geo := &tg.Message{ID: 2, Media: &tg.MessageMediaGeo{}}
	if rec := ClassifyMessage(handle, geo, classifyAt); rec != nil {
		t.Error("геометка должна давать nil")
	}
}

// TestClassify_RecordFields проверяет заполнение полей записи.
func TestClassify_RecordFields(t *testing.T) {
	handle := testHandle()
	handle.Title = "Архив"
	msg := docMessage(777, &tg.Document{
		ID: 10, AccessHash: 20, MimeType: "application/pdf", Size: 4096,
		Attributes: []tg.DocumentAttributeClass{&tg.DocumentAttributeFilename{FileName: "a.pdf"}},
	})
	msg.Message = "описание файла"
	msg.FromID = &tg.PeerUser{UserID: 31337}
	msg.SetFwdFrom(tg.MessageFwdHeader{FromName: "Исходный канал"})

	rec := ClassifyMessage(handle, msg, classifyAt)
	if rec == nil {
		t.Fatal("ожидалась запись")
	}
	if rec.RecordID != model.NewRecordID(handle.ResolvedID, 777) {
		t.Error("RecordID должен быть детерминированным")
	}
	if rec.Channel.Title != "Архив" {
		t.Errorf("Channel.Title = %q", rec.Channel.Title)
	}
	if rec.Message.Caption == nil || *rec.Message.Caption != "описание файла" {
		t.Errorf("Caption = %v", rec.Message.Caption)
	}
	if rec.Message.SenderID == nil || *rec.Message.SenderID != 31337 {
		t.Errorf("SenderID = %v", rec.Message.SenderID)
	}
	if rec.Message.ForwardSrc == nil || *rec.Message.ForwardSrc != "Исходный канал" {
		t.Errorf("ForwardSrc = %v", rec.Message.ForwardSrc)
	}
	if !rec.IndexedAt.Equal(classifyAt) {
		t.Errorf("IndexedAt = %s", rec.IndexedAt)
	}
	ref, err := UnpackFileRef(rec.File.TelegramFileID)
	if err != nil {
		t.Fatalf("UnpackFileRef: %v", err)
	}
	if ref.Kind != "document" || ref.ID != 10 || ref.AccessHash != 20 {
		t.Errorf("ref = %+v", ref)
	}
}
