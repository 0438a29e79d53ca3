package telegram

import (
	"testing"

	"github.com/gotd/td/tg"

	"github.com/quangminh1212/TeleDrive-sub002/internal/domain/model"
)

// TestParseIdentifier проверяет разбор всех поддерживаемых форм.
func TestParseIdentifier(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want ParsedIdentifier
	}{
		{"инвайт с плюсом", "+AbCdEf123", ParsedIdentifier{Kind: IdentInvite, InviteHash: "AbCdEf123"}},
		{"инвайт joinchat", "https://t.me/joinchat/AbCdEf123", ParsedIdentifier{Kind: IdentInvite, InviteHash: "AbCdEf123"}},
		{"инвайт-ссылка с /+", "https://t.me/+AbCdEf123", ParsedIdentifier{Kind: IdentInvite, InviteHash: "AbCdEf123"}},
		{"username с собакой", "@durov", ParsedIdentifier{Kind: IdentUsername, Username: "durov"}},
		{"голый username", "telegram", ParsedIdentifier{Kind: IdentUsername, Username: "telegram"}},
		{"username-ссылка", "https://t.me/telegram", ParsedIdentifier{Kind: IdentUsername, Username: "telegram"}},
		{"числовой с -100", "-1001234567890", ParsedIdentifier{Kind: IdentNumeric, NumericID: -1001234567890}},
		{"числовой без префикса", "1234567890", ParsedIdentifier{Kind: IdentNumeric, NumericID: 1234567890}},
		{"saved messages", "me", ParsedIdentifier{Kind: IdentSelf}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseIdentifier(tc.in)
			if err != nil {
				t.Fatalf("ParseIdentifier(%q): %v", tc.in, err)
			}
			if got != tc.want {
				t.Errorf("ParseIdentifier(%q) = %+v, ожидалось %+v", tc.in, got, tc.want)
			}
		})
	}
}

// TestParseIdentifier_Unresolvable проверяет отказ на нераспознаваемых строках.
func TestParseIdentifier_Unresolvable(t *testing.T) {
	for _, in := range []string{"", "   ", "***", "a b c", "@ab", "https://example.org/x?y=1"} {
		_, err := ParseIdentifier(in)
		if err == nil {
			t.Errorf("ParseIdentifier(%q): ожидалась ошибка", in)
			continue
		}
		if !IsClass(err, ClassUnresolvable) {
			t.Errorf("ParseIdentifier(%q): класс ошибки %v, ожидался unresolvable_identifier", in, err)
		}
	}
}

// TestHandleFromChat проверяет вычисление вида канала и прав пользователя.
func TestHandleFromChat(t *testing.T) {
	r := &Resolver{}

	t.Run("публичный канал", func(t *testing.T) {
		h, err := r.handleFromChat(&tg.Channel{
			ID: 123, AccessHash: 456, Title: "Новости", Username: "news", Broadcast: true,
		}, "")
		if err != nil {
			t.Fatalf("handleFromChat: %v", err)
		}
		if h.Kind != model.KindPublic {
			t.Errorf("Kind = %s, ожидалось public", h.Kind)
		}
		if !h.CanReadHistory {
			t.Error("публичный канал должен быть читаемым")
		}
		if !h.CanDownloadMedia {
			t.Error("без noforwards скачивание должно быть доступно")
		}
	})

	t.Run("приватный канал, участник", func(t *testing.T) {
		h, err := r.handleFromChat(&tg.Channel{ID: 1, Title: "Приватный", Broadcast: true}, "hash")
		if err != nil {
			t.Fatalf("handleFromChat: %v", err)
		}
		if h.Kind != model.KindPrivate || !h.Joined || !h.CanReadHistory {
			t.Errorf("неожиданный handle: %+v", h)
		}
		if h.InviteHash != "hash" {
			t.Errorf("InviteHash = %q", h.InviteHash)
		}
	})

	t.Run("приватный канал, не участник", func(t *testing.T) {
		h, err := r.handleFromChat(&tg.Channel{ID: 1, Title: "Чужой", Left: true}, "")
		if err != nil {
			t.Fatalf("handleFromChat: %v", err)
		}
		if h.CanReadHistory {
			t.Error("чтение истории приватного канала без участия должно быть запрещено")
		}
	})

	t.Run("супергруппа", func(t *testing.T) {
		h, err := r.handleFromChat(&tg.Channel{ID: 1, Title: "Чат", Megagroup: true}, "")
		if err != nil {
			t.Fatalf("handleFromChat: %v", err)
		}
		if h.Kind != model.KindGroup {
			t.Errorf("Kind = %s, ожидалось group", h.Kind)
		}
	})

	t.Run("защита контента", func(t *testing.T) {
		h, err := r.handleFromChat(&tg.Channel{ID: 1, Title: "NF", Username: "nf", Noforwards: true}, "")
		if err != nil {
			t.Fatalf("handleFromChat: %v", err)
		}
		if h.CanDownloadMedia {
			t.Error("noforwards должен запрещать скачивание")
		}
	})

	t.Run("обычная группа", func(t *testing.T) {
		h, err := r.handleFromChat(&tg.Chat{ID: 77, Title: "Старая группа"}, "")
		if err != nil {
			t.Fatalf("handleFromChat: %v", err)
		}
		if !h.BasicGroup || h.Kind != model.KindGroup || !h.CanReadHistory {
			t.Errorf("неожиданный handle: %+v", h)
		}
	})

	t.Run("запрещённый канал", func(t *testing.T) {
		_, err := r.handleFromChat(&tg.ChannelForbidden{ID: 1, Title: "X"}, "")
		if !IsClass(err, ClassAccessDenied) {
			t.Errorf("ожидался access_denied, получено %v", err)
		}
	})
}

// TestInputPeer проверяет выбор peer по виду канала.
func TestInputPeer(t *testing.T) {
	if _, ok := InputPeer(&model.ChannelHandle{SavedMessages: true}).(*tg.InputPeerSelf); !ok {
		t.Error("для Saved Messages ожидался InputPeerSelf")
	}
	if _, ok := InputPeer(&model.ChannelHandle{BasicGroup: true, ResolvedID: 5}).(*tg.InputPeerChat); !ok {
		t.Error("для обычной группы ожидался InputPeerChat")
	}
	peer, ok := InputPeer(&model.ChannelHandle{ResolvedID: 5, AccessHash: 9}).(*tg.InputPeerChannel)
	if !ok {
		t.Fatal("для канала ожидался InputPeerChannel")
	}
	if peer.ChannelID != 5 || peer.AccessHash != 9 {
		t.Errorf("peer = %+v", peer)
	}
}
