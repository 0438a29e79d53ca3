package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/gotd/td/tg"

	"github.com/quangminh1212/TeleDrive-sub002/internal/domain/model"
)

// IdentifierKind — распознанный вид идентификатора канала.
type IdentifierKind string

const (
	IdentInvite   IdentifierKind = "invite"
	IdentUsername IdentifierKind = "username"
	IdentNumeric  IdentifierKind = "numeric"
	IdentSelf     IdentifierKind = "self"
)

// ParsedIdentifier — результат разбора строки идентификатора без обращения
// к серверу.
type ParsedIdentifier struct {
	Kind       IdentifierKind
	Username   string
	InviteHash string
	NumericID  int64
}

var usernameRe = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]{3,31}$`)

// ParseIdentifier разбирает свободную форму идентификатора канала:
// инвайт-ссылки (+hash, joinchat/, /+), @username и голые username,
// числовые идентификаторы (с префиксом -100 или без), "me" для
// Saved Messages. Нераспознанная строка — ошибка unresolvable_identifier.
func ParseIdentifier(raw string) (ParsedIdentifier, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ParsedIdentifier{}, newError(ClassUnresolvable, "", "пустой идентификатор канала", nil)
	}

	if s == "me" || s == "self" {
		return ParsedIdentifier{Kind: IdentSelf}, nil
	}

	// Инвайт: "+hash", ".../joinchat/hash", ".../+hash".
	if hash, ok := inviteHash(s); ok {
		if hash == "" {
			return ParsedIdentifier{}, newError(ClassUnresolvable, "",
				fmt.Sprintf("пустой инвайт-хеш в %q", raw), nil)
		}
		return ParsedIdentifier{Kind: IdentInvite, InviteHash: hash}, nil
	}

	// Числовой идентификатор, возможно с префиксом -100.
	if numericRe.MatchString(s) {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return ParsedIdentifier{}, newError(ClassUnresolvable, "",
				fmt.Sprintf("числовой идентификатор %q вне диапазона", raw), nil)
		}
		return ParsedIdentifier{Kind: IdentNumeric, NumericID: id}, nil
	}

	// Username: с @, голый или в виде ссылки t.me/<username>.
	u := s
	u = strings.TrimPrefix(u, "https://")
	u = strings.TrimPrefix(u, "http://")
	u = strings.TrimPrefix(u, "t.me/")
	u = strings.TrimPrefix(u, "telegram.me/")
	u = strings.TrimPrefix(u, "@")
	u = strings.TrimSuffix(u, "/")
	if usernameRe.MatchString(u) {
		return ParsedIdentifier{Kind: IdentUsername, Username: u}, nil
	}

	return ParsedIdentifier{}, newError(ClassUnresolvable, "",
		fmt.Sprintf("не удалось распознать идентификатор %q", raw), nil)
}

var numericRe = regexp.MustCompile(`^-?[0-9]+$`)

func inviteHash(s string) (string, bool) {
	switch {
	case strings.Contains(s, "joinchat/"):
		idx := strings.LastIndex(s, "joinchat/")
		return strings.TrimSuffix(s[idx+len("joinchat/"):], "/"), true
	case strings.Contains(s, "/+"):
		idx := strings.LastIndex(s, "/+")
		return strings.TrimSuffix(s[idx+2:], "/"), true
	case strings.HasPrefix(s, "+") && !numericRe.MatchString(s[1:]):
		return s[1:], true
	}
	return "", false
}

// Resolver превращает идентификатор канала в ChannelHandle с правами
// текущего пользователя.
type Resolver struct {
	api *tg.Client
	log *slog.Logger
}

// NewResolver создаёт резолвер поверх RPC-клиента.
func NewResolver(api *tg.Client, log *slog.Logger) *Resolver {
	return &Resolver{api: api, log: log}
}

// Resolve разрешает идентификатор и проверяет права доступа. Канал без
// права чтения истории — ошибка access_denied с именем недостающей
// возможности.
func (r *Resolver) Resolve(ctx context.Context, identifier string) (*model.ChannelHandle, error) {
	parsed, err := ParseIdentifier(identifier)
	if err != nil {
		return nil, err
	}

	var handle *model.ChannelHandle
	switch parsed.Kind {
	case IdentSelf:
		handle, err = r.resolveSelf(ctx)
	case IdentInvite:
		handle, err = r.resolveInvite(ctx, parsed.InviteHash)
	case IdentUsername:
		handle, err = r.resolveUsername(ctx, parsed.Username)
	case IdentNumeric:
		handle, err = r.resolveNumeric(ctx, parsed.NumericID)
	}
	if err != nil {
		return nil, err
	}

	handle.Identifier = identifier
	if !handle.CanReadHistory {
		return nil, newError(ClassAccessDenied, "",
			fmt.Sprintf("канал %q: нет права read_history", handle.Title), nil)
	}

	r.log.Info("канал разрешён",
		slog.String("identifier", identifier),
		slog.Int64("resolved_id", handle.ResolvedID),
		slog.String("kind", string(handle.Kind)),
		slog.String("title", handle.Title))
	return handle, nil
}

// resolveSelf возвращает псевдоканал Saved Messages текущего пользователя.
func (r *Resolver) resolveSelf(ctx context.Context) (*model.ChannelHandle, error) {
	users, err := r.api.UsersGetUsers(ctx, []tg.InputUserClass{&tg.InputUserSelf{}})
	if err != nil {
		return nil, Classify(fmt.Errorf("запрос собственного профиля: %w", err))
	}
	if len(users) == 0 {
		return nil, newError(ClassRPCFailed, "", "пустой ответ на запрос профиля", nil)
	}
	self, ok := users[0].(*tg.User)
	if !ok {
		return nil, newError(ClassRPCFailed, "", "неожиданный тип пользователя в ответе", nil)
	}
	return &model.ChannelHandle{
		Kind:             model.KindPrivate,
		ResolvedID:       self.ID,
		AccessHash:       self.AccessHash,
		Title:            "Saved Messages",
		Joined:           true,
		SavedMessages:    true,
		CanReadHistory:   true,
		CanDownloadMedia: true,
	}, nil
}

// resolveInvite проверяет инвайт и при необходимости вступает в канал.
// USER_ALREADY_PARTICIPANT при вступлении не считается ошибкой.
func (r *Resolver) resolveInvite(ctx context.Context, hash string) (*model.ChannelHandle, error) {
	invite, err := r.api.MessagesCheckChatInvite(ctx, hash)
	if err != nil {
		return nil, Classify(fmt.Errorf("проверка инвайта: %w", err))
	}

	switch inv := invite.(type) {
	case *tg.ChatInviteAlready:
		return r.handleFromChat(inv.Chat, hash)
	case *tg.ChatInvitePeek:
		return r.handleFromChat(inv.Chat, hash)
	case *tg.ChatInvite:
		// Ещё не участник: вступаем и берём канал из ответа.
		updates, err := r.api.MessagesImportChatInvite(ctx, hash)
		if err != nil {
			ce := Classify(err)
			if ce.Code == "USER_ALREADY_PARTICIPANT" {
				recheck, err := r.api.MessagesCheckChatInvite(ctx, hash)
				if err != nil {
					return nil, Classify(err)
				}
				if already, ok := recheck.(*tg.ChatInviteAlready); ok {
					return r.handleFromChat(already.Chat, hash)
				}
			}
			return nil, Classify(fmt.Errorf("вступление по инвайту: %w", err))
		}
		chat := firstChat(updates)
		if chat == nil {
			return nil, newError(ClassRPCFailed, "", "ответ на вступление не содержит канал", nil)
		}
		r.log.Info("выполнено вступление по инвайту", slog.String("title", inv.Title))
		return r.handleFromChat(chat, hash)
	default:
		return nil, newError(ClassRPCFailed, "",
			fmt.Sprintf("неожиданный тип ответа на инвайт: %T", invite), nil)
	}
}

func (r *Resolver) resolveUsername(ctx context.Context, username string) (*model.ChannelHandle, error) {
	resolved, err := r.api.ContactsResolveUsername(ctx, &tg.ContactsResolveUsernameRequest{
		Username: username,
	})
	if err != nil {
		return nil, Classify(fmt.Errorf("резолв username %q: %w", username, err))
	}
	for _, chat := range resolved.Chats {
		return r.handleFromChat(chat, "")
	}
	return nil, newError(ClassUnresolvable, "",
		fmt.Sprintf("@%s не является каналом или группой", username), nil)
}

// resolveNumeric разрешает числовой идентификатор. Префикс -100 — форма
// записи супергрупп и каналов в клиентских API, отрезается.
func (r *Resolver) resolveNumeric(ctx context.Context, id int64) (*model.ChannelHandle, error) {
	channelID := id
	if channelID < 0 {
		s := strconv.FormatInt(-channelID, 10)
		if strings.HasPrefix(s, "100") && len(s) > 3 {
			parsed, err := strconv.ParseInt(s[3:], 10, 64)
			if err != nil {
				return nil, newError(ClassUnresolvable, "",
					fmt.Sprintf("идентификатор %d вне диапазона", id), nil)
			}
			channelID = parsed
		} else {
			channelID = -channelID
		}
	}

	chats, err := r.api.ChannelsGetChannels(ctx, []tg.InputChannelClass{
		&tg.InputChannel{ChannelID: channelID},
	})
	if err != nil {
		return nil, Classify(fmt.Errorf("запрос канала %d: %w", id, err))
	}
	for _, chat := range chats.GetChats() {
		return r.handleFromChat(chat, "")
	}
	return nil, newError(ClassUnresolvable, "",
		fmt.Sprintf("канал %d не найден", id), nil)
}

// handleFromChat строит ChannelHandle из сущности сервера и вычисляет
// права текущего пользователя.
func (r *Resolver) handleFromChat(chat tg.ChatClass, inviteHash string) (*model.ChannelHandle, error) {
	switch c := chat.(type) {
	case *tg.Channel:
		h := &model.ChannelHandle{
			ResolvedID: c.ID,
			AccessHash: c.AccessHash,
			InviteHash: inviteHash,
			Title:      c.Title,
			Username:   c.Username,
			Joined:     !c.Left,
		}
		switch {
		case c.Megagroup:
			h.Kind = model.KindGroup
		case c.Username != "":
			h.Kind = model.KindPublic
		default:
			h.Kind = model.KindPrivate
		}
		// Чтение истории: участник либо публичный канал; бан на просмотр
		// сообщений отменяет и то и другое.
		h.CanReadHistory = h.Joined || c.Username != ""
		if banned, ok := c.GetBannedRights(); ok && banned.ViewMessages {
			h.CanReadHistory = false
		}
		h.CanDownloadMedia = !c.Noforwards
		return h, nil

	case *tg.Chat:
		deactivated := c.Deactivated
		return &model.ChannelHandle{
			Kind:             model.KindGroup,
			ResolvedID:       c.ID,
			InviteHash:       inviteHash,
			Title:            c.Title,
			Joined:           !c.Left,
			BasicGroup:       true,
			CanReadHistory:   !c.Left && !deactivated,
			CanDownloadMedia: !c.Noforwards,
		}, nil

	case *tg.ChannelForbidden:
		return nil, newError(ClassAccessDenied, "CHANNEL_PRIVATE",
			fmt.Sprintf("канал %q недоступен", c.Title), nil)

	case *tg.ChatForbidden:
		return nil, newError(ClassAccessDenied, "CHAT_FORBIDDEN",
			fmt.Sprintf("группа %q недоступна", c.Title), nil)

	default:
		return nil, newError(ClassUnresolvable, "",
			fmt.Sprintf("сущность %T не является каналом или группой", chat), nil)
	}
}

// firstChat извлекает первый канал или группу из ответа-апдейта.
func firstChat(updates tg.UpdatesClass) tg.ChatClass {
	var chats []tg.ChatClass
	switch u := updates.(type) {
	case *tg.Updates:
		chats = u.Chats
	case *tg.UpdatesCombined:
		chats = u.Chats
	}
	for _, c := range chats {
		switch c.(type) {
		case *tg.Channel, *tg.Chat:
			return c
		}
	}
	return nil
}

// InputPeer возвращает peer для RPC-запросов по разрешённому каналу.
func InputPeer(h *model.ChannelHandle) tg.InputPeerClass {
	switch {
	case h.SavedMessages:
		return &tg.InputPeerSelf{}
	case h.BasicGroup:
		return &tg.InputPeerChat{ChatID: h.ResolvedID}
	default:
		return &tg.InputPeerChannel{ChannelID: h.ResolvedID, AccessHash: h.AccessHash}
	}
}
