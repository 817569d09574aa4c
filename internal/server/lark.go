package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	"github.com/larksuite/oapi-sdk-go/v3/event/dispatcher"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	larkws "github.com/larksuite/oapi-sdk-go/v3/ws"
	"github.com/rs/zerolog"

	"github.com/ravenabot/ravena/internal/biz/domain"
	"github.com/ravenabot/ravena/internal/biz/repo"
)

const (
	dedupWindow     = 5 * time.Minute
	memberCacheTTL  = 10 * time.Minute
	receiveIDChat   = "chat_id"
	receiveIDOpenID = "open_id"
)

// Handler receives the normalized traffic of a session
type Handler interface {
	Route(ctx context.Context, s repo.Session, e *domain.Event, origin domain.Origin)
	HandleReaction(ctx context.Context, s repo.Session, target *domain.Event, origin domain.Origin, emoji, reactorID string)
	HandleGroupJoin(ctx context.Context, s repo.Session, ev *domain.MembershipEvent)
	HandleGroupLeave(ctx context.Context, s repo.Session, ev *domain.MembershipEvent)
}

// LarkConfig identifies one Lark app acting as a bot session
type LarkConfig struct {
	AppID     string
	AppSecret string
}

type memberCache struct {
	names   map[string]string
	fetched time.Time
}

// LarkSession is a bot session connected to Lark over the event WebSocket
type LarkSession struct {
	info   domain.SessionInfo
	config LarkConfig
	api    *lark.Client
	log    zerolog.Logger

	handler Handler
	outer   repo.Session // what handlers receive; may wrap this session

	mu           sync.Mutex
	connected    bool
	lastReceived time.Time
	cancel       context.CancelFunc
	pinTimers    map[string]*time.Timer

	// Message deduplication; Lark redelivers events that were not acked in time
	seenMu sync.Mutex
	seen   map[string]time.Time

	membersMu sync.Mutex
	members   map[string]*memberCache
}

var _ repo.Session = (*LarkSession)(nil)

// NewLarkSession creates a session. PhoneNumber in info is the bot's open id;
// when empty it is fetched on Start.
func NewLarkSession(info domain.SessionInfo, config LarkConfig, log zerolog.Logger) *LarkSession {
	s := &LarkSession{
		info:      info,
		config:    config,
		log:       log.With().Str("session", info.ID).Logger(),
		pinTimers: make(map[string]*time.Timer),
		seen:      make(map[string]time.Time),
		members:   make(map[string]*memberCache),
	}
	s.api = lark.NewClient(config.AppID, config.AppSecret,
		lark.WithLogger(larkLogger{log: s.log}),
		lark.WithLogLevel(larkcore.LogLevelInfo),
	)
	s.outer = s
	return s
}

// Bind sets the handler and the session value handlers receive
func (s *LarkSession) Bind(h Handler, as repo.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = h
	if as != nil {
		s.outer = as
	}
}

func (s *LarkSession) Info() domain.SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info
}

// SetPeers records the ids of sibling bots
func (s *LarkSession) SetPeers(peers []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	own := s.info.Identities()
	s.info.IgnoredPeerNumbers = nil
	for _, p := range peers {
		if !slices.Contains(own, p) {
			s.info.IgnoredPeerNumbers = append(s.info.IgnoredPeerNumbers, p)
		}
	}
}

func (s *LarkSession) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *LarkSession) LastMessageReceivedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastReceived
}

// Start resolves the bot identity and opens the event connection
func (s *LarkSession) Start(ctx context.Context) error {
	if s.Info().PhoneNumber == "" {
		id, err := s.fetchBotOpenID(ctx)
		if err != nil {
			return fmt.Errorf("failed to fetch bot open_id: %w", err)
		}
		s.mu.Lock()
		s.info.PhoneNumber = id
		s.mu.Unlock()
	}
	s.connect(ctx)
	return nil
}

// connect opens a fresh WebSocket client. The SDK client has no close call,
// so a replaced connection may still deliver events until the process exits;
// the dedup cache absorbs those.
func (s *LarkSession) connect(ctx context.Context) {
	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	events := dispatcher.NewEventDispatcher("", "").
		OnP2MessageReceiveV1(func(_ context.Context, event *larkim.P2MessageReceiveV1) error {
			// return quickly so the SDK can ack
			go s.onMessage(ctx, event)
			return nil
		}).
		OnP2MessageReactionCreatedV1(func(_ context.Context, event *larkim.P2MessageReactionCreatedV1) error {
			go s.onReaction(ctx, event)
			return nil
		}).
		OnP2ChatMemberUserAddedV1(func(_ context.Context, event *larkim.P2ChatMemberUserAddedV1) error {
			go s.onUsersAdded(ctx, event)
			return nil
		}).
		OnP2ChatMemberUserDeletedV1(func(_ context.Context, event *larkim.P2ChatMemberUserDeletedV1) error {
			go s.onUsersDeleted(ctx, event)
			return nil
		}).
		OnP2ChatMemberBotAddedV1(func(_ context.Context, event *larkim.P2ChatMemberBotAddedV1) error {
			go s.onBotAdded(ctx, event)
			return nil
		}).
		OnP2ChatMemberBotDeletedV1(func(_ context.Context, event *larkim.P2ChatMemberBotDeletedV1) error {
			go s.onBotDeleted(ctx, event)
			return nil
		})

	ws := larkws.NewClient(s.config.AppID, s.config.AppSecret,
		larkws.WithEventHandler(events),
		larkws.WithLogger(larkLogger{log: s.log}),
		larkws.WithLogLevel(larkcore.LogLevelInfo),
	)

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.cancel = cancel
	s.connected = true
	s.mu.Unlock()

	go func() {
		s.log.Info().Msg("Starting Lark WebSocket connection")
		if err := ws.Start(ctx); err != nil {
			s.log.Error().Err(err).Msg("Lark WebSocket stopped")
			s.mu.Lock()
			s.connected = false
			s.mu.Unlock()
		}
	}()
}

// Restart replaces the event connection
func (s *LarkSession) Restart(ctx context.Context, reason string) error {
	s.log.Warn().Str("reason", reason).Msg("Restarting Lark session")
	s.connect(ctx)
	return nil
}

// Shutdown stops delivering events and cancels pending unpins
func (s *LarkSession) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	for id, t := range s.pinTimers {
		t.Stop()
		delete(s.pinTimers, id)
	}
	s.connected = false
	s.handler = nil
	return nil
}

func (s *LarkSession) fetchBotOpenID(ctx context.Context) (string, error) {
	resp, err := s.api.Get(ctx, "/open-apis/bot/v3/info", nil, larkcore.AccessTokenTypeTenant)
	if err != nil {
		return "", err
	}
	var result struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
		Bot  struct {
			OpenID  string `json:"open_id"`
			AppName string `json:"app_name"`
		} `json:"bot"`
	}
	if err := json.Unmarshal(resp.RawBody, &result); err != nil {
		return "", fmt.Errorf("failed to decode bot info: %w", err)
	}
	if result.Code != 0 {
		return "", fmt.Errorf("bot info error: %s", result.Msg)
	}
	s.log.Info().Str("open_id", result.Bot.OpenID).Str("name", result.Bot.AppName).Msg("Resolved bot identity")
	return result.Bot.OpenID, nil
}

func (s *LarkSession) markSeen(key string, now time.Time) bool {
	s.seenMu.Lock()
	defer s.seenMu.Unlock()
	if _, ok := s.seen[key]; ok {
		return false
	}
	s.seen[key] = now
	cutoff := now.Add(-dedupWindow)
	for id, ts := range s.seen {
		if ts.Before(cutoff) {
			delete(s.seen, id)
		}
	}
	return true
}

func (s *LarkSession) touch(now time.Time) {
	s.mu.Lock()
	s.lastReceived = now
	s.mu.Unlock()
}

func (s *LarkSession) currentHandler() (Handler, repo.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handler, s.outer
}

func (s *LarkSession) onMessage(ctx context.Context, event *larkim.P2MessageReceiveV1) {
	h, outer := s.currentHandler()
	if h == nil {
		return
	}
	msg, ok := parseReceive(event, s.Info().PhoneNumber)
	if !ok || !s.markSeen(msg.event.ID, time.Now()) {
		return
	}
	s.touch(time.Now())
	if msg.event.IsGroup() {
		msg.event.AuthorName = s.memberName(ctx, msg.event.ConversationID, msg.event.AuthorID)
	}
	h.Route(ctx, outer, msg.event, s.origin(msg))
}

func (s *LarkSession) onReaction(ctx context.Context, event *larkim.P2MessageReactionCreatedV1) {
	h, outer := s.currentHandler()
	if h == nil || event.Event == nil {
		return
	}
	ev := event.Event
	if ev.OperatorType != nil && *ev.OperatorType == "app" {
		return
	}
	msgID, emojiType, reactor := deref(ev.MessageId), "", ""
	if ev.ReactionType != nil {
		emojiType = deref(ev.ReactionType.EmojiType)
	}
	if ev.UserId != nil {
		reactor = deref(ev.UserId.OpenId)
	}
	if msgID == "" || !s.markSeen("reaction:"+msgID+":"+reactor+":"+emojiType, time.Now()) {
		return
	}

	target, err := s.fetchMessage(ctx, msgID)
	if err != nil {
		s.log.Warn().Err(err).Str("message_id", msgID).Msg("Failed to load reacted message")
		return
	}
	h.HandleReaction(ctx, outer, target.event, s.origin(target), unicodeFor(emojiType), reactor)
}

func (s *LarkSession) onUsersAdded(ctx context.Context, event *larkim.P2ChatMemberUserAddedV1) {
	h, outer := s.currentHandler()
	if h == nil || event.Event == nil {
		return
	}
	ev := event.Event
	s.invalidateMembers(deref(ev.ChatId))
	h.HandleGroupJoin(ctx, outer, &domain.MembershipEvent{
		ChatID:   deref(ev.ChatId),
		ChatName: deref(ev.Name),
		ActorID:  openID(ev.OperatorId),
		Members:  chatMembers(ev.Users),
	})
}

func (s *LarkSession) onUsersDeleted(ctx context.Context, event *larkim.P2ChatMemberUserDeletedV1) {
	h, outer := s.currentHandler()
	if h == nil || event.Event == nil {
		return
	}
	ev := event.Event
	s.invalidateMembers(deref(ev.ChatId))
	h.HandleGroupLeave(ctx, outer, &domain.MembershipEvent{
		ChatID:   deref(ev.ChatId),
		ChatName: deref(ev.Name),
		ActorID:  openID(ev.OperatorId),
		Members:  chatMembers(ev.Users),
	})
}

func (s *LarkSession) onBotAdded(ctx context.Context, event *larkim.P2ChatMemberBotAddedV1) {
	h, outer := s.currentHandler()
	if h == nil || event.Event == nil {
		return
	}
	ev := event.Event
	h.HandleGroupJoin(ctx, outer, &domain.MembershipEvent{
		ChatID:   deref(ev.ChatId),
		ChatName: deref(ev.Name),
		ActorID:  openID(ev.OperatorId),
		Members:  []domain.Participant{{ID: s.Info().PhoneNumber}},
	})
}

func (s *LarkSession) onBotDeleted(ctx context.Context, event *larkim.P2ChatMemberBotDeletedV1) {
	h, outer := s.currentHandler()
	if h == nil || event.Event == nil {
		return
	}
	ev := event.Event
	h.HandleGroupLeave(ctx, outer, &domain.MembershipEvent{
		ChatID:   deref(ev.ChatId),
		ChatName: deref(ev.Name),
		ActorID:  openID(ev.OperatorId),
		Members:  []domain.Participant{{ID: s.Info().PhoneNumber}},
	})
}

// SendMessage sends text or media; a quoted message id turns it into a reply
func (s *LarkSession) SendMessage(ctx context.Context, to string, content domain.Content, opts domain.SendOptions) (string, error) {
	if content.Media != nil {
		msgType, body, err := s.uploadMedia(ctx, content.Media, opts)
		if err != nil {
			return "", err
		}
		id, err := s.deliver(ctx, to, msgType, body, opts.QuotedMessageID)
		if err != nil || opts.Caption == "" {
			return id, err
		}
		if _, err := s.deliver(ctx, to, larkim.MsgTypeText, textBody(opts.Caption, nil), ""); err != nil {
			s.log.Warn().Err(err).Str("chat_id", to).Msg("Failed to send caption")
		}
		return id, nil
	}
	text := content.Text
	if text == "" {
		text = opts.Caption
	}
	return s.deliver(ctx, to, larkim.MsgTypeText, textBody(text, opts.Mentions), opts.QuotedMessageID)
}

func (s *LarkSession) deliver(ctx context.Context, to, msgType, body, quotedID string) (string, error) {
	if quotedID != "" {
		req := larkim.NewReplyMessageReqBuilder().
			MessageId(quotedID).
			Body(larkim.NewReplyMessageReqBodyBuilder().
				MsgType(msgType).
				Content(body).
				Build()).
			Build()
		resp, err := s.api.Im.Message.Reply(ctx, req)
		if err != nil {
			return "", fmt.Errorf("failed to reply: %w", err)
		}
		if !resp.Success() {
			return "", fmt.Errorf("reply error: %s", resp.Msg)
		}
		return deref(resp.Data.MessageId), nil
	}

	req := larkim.NewCreateMessageReqBuilder().
		ReceiveIdType(receiveIDType(to)).
		Body(larkim.NewCreateMessageReqBodyBuilder().
			ReceiveId(to).
			MsgType(msgType).
			Content(body).
			Build()).
		Build()
	resp, err := s.api.Im.Message.Create(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to send message: %w", err)
	}
	if !resp.Success() {
		return "", fmt.Errorf("send message error: %s", resp.Msg)
	}
	return deref(resp.Data.MessageId), nil
}

// uploadMedia uploads the payload and returns the message type and content to send
func (s *LarkSession) uploadMedia(ctx context.Context, m *domain.Media, opts domain.SendOptions) (string, string, error) {
	mime := m.MimeType
	if mime == "" {
		mime = http.DetectContentType(m.Data)
	}

	// stickers cannot be uploaded, they go out as images
	if strings.HasPrefix(mime, "image/") || opts.AsSticker {
		req := larkim.NewCreateImageReqBuilder().
			Body(larkim.NewCreateImageReqBodyBuilder().
				ImageType("message").
				Image(bytes.NewReader(m.Data)).
				Build()).
			Build()
		resp, err := s.api.Im.Image.Create(ctx, req)
		if err != nil {
			return "", "", fmt.Errorf("failed to upload image: %w", err)
		}
		if !resp.Success() {
			return "", "", fmt.Errorf("upload image error: %s", resp.Msg)
		}
		body, _ := json.Marshal(map[string]string{"image_key": deref(resp.Data.ImageKey)})
		return larkim.MsgTypeImage, string(body), nil
	}

	fileType, msgType := "stream", larkim.MsgTypeFile
	switch {
	case opts.AsVoice || strings.HasPrefix(mime, "audio/"):
		fileType, msgType = "opus", larkim.MsgTypeAudio
	case strings.HasPrefix(mime, "video/"):
		fileType, msgType = "mp4", larkim.MsgTypeMedia
	}
	name := m.Filename
	if name == "" {
		name = "arquivo"
	}
	req := larkim.NewCreateFileReqBuilder().
		Body(larkim.NewCreateFileReqBodyBuilder().
			FileType(fileType).
			FileName(name).
			File(bytes.NewReader(m.Data)).
			Build()).
		Build()
	resp, err := s.api.Im.File.Create(ctx, req)
	if err != nil {
		return "", "", fmt.Errorf("failed to upload file: %w", err)
	}
	if !resp.Success() {
		return "", "", fmt.Errorf("upload file error: %s", resp.Msg)
	}
	body, _ := json.Marshal(map[string]string{"file_key": deref(resp.Data.FileKey)})
	return msgType, string(body), nil
}

// Pin pins a message; a positive duration schedules the unpin
func (s *LarkSession) Pin(ctx context.Context, chatID, msgID string, d time.Duration) error {
	req := larkim.NewCreatePinReqBuilder().
		Body(larkim.NewCreatePinReqBodyBuilder().MessageId(msgID).Build()).
		Build()
	resp, err := s.api.Im.Pin.Create(ctx, req)
	if err != nil {
		return fmt.Errorf("failed to pin message: %w", err)
	}
	if !resp.Success() {
		return fmt.Errorf("pin message error: %s", resp.Msg)
	}
	if d <= 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.pinTimers[msgID]; ok {
		t.Stop()
	}
	s.pinTimers[msgID] = time.AfterFunc(d, func() {
		s.mu.Lock()
		delete(s.pinTimers, msgID)
		s.mu.Unlock()
		if err := s.unpin(context.Background(), msgID); err != nil {
			s.log.Warn().Err(err).Str("message_id", msgID).Msg("Failed to unpin message")
		}
	})
	return nil
}

func (s *LarkSession) unpin(ctx context.Context, msgID string) error {
	resp, err := s.api.Im.Pin.Delete(ctx, larkim.NewDeletePinReqBuilder().MessageId(msgID).Build())
	if err != nil {
		return err
	}
	if !resp.Success() {
		return fmt.Errorf("unpin message error: %s", resp.Msg)
	}
	return nil
}

func (s *LarkSession) fetchMessage(ctx context.Context, msgID string) (*larkMessage, error) {
	resp, err := s.api.Im.Message.Get(ctx, larkim.NewGetMessageReqBuilder().MessageId(msgID).Build())
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	if !resp.Success() {
		return nil, fmt.Errorf("get message error: %s", resp.Msg)
	}
	if resp.Data == nil || len(resp.Data.Items) == 0 {
		return nil, fmt.Errorf("message %s not found", msgID)
	}
	return parseStored(resp.Data.Items[0]), nil
}

func (s *LarkSession) chatInfo(ctx context.Context, chatID string) (*domain.Chat, error) {
	resp, err := s.api.Im.Chat.Get(ctx, larkim.NewGetChatReqBuilder().ChatId(chatID).Build())
	if err != nil {
		return nil, fmt.Errorf("failed to get chat info: %w", err)
	}
	if !resp.Success() {
		return nil, fmt.Errorf("get chat info error: %s", resp.Msg)
	}
	chat := &domain.Chat{
		ID:          chatID,
		Name:        deref(resp.Data.Name),
		Description: deref(resp.Data.Description),
		IsGroup:     domain.IsGroupChatID(chatID),
	}
	owner := deref(resp.Data.OwnerId)

	members, err := s.chatMembers(ctx, chatID)
	if err != nil {
		return nil, err
	}
	for id, name := range members {
		chat.Participants = append(chat.Participants, domain.Participant{ID: id, Name: name, IsAdmin: id == owner})
	}
	return chat, nil
}

// chatMembers lists every member with pagination, keyed by open id
func (s *LarkSession) chatMembers(ctx context.Context, chatID string) (map[string]string, error) {
	members := make(map[string]string)
	pageToken := ""
	for {
		b := larkim.NewGetChatMembersReqBuilder().
			MemberIdType("open_id").
			ChatId(chatID).
			PageSize(100)
		if pageToken != "" {
			b = b.PageToken(pageToken)
		}
		resp, err := s.api.Im.ChatMembers.Get(ctx, b.Build())
		if err != nil {
			return nil, fmt.Errorf("failed to get chat members: %w", err)
		}
		if !resp.Success() {
			return nil, fmt.Errorf("get chat members error: %s", resp.Msg)
		}
		for _, item := range resp.Data.Items {
			members[deref(item.MemberId)] = deref(item.Name)
		}
		if resp.Data.PageToken == nil || *resp.Data.PageToken == "" {
			break
		}
		pageToken = *resp.Data.PageToken
	}

	s.membersMu.Lock()
	s.members[chatID] = &memberCache{names: members, fetched: time.Now()}
	s.membersMu.Unlock()
	return members, nil
}

// memberName resolves a display name from the cached member list
func (s *LarkSession) memberName(ctx context.Context, chatID, id string) string {
	s.membersMu.Lock()
	c, ok := s.members[chatID]
	s.membersMu.Unlock()
	if ok && time.Since(c.fetched) < memberCacheTTL {
		if name, found := c.names[id]; found {
			return name
		}
	}
	members, err := s.chatMembers(ctx, chatID)
	if err != nil {
		s.log.Debug().Err(err).Str("chat_id", chatID).Msg("Failed to resolve member names")
		return ""
	}
	return members[id]
}

func (s *LarkSession) invalidateMembers(chatID string) {
	s.membersMu.Lock()
	delete(s.members, chatID)
	s.membersMu.Unlock()
}

func (s *LarkSession) origin(m *larkMessage) *larkOrigin {
	return &larkOrigin{session: s, msg: m}
}

// larkMessage is a parsed Lark message plus the keys needed to act on it
type larkMessage struct {
	event    *domain.Event
	chatID   string
	parentID string
	resource string // image_key or file_key
}

// parseReceive maps a receive event. Messages sent by this bot are dropped.
func parseReceive(event *larkim.P2MessageReceiveV1, self string) (*larkMessage, bool) {
	if event == nil || event.Event == nil || event.Event.Message == nil {
		return nil, false
	}
	raw := event.Event.Message
	sender := ""
	if event.Event.Sender != nil && event.Event.Sender.SenderId != nil {
		sender = deref(event.Event.Sender.SenderId.OpenId)
	}
	if sender == "" || sender == self {
		return nil, false
	}

	mentions := make(map[string]string)
	for _, m := range raw.Mentions {
		if m.Key != nil {
			mentions[*m.Key] = "@" + mentionTarget(m.Id, deref(m.Name))
		}
	}

	m := &larkMessage{
		chatID:   deref(raw.ChatId),
		parentID: deref(raw.ParentId),
		event: &domain.Event{
			ID:        deref(raw.MessageId),
			AuthorID:  sender,
			Timestamp: parseMillis(deref(raw.CreateTime)),
		},
	}
	if deref(raw.ChatType) != "p2p" {
		m.event.ConversationID = m.chatID
	}
	if m.event.ID == "" {
		return nil, false
	}
	fillContent(m, deref(raw.MessageType), deref(raw.Content), mentions)
	return m, true
}

// parseStored maps a message fetched through the API
func parseStored(item *larkim.Message) *larkMessage {
	m := &larkMessage{
		chatID:   deref(item.ChatId),
		parentID: deref(item.ParentId),
		event: &domain.Event{
			ID:        deref(item.MessageId),
			Timestamp: parseMillis(deref(item.CreateTime)),
		},
	}
	if item.Sender != nil {
		m.event.AuthorID = deref(item.Sender.Id)
	}
	if domain.IsGroupChatID(m.chatID) {
		m.event.ConversationID = m.chatID
	}
	mentions := make(map[string]string)
	for _, mention := range item.Mentions {
		if mention.Key != nil {
			mentions[*mention.Key] = "@" + deref(mention.Name)
		}
	}
	content := ""
	if item.Body != nil {
		content = deref(item.Body.Content)
	}
	fillContent(m, deref(item.MsgType), content, mentions)
	return m
}

// mentionTarget prefers the open id so mention detection can match it
func mentionTarget(id *larkim.UserId, name string) string {
	if id != nil && id.OpenId != nil && *id.OpenId != "" {
		return *id.OpenId
	}
	return name
}

func fillContent(m *larkMessage, msgType, content string, mentions map[string]string) {
	var body struct {
		Text     string `json:"text"`
		ImageKey string `json:"image_key"`
		FileKey  string `json:"file_key"`
	}
	_ = json.Unmarshal([]byte(content), &body)

	e := m.event
	switch msgType {
	case "text":
		e.Type = domain.MessageTypeText
		e.Text = replaceMentions(body.Text, mentions)
	case "post":
		e.Type = domain.MessageTypeText
		text, image := parsePost(content, mentions)
		e.Text = text
		if image != "" {
			e.Type = domain.MessageTypeImage
			e.HasMedia = true
			m.resource = image
		}
	case "image":
		e.Type = domain.MessageTypeImage
		e.HasMedia = body.ImageKey != ""
		m.resource = body.ImageKey
	case "media":
		e.Type = domain.MessageTypeVideo
		e.HasMedia = body.FileKey != ""
		m.resource = body.FileKey
	case "audio":
		e.Type = domain.MessageTypeVoice
		e.HasMedia = body.FileKey != ""
		m.resource = body.FileKey
	case "sticker":
		e.Type = domain.MessageTypeSticker
		e.HasMedia = body.FileKey != ""
		m.resource = body.FileKey
	case "file":
		e.Type = domain.MessageTypeOther
		e.HasMedia = body.FileKey != ""
		m.resource = body.FileKey
	default:
		e.Type = domain.MessageTypeOther
	}
}

// parsePost flattens a rich text message and returns its first image key
func parsePost(content string, mentions map[string]string) (string, string) {
	var parsed struct {
		Title   string `json:"title"`
		Content [][]struct {
			Tag      string `json:"tag"`
			Text     string `json:"text,omitempty"`
			ImageKey string `json:"image_key,omitempty"`
			UserID   string `json:"user_id,omitempty"`
		} `json:"content"`
	}
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return "", ""
	}

	var lines []string
	image := ""
	if parsed.Title != "" {
		lines = append(lines, parsed.Title)
	}
	for _, row := range parsed.Content {
		var parts []string
		for _, elem := range row {
			switch elem.Tag {
			case "text", "a":
				parts = append(parts, elem.Text)
			case "at":
				if name, ok := mentions[elem.UserID]; ok {
					parts = append(parts, name)
				} else if elem.UserID != "" {
					parts = append(parts, "@"+elem.UserID)
				}
			case "img":
				if image == "" {
					image = elem.ImageKey
				}
			}
		}
		if len(parts) > 0 {
			lines = append(lines, strings.Join(parts, ""))
		}
	}
	return replaceMentions(strings.Join(lines, "\n"), mentions), image
}

// replaceMentions replaces placeholders such as @_user_1 with the mention target
func replaceMentions(text string, mentions map[string]string) string {
	for key, target := range mentions {
		text = strings.ReplaceAll(text, key, target)
	}
	return text
}

func textBody(text string, mentions []string) string {
	var b strings.Builder
	for _, id := range mentions {
		fmt.Fprintf(&b, "<at user_id=\"%s\"></at> ", id)
	}
	b.WriteString(text)
	body, _ := json.Marshal(map[string]string{"text": b.String()})
	return string(body)
}

func receiveIDType(to string) string {
	if strings.HasPrefix(to, "ou_") {
		return receiveIDOpenID
	}
	return receiveIDChat
}

func chatMembers(users []*larkim.ChatMemberUser) []domain.Participant {
	out := make([]domain.Participant, 0, len(users))
	for _, u := range users {
		if id := openID(u.UserId); id != "" {
			out = append(out, domain.Participant{ID: id, Name: deref(u.Name)})
		}
	}
	return out
}

func openID(id *larkim.UserId) string {
	if id == nil {
		return ""
	}
	return deref(id.OpenId)
}

func parseMillis(v string) time.Time {
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil || ms <= 0 {
		return time.Now()
	}
	return time.UnixMilli(ms)
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// larkOrigin is the capability handle of one Lark message
type larkOrigin struct {
	session *LarkSession
	msg     *larkMessage
}

func (o *larkOrigin) Chat(ctx context.Context) (*domain.Chat, error) {
	if !o.msg.event.IsGroup() {
		return &domain.Chat{ID: o.msg.event.ChatID()}, nil
	}
	return o.session.chatInfo(ctx, o.msg.chatID)
}

func (o *larkOrigin) Contact(ctx context.Context) (*domain.Contact, error) {
	c := &domain.Contact{ID: o.msg.event.AuthorID, Name: o.msg.event.AuthorName}
	if c.Name == "" && o.msg.event.IsGroup() {
		c.Name = o.session.memberName(ctx, o.msg.chatID, c.ID)
	}
	return c, nil
}

func (o *larkOrigin) QuotedMessage(ctx context.Context) (*domain.QuotedMessage, error) {
	if o.msg.parentID == "" {
		return nil, nil
	}
	parent, err := o.session.fetchMessage(ctx, o.msg.parentID)
	if err != nil {
		return nil, err
	}
	return &domain.QuotedMessage{
		ID:       parent.event.ID,
		AuthorID: parent.event.AuthorID,
		Type:     parent.event.Type,
		Text:     parent.event.Text,
		HasMedia: parent.event.HasMedia,
		Origin:   o.session.origin(parent),
	}, nil
}

func (o *larkOrigin) React(ctx context.Context, emoji string) error {
	req := larkim.NewCreateMessageReactionReqBuilder().
		MessageId(o.msg.event.ID).
		Body(larkim.NewCreateMessageReactionReqBodyBuilder().
			ReactionType(larkim.NewEmojiBuilder().EmojiType(emojiTypeFor(emoji)).Build()).
			Build()).
		Build()
	resp, err := o.session.api.Im.MessageReaction.Create(ctx, req)
	if err != nil {
		return fmt.Errorf("failed to add reaction: %w", err)
	}
	if !resp.Success() {
		return fmt.Errorf("add reaction error: %s", resp.Msg)
	}
	return nil
}

// Delete recalls the message; Lark recalls are always visible to everyone
func (o *larkOrigin) Delete(ctx context.Context, forEveryone bool) error {
	resp, err := o.session.api.Im.Message.Delete(ctx, larkim.NewDeleteMessageReqBuilder().MessageId(o.msg.event.ID).Build())
	if err != nil {
		return fmt.Errorf("failed to recall message: %w", err)
	}
	if !resp.Success() {
		return fmt.Errorf("recall message error: %s", resp.Msg)
	}
	return nil
}

func (o *larkOrigin) DownloadMedia(ctx context.Context) (*domain.Media, error) {
	if o.msg.resource == "" {
		return nil, fmt.Errorf("message %s has no media", o.msg.event.ID)
	}
	kind := "file"
	if o.msg.event.Type == domain.MessageTypeImage {
		kind = "image"
	}
	req := larkim.NewGetMessageResourceReqBuilder().
		MessageId(o.msg.event.ID).
		FileKey(o.msg.resource).
		Type(kind).
		Build()
	resp, err := o.session.api.Im.MessageResource.Get(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to download media: %w", err)
	}
	if !resp.Success() {
		return nil, fmt.Errorf("download media error: %s", resp.Msg)
	}
	data, err := io.ReadAll(resp.File)
	if err != nil {
		return nil, fmt.Errorf("failed to read media: %w", err)
	}
	return &domain.Media{
		MimeType: http.DetectContentType(data),
		Filename: resp.FileName,
		Data:     data,
	}, nil
}

// Lark reactions use named emoji types rather than unicode
var emojiTypes = map[string]string{
	"⏳": "OnIt",
	"✅": "DONE",
	"❌": "CrossMark",
	"👀": "GLANCE",
	"🤔": "THINKING",
	"🏓": "JIAYI",
	"🤖": "ROBOT",
	"🖼": "Photo",
	"👍": "THUMBSUP",
	"❤️": "HEART",
	"😂": "LAUGH",
}

func emojiTypeFor(emoji string) string {
	if t, ok := emojiTypes[emoji]; ok {
		return t
	}
	return "OK"
}

func unicodeFor(emojiType string) string {
	for u, t := range emojiTypes {
		if t == emojiType {
			return u
		}
	}
	return emojiType
}

// larkLogger routes SDK logs into zerolog
type larkLogger struct {
	log zerolog.Logger
}

func (l larkLogger) Debug(_ context.Context, args ...interface{}) {
	l.log.Debug().Str("source", "lark").Msg(fmt.Sprint(args...))
}

func (l larkLogger) Info(_ context.Context, args ...interface{}) {
	l.log.Info().Str("source", "lark").Msg(fmt.Sprint(args...))
}

func (l larkLogger) Warn(_ context.Context, args ...interface{}) {
	l.log.Warn().Str("source", "lark").Msg(fmt.Sprint(args...))
}

func (l larkLogger) Error(_ context.Context, args ...interface{}) {
	l.log.Error().Str("source", "lark").Msg(fmt.Sprint(args...))
}
