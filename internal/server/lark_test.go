package server

import (
	"encoding/json"
	"testing"
	"time"

	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ravenabot/ravena/internal/biz/domain"
)

const botOpenID = "ou_bot000001"

func strPtr(s string) *string { return &s }

func receiveEvent(chatType, msgType, content, sender string) *larkim.P2MessageReceiveV1 {
	return &larkim.P2MessageReceiveV1{
		Event: &larkim.P2MessageReceiveV1Data{
			Sender: &larkim.EventSender{
				SenderId:   &larkim.UserId{OpenId: strPtr(sender)},
				SenderType: strPtr("user"),
			},
			Message: &larkim.EventMessage{
				MessageId:   strPtr("om_1"),
				ChatId:      strPtr("oc_group1"),
				ChatType:    strPtr(chatType),
				MessageType: strPtr(msgType),
				Content:     strPtr(content),
				CreateTime:  strPtr("1700000000000"),
			},
		},
	}
}

func TestParseReceive_GroupText(t *testing.T) {
	ev := receiveEvent("group", "text", `{"text":"@_user_1 bom dia"}`, "ou_ana")
	ev.Event.Message.Mentions = []*larkim.MentionEvent{{
		Key:  strPtr("@_user_1"),
		Id:   &larkim.UserId{OpenId: strPtr(botOpenID)},
		Name: strPtr("ravena"),
	}}

	m, ok := parseReceive(ev, botOpenID)
	require.True(t, ok)
	assert.Equal(t, "om_1", m.event.ID)
	assert.Equal(t, "ou_ana", m.event.AuthorID)
	assert.Equal(t, "oc_group1", m.event.ConversationID)
	assert.True(t, m.event.IsGroup())
	assert.Equal(t, domain.MessageTypeText, m.event.Type)
	assert.Equal(t, "@"+botOpenID+" bom dia", m.event.Text)
	assert.Equal(t, time.UnixMilli(1700000000000), m.event.Timestamp)
}

func TestParseReceive_DirectMessage(t *testing.T) {
	m, ok := parseReceive(receiveEvent("p2p", "text", `{"text":"oi"}`, "ou_ana"), botOpenID)
	require.True(t, ok)
	assert.False(t, m.event.IsGroup())
	assert.Equal(t, "ou_ana", m.event.ChatID())
}

func TestParseReceive_DropsOwnAndMalformed(t *testing.T) {
	_, ok := parseReceive(receiveEvent("group", "text", `{"text":"eco"}`, botOpenID), botOpenID)
	assert.False(t, ok)

	_, ok = parseReceive(receiveEvent("group", "text", `{"text":"x"}`, ""), botOpenID)
	assert.False(t, ok)

	_, ok = parseReceive(&larkim.P2MessageReceiveV1{}, botOpenID)
	assert.False(t, ok)
}

func TestParseReceive_Media(t *testing.T) {
	tests := []struct {
		msgType  string
		content  string
		wantType domain.MessageType
		resource string
	}{
		{"image", `{"image_key":"img_1"}`, domain.MessageTypeImage, "img_1"},
		{"media", `{"file_key":"file_v"}`, domain.MessageTypeVideo, "file_v"},
		{"audio", `{"file_key":"file_a"}`, domain.MessageTypeVoice, "file_a"},
		{"sticker", `{"file_key":"file_s"}`, domain.MessageTypeSticker, "file_s"},
	}
	for _, tt := range tests {
		m, ok := parseReceive(receiveEvent("group", tt.msgType, tt.content, "ou_ana"), botOpenID)
		require.True(t, ok, tt.msgType)
		assert.Equal(t, tt.wantType, m.event.Type, tt.msgType)
		assert.True(t, m.event.HasMedia, tt.msgType)
		assert.Equal(t, tt.resource, m.resource, tt.msgType)
	}
}

func TestParsePost(t *testing.T) {
	content := `{"title":"Aviso","content":[[{"tag":"text","text":"olá "},{"tag":"at","user_id":"@_user_1"}],[{"tag":"img","image_key":"img_9"}]]}`
	text, image := parsePost(content, map[string]string{"@_user_1": "@ou_ana"})

	assert.Equal(t, "Aviso\nolá @ou_ana", text)
	assert.Equal(t, "img_9", image)

	m, ok := parseReceive(receiveEvent("group", "post", content, "ou_bia"), botOpenID)
	require.True(t, ok)
	assert.Equal(t, domain.MessageTypeImage, m.event.Type)
	assert.Equal(t, "img_9", m.resource)
}

func TestParseStored(t *testing.T) {
	item := &larkim.Message{
		MessageId:  strPtr("om_2"),
		ChatId:     strPtr("oc_group1"),
		ParentId:   strPtr("om_0"),
		MsgType:    strPtr("text"),
		CreateTime: strPtr("1700000000000"),
		Sender:     &larkim.Sender{Id: strPtr("ou_ana")},
		Body:       &larkim.MessageBody{Content: strPtr(`{"text":"figurinha"}`)},
	}
	m := parseStored(item)
	assert.Equal(t, "om_2", m.event.ID)
	assert.Equal(t, "ou_ana", m.event.AuthorID)
	assert.Equal(t, "oc_group1", m.event.ConversationID)
	assert.Equal(t, "om_0", m.parentID)
	assert.Equal(t, "figurinha", m.event.Text)
}

func TestTextBody(t *testing.T) {
	var body map[string]string
	require.NoError(t, json.Unmarshal([]byte(textBody("oi", []string{"ou_ana"})), &body))
	assert.Equal(t, `<at user_id="ou_ana"></at> oi`, body["text"])
}

func TestReceiveIDType(t *testing.T) {
	assert.Equal(t, "open_id", receiveIDType("ou_ana"))
	assert.Equal(t, "chat_id", receiveIDType("oc_group1"))
}

func TestEmojiMapping(t *testing.T) {
	assert.Equal(t, "DONE", emojiTypeFor("✅"))
	assert.Equal(t, "OK", emojiTypeFor("🦜"))
	assert.Equal(t, "🤖", unicodeFor("ROBOT"))
	assert.Equal(t, "SMILE", unicodeFor("SMILE"))
}

func TestChatMembers(t *testing.T) {
	users := []*larkim.ChatMemberUser{
		{Name: strPtr("Ana"), UserId: &larkim.UserId{OpenId: strPtr("ou_ana")}},
		{Name: strPtr("sem id")},
	}
	assert.Equal(t, []domain.Participant{{ID: "ou_ana", Name: "Ana"}}, chatMembers(users))
}

func TestLarkSession_MarkSeen(t *testing.T) {
	s := NewLarkSession(domain.SessionInfo{ID: "bot1", PhoneNumber: botOpenID}, LarkConfig{AppID: "cli_x", AppSecret: "y"}, zerolog.Nop())
	now := time.Now()

	assert.True(t, s.markSeen("om_1", now))
	assert.False(t, s.markSeen("om_1", now.Add(time.Minute)))

	// entries older than the window are evicted on the next insert
	assert.True(t, s.markSeen("om_2", now.Add(dedupWindow+time.Second)))
	assert.True(t, s.markSeen("om_1", now.Add(dedupWindow+2*time.Second)))
}

func TestLarkSession_SetPeers(t *testing.T) {
	s := NewLarkSession(domain.SessionInfo{ID: "bot1", PhoneNumber: botOpenID}, LarkConfig{}, zerolog.Nop())
	s.SetPeers([]string{botOpenID, "ou_bot000002"})

	assert.Equal(t, []string{"ou_bot000002"}, s.Info().IgnoredPeerNumbers)
	assert.True(t, s.Info().IsPeer("ou_bot000002"))
	assert.False(t, s.IsConnected())
}

func TestLarkSession_SetPeersSkipsOwnAliases(t *testing.T) {
	info := domain.SessionInfo{ID: "bot1", PhoneNumber: botOpenID, Aliases: []string{"ou_bot1_in_b"}}
	s := NewLarkSession(info, LarkConfig{}, zerolog.Nop())
	s.SetPeers([]string{botOpenID, "ou_bot1_in_b", "ou_bot2_in_a"})

	assert.Equal(t, []string{"ou_bot2_in_a"}, s.Info().IgnoredPeerNumbers)
	assert.True(t, s.Info().IsAuthor("ou_bot1_in_b"))
	assert.False(t, s.Info().IsPeer("ou_bot1_in_b"))
}
