package usecase

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ravenabot/ravena/internal/biz/domain"
)

func TestHistory_KeepsMostRecent(t *testing.T) {
	uc := NewHistoryUsecase(0)
	for i := 0; i < 40; i++ {
		uc.Store(&domain.Event{AuthorID: "a", ConversationID: "g1@g.us", Text: fmt.Sprintf("msg %d", i)})
	}

	all := uc.Recent("g1@g.us", 0)
	require.Len(t, all, DefaultHistorySize)
	assert.Equal(t, "msg 10", all[0].Text)
	assert.Equal(t, "msg 39", all[len(all)-1].Text)

	last := uc.Recent("g1@g.us", 2)
	require.Len(t, last, 2)
	assert.Equal(t, "msg 38", last[0].Text)
}

func TestHistory_SeparatesChats(t *testing.T) {
	uc := NewHistoryUsecase(5)
	uc.Store(&domain.Event{AuthorID: "a", ConversationID: "g1@g.us", Text: "one"})
	uc.Store(&domain.Event{AuthorID: "b@c.us", Text: "dm"})

	assert.Len(t, uc.Recent("g1@g.us", 0), 1)
	assert.Len(t, uc.Recent("b@c.us", 0), 1)
	assert.Empty(t, uc.Recent("other", 0))
}
