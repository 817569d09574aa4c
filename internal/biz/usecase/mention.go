package usecase

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/rs/zerolog"

	"github.com/ravenabot/ravena/internal/biz/domain"
	"github.com/ravenabot/ravena/internal/biz/repo"
)

const mentionReaction = "👀"

// MentionTexts are the user-facing mention replies
type MentionTexts struct {
	SystemPrompt string
	Greeting     string
	Failure      string
}

// MentionUsecase answers messages that @mention the bot
type MentionUsecase struct {
	llm     repo.LLMRepo // optional
	history *HistoryUsecase
	texts   MentionTexts
	tasks   *Tasks
	log     zerolog.Logger
}

// NewMentionUsecase creates a new mention usecase
func NewMentionUsecase(llm repo.LLMRepo, history *HistoryUsecase, texts MentionTexts, tasks *Tasks, log zerolog.Logger) *MentionUsecase {
	return &MentionUsecase{
		llm:     llm,
		history: history,
		texts:   texts,
		tasks:   tasks,
		log:     log.With().Str("component", "mention").Logger(),
	}
}

func digitsOnly(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, s)
}

// phoneLike reports whether id is a formatted phone number such as
// "+55 11 99999-0000"
func phoneLike(id string) bool {
	for _, r := range id {
		if !unicode.IsDigit(r) && !strings.ContainsRune("+-() ", r) {
			return false
		}
	}
	return true
}

// mentionPattern matches "@<identity>". Phone numbers are mentioned by their
// digits; any other identity (a Lark open id) is matched verbatim.
func mentionPattern(identity string) *regexp.Regexp {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return nil
	}
	target := identity
	if phoneLike(identity) {
		target = digitsOnly(identity)
		if target == "" {
			return nil
		}
	}
	expr := `(?i)@` + regexp.QuoteMeta(target)
	if last := target[len(target)-1]; last == '_' || unicode.IsLetter(rune(last)) || unicode.IsDigit(rune(last)) {
		expr += `\b`
	}
	return regexp.MustCompile(expr)
}

// Handle replies when the session's bot is mentioned. The reply is produced
// asynchronously; the return value only says whether the event was consumed.
func (uc *MentionUsecase) Handle(ctx context.Context, s repo.Session, e *domain.Event, origin domain.Origin) bool {
	re := mentionPattern(s.Info().PhoneNumber)
	if re == nil || !re.MatchString(e.Text) {
		return false
	}

	prompt := strings.TrimSpace(re.ReplaceAllString(e.Text, ""))
	uc.log.Info().Str("chat_id", e.ChatID()).Str("author", e.AuthorID).Msg("Bot mentioned")

	taskCtx := context.WithoutCancel(ctx)
	event := *e
	uc.tasks.Go("mention-reply", func() error {
		if origin != nil {
			if err := origin.React(taskCtx, mentionReaction); err != nil {
				uc.log.Debug().Err(err).Msg("Failed to react to mention")
			}
		}
		return uc.reply(taskCtx, s, &event, prompt)
	})
	return true
}

func (uc *MentionUsecase) reply(ctx context.Context, s repo.Session, e *domain.Event, prompt string) error {
	text := uc.texts.Greeting
	if prompt != "" && uc.llm != nil {
		answer, err := uc.llm.Complete(ctx, uc.texts.SystemPrompt, uc.buildPrompt(e, prompt))
		if err != nil {
			uc.log.Error().Err(err).Str("chat_id", e.ChatID()).Msg("LLM completion failed")
			text = uc.texts.Failure
		} else {
			text = answer
		}
	}
	if text == "" {
		return nil
	}
	_, err := s.SendMessage(ctx, e.ChatID(), domain.TextContent(text), domain.SendOptions{QuotedMessageID: e.ID})
	if err != nil {
		return fmt.Errorf("failed to send mention reply: %w", err)
	}
	return nil
}

func (uc *MentionUsecase) buildPrompt(e *domain.Event, prompt string) string {
	if uc.history == nil {
		return prompt
	}
	entries := uc.history.Recent(e.ChatID(), 10)
	if len(entries) == 0 {
		return prompt
	}
	var b strings.Builder
	b.WriteString("Mensagens recentes:\n")
	for _, h := range entries {
		fmt.Fprintf(&b, "%s: %s\n", h.AuthorName, h.Text)
	}
	fmt.Fprintf(&b, "\n%s pergunta: %s", e.AuthorName, prompt)
	return b.String()
}
