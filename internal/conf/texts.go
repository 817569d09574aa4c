package conf

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/ravenabot/ravena/internal/biz/usecase"
	"github.com/ravenabot/ravena/internal/service"
)

// TextsConfig contains every user-facing text, loaded from YAML
type TextsConfig struct {
	Replies ReplyTexts   `yaml:"replies"`
	Invite  InviteTexts  `yaml:"invite"`
	Mention MentionTexts `yaml:"mention"`
}

// ReplyTexts are the command and dispatcher replies
type ReplyTexts struct {
	CommandError    string `yaml:"command_error"`
	ManagementError string `yaml:"management_error"`
	NeedsMedia      string `yaml:"needs_media"`
	NeedsQuoted     string `yaml:"needs_quoted"`
	NotAdmin        string `yaml:"not_admin"`
	Cooldown        string `yaml:"cooldown"`
	GroupOnly       string `yaml:"group_only"`
	UnknownCommand  string `yaml:"unknown_command"`
	BotJoined       string `yaml:"bot_joined"`
	LoadReportTitle string `yaml:"load_report_title"`
	AISystemPrompt  string `yaml:"ai_system_prompt"`
}

// InviteTexts are the invite flow messages
type InviteTexts struct {
	AskReason     string `yaml:"ask_reason"`
	NoReason      string `yaml:"no_reason"`
	Received      string `yaml:"received"`
	Forwarded     string `yaml:"forwarded"`
	NotConfigured string `yaml:"not_configured"`
	ForwardFailed string `yaml:"forward_failed"`
}

// MentionTexts are the mention handler texts
type MentionTexts struct {
	SystemPrompt string `yaml:"system_prompt"`
	Greeting     string `yaml:"greeting"`
	Failure      string `yaml:"failure"`
}

// LoadTextsConfig loads texts from a YAML file. Missing files and empty
// fields fall back to the built-in texts.
func LoadTextsConfig(configPath string) (*TextsConfig, error) {
	paths := []string{configPath}
	if configPath == "" {
		paths = []string{
			"configs/texts.yaml",
			"/etc/ravena/texts.yaml",
		}
		if execPath, err := os.Executable(); err == nil {
			paths = append(paths, filepath.Join(filepath.Dir(execPath), "configs", "texts.yaml"))
		}
	}

	var data []byte
	var err error
	for _, p := range paths {
		data, err = os.ReadFile(p)
		if err == nil {
			break
		}
	}
	if err != nil {
		return DefaultTextsConfig(), nil
	}

	var config TextsConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return DefaultTextsConfig(), fmt.Errorf("failed to parse texts config: %w", err)
	}
	config.fillDefaults()
	return &config, nil
}

func fill(dst *string, def string) {
	if *dst == "" {
		*dst = def
	}
}

// fillDefaults fills in default values for empty fields
func (c *TextsConfig) fillDefaults() {
	d := DefaultTextsConfig()

	fill(&c.Replies.CommandError, d.Replies.CommandError)
	fill(&c.Replies.ManagementError, d.Replies.ManagementError)
	fill(&c.Replies.NeedsMedia, d.Replies.NeedsMedia)
	fill(&c.Replies.NeedsQuoted, d.Replies.NeedsQuoted)
	fill(&c.Replies.NotAdmin, d.Replies.NotAdmin)
	fill(&c.Replies.Cooldown, d.Replies.Cooldown)
	fill(&c.Replies.GroupOnly, d.Replies.GroupOnly)
	fill(&c.Replies.UnknownCommand, d.Replies.UnknownCommand)
	fill(&c.Replies.BotJoined, d.Replies.BotJoined)
	fill(&c.Replies.LoadReportTitle, d.Replies.LoadReportTitle)
	fill(&c.Replies.AISystemPrompt, d.Replies.AISystemPrompt)

	fill(&c.Invite.AskReason, d.Invite.AskReason)
	fill(&c.Invite.NoReason, d.Invite.NoReason)
	fill(&c.Invite.Received, d.Invite.Received)
	fill(&c.Invite.NotConfigured, d.Invite.NotConfigured)
	fill(&c.Invite.ForwardFailed, d.Invite.ForwardFailed)

	fill(&c.Mention.SystemPrompt, d.Mention.SystemPrompt)
	fill(&c.Mention.Greeting, d.Mention.Greeting)
	fill(&c.Mention.Failure, d.Mention.Failure)
}

// ServiceTexts converts to the service layer replies
func (c *TextsConfig) ServiceTexts() service.Texts {
	r := c.Replies
	return service.Texts{
		CommandError:    r.CommandError,
		ManagementError: r.ManagementError,
		NeedsMedia:      r.NeedsMedia,
		NeedsQuoted:     r.NeedsQuoted,
		NotAdmin:        r.NotAdmin,
		Cooldown:        r.Cooldown,
		GroupOnly:       r.GroupOnly,
		UnknownCommand:  r.UnknownCommand,
		BotJoined:       r.BotJoined,
		LoadReportTitle: r.LoadReportTitle,
		AISystemPrompt:  r.AISystemPrompt,
	}
}

// InviteTexts converts to the invite usecase texts
func (c *TextsConfig) InviteTexts() usecase.InviteTexts {
	return usecase.InviteTexts(c.Invite)
}

// MentionTexts converts to the mention usecase texts
func (c *TextsConfig) MentionTexts() usecase.MentionTexts {
	return usecase.MentionTexts(c.Mention)
}

// DefaultTextsConfig returns the built-in texts
func DefaultTextsConfig() *TextsConfig {
	replies := service.DefaultTexts()
	return &TextsConfig{
		Replies: ReplyTexts{
			CommandError:    replies.CommandError,
			ManagementError: replies.ManagementError,
			NeedsMedia:      replies.NeedsMedia,
			NeedsQuoted:     replies.NeedsQuoted,
			NotAdmin:        replies.NotAdmin,
			Cooldown:        replies.Cooldown,
			GroupOnly:       replies.GroupOnly,
			UnknownCommand:  replies.UnknownCommand,
			BotJoined:       replies.BotJoined,
			LoadReportTitle: replies.LoadReportTitle,
			AISystemPrompt:  replies.AISystemPrompt,
		},
		Invite: InviteTexts{
			AskReason:     "Obrigado pelo convite! Por favor, me diga por que você quer me adicionar a este grupo. Vou esperar sua explicação por 5 minutos antes de processar este convite.",
			NoReason:      "Nenhum motivo fornecido",
			Received:      "Obrigado! Seu convite foi recebido e será analisado.",
			NotConfigured: "O bot não está configurado corretamente para lidar com convites no momento. Por favor, tente novamente mais tarde ou entre em contato com o administrador do bot.",
			ForwardFailed: "Houve um erro ao encaminhar seu convite. Por favor, tente novamente mais tarde ou entre em contato com o administrador do bot.",
		},
		Mention: MentionTexts{
			SystemPrompt: "Você é a ravena, uma bot de grupos. Responda em português, de forma curta e amigável, usando o histórico recente da conversa quando ajudar.",
			Greeting:     "Olá! Como posso te ajudar?",
			Failure:      "Não consegui pensar em uma resposta agora, tente de novo mais tarde.",
		},
	}
}
