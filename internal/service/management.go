package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/ravenabot/ravena/internal/biz/domain"
	"github.com/ravenabot/ravena/internal/biz/repo"
	"github.com/ravenabot/ravena/internal/biz/usecase"
)

const (
	managementBefore = "⏳"
	managementAfter  = "✅"
	managementError  = "❌"

	maxNickLen        = 20
	minIgnoreEntryLen = 8
)

type mgmtRequest struct {
	session repo.Session
	event   *domain.Event
	origin  domain.Origin
	args    []string
	rest    string // text after the command name, newlines kept
	group   *domain.GroupConfig
}

type mgmtHandler func(ctx context.Context, req *mgmtRequest) (string, error)

type mgmtCommand struct {
	name    string
	usage   string
	handler mgmtHandler
}

// Management runs the g- family of group management commands
type Management struct {
	groups *usecase.GroupConfigUsecase
	admins *usecase.AdminUsecase
	texts  Texts
	log    zerolog.Logger

	commands map[string]mgmtCommand // keyed by lowercased name

	mu       sync.Mutex
	managing map[string]string // author id -> group id bound through g-manage
}

// NewManagement creates the management command handler
func NewManagement(groups *usecase.GroupConfigUsecase, admins *usecase.AdminUsecase, texts Texts, log zerolog.Logger) *Management {
	m := &Management{
		groups:   groups,
		admins:   admins,
		texts:    texts,
		log:      log.With().Str("component", "management").Logger(),
		managing: make(map[string]string),
	}
	m.commands = make(map[string]mgmtCommand)
	for _, c := range []mgmtCommand{
		{"g-pausar", "pausa ou retoma o bot no grupo", m.pause},
		{"g-setName", "<nome> define o nome do grupo", m.setName},
		{"g-setCustomPrefix", "[prefixo] define o prefixo (vazio = sem prefixo)", m.setPrefix},
		{"g-setWelcome", "<texto> mensagem de boas-vindas ({pessoa}, {tituloGrupo}, {nomeGrupo})", m.setWelcome},
		{"g-setFarewell", "<texto> mensagem de despedida ({pessoa})", m.setFarewell},
		{"g-autoStt", "liga/desliga transcrição automática de áudios", m.autoStt},
		{"g-info", "mostra a configuração do grupo", m.info},
		{"g-filtro-palavra", "<palavra> adiciona/remove palavra proibida", m.filterWord},
		{"g-filtro-links", "liga/desliga o filtro de links", m.filterLinks},
		{"g-filtro-pessoa", "<número> adiciona/remove pessoa filtrada", m.filterPerson},
		{"g-filtro-nsfw", "liga/desliga o filtro NSFW", m.filterNSFW},
		{"g-apelido", "[apelido] define seu apelido no grupo", m.nick},
		{"g-ignorar", "<número> ignora/deixa de ignorar um número", m.ignore},
		{"g-mute", "<texto> ignora mensagens que começam com o texto", m.mute},
		{"g-customAdmin", "<número> adiciona/remove admin do bot no grupo", m.customAdmin},
		{"g-addCmd", "<gatilho> (respondendo a uma mensagem) cria comando personalizado", m.addCommand},
		{"g-delCmd", "<gatilho> desativa comando personalizado", m.delCommand},
	} {
		m.commands[strings.ToLower(c.name)] = c
	}
	return m
}

// Handle runs one management command. g is nil in direct messages, where the
// group bound through g-manage is used instead.
func (m *Management) Handle(ctx context.Context, s repo.Session, e *domain.Event, origin domain.Origin, name string, args []string, g *domain.GroupConfig) {
	log := m.log.With().Str("command", name).Str("chat_id", e.ChatID()).Str("author", e.AuthorID).Logger()
	lname := strings.ToLower(name)

	switch lname {
	case "g-help":
		m.reply(ctx, s, e, m.help())
		return
	case "g-manage":
		m.manage(ctx, s, e, origin, args, g)
		return
	}

	cmd, ok := m.commands[lname]
	if !ok {
		m.reply(ctx, s, e, fmt.Sprintf("Comando de gerenciamento desconhecido: %s. Use g-help.", name))
		return
	}

	if g == nil {
		g = m.bound(ctx, e.AuthorID)
		if g == nil {
			m.reply(ctx, s, e, "Use g-manage <nomeDoGrupo> para escolher um grupo antes de gerenciá-lo pelo privado.")
			return
		}
	}
	if !m.admins.IsAdmin(ctx, e.AuthorID, g, origin) {
		m.reply(ctx, s, e, m.texts.NotAdmin)
		return
	}

	m.react(ctx, origin, managementBefore)
	req := &mgmtRequest{
		session: s,
		event:   e,
		origin:  origin,
		args:    args,
		rest:    restAfter(e.Text, name),
		group:   g,
	}
	text, err := cmd.handler(ctx, req)
	if err != nil {
		log.Error().Err(err).Msg("Management command failed")
		m.reply(ctx, s, e, m.texts.ManagementError)
		m.react(ctx, origin, managementError)
		return
	}
	log.Info().Str("group_id", g.ID).Msg("Management command applied")
	m.reply(ctx, s, e, text)
	m.react(ctx, origin, managementAfter)
}

// restAfter returns the raw text following the command name
func restAfter(text, name string) string {
	idx := strings.Index(text, name)
	if idx < 0 {
		return ""
	}
	return strings.TrimSpace(text[idx+len(name):])
}

func (m *Management) bound(ctx context.Context, authorID string) *domain.GroupConfig {
	m.mu.Lock()
	id, ok := m.managing[authorID]
	m.mu.Unlock()
	if !ok {
		return nil
	}
	g, err := m.groups.Get(ctx, id)
	if err != nil {
		m.log.Warn().Err(err).Str("group_id", id).Msg("Failed to load managed group")
		return nil
	}
	return g
}

func (m *Management) manage(ctx context.Context, s repo.Session, e *domain.Event, origin domain.Origin, args []string, g *domain.GroupConfig) {
	if g != nil {
		m.reply(ctx, s, e, "O g-manage só pode ser usado no privado.")
		return
	}
	if len(args) == 0 {
		m.reply(ctx, s, e, "Uso: g-manage <nomeDoGrupo>")
		return
	}
	target := m.groups.FindByName(strings.Join(args, ""))
	if target == nil || target.IsRemoved() {
		m.reply(ctx, s, e, fmt.Sprintf("Grupo não encontrado: %s", strings.Join(args, " ")))
		return
	}
	if !m.admins.IsSuperAdmin(e.AuthorID) && !target.IsAdditionalAdmin(e.AuthorID) {
		m.reply(ctx, s, e, m.texts.NotAdmin)
		return
	}

	m.mu.Lock()
	m.managing[e.AuthorID] = target.ID
	m.mu.Unlock()
	m.reply(ctx, s, e, fmt.Sprintf("Agora você está gerenciando o grupo *%s*. Os comandos g- enviados aqui se aplicam a ele.", target.Name))
}

func (m *Management) help() string {
	commands := make([]mgmtCommand, 0, len(m.commands))
	for _, c := range m.commands {
		commands = append(commands, c)
	}
	sort.Slice(commands, func(i, j int) bool { return commands[i].name < commands[j].name })

	var b strings.Builder
	b.WriteString("*Comandos de gerenciamento*\n\n")
	b.WriteString("• *g-manage* <nomeDoGrupo>: gerencia um grupo pelo privado\n")
	for _, c := range commands {
		fmt.Fprintf(&b, "• *%s* %s\n", c.name, c.usage)
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m *Management) update(ctx context.Context, g *domain.GroupConfig, patch domain.GroupPatch) (*domain.GroupConfig, error) {
	return m.groups.Update(ctx, g.ID, patch)
}

func (m *Management) pause(ctx context.Context, req *mgmtRequest) (string, error) {
	paused := !req.group.Paused
	if _, err := m.update(ctx, req.group, domain.GroupPatch{Paused: &paused}); err != nil {
		return "", err
	}
	if paused {
		return "Bot pausado neste grupo. Use g-pausar novamente para retomar.", nil
	}
	return "Bot ativo novamente neste grupo.", nil
}

func (m *Management) setName(ctx context.Context, req *mgmtRequest) (string, error) {
	name := strings.ToLower(strings.Join(req.args, ""))
	if name == "" {
		return "Uso: g-setName <nome>", nil
	}
	if utf8.RuneCountInString(name) > 16 {
		name = string([]rune(name)[:16])
	}
	if other := m.groups.FindByName(name); other != nil && other.ID != req.group.ID {
		return fmt.Sprintf("Já existe um grupo chamado %s.", name), nil
	}
	if _, err := m.update(ctx, req.group, domain.GroupPatch{Name: &name}); err != nil {
		return "", err
	}
	return fmt.Sprintf("Nome do grupo definido como: %s", name), nil
}

func (m *Management) setPrefix(ctx context.Context, req *mgmtRequest) (string, error) {
	prefix := ""
	if len(req.args) > 0 {
		prefix = req.args[0]
	}
	if _, err := m.update(ctx, req.group, domain.GroupPatch{Prefix: &prefix}); err != nil {
		return "", err
	}
	if prefix == "" {
		return "Prefixo removido. Todas as mensagens serão tratadas como comandos.", nil
	}
	return fmt.Sprintf("Prefixo alterado para: %s", prefix), nil
}

func (m *Management) setWelcome(ctx context.Context, req *mgmtRequest) (string, error) {
	text := req.rest
	if _, err := m.update(ctx, req.group, domain.GroupPatch{Greetings: &domain.TemplatePatch{Text: &text}}); err != nil {
		return "", err
	}
	if text == "" {
		return "Mensagem de boas-vindas removida.", nil
	}
	return "Mensagem de boas-vindas definida.", nil
}

func (m *Management) setFarewell(ctx context.Context, req *mgmtRequest) (string, error) {
	text := req.rest
	if _, err := m.update(ctx, req.group, domain.GroupPatch{Farewells: &domain.TemplatePatch{Text: &text}}); err != nil {
		return "", err
	}
	if text == "" {
		return "Mensagem de despedida removida.", nil
	}
	return "Mensagem de despedida definida.", nil
}

func (m *Management) autoStt(ctx context.Context, req *mgmtRequest) (string, error) {
	on := !req.group.AutoStt
	if _, err := m.update(ctx, req.group, domain.GroupPatch{AutoStt: &on}); err != nil {
		return "", err
	}
	return "Transcrição automática " + onOff(on) + ".", nil
}

func (m *Management) info(ctx context.Context, req *mgmtRequest) (string, error) {
	g := req.group
	prefix := g.Prefix
	if prefix == "" {
		prefix = "(nenhum)"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "*Grupo %s*\n\n", g.Name)
	fmt.Fprintf(&b, "Prefixo: %s\n", prefix)
	fmt.Fprintf(&b, "Pausado: %s\n", yesNo(g.Paused))
	fmt.Fprintf(&b, "Transcrição automática: %s\n", onOff(g.AutoStt))
	fmt.Fprintf(&b, "Filtro de links: %s\n", onOff(g.Filters.Links))
	fmt.Fprintf(&b, "Filtro NSFW: %s\n", onOff(g.Filters.NSFW))
	fmt.Fprintf(&b, "Palavras filtradas: %d\n", len(g.Filters.Words))
	fmt.Fprintf(&b, "Pessoas filtradas: %d\n", len(g.Filters.People))
	fmt.Fprintf(&b, "Números ignorados: %d\n", len(g.IgnoredNumbers))
	fmt.Fprintf(&b, "Textos silenciados: %d\n", len(g.MutedStrings))
	fmt.Fprintf(&b, "Comandos personalizados: %d", countActive(g.CustomCommands))
	if g.AddedBy != "" {
		fmt.Fprintf(&b, "\nAdicionado por: %s", g.AddedBy)
	}
	return b.String(), nil
}

func (m *Management) filterWord(ctx context.Context, req *mgmtRequest) (string, error) {
	word := strings.ToLower(req.rest)
	if word == "" {
		if len(req.group.Filters.Words) == 0 {
			return "Nenhuma palavra filtrada.", nil
		}
		return "Palavras filtradas: " + strings.Join(req.group.Filters.Words, ", "), nil
	}
	words, added := toggle(req.group.Filters.Words, word)
	if _, err := m.update(ctx, req.group, domain.GroupPatch{Filters: &domain.FiltersPatch{Words: &words}}); err != nil {
		return "", err
	}
	if added {
		return fmt.Sprintf("Palavra adicionada ao filtro: %s", word), nil
	}
	return fmt.Sprintf("Palavra removida do filtro: %s", word), nil
}

func (m *Management) filterLinks(ctx context.Context, req *mgmtRequest) (string, error) {
	on := !req.group.Filters.Links
	if _, err := m.update(ctx, req.group, domain.GroupPatch{Filters: &domain.FiltersPatch{Links: &on}}); err != nil {
		return "", err
	}
	return "Filtro de links " + onOff(on) + ".", nil
}

func (m *Management) filterNSFW(ctx context.Context, req *mgmtRequest) (string, error) {
	on := !req.group.Filters.NSFW
	if _, err := m.update(ctx, req.group, domain.GroupPatch{Filters: &domain.FiltersPatch{NSFW: &on}}); err != nil {
		return "", err
	}
	return "Filtro NSFW " + onOff(on) + ".", nil
}

func (m *Management) filterPerson(ctx context.Context, req *mgmtRequest) (string, error) {
	if len(req.args) == 0 {
		return "Uso: g-filtro-pessoa <número>", nil
	}
	person := strings.TrimPrefix(req.args[0], "@")
	people, added := toggle(req.group.Filters.People, person)
	if _, err := m.update(ctx, req.group, domain.GroupPatch{Filters: &domain.FiltersPatch{People: &people}}); err != nil {
		return "", err
	}
	if added {
		return fmt.Sprintf("Mensagens de %s serão apagadas.", person), nil
	}
	return fmt.Sprintf("%s removido do filtro.", person), nil
}

func (m *Management) nick(ctx context.Context, req *mgmtRequest) (string, error) {
	author := req.event.AuthorID
	alias := req.rest
	if utf8.RuneCountInString(alias) > maxNickLen {
		return fmt.Sprintf("Apelido muito longo (máximo %d caracteres).", maxNickLen), nil
	}

	nicks := make([]domain.Nick, 0, len(req.group.Nicks)+1)
	for _, n := range req.group.Nicks {
		if n.Number != author {
			nicks = append(nicks, n)
		}
	}
	if alias != "" {
		nicks = append(nicks, domain.Nick{Number: author, Alias: alias})
	}
	if _, err := m.update(ctx, req.group, domain.GroupPatch{Nicks: &nicks}); err != nil {
		return "", err
	}
	if alias == "" {
		return "Apelido removido.", nil
	}
	return fmt.Sprintf("Apelido definido: %s", alias), nil
}

func (m *Management) ignore(ctx context.Context, req *mgmtRequest) (string, error) {
	if len(req.args) == 0 {
		return "Uso: g-ignorar <número>", nil
	}
	entry := strings.TrimPrefix(req.args[0], "@")
	if len(entry) < minIgnoreEntryLen {
		return fmt.Sprintf("Número inválido, use pelo menos %d caracteres.", minIgnoreEntryLen), nil
	}
	ignored, added := toggle(req.group.IgnoredNumbers, entry)
	if _, err := m.update(ctx, req.group, domain.GroupPatch{IgnoredNumbers: &ignored}); err != nil {
		return "", err
	}
	if added {
		return fmt.Sprintf("%s será ignorado neste grupo.", entry), nil
	}
	return fmt.Sprintf("%s não será mais ignorado.", entry), nil
}

func (m *Management) mute(ctx context.Context, req *mgmtRequest) (string, error) {
	text := req.rest
	if text == "" {
		if len(req.group.MutedStrings) == 0 {
			return "Nenhum texto silenciado.", nil
		}
		return "Textos silenciados: " + strings.Join(req.group.MutedStrings, ", "), nil
	}
	muted, added := toggle(req.group.MutedStrings, text)
	if _, err := m.update(ctx, req.group, domain.GroupPatch{MutedStrings: &muted}); err != nil {
		return "", err
	}
	if added {
		return fmt.Sprintf("Mensagens começando com \"%s\" serão ignoradas.", text), nil
	}
	return fmt.Sprintf("\"%s\" não está mais silenciado.", text), nil
}

func (m *Management) customAdmin(ctx context.Context, req *mgmtRequest) (string, error) {
	if len(req.args) == 0 {
		return "Uso: g-customAdmin <número>", nil
	}
	admin := strings.TrimPrefix(req.args[0], "@")
	admins, added := toggle(req.group.AdditionalAdmins, admin)
	if _, err := m.update(ctx, req.group, domain.GroupPatch{AdditionalAdmins: &admins}); err != nil {
		return "", err
	}
	if added {
		return fmt.Sprintf("%s agora é admin do bot neste grupo.", admin), nil
	}
	return fmt.Sprintf("%s não é mais admin do bot neste grupo.", admin), nil
}

func (m *Management) addCommand(ctx context.Context, req *mgmtRequest) (string, error) {
	trigger := strings.ToLower(req.rest)
	if trigger == "" {
		return "Uso: responda a uma mensagem com g-addCmd <gatilho>", nil
	}
	quoted, err := req.origin.QuotedMessage(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to load quoted message: %w", err)
	}
	if quoted == nil || quoted.Text == "" {
		return "Responda a uma mensagem de texto para definir a resposta do comando.", nil
	}

	commands := req.group.CustomCommands
	found := false
	for i := range commands {
		if commands[i].Active && strings.EqualFold(commands[i].StartsWith, trigger) {
			commands[i].Responses = append(commands[i].Responses, quoted.Text)
			found = true
			break
		}
	}
	if !found {
		commands = append(commands, domain.CustomCommand{
			StartsWith: trigger,
			Responses:  []string{quoted.Text},
			Active:     true,
		})
	}
	if _, err := m.update(ctx, req.group, domain.GroupPatch{CustomCommands: &commands}); err != nil {
		return "", err
	}
	if found {
		return fmt.Sprintf("Resposta adicionada ao comando %s.", trigger), nil
	}
	return fmt.Sprintf("Comando %s criado.", trigger), nil
}

func (m *Management) delCommand(ctx context.Context, req *mgmtRequest) (string, error) {
	trigger := strings.ToLower(req.rest)
	commands := req.group.CustomCommands
	for i := range commands {
		if commands[i].Active && strings.EqualFold(commands[i].StartsWith, trigger) {
			commands[i].Active = false
			if _, err := m.update(ctx, req.group, domain.GroupPatch{CustomCommands: &commands}); err != nil {
				return "", err
			}
			return fmt.Sprintf("Comando %s desativado.", trigger), nil
		}
	}
	return fmt.Sprintf("Comando %s não encontrado.", trigger), nil
}

func (m *Management) reply(ctx context.Context, s repo.Session, e *domain.Event, text string) {
	if text == "" {
		return
	}
	_, err := s.SendMessage(ctx, e.ChatID(), domain.TextContent(text), domain.SendOptions{QuotedMessageID: e.ID})
	if err != nil {
		m.log.Error().Err(err).Str("chat_id", e.ChatID()).Msg("Failed to send management reply")
	}
}

func (m *Management) react(ctx context.Context, origin domain.Origin, emoji string) {
	if origin == nil {
		return
	}
	if err := origin.React(ctx, emoji); err != nil {
		m.log.Debug().Err(err).Str("emoji", emoji).Msg("Failed to react")
	}
}

// toggle removes v from list (case-insensitive) or appends it when absent
func toggle(list []string, v string) ([]string, bool) {
	out := make([]string, 0, len(list)+1)
	removed := false
	for _, x := range list {
		if strings.EqualFold(x, v) {
			removed = true
			continue
		}
		out = append(out, x)
	}
	if !removed {
		out = append(out, v)
	}
	return out, !removed
}

func countActive(cmds []domain.CustomCommand) int {
	n := 0
	for _, c := range cmds {
		if c.Active {
			n++
		}
	}
	return n
}

func onOff(on bool) string {
	if on {
		return "ativado"
	}
	return "desativado"
}

func yesNo(b bool) string {
	if b {
		return "sim"
	}
	return "não"
}
