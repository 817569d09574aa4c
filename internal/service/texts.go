package service

// Texts are the user-facing replies of the service layer
type Texts struct {
	CommandError    string // %s is the command name
	ManagementError string
	NeedsMedia      string
	NeedsQuoted     string
	NotAdmin        string
	Cooldown        string // %d is the remaining seconds
	GroupOnly       string
	UnknownCommand  string // %s is the command text
	BotJoined       string // %s is the prefix
	LoadReportTitle string
	AISystemPrompt  string
}

// DefaultTexts returns the built-in replies
func DefaultTexts() Texts {
	return Texts{
		CommandError:    "Erro ao executar comando: %s",
		ManagementError: "Erro ao processar comando de gerenciamento",
		NeedsMedia:      "Este comando requer uma mídia. Envie junto ou responda a uma mensagem com mídia.",
		NeedsQuoted:     "Este comando requer que você responda a uma mensagem.",
		NotAdmin:        "Apenas administradores podem usar este comando.",
		Cooldown:        "Aguarde %d segundos para usar este comando novamente.",
		GroupOnly:       "Este comando só funciona em grupos.",
		UnknownCommand:  "Comando desconhecido: %s",
		BotJoined:       "Olá! Sou a ravena 🐦‍⬛. Use %scmd para ver meus comandos.",
		LoadReportTitle: "📊 *Relatório de carga*",
		AISystemPrompt:  "Você é a ravena, uma assistente de grupo. Responda em português, de forma curta e direta.",
	}
}
