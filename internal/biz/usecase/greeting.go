package usecase

import (
	"strings"

	"github.com/ravenabot/ravena/internal/biz/domain"
)

// RenderGreeting fills a group's greeting template for the members who joined.
// Returns "" when no greeting text is configured.
func RenderGreeting(g *domain.GroupConfig, chatTitle string, names []string) string {
	if g == nil || g.Greetings.Text == "" || len(names) == 0 {
		return ""
	}
	people := strings.Join(names, ", ")
	r := strings.NewReplacer(
		"{pessoa}", people,
		"{nomePessoas}", people,
		"{tituloGrupo}", chatTitle,
		"{nomeGrupo}", g.Name,
	)
	return r.Replace(g.Greetings.Text)
}

// RenderFarewell fills a group's farewell template for a member who left
func RenderFarewell(g *domain.GroupConfig, name string) string {
	if g == nil || g.Farewells.Text == "" {
		return ""
	}
	return strings.ReplaceAll(g.Farewells.Text, "{pessoa}", name)
}
