package usecase

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ravenabot/ravena/internal/biz/domain"
	"github.com/ravenabot/ravena/internal/biz/repo"
)

// FilterOverrideToken in the raw text bypasses every filter so admins can edit them
const FilterOverrideToken = "g-filtro"

// DefaultNSFWThreshold is the per-category probability that counts as NSFW
const DefaultNSFWThreshold = 0.7

// nsfwCategories are the classifier categories that count; any other key is ignored
var nsfwCategories = []string{"porn", "sexy", "hentai"}

var linkPattern = regexp.MustCompile(`https?://[^\s]+`)

// FilterReason identifies which filter matched
type FilterReason string

const (
	FilterReasonNone   FilterReason = ""
	FilterReasonWord   FilterReason = "word"
	FilterReasonLink   FilterReason = "link"
	FilterReasonPerson FilterReason = "person"
	FilterReasonNSFW   FilterReason = "nsfw"
)

// FilterConfig configures the NSFW stage
type FilterConfig struct {
	ScratchDir    string
	Threshold     float64
	ClassifyVideo bool
}

// FilterUsecase runs a group's content filters in a fixed order; the first match wins
type FilterUsecase struct {
	classifier repo.ClassifierRepo
	config     FilterConfig
	tasks      *Tasks
	log        zerolog.Logger
}

// NewFilterUsecase creates a new filter usecase.
// classifier may be nil, in which case the NSFW stage never matches.
func NewFilterUsecase(classifier repo.ClassifierRepo, config FilterConfig, tasks *Tasks, log zerolog.Logger) *FilterUsecase {
	if config.Threshold <= 0 {
		config.Threshold = DefaultNSFWThreshold
	}
	if config.ScratchDir == "" {
		config.ScratchDir = os.TempDir()
	}
	return &FilterUsecase{
		classifier: classifier,
		config:     config,
		tasks:      tasks,
		log:        log.With().Str("component", "filter").Logger(),
	}
}

// Apply checks the event against the group's filters and deletes it on a match
func (uc *FilterUsecase) Apply(ctx context.Context, e *domain.Event, origin domain.Origin, g *domain.GroupConfig) FilterReason {
	if strings.Contains(e.Text, FilterOverrideToken) {
		return FilterReasonNone
	}

	reason := uc.match(ctx, e, origin, g)
	if reason == FilterReasonNone {
		return reason
	}

	uc.log.Info().
		Str("group_id", g.ID).
		Str("author", e.AuthorID).
		Str("reason", string(reason)).
		Msg("Message filtered")

	deleteCtx := context.WithoutCancel(ctx)
	uc.tasks.Go("filter-delete", func() error {
		if err := origin.Delete(deleteCtx, true); err != nil {
			return fmt.Errorf("failed to delete filtered message %s: %w", e.ID, err)
		}
		return nil
	})
	return reason
}

func (uc *FilterUsecase) match(ctx context.Context, e *domain.Event, origin domain.Origin, g *domain.GroupConfig) FilterReason {
	f := g.Filters
	lower := strings.ToLower(e.Text)

	for _, w := range f.Words {
		if w != "" && strings.Contains(lower, strings.ToLower(w)) {
			return FilterReasonWord
		}
	}

	if f.Links && linkPattern.MatchString(e.Text) {
		return FilterReasonLink
	}

	for _, p := range f.People {
		if p != "" && strings.Contains(e.AuthorID, p) {
			return FilterReasonPerson
		}
	}

	if f.NSFW && (e.Type == domain.MessageTypeImage || e.Type == domain.MessageTypeVideo) {
		nsfw, err := uc.checkNSFW(ctx, e, origin)
		if err != nil {
			// classifier trouble lets the message through
			uc.log.Error().Err(err).Str("msg_id", e.ID).Msg("NSFW check failed")
			return FilterReasonNone
		}
		if nsfw {
			return FilterReasonNSFW
		}
	}

	return FilterReasonNone
}

// checkNSFW stores the media in a scratch file, classifies it and always removes the file.
// Videos are only classified when ClassifyVideo is set.
func (uc *FilterUsecase) checkNSFW(ctx context.Context, e *domain.Event, origin domain.Origin) (bool, error) {
	media, err := origin.DownloadMedia(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to download media: %w", err)
	}

	if err := os.MkdirAll(uc.config.ScratchDir, 0755); err != nil {
		return false, fmt.Errorf("failed to create scratch dir: %w", err)
	}

	ext := "jpg"
	if e.Type == domain.MessageTypeVideo {
		ext = "mp4"
	}
	path := filepath.Join(uc.config.ScratchDir, fmt.Sprintf("nsfw-check-%s.%s", uuid.NewString(), ext))
	if err := os.WriteFile(path, media.Data, 0644); err != nil {
		return false, fmt.Errorf("failed to write scratch file: %w", err)
	}
	defer func() {
		if err := os.Remove(path); err != nil {
			uc.log.Error().Err(err).Str("path", path).Msg("Failed to remove scratch file")
		}
	}()

	if e.Type == domain.MessageTypeVideo && !uc.config.ClassifyVideo {
		return false, nil
	}
	if uc.classifier == nil {
		return false, nil
	}

	scores, err := uc.classifier.Classify(ctx, path)
	if err != nil {
		return false, fmt.Errorf("failed to classify media: %w", err)
	}
	for _, category := range nsfwCategories {
		if score, ok := scores[category]; ok && score >= uc.config.Threshold {
			uc.log.Debug().Str("category", category).Float64("score", score).Msg("NSFW category over threshold")
			return true, nil
		}
	}
	return false, nil
}
