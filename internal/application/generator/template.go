package generator

import (
	"context"
	"time"

	"github.com/alem-hub/quest-engine/internal/domain/quest"
)

// TemplateGenerator builds sections from the catalog only. The engine uses
// it as a fallback when personalized generation fails.
type TemplateGenerator struct {
	base
}

var _ quest.SectionGenerator = (*TemplateGenerator)(nil)

// NewTemplateGenerator creates a template generator.
func NewTemplateGenerator(opts Options) *TemplateGenerator {
	return &TemplateGenerator{base: newBase(opts, "template_generator")}
}

// Generate implements quest.SectionGenerator.
func (g *TemplateGenerator) Generate(ctx context.Context, req quest.GenerateRequest) (*quest.Section, error) {
	return g.generate(ctx, req, g.build)
}

func (g *TemplateGenerator) build(t quest.Type, profile quest.Profile, scope quest.Scope, now time.Time) (*quest.Quest, error) {
	return g.fromTemplate(t, profile.Value(t), scope, now)
}
