package llm

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/chungachanga/crhoy-pipeline/internal/config"
	"github.com/chungachanga/crhoy-pipeline/internal/filestore"
	"github.com/chungachanga/crhoy-pipeline/internal/models"
)

// CategorizationResult is the categorization sub-pipeline's final verdict
// for one article.
type CategorizationResult struct {
	Relation          models.Relation
	Skip              bool
	SmartCategoryName string
	SmartCategoryDesc string
	IsNewCategory     bool
}

// SummarizationResult holds the English summary and its per-language
// translations.
type SummarizationResult struct {
	English      string
	Translations map[string]string // language code -> translated summary
}

const (
	classifierSchema = `{"type":"object","properties":{"relation":{"type":"string","enum":["DIRECT","INDIRECT","NOT_APPLICABLE"]}},"required":["relation"]}`
	labelerSchema    = `{"type":"object","properties":{"no_fit":{"type":"boolean"},"suggestions":{"type":"array","items":{"type":"object","properties":{"name":{"type":"string"},"rank":{"type":"integer"}}}}},"required":["no_fit","suggestions"]}`
	namerSchema      = `{"type":"object","properties":{"name":{"type":"string"},"description":{"type":"string"}},"required":["name","description"]}`
	finalizerSchema  = `{"type":"object","properties":{"chosen":{"type":"string","enum":["option_a","option_b"]}},"required":["chosen"]}`
	summarizerSchema = `{"type":"object","properties":{"summary":{"type":"string"}},"required":["summary"]}`
	translatorSchema = `{"type":"object","properties":{"summary":{"type":"string"}},"required":["summary"]}`
)

type classifierOutput struct {
	Relation string `json:"relation"`
}

type labelSuggestion struct {
	Name string `json:"name"`
	Rank int    `json:"rank"`
}

type labelerOutput struct {
	NoFit       bool              `json:"no_fit"`
	Suggestions []labelSuggestion `json:"suggestions"`
}

type namerOutput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type finalizerOutput struct {
	Chosen string `json:"chosen"`
}

type summaryOutput struct {
	Summary string `json:"summary"`
}

// Pipeline runs the four categorization agents and the two summarization
// agents, each as a fresh Agent instance per article so chat histories
// never leak across articles.
type Pipeline struct {
	engine   Engine
	limiters *LimiterRegistry
	llmCfg   config.LLMConfig
	files    *filestore.Store
}

// NewPipeline creates a Pipeline. files is used to dump raw engine
// responses when llmCfg.KeepRawEngineResponses is set; pass nil to disable
// dumping regardless of that flag.
func NewPipeline(llmCfg config.LLMConfig, engine Engine, limiters *LimiterRegistry, files *filestore.Store) *Pipeline {
	return &Pipeline{engine: engine, limiters: limiters, llmCfg: llmCfg, files: files}
}

// rawDumper builds the session-scoped RawDumper for one article's agents,
// or nil when raw dumping is disabled.
func (p *Pipeline) rawDumper(sessionID string) *RawDumper {
	if !p.llmCfg.KeepRawEngineResponses || p.files == nil {
		return nil
	}
	return NewRawDumper(p.files, p.llmCfg.RawEngineResponsesDir, sessionID)
}

func (p *Pipeline) agentConfig(name, systemPrompt, schema string, mc config.ModelConfig, temperature float64, maxTokens int) AgentConfig {
	return AgentConfig{
		Name:                  name,
		SystemPrompt:          systemPrompt,
		Schema:                schema,
		Temperature:           temperature,
		MaxTokens:             maxTokens,
		Model:                 mc.Model,
		RequestLimit:          mc.RequestLimit,
		RequestLimitPeriod:    mc.RequestLimitPeriodSeconds,
		RequiresSupplementary: mc.RequiresSupplementary,
		SupplementaryModel:    p.llmCfg.SupplementaryModel.Model,
	}
}

// Categorize runs the Classifier, Labeler, Namer, and Label Finalizer
// agents in order. existing is the current catalog of admitted
// SmartCategory rows, used by the Labeler to propose a fit. sessionID
// identifies the article for raw-response dumping.
func (p *Pipeline) Categorize(ctx context.Context, articleMarkdown string, existing []models.SmartCategory, sessionID string) (CategorizationResult, error) {
	dumper := p.rawDumper(sessionID)

	classifier := NewAgent(p.agentConfig("classifier",
		"You classify a news article's relation to the target audience's locus of interest. Respond with relation DIRECT, INDIRECT, or NOT_APPLICABLE.",
		classifierSchema, p.llmCfg.ClassifierModel, 0.1, 200), p.engine, p.limiters, dumper)

	var classOut classifierOutput
	if err := classifier.Generate(ctx, articleMarkdown, &classOut); err != nil {
		return CategorizationResult{}, fmt.Errorf("llm pipeline: classifier: %w", err)
	}

	relation := models.Relation(classOut.Relation)
	if relation == models.RelationNotApplicable {
		return CategorizationResult{Relation: relation, Skip: true}, nil
	}

	labeler := NewAgent(p.agentConfig("labeler",
		"You suggest which existing smart category, if any, best fits this article. If none fit well, say so.",
		labelerSchema, p.llmCfg.LabelerModel, 0.2, 300), p.engine, p.limiters, dumper)

	var labelOut labelerOutput
	if err := labeler.Generate(ctx, labelerPrompt(articleMarkdown, existing), &labelOut); err != nil {
		return CategorizationResult{}, fmt.Errorf("llm pipeline: labeler: %w", err)
	}

	var topExisting *labelSuggestion
	for i := range labelOut.Suggestions {
		if topExisting == nil || labelOut.Suggestions[i].Rank < topExisting.Rank {
			topExisting = &labelOut.Suggestions[i]
		}
	}

	// The Namer always runs: either the Labeler found no existing fit and a
	// new category must be proposed, or it did find a fit and the Namer
	// still supplies a fresh alternative for the Finalizer to weigh.
	namer := NewAgent(p.agentConfig("namer",
		"You propose a new smart category name and description, consistent with existing naming conventions, for articles that don't fit any current category.",
		namerSchema, p.llmCfg.NamerModel, 0.4, 300), p.engine, p.limiters, dumper)
	var proposal namerOutput
	if err := namer.Generate(ctx, namerPrompt(articleMarkdown, existing), &proposal); err != nil {
		return CategorizationResult{}, fmt.Errorf("llm pipeline: namer: %w", err)
	}

	if topExisting == nil {
		return CategorizationResult{
			Relation:          relation,
			SmartCategoryName: proposal.Name,
			SmartCategoryDesc: proposal.Description,
			IsNewCategory:     true,
		}, nil
	}

	// Both an existing suggestion and a new proposal are on the table:
	// the Label Finalizer picks between them, presented in randomized
	// order to guard against position bias.
	optionAIsExisting := rand.Intn(2) == 0
	finalizer := NewAgent(p.agentConfig("label_finalizer",
		"Choose which of the two category options best fits the article: option_a or option_b.",
		finalizerSchema, p.llmCfg.FinalizerModel, 0.1, 100), p.engine, p.limiters, dumper)

	var finalOut finalizerOutput
	prompt := finalizerPrompt(articleMarkdown, topExisting.Name, proposal.Name, proposal.Description, optionAIsExisting)
	if err := finalizer.Generate(ctx, prompt, &finalOut); err != nil {
		return CategorizationResult{}, fmt.Errorf("llm pipeline: finalizer: %w", err)
	}

	choseExisting := (finalOut.Chosen == "option_a") == optionAIsExisting
	if choseExisting {
		return CategorizationResult{Relation: relation, SmartCategoryName: topExisting.Name, IsNewCategory: false}, nil
	}
	return CategorizationResult{
		Relation:          relation,
		SmartCategoryName: proposal.Name,
		SmartCategoryDesc: proposal.Description,
		IsNewCategory:     true,
	}, nil
}

// Summarize runs the Summarizer and, for each configured language, the
// Translator. sessionID identifies the article for raw-response dumping.
func (p *Pipeline) Summarize(ctx context.Context, articleMarkdown string, languages []string, sessionID string) (SummarizationResult, error) {
	dumper := p.rawDumper(sessionID)

	summarizer := NewAgent(p.agentConfig("summarizer",
		"You write a casual, explanatory English summary of a news article for the target audience, covering actors, actions, and consequences.",
		summarizerSchema, p.llmCfg.SummarizerModel, 0.5, 500), p.engine, p.limiters, dumper)

	var sumOut summaryOutput
	if err := summarizer.Generate(ctx, articleMarkdown, &sumOut); err != nil {
		return SummarizationResult{}, fmt.Errorf("llm pipeline: summarizer: %w", err)
	}

	result := SummarizationResult{English: sumOut.Summary, Translations: make(map[string]string, len(languages))}
	for _, lang := range languages {
		translator := NewAgent(p.agentConfig("translator",
			fmt.Sprintf("You translate an English news summary into %s, preserving meaning and tone.", lang),
			translatorSchema, p.llmCfg.TranslatorModel, 0.3, 500), p.engine, p.limiters, dumper)

		var transOut summaryOutput
		if err := translator.Generate(ctx, sumOut.Summary, &transOut); err != nil {
			return SummarizationResult{}, fmt.Errorf("llm pipeline: translator %s: %w", lang, err)
		}
		result.Translations[lang] = transOut.Summary
	}
	return result, nil
}

func labelerPrompt(articleMarkdown string, existing []models.SmartCategory) string {
	prompt := "Article:\n" + articleMarkdown + "\n\nExisting categories:\n"
	for _, c := range existing {
		prompt += fmt.Sprintf("- %s: %s\n", c.Name, c.Description)
	}
	return prompt
}

func namerPrompt(articleMarkdown string, existing []models.SmartCategory) string {
	prompt := "Article:\n" + articleMarkdown + "\n\nExisting category names (for naming-convention consistency):\n"
	for _, c := range existing {
		prompt += "- " + c.Name + "\n"
	}
	return prompt
}

func finalizerPrompt(articleMarkdown, existingName, newName, newDesc string, optionAIsExisting bool) string {
	optionA, optionB := existingName, newName+": "+newDesc
	if !optionAIsExisting {
		optionA, optionB = optionB, optionA
	}
	return fmt.Sprintf("Article:\n%s\n\noption_a: %s\noption_b: %s", articleMarkdown, optionA, optionB)
}
