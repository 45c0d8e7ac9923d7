// Package prompt assembles task prompts from named templates and backend context.
package prompt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"text/template"

	"github.com/harun/warden/pkg/datasource"
	"github.com/rs/zerolog"
)

// ContextKind names the data source document a template embeds.
type ContextKind string

const (
	ContextNone      ContextKind = ""
	ContextAnomalies ContextKind = "anomalies"
	ContextWorkItems ContextKind = "work_items"
)

// NoData is rendered in place of a document the backend could not provide.
const NoData = "No data available (endpoint unavailable or empty)."

// Definition is a named prompt template.
type Definition struct {
	Context  ContextKind `json:"context" mapstructure:"context"`
	Template string      `json:"template" mapstructure:"template"`
}

// Data is what templates are executed with.
type Data struct {
	Name    string
	Context string
}

const genericName = "_generic"

var builtins = map[string]Definition{
	"fraud_analysis": {
		Context: ContextAnomalies,
		Template: `ACT AS: Senior auditor of the fleet operations system.
TASK: Analyse recent fraud signals and recommend actions.

CONTEXT (latest events):
{{.Context}}

EXPECTED OUTPUT:
Prioritised list (TOP 5) with: Driver/Shift | Rule violated | Evidence | Recommended action.`,
	},
	"calculation_validation": {
		Context: ContextWorkItems,
		Template: `ACT AS: Technical financial reviewer.
TASK: Validate the consistency of calculations for open shifts.

CONTEXT (open shifts):
{{.Context}}

EXPECTED OUTPUT:
Point out any financial or operational inconsistencies. If everything is OK, confirm it.`,
	},
	genericName: {
		Template: `Scheduled task: {{.Name}}. Please produce an execution and validation checklist for this routine.`,
	},
}

// aliases maps the Portuguese task names used by existing deployments onto
// the built-in templates. A template configured under the alias wins.
var aliases = map[string]string{
	"analise_fraude":     "fraud_analysis",
	"validacao_calculos": "calculation_validation",
}

// Builder renders prompts by task name. It never mutates controller state.
type Builder struct {
	source    datasource.Source
	templates map[string]*template.Template
	contexts  map[string]ContextKind
	logger    zerolog.Logger
}

// NewBuilder compiles the built-in templates plus overrides. A nil source
// renders every context as NoData.
func NewBuilder(source datasource.Source, overrides map[string]Definition, logger zerolog.Logger) (*Builder, error) {
	b := &Builder{
		source:    source,
		templates: make(map[string]*template.Template),
		contexts:  make(map[string]ContextKind),
		logger:    logger.With().Str("component", "prompt").Logger(),
	}

	defs := make(map[string]Definition, len(builtins)+len(overrides))
	for name, def := range builtins {
		defs[name] = def
	}
	for name, def := range overrides {
		defs[name] = def
	}

	for name, def := range defs {
		switch def.Context {
		case ContextNone, ContextAnomalies, ContextWorkItems:
		default:
			return nil, fmt.Errorf("prompt %q: unknown context %q", name, def.Context)
		}

		tmpl, err := template.New(name).Option("missingkey=zero").Parse(def.Template)
		if err != nil {
			return nil, fmt.Errorf("failed to parse prompt template %q: %w", name, err)
		}
		b.templates[name] = tmpl
		b.contexts[name] = def.Context
	}

	return b, nil
}

// Names lists the task names with a dedicated template.
func (b *Builder) Names() []string {
	names := make([]string, 0, len(b.templates))
	for name := range b.templates {
		if name != genericName {
			names = append(names, name)
		}
	}
	return names
}

// Build returns the prompt for name. Unknown names get the generic checklist.
func (b *Builder) Build(ctx context.Context, name string) string {
	key := name
	if _, ok := b.templates[key]; !ok {
		if target, ok := aliases[key]; ok {
			key = target
		}
	}

	tmpl, ok := b.templates[key]
	kind := b.contexts[key]
	if !ok {
		tmpl = b.templates[genericName]
		kind = ContextNone
	}

	data := Data{Name: name}
	if kind != ContextNone {
		data.Context = b.fetch(ctx, kind)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		b.logger.Error().Err(err).Str("task", name).Msg("Prompt template failed, using generic prompt")
		buf.Reset()
		_ = b.templates[genericName].Execute(&buf, data)
	}
	return buf.String()
}

func (b *Builder) fetch(ctx context.Context, kind ContextKind) string {
	if b.source == nil {
		return NoData
	}

	var (
		doc datasource.Document
		err error
	)
	switch kind {
	case ContextAnomalies:
		doc, err = b.source.RecentAnomalies(ctx)
	case ContextWorkItems:
		doc, err = b.source.OpenWorkItems(ctx)
	}

	if err != nil {
		if !errors.Is(err, datasource.ErrUnavailable) {
			b.logger.Warn().Err(err).Str("context", string(kind)).Msg("Context fetch failed")
		}
		return NoData
	}
	if doc.Empty() {
		return NoData
	}
	return doc.Pretty()
}
