package workflow

import (
	"errors"

	"github.com/SaiNageswarS/support-agent/llm"
	"github.com/SaiNageswarS/support-agent/prompts"
	"github.com/SaiNageswarS/support-agent/search"
)

type EngineBuilder struct {
	engine Engine
}

func NewEngineBuilder() *EngineBuilder {
	return &EngineBuilder{
		engine: Engine{
			topK:         5,
			minRelevance: 0.03,
			recorder:     NoOpRecorder{},
		},
	}
}

func (b *EngineBuilder) WithLLM(client llm.LLMClient) *EngineBuilder {
	b.engine.llm = client
	return b
}

func (b *EngineBuilder) WithSessions(sessions Sessions) *EngineBuilder {
	b.engine.sessions = sessions
	return b
}

func (b *EngineBuilder) WithTickets(store TicketStore, catalog TicketCatalog) *EngineBuilder {
	b.engine.tickets = store
	b.engine.catalog = catalog
	return b
}

func (b *EngineBuilder) WithSearcher(searcher search.Searcher) *EngineBuilder {
	b.engine.searcher = searcher
	return b
}

func (b *EngineBuilder) WithEscalator(escalator *Escalator) *EngineBuilder {
	b.engine.escalator = escalator
	return b
}

func (b *EngineBuilder) WithRecorder(recorder Recorder) *EngineBuilder {
	if recorder != nil {
		b.engine.recorder = recorder
	}
	return b
}

// WithSimilarity sets the number of similar tickets requested and the minimum score kept.
func (b *EngineBuilder) WithSimilarity(topK int, minRelevance float64) *EngineBuilder {
	if topK > 0 {
		b.engine.topK = topK
	}
	if minRelevance >= 0 {
		b.engine.minRelevance = minRelevance
	}
	return b
}

func (b *EngineBuilder) Build() (*Engine, error) {
	e := b.engine
	if e.llm == nil || e.sessions == nil || e.tickets == nil || e.catalog == nil {
		return nil, errors.New("workflow engine needs an llm client, sessions and tickets")
	}
	if e.searcher == nil {
		return nil, errors.New("workflow engine needs a searcher")
	}
	if e.escalator == nil {
		return nil, errors.New("workflow engine needs an escalator")
	}
	e.escalator.recorder = e.recorder

	persona, err := prompts.RenderPersona(true)
	if err != nil {
		return nil, err
	}
	e.persona = persona
	e.steps = e.dispatchTable()
	return &e, nil
}
