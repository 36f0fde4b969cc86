package retrieval

import (
	"context"
	"time"

	"tutor-support-bot/internal/database"
	"tutor-support-bot/internal/embedding"
	"tutor-support-bot/internal/logger"
)

// Disposition - исход поиска ответа на вопрос.
type Disposition int

const (
	// нашелся один уверенный ответ
	Answered Disposition = iota
	// несколько кандидатов, пользователь выбирает сам
	Disambiguate
	// ничего не нашлось, остается только тьютор
	Unanswered
)

// Пороговые значения - поведенческий контракт, а не настройки.
// Триггер подсказок сравнивает лучшего кандидата с suggestDistance,
// в список попадают только кандидаты ближе candidateDistance.
const (
	answerDistance    = 0.25
	suggestDistance   = 0.45
	candidateDistance = 0.5
)

const searchLimit = 3

// Source - стадия, давшая результат.
type Source int

const (
	SourceNone Source = iota
	SourceLexical
	SourceSemantic
)

type Result struct {
	Disposition Disposition
	Source      Source
	Answer      *database.FaqEntry
	Candidates  []database.FaqEntry
}

// Store - пути чтения FAQ, нужные поиску.
type Store interface {
	LexicalSearchFaq(ctx context.Context, text string, limit int) ([]database.FaqEntry, error)
	VectorSearchFaq(ctx context.Context, embedding []float32, limit int) ([]database.FaqHit, error)
}

// Engine - гибридный поиск: сначала точное совпадение по словам,
// затем векторный поиск по смыслу. Любой сбой коллаборатора
// деградирует в Unanswered и не роняет обработку события.
type Engine struct {
	store    Store
	embedder embedding.Provider

	embedTimeout time.Duration
}

func New(store Store, embedder embedding.Provider, embedTimeout time.Duration) *Engine {
	return &Engine{
		store:        store,
		embedder:     embedder,
		embedTimeout: embedTimeout,
	}
}

// Ask классифицирует вопрос студента. Лексические совпадения всегда
// важнее векторных: если нашлось хоть одно, эмбеддинг не запрашивается.
// onSemantic (опционально) вызывается перед векторной стадией - бот
// успевает предупредить пользователя, что поиск идет по смыслу.
func (e *Engine) Ask(ctx context.Context, question string, onSemantic func()) Result {
	hits, err := e.store.LexicalSearchFaq(ctx, question, searchLimit)
	if err != nil {
		logger.Warning("retrieval - lexical search", err)
		return Result{Disposition: Unanswered}
	}

	if len(hits) == 1 {
		return Result{Disposition: Answered, Source: SourceLexical, Answer: &hits[0]}
	}
	if len(hits) > 1 {
		return Result{Disposition: Disambiguate, Source: SourceLexical, Candidates: hits}
	}

	if onSemantic != nil {
		onSemantic()
	}
	return e.semantic(ctx, question)
}

func (e *Engine) semantic(ctx context.Context, question string) Result {
	embedCtx, cancel := context.WithTimeout(ctx, e.embedTimeout)
	defer cancel()

	vec, err := e.embedder.Embed(embedCtx, question)
	if err != nil {
		logger.Warning("retrieval - embed", err)
		return Result{Disposition: Unanswered}
	}

	hits, err := e.store.VectorSearchFaq(ctx, vec, searchLimit)
	if err != nil {
		logger.Warning("retrieval - vector search", err)
		return Result{Disposition: Unanswered}
	}
	if len(hits) == 0 {
		return Result{Disposition: Unanswered}
	}

	nearest := hits[0]
	if nearest.Distance < answerDistance {
		entry := nearest.FaqEntry
		return Result{Disposition: Answered, Source: SourceSemantic, Answer: &entry}
	}

	if nearest.Distance < suggestDistance {
		var candidates []database.FaqEntry
		for _, h := range hits {
			if h.Distance < candidateDistance {
				candidates = append(candidates, h.FaqEntry)
			}
		}
		if len(candidates) > 0 {
			return Result{Disposition: Disambiguate, Source: SourceSemantic, Candidates: candidates}
		}
	}

	return Result{Disposition: Unanswered}
}
