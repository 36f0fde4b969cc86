package database

import (
	"context"
	"strconv"
	"strings"
)

// LexicalSearchFaq - полнотекстовый поиск по вопросу, ответу и
// ключевым словам (колонка search_vector). Результат упорядочен по
// ts_rank, совпадения по словам всегда важнее векторных.
func (s *SQLStore) LexicalSearchFaq(ctx context.Context, text string, limit int) ([]FaqEntry, error) {
	var items []FaqEntry
	err := s.db.WithContext(ctx).Raw(`
		SELECT id, category, question, answer, keywords
		FROM faq_entries
		WHERE search_vector @@ websearch_to_tsquery('russian', ?)
		ORDER BY ts_rank(search_vector, websearch_to_tsquery('russian', ?)) DESC
		LIMIT ?`,
		text, text, limit,
	).Scan(&items).Error
	return items, err
}

// VectorSearchFaq - ближайшие записи по косинусному расстоянию pgvector.
func (s *SQLStore) VectorSearchFaq(ctx context.Context, embedding []float32, limit int) ([]FaqHit, error) {
	var items []FaqHit
	err := s.db.WithContext(ctx).Raw(`
		SELECT id, category, question, answer, keywords,
		       (embedding <=> ?::vector) AS distance
		FROM faq_entries
		WHERE embedding IS NOT NULL
		ORDER BY distance ASC
		LIMIT ?`,
		vectorLiteral(embedding), limit,
	).Scan(&items).Error
	return items, err
}

// InsertFaq пишет запись FAQ. Если вектор отсутствует (провайдер был
// недоступен), embedding остается NULL - такая запись участвует только
// в лексическом поиске.
func (s *SQLStore) InsertFaq(ctx context.Context, f *FaqEntry, embedding []float32) error {
	if embedding == nil {
		return s.db.WithContext(ctx).Exec(`
			INSERT INTO faq_entries (category, question, answer, keywords)
			VALUES (?, ?, ?, ?)`,
			f.Category, f.Question, f.Answer, f.Keywords,
		).Error
	}
	return s.db.WithContext(ctx).Exec(`
		INSERT INTO faq_entries (category, question, answer, keywords, embedding)
		VALUES (?, ?, ?, ?, ?::vector)`,
		f.Category, f.Question, f.Answer, f.Keywords, vectorLiteral(embedding),
	).Error
}

// vectorLiteral - текстовый литерал pgvector вида [0.1,0.2,...].
func vectorLiteral(vec []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range vec {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(v), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}
