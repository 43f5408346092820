package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"lawagent/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrArticleNotFound is returned when an exact article lookup misses.
var ErrArticleNotFound = errors.New("article not found")

// ArticleRepository handles database operations for statute articles.
// The articles table is ingested once by an external pipeline; this
// repository only reads it.
type ArticleRepository struct {
	db *pgxpool.Pool
}

// NewArticleRepository creates a new article repository.
func NewArticleRepository(db *pgxpool.Pool) *ArticleRepository {
	return &ArticleRepository{db: db}
}

// formatVector formats an embedding vector as a string for pgx
func formatVector(embedding []float64) string {
	if len(embedding) == 0 {
		return "[]"
	}
	var parts []string
	for _, v := range embedding {
		parts = append(parts, fmt.Sprintf("%.6f", v))
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// SearchByEmbedding performs a nearest-neighbor search over article
// embeddings, optionally filtered to one legal code.
// embedding: query embedding vector (768 dimensions)
// legalCode: statute collection filter, "" for no filter
// limit: maximum number of articles to return
func (r *ArticleRepository) SearchByEmbedding(
	ctx context.Context,
	embedding []float64,
	legalCode string,
	limit int,
) ([]models.Article, error) {
	if len(embedding) != 768 {
		return nil, fmt.Errorf("embedding must be 768 dimensions, got %d", len(embedding))
	}

	vectorStr := formatVector(embedding)

	var codeFilter string
	var args []interface{}
	if legalCode == "" {
		codeFilter = "TRUE"
		args = []interface{}{vectorStr, limit}
	} else {
		codeFilter = "legal_code = $2"
		args = []interface{}{vectorStr, legalCode, limit}
	}

	query := fmt.Sprintf(`
		SELECT
			article_id,
			legal_code,
			article_no,
			article_text,
			embedding <=> $1::vector AS distance
		FROM articles
		WHERE %s
		ORDER BY
			embedding <=> $1::vector
		LIMIT $%d`, codeFilter, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query articles: %w", err)
	}
	defer rows.Close()

	var articles []models.Article
	for rows.Next() {
		var a models.Article
		err := rows.Scan(
			&a.ID,
			&a.LegalCode,
			&a.ArticleNo,
			&a.Text,
			&a.Distance,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan article: %w", err)
		}
		articles = append(articles, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating articles: %w", err)
	}

	return articles, nil
}

// GetByID retrieves one article by its canonical id (e.g. "형법 제12조").
func (r *ArticleRepository) GetByID(ctx context.Context, articleID string) (*models.Article, error) {
	a := &models.Article{}
	query := `
		SELECT article_id, legal_code, article_no, article_text
		FROM articles
		WHERE article_id = $1`

	err := r.db.QueryRow(ctx, query, articleID).Scan(
		&a.ID,
		&a.LegalCode,
		&a.ArticleNo,
		&a.Text,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrArticleNotFound
		}
		return nil, fmt.Errorf("failed to get article %s: %w", articleID, err)
	}

	return a, nil
}
