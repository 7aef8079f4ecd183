package vectordb

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/grounding/common/logger"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/grounding/config"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/grounding/schema"
)

// pgQuerier is satisfied by *pgxpool.Pool and pgx.Tx.
type pgQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGVectorLoader serves per-jurisdiction tables from Postgres with the
// pgvector extension. Each table has the columns
// id, content, source, document_type, jurisdiction, state, section_label
// and embedding vector(n).
type PGVectorLoader struct {
	db     pgQuerier
	pool   *pgxpool.Pool
	layout remoteLayout
}

func NewPGVectorLoader(ctx context.Context, cfg config.VectorDBConfig) (*PGVectorLoader, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect pgvector: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping pgvector: %w", err)
	}
	l := newPGVectorLoader(pool, cfg)
	l.pool = pool
	return l, nil
}

func newPGVectorLoader(db pgQuerier, cfg config.VectorDBConfig) *PGVectorLoader {
	return &PGVectorLoader{db: db, layout: newRemoteLayout(cfg)}
}

func (l *PGVectorLoader) Close() error {
	if l.pool != nil {
		l.pool.Close()
	}
	return nil
}

func (l *PGVectorLoader) Jurisdictions(context.Context) ([]string, error) {
	return sortedUnique(slices.Clone(l.layout.jurisdictions)), nil
}

func (l *PGVectorLoader) Load(ctx context.Context, jurisdiction string) (*Set, error) {
	if err := l.layout.check(jurisdiction); err != nil {
		return nil, err
	}
	var indexes []Index
	for _, name := range l.layout.indexes {
		table := l.layout.collection(jurisdiction, name)
		var exists bool
		if err := l.db.QueryRow(ctx, `SELECT to_regclass($1) IS NOT NULL`, table).Scan(&exists); err != nil {
			return nil, fmt.Errorf("pgvector: check table %s: %w", table, err)
		}
		if !exists {
			logger.Debugf("pgvector: table %s not found, index %s unavailable", table, name)
			continue
		}
		idx, err := l.loadIndex(ctx, jurisdiction, name, table)
		if err != nil {
			return nil, err
		}
		indexes = append(indexes, idx)
	}
	return NewSet(jurisdiction, indexes...), nil
}

func (l *PGVectorLoader) loadIndex(ctx context.Context, jurisdiction, name, table string) (*PGVectorIndex, error) {
	ident := pgx.Identifier{table}.Sanitize()
	rows, err := l.db.Query(ctx, fmt.Sprintf(`
		SELECT id, content, source, document_type, jurisdiction,
			COALESCE(state, ''), COALESCE(section_label, '')
		FROM %s
		ORDER BY id`, ident))
	if err != nil {
		return nil, fmt.Errorf("pgvector: read table %s: %w", table, err)
	}
	defer rows.Close()

	var docs []schema.Document
	for rows.Next() {
		var d schema.Document
		var docType string
		if err := rows.Scan(&d.ID, &d.Content, &d.Source, &docType, &d.Jurisdiction, &d.State, &d.SectionLabel); err != nil {
			return nil, fmt.Errorf("pgvector: scan %s: %w", table, err)
		}
		if t, ok := schema.ParseDocumentType(docType); ok {
			d.Type = t
		} else {
			d.Type = schema.DocumentType(docType)
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgvector: read table %s: %w", table, err)
	}
	tbl, err := newDocTable(name, prepare(jurisdiction, name, docs))
	if err != nil {
		return nil, err
	}
	return &PGVectorIndex{name: name, ident: ident, db: l.db, docTable: tbl}, nil
}

type PGVectorIndex struct {
	name  string
	ident string
	db    pgQuerier
	docTable
}

func (p *PGVectorIndex) Name() string { return p.name }

func (p *PGVectorIndex) Search(ctx context.Context, vec []float32, topK int) ([]schema.Candidate, error) {
	if topK <= 0 || p.Count() == 0 {
		return []schema.Candidate{}, nil
	}
	rows, err := p.db.Query(ctx, fmt.Sprintf(`
		SELECT id, 1 - (embedding <=> $1::vector) AS similarity
		FROM %s
		ORDER BY embedding <=> $1::vector
		LIMIT $2`, p.ident), formatVector(vec), topK)
	if err != nil {
		return nil, fmt.Errorf("pgvector: search %s: %w", p.name, err)
	}
	defer rows.Close()

	var hits []hit
	for rows.Next() {
		var h hit
		if err := rows.Scan(&h.id, &h.score); err != nil {
			return nil, fmt.Errorf("pgvector: scan %s: %w", p.name, err)
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgvector: search %s: %w", p.name, err)
	}
	return p.candidates(p.name, hits), nil
}

// formatVector renders an embedding in pgvector's text form.
func formatVector(v []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, x := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(x), 'f', 6, 32))
	}
	b.WriteByte(']')
	return b.String()
}
