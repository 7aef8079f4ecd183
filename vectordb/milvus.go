package vectordb

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/grounding/common/logger"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/grounding/config"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/grounding/schema"
)

// Milvus collection fields. Every scalar is a VarChar.
const (
	milvusIDField           = "id"
	milvusContentField      = "content"
	milvusSourceField       = "source"
	milvusTypeField         = "document_type"
	milvusJurisdictionField = "jurisdiction"
	milvusStateField        = "state"
	milvusLabelField        = "section_label"
)

var milvusOutputFields = []string{
	milvusIDField, milvusContentField, milvusSourceField, milvusTypeField,
	milvusJurisdictionField, milvusStateField, milvusLabelField,
}

// milvusAPI is the part of client.Client the loader needs.
type milvusAPI interface {
	HasCollection(ctx context.Context, collName string) (bool, error)
	Query(ctx context.Context, collectionName string, partitionNames []string, expr string, outputFields []string, opts ...client.SearchQueryOptionFunc) (client.ResultSet, error)
	Search(ctx context.Context, collName string, partitions []string, expr string, outputFields []string, vectors []entity.Vector, vectorField string, metricType entity.MetricType, topK int, sp entity.SearchParam, opts ...client.SearchQueryOptionFunc) ([]client.SearchResult, error)
}

// remoteLayout maps (jurisdiction, index) onto backend collection names.
type remoteLayout struct {
	pattern       string
	indexes       []string
	jurisdictions []string
}

func newRemoteLayout(cfg config.VectorDBConfig) remoteLayout {
	return remoteLayout{
		pattern:       cfg.CollectionPattern,
		indexes:       slices.Clone(cfg.Indexes),
		jurisdictions: slices.Clone(cfg.Jurisdictions),
	}
}

func (l remoteLayout) collection(jurisdiction, index string) string {
	r := strings.NewReplacer("{jurisdiction}", jurisdiction, "{index}", index)
	return r.Replace(l.pattern)
}

func (l remoteLayout) check(jurisdiction string) error {
	if !slices.Contains(l.jurisdictions, jurisdiction) {
		return fmt.Errorf("%w %q", ErrUnknownJurisdiction, jurisdiction)
	}
	return nil
}

// MilvusLoader serves per-jurisdiction collections from Milvus. Document
// tables are read once at load time; searches go to the server.
type MilvusLoader struct {
	client      milvusAPI
	layout      remoteLayout
	vectorField string
	metric      entity.MetricType
}

func NewMilvusLoader(ctx context.Context, cfg config.VectorDBConfig) (*MilvusLoader, error) {
	addr := cfg.Host
	if cfg.Port > 0 {
		addr = fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	}
	c, err := client.NewClient(ctx, client.Config{
		Address:  addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DBName:   cfg.Database,
	})
	if err != nil {
		return nil, fmt.Errorf("connect milvus %s: %w", addr, err)
	}
	return newMilvusLoader(c, cfg), nil
}

func newMilvusLoader(c milvusAPI, cfg config.VectorDBConfig) *MilvusLoader {
	field := cfg.Search.VectorField
	if field == "" {
		field = "vector"
	}
	metric := entity.MetricType(strings.ToUpper(cfg.Search.MetricType))
	if metric == "" {
		metric = entity.IP
	}
	return &MilvusLoader{client: c, layout: newRemoteLayout(cfg), vectorField: field, metric: metric}
}

func (l *MilvusLoader) Close() error {
	if c, ok := l.client.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (l *MilvusLoader) Jurisdictions(context.Context) ([]string, error) {
	return sortedUnique(slices.Clone(l.layout.jurisdictions)), nil
}

func (l *MilvusLoader) Load(ctx context.Context, jurisdiction string) (*Set, error) {
	if err := l.layout.check(jurisdiction); err != nil {
		return nil, err
	}
	var indexes []Index
	for _, name := range l.layout.indexes {
		coll := l.layout.collection(jurisdiction, name)
		ok, err := l.client.HasCollection(ctx, coll)
		if err != nil {
			return nil, fmt.Errorf("milvus: check collection %s: %w", coll, err)
		}
		if !ok {
			logger.Debugf("milvus: collection %s not found, index %s unavailable", coll, name)
			continue
		}
		idx, err := l.loadIndex(ctx, jurisdiction, name, coll)
		if err != nil {
			return nil, err
		}
		indexes = append(indexes, idx)
	}
	return NewSet(jurisdiction, indexes...), nil
}

func (l *MilvusLoader) loadIndex(ctx context.Context, jurisdiction, name, coll string) (*MilvusIndex, error) {
	rs, err := l.client.Query(ctx, coll, nil, milvusIDField+` != ""`, milvusOutputFields)
	if err != nil {
		return nil, fmt.Errorf("milvus: read collection %s: %w", coll, err)
	}
	docs, err := documentsFromResultSet(rs)
	if err != nil {
		return nil, fmt.Errorf("milvus: read collection %s: %w", coll, err)
	}
	table, err := newDocTable(name, prepare(jurisdiction, name, docs))
	if err != nil {
		return nil, err
	}
	return &MilvusIndex{name: name, collection: coll, loader: l, docTable: table}, nil
}

func documentsFromResultSet(rs client.ResultSet) ([]schema.Document, error) {
	idCol := rs.GetColumn(milvusIDField)
	if idCol == nil {
		return nil, fmt.Errorf("missing %q column", milvusIDField)
	}
	str := func(field string, i int) string {
		col := rs.GetColumn(field)
		if col == nil || i >= col.Len() {
			return ""
		}
		v, err := col.Get(i)
		if err != nil {
			return ""
		}
		s, _ := v.(string)
		return s
	}
	docs := make([]schema.Document, 0, idCol.Len())
	for i := 0; i < idCol.Len(); i++ {
		md := map[string]string{
			"source":        str(milvusSourceField, i),
			"document_type": str(milvusTypeField, i),
			"jurisdiction":  str(milvusJurisdictionField, i),
			"state":         str(milvusStateField, i),
			"section_label": str(milvusLabelField, i),
		}
		docs = append(docs, schema.DocumentFromMetadata(str(milvusIDField, i), str(milvusContentField, i), md))
	}
	return docs, nil
}

type MilvusIndex struct {
	name       string
	collection string
	loader     *MilvusLoader
	docTable
}

func (m *MilvusIndex) Name() string { return m.name }

func (m *MilvusIndex) Search(ctx context.Context, vec []float32, topK int) ([]schema.Candidate, error) {
	if topK <= 0 || m.Count() == 0 {
		return []schema.Candidate{}, nil
	}
	sp, err := entity.NewIndexFlatSearchParam()
	if err != nil {
		return nil, err
	}
	res, err := m.loader.client.Search(ctx, m.collection, nil, "", nil,
		[]entity.Vector{entity.FloatVector(vec)}, m.loader.vectorField, m.loader.metric, topK, sp)
	if err != nil {
		return nil, fmt.Errorf("milvus: search %s: %w", m.collection, err)
	}
	var hits []hit
	for _, r := range res {
		if r.Err != nil {
			return nil, fmt.Errorf("milvus: search %s: %w", m.collection, r.Err)
		}
		for i := 0; i < r.ResultCount; i++ {
			v, err := r.IDs.Get(i)
			if err != nil {
				return nil, fmt.Errorf("milvus: search %s: %w", m.collection, err)
			}
			id := fmt.Sprint(v)
			score := 0.0
			if i < len(r.Scores) {
				score = float64(r.Scores[i])
			}
			hits = append(hits, hit{id: id, score: score})
		}
	}
	return m.candidates(m.name, hits), nil
}
