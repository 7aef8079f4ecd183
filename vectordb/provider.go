package vectordb

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/grounding/config"
)

const (
	PROVIDER_TYPE_MEMORY   = "memory"
	PROVIDER_TYPE_MILVUS   = "milvus"
	PROVIDER_TYPE_PGVECTOR = "pgvector"
)

// NewLoader builds the Loader selected by cfg. embed is used by the memory
// backend for snapshot documents that carry no precomputed embedding.
func NewLoader(ctx context.Context, cfg config.VectorDBConfig, embed EmbedFunc) (Loader, error) {
	switch strings.ToLower(cfg.Provider) {
	case PROVIDER_TYPE_MEMORY:
		var src Source
		switch cfg.Snapshot.Source {
		case "s3":
			s3src, err := NewS3Source(ctx, cfg.Snapshot)
			if err != nil {
				return nil, err
			}
			src = s3src
		default:
			src = &FileSource{Root: cfg.Snapshot.Dir}
		}
		return &SnapshotLoader{Source: src, Embed: embed}, nil
	case PROVIDER_TYPE_MILVUS:
		return NewMilvusLoader(ctx, cfg)
	case PROVIDER_TYPE_PGVECTOR:
		return NewPGVectorLoader(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown vectordb provider: %s", cfg.Provider)
	}
}

// Close releases backend connections held by a loader, if any.
func Close(l Loader) error {
	if c, ok := l.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
