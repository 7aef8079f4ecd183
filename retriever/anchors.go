package retriever

import (
	"slices"

	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/grounding/schema"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/grounding/statute"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/grounding/vectordb"
)

// InjectAnchors returns the documents a clause is expected to cite: for each
// expected section the statute chunk whose stable id encodes it (falling back
// to the whole-section chunk), and for each expected rule the state rule
// whose label canonicalizes to it. Order follows the basis; missing anchors
// are simply absent.
func InjectAnchors(basis *schema.StatutoryBasis, set *vectordb.Set) []schema.Document {
	if basis.Empty() || set == nil {
		return nil
	}
	var out []schema.Document
	seen := make(map[string]struct{})
	add := func(d schema.Document) {
		if _, dup := seen[d.ID]; dup {
			return
		}
		seen[d.ID] = struct{}{}
		out = append(out, d)
	}

	statutes := indexesOfType(set, schema.DocTypeStatute)
	for _, sec := range basis.Sections {
		if d, ok := findSection(statutes, sec); ok {
			add(d)
		}
	}

	rules := indexesOfType(set, schema.DocTypeStateRule)
	if len(basis.StateRules) > 0 {
		for _, idx := range rules {
			for _, d := range idx.Documents() {
				for _, r := range statute.DocumentRules(d) {
					if slices.Contains(basis.StateRules, r) {
						add(d)
						break
					}
				}
			}
		}
	}
	return out
}

func findSection(indexes []vectordb.Index, canonical string) (schema.Document, bool) {
	for _, idx := range indexes {
		if d, ok := idx.GetByID(statute.SectionAnchorID(idx.Name(), canonical)); ok {
			return d, true
		}
	}
	for _, idx := range indexes {
		id, ok := statute.SectionBaseAnchorID(idx.Name(), canonical)
		if !ok {
			continue
		}
		if d, ok := idx.GetByID(id); ok {
			return d, true
		}
	}
	return schema.Document{}, false
}

// indexesOfType returns the indexes whose name identifies the given type,
// in name order.
func indexesOfType(set *vectordb.Set, t schema.DocumentType) []vectordb.Index {
	var out []vectordb.Index
	for _, name := range set.Names() {
		if it, ok := schema.LookupDocumentType(name); ok && it == t {
			idx, _ := set.Get(name)
			out = append(out, idx)
		}
	}
	return out
}

// AnchorCandidates marks anchor documents for the candidate pool.
func AnchorCandidates(docs []schema.Document) []schema.Candidate {
	out := make([]schema.Candidate, len(docs))
	for i, d := range docs {
		out[i] = schema.Candidate{Document: d, IsAnchor: true}
	}
	return out
}
