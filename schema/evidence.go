package schema

// IntentUnknown is the label the upstream classifier emits when it cannot place a clause.
const IntentUnknown = "unknown"

// StatutoryBasis lists the provisions a clause is expected to cite.
// Sections and StateRules are canonical and free of duplicates; build it
// with statute.NewBasis rather than by hand.
type StatutoryBasis struct {
	Act        string   `json:"act"`
	Sections   []string `json:"sections"`
	StateRules []string `json:"state_rules"`
}

// Empty reports whether the basis names no anchors.
func (b *StatutoryBasis) Empty() bool {
	return b == nil || (len(b.Sections) == 0 && len(b.StateRules) == 0)
}

// ClauseQueryContext is the per-clause input of a retrieval call.
type ClauseQueryContext struct {
	ClauseID        string          `json:"clause_id"`
	Intent          string          `json:"intent"`
	Basis           *StatutoryBasis `json:"statutory_basis,omitempty"`
	Snippet         string          `json:"clause_snippet"`
	ChunkConfidence *float64        `json:"chunk_confidence,omitempty"`
	Jurisdiction    string          `json:"jurisdiction"`
	IndexHint       string          `json:"index_hint,omitempty"`
}

// Sections returns the expected canonical sections, nil-safe.
func (c ClauseQueryContext) Sections() []string {
	if c.Basis == nil {
		return nil
	}
	return c.Basis.Sections
}

// Rules returns the expected canonical state rules, nil-safe.
func (c ClauseQueryContext) Rules() []string {
	if c.Basis == nil {
		return nil
	}
	return c.Basis.StateRules
}

// Diagnostics summarises how well the final evidence supports the clause.
type Diagnostics struct {
	Coverage         bool     `json:"coverage"`
	AnchorMatch      bool     `json:"anchor_match"`
	NoiseRatio       float64  `json:"noise_ratio"`
	Groundedness     float64  `json:"groundedness"`
	ChunkConfidence  float64  `json:"chunk_confidence"`
	ExpectedSections []string `json:"expected_sections"`
	ExpectedRules    []string `json:"expected_rules"`
	MatchedSections  []string `json:"matched_sections"`
	MatchedRules     []string `json:"matched_rules"`
	Reasons          []string `json:"reasons,omitempty"`
}

// Resolution is the three-way verdict on evidence support.
type Resolution string

const (
	ResolutionExplicit     Resolution = "EXPLICIT_ALIGNMENT"
	ResolutionImplied      Resolution = "IMPLIED_ALIGNMENT"
	ResolutionInsufficient Resolution = "INSUFFICIENT"
)

// Evidence is one entry of the final evidence list.
type Evidence struct {
	ID           string       `json:"id"`
	Source       string       `json:"source"`
	DocumentType DocumentType `json:"document_type"`
	Jurisdiction string       `json:"jurisdiction"`
	State        string       `json:"state,omitempty"`
	SectionLabel string       `json:"section_label,omitempty"`
	Content      string       `json:"content"`
	Score        float64      `json:"score"`
	IsAnchor     bool         `json:"is_anchor"`
}

// NewEvidence copies a scored candidate into its output form.
func NewEvidence(c Candidate) Evidence {
	d := c.Document
	return Evidence{
		ID:           d.ID,
		Source:       d.Source,
		DocumentType: d.Type,
		Jurisdiction: d.Jurisdiction,
		State:        d.State,
		SectionLabel: d.SectionLabel,
		Content:      d.Content,
		Score:        c.Score,
		IsAnchor:     c.IsAnchor,
	}
}

// EvidencePack is the result of one clause retrieval. Field names are part
// of the audit log format and must stay stable.
type EvidencePack struct {
	ClauseID     string      `json:"clause_id"`
	RequestID    string      `json:"request_id"`
	Jurisdiction string      `json:"jurisdiction"`
	Query        string      `json:"query"`
	Indexes      []string    `json:"indexes"`
	Evidence     []Evidence  `json:"evidence"`
	Diagnostics  Diagnostics `json:"diagnostics"`
	Resolution   Resolution  `json:"resolution"`
}
