package schema

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// MinContentLength is the shortest document body accepted at ingestion.
const MinContentLength = 50

// DocumentType classifies an indexed document.
type DocumentType string

const (
	DocTypeStatute        DocumentType = "statute"
	DocTypeStateRule      DocumentType = "state_rule"
	DocTypeModelAgreement DocumentType = "model_agreement"
	DocTypeNotification   DocumentType = "notification"
	DocTypeCaseLaw        DocumentType = "case_law"
)

// Valid reports whether t is one of the known document types.
func (t DocumentType) Valid() bool {
	switch t {
	case DocTypeStatute, DocTypeStateRule, DocTypeModelAgreement, DocTypeNotification, DocTypeCaseLaw:
		return true
	}
	return false
}

// IsStatutory reports whether documents of this type can satisfy a statutory anchor.
func (t DocumentType) IsStatutory() bool {
	return t == DocTypeStatute || t == DocTypeStateRule
}

// ParseDocumentType accepts the canonical names plus the aliases used by
// older ingestion jobs ("rera_act", "rera_rules", "model_bba", "circular").
func ParseDocumentType(s string) (DocumentType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "statute", "act", "rera_act":
		return DocTypeStatute, true
	case "state_rule", "rule", "rules", "rera_rules":
		return DocTypeStateRule, true
	case "model_agreement", "model_bba", "bba", "agreement":
		return DocTypeModelAgreement, true
	case "notification", "notifications", "circular", "circulars":
		return DocTypeNotification, true
	case "case_law", "caselaw", "judgment", "judgments":
		return DocTypeCaseLaw, true
	}
	return "", false
}

// InferDocumentType derives a document type from an index name such as
// "rera_act" or "maharashtra_rera_rules". Unknown names fall back to
// model_agreement, the least authoritative contractual source.
func InferDocumentType(indexName string) DocumentType {
	if t, ok := LookupDocumentType(indexName); ok {
		return t
	}
	return DocTypeModelAgreement
}

// LookupDocumentType is InferDocumentType without the fallback.
func LookupDocumentType(indexName string) (DocumentType, bool) {
	n := strings.ToLower(indexName)
	switch {
	case strings.Contains(n, "model_bba"), strings.Contains(n, "model_agreement"):
		return DocTypeModelAgreement, true
	case strings.Contains(n, "rera_act"), strings.Contains(n, "statute"):
		return DocTypeStatute, true
	case strings.Contains(n, "rera_rules"), strings.Contains(n, "state_rule"):
		return DocTypeStateRule, true
	case strings.Contains(n, "circular"), strings.Contains(n, "notification"):
		return DocTypeNotification, true
	case strings.Contains(n, "case_law"), strings.Contains(n, "judgment"):
		return DocTypeCaseLaw, true
	}
	return "", false
}

// Document is an immutable entry of a named index.
type Document struct {
	ID           string       `json:"id" yaml:"id"`
	Content      string       `json:"content" yaml:"content"`
	Source       string       `json:"source" yaml:"source"`
	Type         DocumentType `json:"document_type" yaml:"document_type"`
	Jurisdiction string       `json:"jurisdiction" yaml:"jurisdiction"`
	State        string       `json:"state,omitempty" yaml:"state,omitempty"`
	SectionLabel string       `json:"section_label,omitempty" yaml:"section_label,omitempty"`
}

var (
	ErrMissingID       = errors.New("document id is required")
	ErrMissingSource   = errors.New("document source is required")
	ErrContentTooShort = errors.New("document content too short")
	ErrUnknownDocType  = errors.New("unknown document type")
)

// Validate checks the ingestion invariants. Readers never re-validate.
func (d Document) Validate() error {
	if strings.TrimSpace(d.ID) == "" {
		return ErrMissingID
	}
	if strings.TrimSpace(d.Source) == "" {
		return fmt.Errorf("%s: %w", d.ID, ErrMissingSource)
	}
	if n := utf8.RuneCountInString(strings.TrimSpace(d.Content)); n < MinContentLength {
		return fmt.Errorf("%s: %w (%d < %d)", d.ID, ErrContentTooShort, n, MinContentLength)
	}
	if !d.Type.Valid() {
		return fmt.Errorf("%s: %w %q", d.ID, ErrUnknownDocType, d.Type)
	}
	return nil
}

// Metadata flattens the optional fields into string pairs for vector stores
// that only keep string metadata.
func (d Document) Metadata() map[string]string {
	m := map[string]string{
		"source":        d.Source,
		"chunk_id":      d.ID,
		"document_type": string(d.Type),
		"jurisdiction":  d.Jurisdiction,
	}
	if d.State != "" {
		m["state"] = d.State
	}
	if d.SectionLabel != "" {
		m["section_label"] = d.SectionLabel
	}
	return m
}

// DocumentFromMetadata is the inverse of Metadata.
func DocumentFromMetadata(id, content string, md map[string]string) Document {
	t, ok := ParseDocumentType(md["document_type"])
	if !ok {
		t = DocumentType(md["document_type"])
	}
	if id == "" {
		id = md["chunk_id"]
	}
	return Document{
		ID:           id,
		Content:      content,
		Source:       md["source"],
		Type:         t,
		Jurisdiction: md["jurisdiction"],
		State:        md["state"],
		SectionLabel: md["section_label"],
	}
}

// Candidate is a document with the score assigned by the stage that produced it.
type Candidate struct {
	Document Document `json:"document"`
	Score    float64  `json:"score"`
	IsAnchor bool     `json:"is_anchor"`
}

// Documents strips the scores from a candidate list.
func Documents(in []Candidate) []Document {
	out := make([]Document, len(in))
	for i, c := range in {
		out[i] = c.Document
	}
	return out
}
