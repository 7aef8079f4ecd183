package router

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/grounding/common/logger"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/grounding/schema"
)

// ErrIndexNotAvailable is matched by errors.Is for every NotAvailableError.
var ErrIndexNotAvailable = errors.New("index not available")

// NotAvailableError reports a routing hint that names an index the
// jurisdiction does not have. It is a configuration error and is never
// retried.
type NotAvailableError struct {
	Requested string
	Available []string
}

func (e *NotAvailableError) Error() string {
	return fmt.Sprintf("requested index %q not available (available: %s)",
		e.Requested, strings.Join(e.Available, ", "))
}

func (e *NotAvailableError) Is(target error) bool { return target == ErrIndexNotAvailable }

// DefaultTypePriority orders document types for retrieval: statutes and
// state rules first, then reference agreements, then supplementary sources.
var DefaultTypePriority = []schema.DocumentType{
	schema.DocTypeStatute,
	schema.DocTypeStateRule,
	schema.DocTypeModelAgreement,
	schema.DocTypeNotification,
	schema.DocTypeCaseLaw,
}

// Resolver decides which indexes a clause is retrieved from, and in what
// order.
type Resolver struct {
	// names overrides the position of specific index names.
	names []string
}

// NewResolver returns a resolver. priority, when not empty, lists index
// names that are ranked ahead of everything else in the given order.
func NewResolver(priority []string) *Resolver {
	return &Resolver{names: slices.Clone(priority)}
}

var defaultResolver = NewResolver(nil)

// Resolve is Resolver.Resolve with the default priority.
func Resolve(hint string, available []string) ([]string, error) {
	return defaultResolver.Resolve(hint, available)
}

// Resolve returns the indexes to query. A non-empty hint selects exactly
// that index and fails when it is not available. Without a hint every
// available index is returned: configured names first, then indexes whose
// name identifies a known document type in type priority, then the rest
// sorted by name.
func (r *Resolver) Resolve(hint string, available []string) ([]string, error) {
	avail := slices.Clone(available)
	sort.Strings(avail)
	avail = slices.Compact(avail)

	if hint = strings.TrimSpace(hint); hint != "" {
		if !slices.Contains(avail, hint) {
			return nil, &NotAvailableError{Requested: hint, Available: avail}
		}
		logger.Debugf("router: using requested index %s", hint)
		return []string{hint}, nil
	}

	sort.SliceStable(avail, func(i, j int) bool {
		ti, pi := r.rank(avail[i])
		tj, pj := r.rank(avail[j])
		if ti != tj {
			return ti < tj
		}
		return pi < pj
	})
	return avail, nil
}

// rank returns (tier, position) of an index name.
func (r *Resolver) rank(name string) (int, int) {
	if i := slices.Index(r.names, name); i >= 0 {
		return 0, i
	}
	if t, ok := schema.LookupDocumentType(name); ok {
		return 1, slices.Index(DefaultTypePriority, t)
	}
	return 2, 0
}
