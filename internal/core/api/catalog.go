package api

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/solatis/healthsignals/internal/rules"
	"github.com/solatis/healthsignals/internal/types"
)

// CatalogEntry is one configured rule with its metric-independent problems.
type CatalogEntry struct {
	Rule        types.Rule         `json:"rule"`
	Priority    int                `json:"effectivePriority"`
	Diagnostics []types.Diagnostic `json:"diagnostics,omitempty"`
}

// RuleCatalog is the configured rule set as the engine sees it.
type RuleCatalog struct {
	Rules []CatalogEntry `json:"rules"`
	ETag  string         `json:"etag"`
}

// ListRules returns the configured rule file with per-rule diagnostics.
// ETAG-based caching lets clients skip unchanged rule sets.
// The status filter is not applied, so inactive rules can be reviewed.
func (s *EvaluationService) ListRules(ctx context.Context) (*RuleCatalog, error) {
	if s.source == nil {
		return nil, types.ErrNoRuleSource
	}

	ruleSet, err := s.source.Load(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", types.ErrRuleSourceUnavailable, err)
	}

	return BuildCatalog(ruleSet), nil
}

// BuildCatalog compiles rules into catalog entries, preserving sheet order.
func BuildCatalog(ruleSet []types.Rule) *RuleCatalog {
	catalog := &RuleCatalog{Rules: make([]CatalogEntry, 0, len(ruleSet))}
	for _, compiled := range rules.CompileAll(ruleSet) {
		catalog.Rules = append(catalog.Rules, CatalogEntry{
			Rule:        compiled.Rule,
			Priority:    compiled.Priority,
			Diagnostics: compiled.Problems(),
		})
	}
	catalog.ETag = computeETAG(ruleSet)
	return catalog
}

// computeETAG hashes the sorted serialized rules.
// ETAG is content-addressable: same rules always produce same ETAG,
// regardless of row order in the sheet.
func computeETAG(ruleSet []types.Rule) string {
	encoded := make([]string, 0, len(ruleSet))
	for _, r := range ruleSet {
		b, _ := json.Marshal(r)
		encoded = append(encoded, string(b))
	}
	sort.Strings(encoded)

	h := sha256.New()
	for _, e := range encoded {
		h.Write([]byte(e))
		h.Write([]byte{'\n'})
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}
