package vectorstore

import "fmt"

// MatchesDocType reports whether a payload satisfies a doc-type filter,
// accepting the legacy payload variants still present in older collections:
// an explicit doc_type match, type=1 or status=1 meaning a KB article, and
// source_type=ticket meaning a ticket.
func MatchesDocType(p Payload, docType string) bool {
	if docType == "" {
		return true
	}
	if p.DocType == docType {
		return true
	}

	switch docType {
	case "article", "kb":
		if legacyOne(p.Type) || legacyOne(p.Status) {
			return true
		}
	case "ticket":
		if p.SourceType == "ticket" {
			return true
		}
	}
	return false
}

// legacyOne reports whether a legacy numeric-or-string payload field equals 1.
func legacyOne(v any) bool {
	switch x := v.(type) {
	case int:
		return x == 1
	case int64:
		return x == 1
	case float64:
		return x == 1
	case string:
		return x == "1"
	default:
		return false
	}
}

// FilterByDocType applies MatchesDocType to an over-fetched result set and
// truncates to topK.
func FilterByDocType(results []SearchResult, docType string, topK int) []SearchResult {
	if topK <= 0 {
		topK = len(results)
	}
	out := make([]SearchResult, 0, topK)
	for _, r := range results {
		if !MatchesDocType(r.Payload, docType) {
			continue
		}
		out = append(out, r)
		if len(out) >= topK {
			break
		}
	}
	return out
}

// ValidateScope rejects unscoped operations early with a uniform message.
func ValidateScope(tenantID, platform string) error {
	if tenantID == "" || platform == "" {
		return fmt.Errorf("%w (tenant=%q platform=%q)", ErrTenantPlatformRequired, tenantID, platform)
	}
	return nil
}
