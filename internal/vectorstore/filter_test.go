package vectorstore

import "testing"

func TestMatchesDocType(t *testing.T) {
	tests := []struct {
		name    string
		payload Payload
		docType string
		want    bool
	}{
		{"empty filter matches all", Payload{DocType: "ticket"}, "", true},
		{"explicit match", Payload{DocType: "ticket"}, "ticket", true},
		{"explicit mismatch", Payload{DocType: "article"}, "ticket", false},
		{"legacy type=1 is kb", Payload{Type: float64(1)}, "article", true},
		{"legacy status=1 is kb", Payload{Status: "1"}, "article", true},
		{"legacy type=2 is not kb", Payload{Type: float64(2)}, "article", false},
		{"legacy source_type ticket", Payload{SourceType: "ticket"}, "ticket", true},
		{"legacy source_type not article", Payload{SourceType: "ticket"}, "article", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MatchesDocType(tt.payload, tt.docType); got != tt.want {
				t.Errorf("MatchesDocType(%+v, %q) = %v, want %v", tt.payload, tt.docType, got, tt.want)
			}
		})
	}
}

func TestFilterByDocTypeTruncates(t *testing.T) {
	results := []SearchResult{
		{Payload: Payload{DocType: "ticket", OriginalID: "1"}},
		{Payload: Payload{DocType: "article", OriginalID: "2"}},
		{Payload: Payload{DocType: "ticket", OriginalID: "3"}},
		{Payload: Payload{DocType: "ticket", OriginalID: "4"}},
	}
	out := FilterByDocType(results, "ticket", 2)
	if len(out) != 2 {
		t.Fatalf("got %d results, want 2", len(out))
	}
	if out[0].Payload.OriginalID != "1" || out[1].Payload.OriginalID != "3" {
		t.Errorf("wrong results kept: %v, %v", out[0].Payload.OriginalID, out[1].Payload.OriginalID)
	}
}

func TestValidateScope(t *testing.T) {
	if err := ValidateScope("acme", "freshdesk"); err != nil {
		t.Errorf("ValidateScope(full) = %v, want nil", err)
	}
	if err := ValidateScope("acme", ""); err == nil {
		t.Error("ValidateScope without platform should fail")
	}
	if err := ValidateScope("", "freshdesk"); err == nil {
		t.Error("ValidateScope without tenant should fail")
	}
}
