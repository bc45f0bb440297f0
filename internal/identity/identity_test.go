package identity

import "testing"

func TestNormalizeOriginalID(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"12345", "12345"},
		{"ticket-12345", "12345"},
		{"kb-987", "987"},
		{"  ticket-7  ", "7"},
		{"article-5", "article-5"}, // unknown prefix kept
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeOriginalID(tt.in); got != tt.want {
			t.Errorf("NormalizeOriginalID(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPointIDDeterministic(t *testing.T) {
	a := New("acme", "freshdesk", "ticket-42")
	b := New("acme", "freshdesk", "42")

	if a.Key() != "acme:freshdesk:42" {
		t.Errorf("Key() = %q, want %q", a.Key(), "acme:freshdesk:42")
	}
	if a.PointID() != b.PointID() {
		t.Errorf("PointID not stable across prefix normalization: %s vs %s", a.PointID(), b.PointID())
	}

	// Recomputation yields the same id.
	if a.PointID() != a.PointID() {
		t.Error("PointID not deterministic")
	}

	// Different tenants never collide on the same original id.
	c := New("globex", "freshdesk", "42")
	if a.PointID() == c.PointID() {
		t.Error("PointID collided across tenants")
	}
}

func TestValidate(t *testing.T) {
	if err := (Identity{TenantID: "a", Platform: "p", OriginalID: "1"}).Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
	for _, id := range []Identity{
		{Platform: "p", OriginalID: "1"},
		{TenantID: "a", OriginalID: "1"},
		{TenantID: "a", Platform: "p"},
	} {
		if err := id.Validate(); err == nil {
			t.Errorf("Validate(%+v) = nil, want error", id)
		}
	}
}
