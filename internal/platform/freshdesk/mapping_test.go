package freshdesk

import "testing"

func TestPriorityName(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{1, "low"},
		{2, "medium"},
		{3, "high"},
		{4, "urgent"},
		{0, "unknown"},
		{99, "unknown"},
	}
	for _, tt := range tests {
		if got := PriorityName(tt.code); got != tt.want {
			t.Errorf("PriorityName(%d) = %q, want %q", tt.code, got, tt.want)
		}
	}
}

func TestTicketStatusName(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{2, "open"},
		{3, "pending"},
		{4, "resolved"},
		{5, "closed"},
		{1, "unknown"},
	}
	for _, tt := range tests {
		if got := TicketStatusName(tt.code); got != tt.want {
			t.Errorf("TicketStatusName(%d) = %q, want %q", tt.code, got, tt.want)
		}
	}
}

func TestArticleStatusName(t *testing.T) {
	if got := ArticleStatusName(1); got != "draft" {
		t.Errorf("ArticleStatusName(1) = %q, want draft", got)
	}
	if got := ArticleStatusName(2); got != "published" {
		t.Errorf("ArticleStatusName(2) = %q, want published", got)
	}
	if got := ArticleStatusName(7); got != "unknown" {
		t.Errorf("ArticleStatusName(7) = %q, want unknown", got)
	}
}
