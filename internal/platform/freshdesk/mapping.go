package freshdesk

// Freshdesk encodes priority, ticket status, and article status as integers.
// Neutral records carry portable strings; unknown codes map to "unknown" so
// the mapping stays a total function.

var priorityNames = map[int]string{
	1: "low",
	2: "medium",
	3: "high",
	4: "urgent",
}

var ticketStatusNames = map[int]string{
	2: "open",
	3: "pending",
	4: "resolved",
	5: "closed",
}

var articleStatusNames = map[int]string{
	1: "draft",
	2: "published",
}

// PriorityName maps a Freshdesk priority code to its neutral string.
func PriorityName(code int) string {
	if name, ok := priorityNames[code]; ok {
		return name
	}
	return "unknown"
}

// TicketStatusName maps a Freshdesk ticket status code to its neutral string.
func TicketStatusName(code int) string {
	if name, ok := ticketStatusNames[code]; ok {
		return name
	}
	return "unknown"
}

// ArticleStatusName maps a Freshdesk article status code to its neutral string.
func ArticleStatusName(code int) string {
	if name, ok := articleStatusNames[code]; ok {
		return name
	}
	return "unknown"
}
