package entity

// TimeFormat is the wire format for history and evaluation timestamps.
const TimeFormat = "02/01/2006 15:04"

// Role identifies which side of the conversation produced a history entry.
type Role string

const (
	RoleHuman Role = "human"
	RoleAI    Role = "ai"
)

// Sources maps a source document path to the ordered set of cited pages.
// Pages are de-duplicated and kept in first-seen order.
type Sources map[string][]int

// Add records a page citation for a document, ignoring duplicates.
func (s Sources) Add(document string, page int) {
	for _, p := range s[document] {
		if p == page {
			return
		}
	}
	s[document] = append(s[document], page)
}

// HistoryEntry is a single conversation turn. LLM and Sources are only set on
// AI turns.
type HistoryEntry struct {
	Role      Role    `json:"type"`
	Content   string  `json:"content"`
	Timestamp string  `json:"timestamp"`
	LLM       string  `json:"llm,omitempty"`
	Sources   Sources `json:"sources,omitempty"`
}
