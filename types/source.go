package types

// SourceKind tells where a Source was retrieved from.
type SourceKind string

const (
	SourceKindURL       SourceKind = "url"
	SourceKindKnowledge SourceKind = "knowledgeBase"
	SourceKindWebSearch SourceKind = "webSearch"
	SourceKindMentioned SourceKind = "mentioned"
)

// Source is a normalized record of retrieved content, used for model context and UI citation.
type Source struct {
	URL         string         `json:"url,omitempty"`
	Title       string         `json:"title,omitempty"`
	PageContent string         `json:"pageContent"`
	Kind        SourceKind     `json:"kind,omitempty"`
	EntityID    string         `json:"entityId,omitempty"`
	Score       float64        `json:"score,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Key returns a value identifying the source for de-duplication.
func (s Source) Key() string {
	switch {
	case s.EntityID != "":
		return string(s.Kind) + ":" + s.EntityID
	case s.URL != "":
		return "url:" + s.URL
	default:
		return "title:" + s.Title
	}
}
