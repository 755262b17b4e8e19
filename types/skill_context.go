package types

// ContextKind identifies which part of a Context bundle an item came from.
type ContextKind string

const (
	ContextKindContent  ContextKind = "content"
	ContextKindResource ContextKind = "resource"
	ContextKindCanvas   ContextKind = "canvas"
	ContextKindProject  ContextKind = "project"
	ContextKindMessage  ContextKind = "message"
)

// ContextItem is one piece of user-selected material.
type ContextItem struct {
	EntityID string         `json:"entityId"`
	Kind     ContextKind    `json:"kind,omitempty"`
	Title    string         `json:"title,omitempty"`
	Content  string         `json:"content,omitempty"`
	URL      string         `json:"url,omitempty"`
	Locale   string         `json:"locale,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Context is the material supplied to a skill alongside the query.
// It is assembled once per invocation and must be treated as read-only afterwards.
type Context struct {
	ContentItems     []ContextItem `json:"contentList,omitempty"`
	Resources        []ContextItem `json:"resources,omitempty"`
	Canvases         []ContextItem `json:"canvases,omitempty"`
	Projects         []ContextItem `json:"projects,omitempty"`
	Messages         []ContextItem `json:"messages,omitempty"`
	WebSearchSources []Source      `json:"webSearchSources,omitempty"`
	URLs             []string      `json:"urls,omitempty"`
}

// IsEmpty reports whether the bundle carries no material at all.
func (c *Context) IsEmpty() bool {
	if c == nil {
		return true
	}
	return len(c.ContentItems) == 0 &&
		len(c.Resources) == 0 &&
		len(c.Canvases) == 0 &&
		len(c.Projects) == 0 &&
		len(c.Messages) == 0 &&
		len(c.WebSearchSources) == 0 &&
		len(c.URLs) == 0
}

// Items returns every item in priority order, tagged with its kind.
func (c *Context) Items() []ContextItem {
	if c == nil {
		return nil
	}
	groups := []struct {
		kind  ContextKind
		items []ContextItem
	}{
		{ContextKindContent, c.ContentItems},
		{ContextKindResource, c.Resources},
		{ContextKindCanvas, c.Canvases},
		{ContextKindProject, c.Projects},
		{ContextKindMessage, c.Messages},
	}
	var out []ContextItem
	for _, g := range groups {
		for _, item := range g.items {
			if item.Kind == "" {
				item.Kind = g.kind
			}
			out = append(out, item)
		}
	}
	return out
}

// EntityIDs returns the entity IDs of every item and web source, in priority order.
func (c *Context) EntityIDs() []string {
	var ids []string
	for _, item := range c.Items() {
		if item.EntityID != "" {
			ids = append(ids, item.EntityID)
		}
	}
	if c != nil {
		for _, s := range c.WebSearchSources {
			if s.EntityID != "" {
				ids = append(ids, s.EntityID)
			}
		}
	}
	return ids
}

// Filter returns a new bundle keeping only material whose entity ID is in ids.
// URLs are kept unchanged.
func (c *Context) Filter(ids []string) *Context {
	if c == nil {
		return &Context{}
	}
	keep := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		keep[id] = struct{}{}
	}
	pick := func(items []ContextItem) []ContextItem {
		var out []ContextItem
		for _, item := range items {
			if _, ok := keep[item.EntityID]; ok {
				out = append(out, item)
			}
		}
		return out
	}
	out := &Context{
		ContentItems: pick(c.ContentItems),
		Resources:    pick(c.Resources),
		Canvases:     pick(c.Canvases),
		Projects:     pick(c.Projects),
		Messages:     pick(c.Messages),
		URLs:         append([]string(nil), c.URLs...),
	}
	for _, s := range c.WebSearchSources {
		if _, ok := keep[s.EntityID]; ok {
			out.WebSearchSources = append(out.WebSearchSources, s)
		}
	}
	return out
}
