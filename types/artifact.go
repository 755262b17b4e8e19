package types

import "github.com/google/uuid"

// ArtifactType 产物类型
type ArtifactType string

const (
	ArtifactTypeImage    ArtifactType = "image"
	ArtifactTypeDocument ArtifactType = "document"
	ArtifactTypeCode     ArtifactType = "codeArtifact"
)

// ArtifactStatus 产物状态
type ArtifactStatus string

const (
	ArtifactStatusGenerating ArtifactStatus = "generating"
	ArtifactStatusFinish     ArtifactStatus = "finish"
	ArtifactStatusFailed     ArtifactStatus = "failed"
)

// Artifact is a UI-facing result descriptor emitted by a skill.
type Artifact struct {
	EntityID string         `json:"entityId"`
	Type     ArtifactType   `json:"type"`
	Title    string         `json:"title"`
	Status   ArtifactStatus `json:"status"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// NewArtifact creates an artifact with a freshly generated entity ID.
func NewArtifact(typ ArtifactType, title string, status ArtifactStatus) Artifact {
	return Artifact{
		EntityID: NewEntityID(string(typ)),
		Type:     typ,
		Title:    title,
		Status:   status,
		Metadata: map[string]any{},
	}
}

// NewEntityID returns a unique entity ID with the given prefix.
func NewEntityID(prefix string) string {
	if prefix == "" {
		return uuid.NewString()
	}
	return prefix + "-" + uuid.NewString()
}

// CanvasNodeData is the payload of a canvas node.
type CanvasNodeData struct {
	Title    string         `json:"title"`
	EntityID string         `json:"entityId"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// CanvasNode describes a node the UI should add to the canvas.
type CanvasNode struct {
	Type string         `json:"type"`
	Data CanvasNodeData `json:"data"`
}

// CanvasNodeFor builds the canvas node that displays an artifact.
func CanvasNodeFor(a Artifact) CanvasNode {
	meta := make(map[string]any, len(a.Metadata)+1)
	for k, v := range a.Metadata {
		meta[k] = v
	}
	meta["status"] = string(a.Status)
	return CanvasNode{
		Type: string(a.Type),
		Data: CanvasNodeData{Title: a.Title, EntityID: a.EntityID, Metadata: meta},
	}
}
