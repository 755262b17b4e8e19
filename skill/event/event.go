package event

import (
	"context"
	"time"

	"github.com/BaSui01/skillflow/types"
)

// Kind 事件类型
type Kind string

const (
	KindLog            Kind = "log"
	KindStructuredData Kind = "structuredData"
	KindArtifact       Kind = "artifact"
	KindCreateNode     Kind = "create_node"
	KindError          Kind = "error"
	KindStream         Kind = "stream"
	KindEnd            Kind = "end"
)

// Event 是技能运行期间推送给 UI 的单条事件。
type Event struct {
	Kind           Kind              `json:"event"`
	SkillName      string            `json:"skillName,omitempty"`
	RunID          string            `json:"runId,omitempty"`
	Step           string            `json:"step,omitempty"`
	Log            *Log              `json:"log,omitempty"`
	StructuredData *StructuredData   `json:"structuredData,omitempty"`
	Artifact       *types.Artifact   `json:"artifact,omitempty"`
	Node           *types.CanvasNode `json:"node,omitempty"`
	Content        string            `json:"content,omitempty"`
	Error          string            `json:"error,omitempty"`
	Timestamp      time.Time         `json:"timestamp"`
}

// Log 本地化日志：Key 由 UI 翻译，Args 为插值参数。
type Log struct {
	Key  string         `json:"key"`
	Args map[string]any `json:"args,omitempty"`
}

// StructuredData 分块结构化数据。
type StructuredData struct {
	Key         string `json:"key"`
	Data        any    `json:"data"`
	IsPartial   bool   `json:"isPartial"`
	ChunkIndex  int    `json:"chunkIndex"`
	TotalChunks int    `json:"totalChunks"`
}

// Emitter 接收事件。实现必须可被同一次调用中的顺序节点安全调用。
type Emitter interface {
	Emit(ctx context.Context, ev Event)
}

// EmitterFunc 函数适配器
type EmitterFunc func(ctx context.Context, ev Event)

// Emit implements Emitter.
func (f EmitterFunc) Emit(ctx context.Context, ev Event) { f(ctx, ev) }

// ====== 便捷构造 ======

func emit(ctx context.Context, e Emitter, ev Event) {
	if e == nil {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	if ev.RunID == "" {
		ev.RunID, _ = types.RunID(ctx)
	}
	if ev.SkillName == "" {
		ev.SkillName, _ = types.SkillName(ctx)
	}
	e.Emit(ctx, ev)
}

// EmitLog 发送 log 事件
func EmitLog(ctx context.Context, e Emitter, step, key string, args map[string]any) {
	emit(ctx, e, Event{Kind: KindLog, Step: step, Log: &Log{Key: key, Args: args}})
}

// EmitArtifact 发送 artifact 事件
func EmitArtifact(ctx context.Context, e Emitter, a types.Artifact) {
	emit(ctx, e, Event{Kind: KindArtifact, Artifact: &a})
}

// EmitCreateNode 发送 create_node 事件
func EmitCreateNode(ctx context.Context, e Emitter, node types.CanvasNode) {
	emit(ctx, e, Event{Kind: KindCreateNode, Node: &node})
}

// EmitError 发送 error 事件
func EmitError(ctx context.Context, e Emitter, step string, err error) {
	if err == nil {
		return
	}
	emit(ctx, e, Event{Kind: KindError, Step: step, Error: err.Error()})
}

// EmitStream 发送助手文本增量
func EmitStream(ctx context.Context, e Emitter, step, delta string) {
	if delta == "" {
		return
	}
	emit(ctx, e, Event{Kind: KindStream, Step: step, Content: delta})
}

// EmitEnd 发送结束事件
func EmitEnd(ctx context.Context, e Emitter) {
	emit(ctx, e, Event{Kind: KindEnd})
}

// EmitStructuredData 将 items 按 chunkSize 拆分为有序分块发送。
// chunkSize <= 0 或数据足够小时只发送一个完整分块。除最后一块外 IsPartial 为 true。
func EmitStructuredData[T any](ctx context.Context, e Emitter, key string, items []T, chunkSize int) int {
	if chunkSize <= 0 || len(items) <= chunkSize {
		emit(ctx, e, Event{Kind: KindStructuredData, StructuredData: &StructuredData{
			Key: key, Data: items, ChunkIndex: 0, TotalChunks: 1,
		}})
		return 1
	}
	total := (len(items) + chunkSize - 1) / chunkSize
	for i := 0; i < total; i++ {
		end := min((i+1)*chunkSize, len(items))
		emit(ctx, e, Event{Kind: KindStructuredData, StructuredData: &StructuredData{
			Key:         key,
			Data:        items[i*chunkSize : end],
			IsPartial:   i < total-1,
			ChunkIndex:  i,
			TotalChunks: total,
		}})
	}
	return total
}
