package event

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// =============================================================================
// 📦 Emitter 实现
// =============================================================================

// Nop 丢弃所有事件
var Nop Emitter = EmitterFunc(func(context.Context, Event) {})

// ChannelEmitter 将事件写入带缓冲通道，Close 只关闭一次。
// 缓冲区满时 Emit 阻塞直到消费者读取或 ctx 结束。
type ChannelEmitter struct {
	ch        chan Event
	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
}

// NewChannelEmitter 创建通道发射器
func NewChannelEmitter(buffer int) *ChannelEmitter {
	if buffer < 0 {
		buffer = 0
	}
	return &ChannelEmitter{ch: make(chan Event, buffer)}
}

// Emit implements Emitter.
func (c *ChannelEmitter) Emit(ctx context.Context, ev Event) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.ch <- ev:
	case <-ctx.Done():
	}
}

// Events 返回只读事件通道，Close 后通道关闭。
func (c *ChannelEmitter) Events() <-chan Event {
	return c.ch
}

// Close 关闭通道，重复调用安全。
func (c *ChannelEmitter) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		close(c.ch)
		c.mu.Unlock()
	})
}

// Recorder 在内存中记录事件
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// NewRecorder 创建记录器
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Emit implements Emitter.
func (r *Recorder) Emit(_ context.Context, ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

// Events 返回事件副本
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Kinds 返回事件类型序列
func (r *Recorder) Kinds() []Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Kind, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Kind
	}
	return out
}

// OfKind 返回指定类型的事件
func (r *Recorder) OfKind(kind Kind) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, ev := range r.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

// Multi 将事件依次分发给多个 Emitter
func Multi(emitters ...Emitter) Emitter {
	return EmitterFunc(func(ctx context.Context, ev Event) {
		for _, e := range emitters {
			if e != nil {
				e.Emit(ctx, ev)
			}
		}
	})
}

// WithLogger 在转发前用 zap 记录事件。stream 事件只在 debug 级别记录。
func WithLogger(next Emitter, logger *zap.Logger) Emitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "skill_event"))
	return EmitterFunc(func(ctx context.Context, ev Event) {
		fields := []zap.Field{
			zap.String("event", string(ev.Kind)),
			zap.String("run_id", ev.RunID),
			zap.String("step", ev.Step),
		}
		switch ev.Kind {
		case KindError:
			logger.Warn("skill error event", append(fields, zap.String("error", ev.Error))...)
		case KindStream:
			logger.Debug("skill stream event", append(fields, zap.Int("delta_len", len(ev.Content)))...)
		case KindLog:
			logger.Info("skill log event", append(fields, zap.String("key", ev.Log.Key))...)
		default:
			logger.Info("skill event", fields...)
		}
		if next != nil {
			next.Emit(ctx, ev)
		}
	})
}
