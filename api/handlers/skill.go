package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/BaSui01/skillflow/api"
	"github.com/BaSui01/skillflow/llm"
	"github.com/BaSui01/skillflow/skill"
	"github.com/BaSui01/skillflow/skill/event"
	"github.com/BaSui01/skillflow/types"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"
)

// WebSocket 等待首条请求消息的时间
const wsRequestTimeout = 30 * time.Second

// 单条事件的写超时。结束事件以不可取消的 ctx 发出，客户端停止读取时由它兜底
const wsWriteTimeout = 10 * time.Second

// =============================================================================
// 🧩 技能 Handler
// =============================================================================

// RunDefaults 请求中未指定时使用的调用参数
type RunDefaults struct {
	Models llm.ModelMap
	Locale string
	// WebSocket 允许的 Origin 模式，为空时只接受同源
	OriginPatterns []string
}

// SkillHandler 列出与调用技能
type SkillHandler struct {
	registry *skill.Registry
	defaults RunDefaults
	logger   *zap.Logger
}

// NewSkillHandler 创建技能处理器
func NewSkillHandler(registry *skill.Registry, defaults RunDefaults, logger *zap.Logger) *SkillHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SkillHandler{
		registry: registry,
		defaults: defaults,
		logger:   logger.With(zap.String("handler", "skill")),
	}
}

// Register 注册路由
func (h *SkillHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/skills", h.HandleList)
	mux.HandleFunc("POST /api/v1/skills/{name}/invoke", h.HandleInvoke)
	mux.HandleFunc("GET /api/v1/skills/{name}/ws", h.HandleWebSocket)
}

// HandleList 处理 GET /api/v1/skills
// @Summary 技能列表
// @Tags 技能
// @Produce json
// @Success 200 {object} Response{data=[]api.SkillInfo}
// @Router /api/v1/skills [get]
func (h *SkillHandler) HandleList(w http.ResponseWriter, _ *http.Request) {
	descs := h.registry.List()
	infos := make([]api.SkillInfo, 0, len(descs))
	for _, d := range descs {
		infos = append(infos, api.SkillInfo{Name: d.Name, Description: d.Description, ConfigSchema: d.ConfigSchema})
	}
	WriteSuccess(w, infos)
}

// HandleInvoke 处理 POST /api/v1/skills/{name}/invoke。
// Accept 为 text/event-stream 时边执行边以 SSE 推送事件，否则执行完成后返回结果与事件列表。
// @Summary 调用技能
// @Tags 技能
// @Accept json
// @Produce json
// @Produce text/event-stream
// @Param name path string true "技能名"
// @Param request body api.InvokeRequest true "调用请求"
// @Success 200 {object} Response{data=api.InvokeResponse}
// @Failure 400 {object} Response
// @Failure 404 {object} Response
// @Router /api/v1/skills/{name}/invoke [post]
func (h *SkillHandler) HandleInvoke(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if _, err := h.registry.Get(name); err != nil {
		WriteError(w, err, h.logger)
		return
	}
	if !ValidateContentType(w, r, h.logger) {
		return
	}
	var req api.InvokeRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	if wantsEventStream(r) {
		h.stream(w, r, name, &req)
		return
	}

	rec := event.NewRecorder()
	cfg := h.runConfig(&req)
	cfg.Emitter = rec
	out, err := h.registry.Invoke(r.Context(), name, &skill.Input{Query: req.Query, Images: req.Images}, cfg)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	resp := api.FromOutput(out)
	resp.Events = rec.Events()
	WriteSuccess(w, resp)
}

func (h *SkillHandler) stream(w http.ResponseWriter, r *http.Request, name string, req *api.InvokeRequest) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		WriteError(w, types.NewError(types.ErrInternalError, "streaming not supported"), h.logger)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // 禁用 nginx 缓冲
	w.WriteHeader(http.StatusOK)

	emitter := &sseEmitter{w: w, flusher: flusher, logger: h.logger}
	cfg := h.runConfig(req)
	cfg.Emitter = emitter
	// 失败已经以 error 事件推送
	if _, err := h.registry.Invoke(r.Context(), name, &skill.Input{Query: req.Query, Images: req.Images}, cfg); err != nil {
		h.logger.Debug("streamed invocation failed", zap.String("skill", name), zap.Error(err))
	}
	emitter.done()
}

// HandleWebSocket 处理 GET /api/v1/skills/{name}/ws：
// 客户端先发送一条 InvokeRequest，随后服务端逐条推送事件，end 事件后正常关闭。
func (h *SkillHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if _, err := h.registry.Get(name); err != nil {
		WriteError(w, err, h.logger)
		return
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.defaults.OriginPatterns})
	if err != nil {
		h.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(maxBodyBytes)

	readCtx, cancel := context.WithTimeout(r.Context(), wsRequestTimeout)
	_, data, err := conn.Read(readCtx)
	cancel()
	if err != nil {
		h.logger.Debug("websocket closed before request", zap.Error(err))
		return
	}
	var req api.InvokeRequest
	if err := json.Unmarshal(data, &req); err != nil {
		h.logger.Debug("invalid websocket request", zap.Error(err))
		_ = conn.Close(websocket.StatusUnsupportedData, "expected a JSON invoke request")
		return
	}

	// 对端关闭时取消调用
	ctx := conn.CloseRead(r.Context())
	emitter := &wsEmitter{conn: conn, logger: h.logger, writeTimeout: wsWriteTimeout}
	cfg := h.runConfig(&req)
	cfg.Emitter = emitter
	if _, err := h.registry.Invoke(ctx, name, &skill.Input{Query: req.Query, Images: req.Images}, cfg); err != nil {
		h.logger.Debug("websocket invocation failed", zap.String("skill", name), zap.Error(err))
	}
	_ = conn.Close(websocket.StatusNormalClosure, "done")
}

func (h *SkillHandler) runConfig(req *api.InvokeRequest) *skill.RunConfig {
	locale := req.Locale
	if locale == "" {
		locale = h.defaults.Locale
	}
	return &skill.RunConfig{
		Locale:      locale,
		Models:      h.defaults.Models,
		Context:     req.Context,
		ChatHistory: req.ChatHistory,
		ProjectID:   req.ProjectID,
		Runtime:     req.Runtime.Apply(skill.DefaultRuntimeFlags()),
		Config:      req.Config,
	}
}

func wantsEventStream(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/event-stream")
}

// =============================================================================
// 📡 事件推送
// =============================================================================

// sseEmitter 每个事件写成一条 "event: <kind>" SSE 消息
type sseEmitter struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	logger  *zap.Logger
	broken  bool
}

func (e *sseEmitter) Emit(_ context.Context, ev event.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		e.logger.Error("failed to marshal event", zap.String("kind", string(ev.Kind)), zap.Error(err))
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.broken {
		return
	}
	if _, err := fmt.Fprintf(e.w, "event: %s\ndata: %s\n\n", ev.Kind, data); err != nil {
		e.broken = true
		e.logger.Debug("sse client went away", zap.Error(err))
		return
	}
	e.flusher.Flush()
}

func (e *sseEmitter) done() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.broken {
		return
	}
	_, _ = fmt.Fprint(e.w, "data: [DONE]\n\n")
	e.flusher.Flush()
}

// wsEmitter WebSocket 不支持并发写，写操作串行化
type wsEmitter struct {
	mu           sync.Mutex
	conn         *websocket.Conn
	logger       *zap.Logger
	writeTimeout time.Duration
	broken       bool
}

func (e *wsEmitter) Emit(ctx context.Context, ev event.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.broken {
		return
	}
	writeCtx, cancel := context.WithTimeout(ctx, e.writeTimeout)
	defer cancel()
	if err := wsjson.Write(writeCtx, e.conn, ev); err != nil {
		e.broken = true
		e.logger.Debug("websocket write failed", zap.Error(err))
	}
}
