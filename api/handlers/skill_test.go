package handlers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/BaSui01/skillflow/api"
	"github.com/BaSui01/skillflow/skill"
	"github.com/BaSui01/skillflow/skill/event"
	"github.com/BaSui01/skillflow/testutil/fixtures"
	"github.com/BaSui01/skillflow/types"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// =============================================================================
// 🧪 测试技能
// =============================================================================

// echoSkill 回显查询，并记录收到的运行配置
type echoSkill struct {
	mu   sync.Mutex
	last *skill.RunConfig
	err  error
}

func (s *echoSkill) Name() string        { return "echo" }
func (s *echoSkill) Description() string { return "echoes the query" }
func (s *echoSkill) ConfigSchema() types.ConfigSchema {
	return types.ConfigSchema{Items: []types.ConfigItem{{Key: "upper", InputMode: types.InputModeSwitch, DefaultValue: false}}}
}

func (s *echoSkill) Invoke(ctx context.Context, in *skill.Input, cfg *skill.RunConfig) (*skill.Output, error) {
	s.mu.Lock()
	s.last = cfg
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	answer := in.Query
	if cfg.Resolved.Bool("upper") {
		answer = strings.ToUpper(answer)
	}
	event.EmitLog(ctx, cfg.Emitter, "echo", "echo.start", nil)
	event.EmitStream(ctx, cfg.Emitter, "echo", answer)
	return &skill.Output{Answer: answer, Steps: 1}, nil
}

func (s *echoSkill) lastConfig() *skill.RunConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func newTestMux(t *testing.T, s skill.Skill) *http.ServeMux {
	t.Helper()
	reg := skill.NewRegistry(nil, 0, nil)
	require.NoError(t, reg.Register(s))
	mux := http.NewServeMux()
	NewSkillHandler(reg, RunDefaults{Models: fixtures.DefaultModelMap(), Locale: "en"}, zap.NewNop()).Register(mux)
	return mux
}

func invokeRequest(t *testing.T, path string, body any) *http.Request {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	r := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	r.Header.Set("Content-Type", "application/json")
	return r
}

// =============================================================================
// 🧪 HTTP
// =============================================================================

func TestSkillHandler_List(t *testing.T) {
	mux := newTestMux(t, &echoSkill{})

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/skills", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data []api.SkillInfo `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "echo", resp.Data[0].Name)
	assert.Equal(t, "upper", resp.Data[0].ConfigSchema.Items[0].Key)
}

func TestSkillHandler_InvokeJSON(t *testing.T) {
	s := &echoSkill{}
	mux := newTestMux(t, s)

	noCrawl := false
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, invokeRequest(t, "/api/v1/skills/echo/invoke", api.InvokeRequest{
		Query:   "hello",
		Locale:  "zh-CN",
		Runtime: &api.RuntimeFlags{EnableWebCrawl: &noCrawl},
		Config:  map[string]any{"upper": true},
	}))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Data api.InvokeResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "HELLO", resp.Data.Answer)
	assert.Equal(t, "echo", resp.Data.Skill)
	assert.NotEmpty(t, resp.Data.RunID)

	kinds := make([]event.Kind, 0, len(resp.Data.Events))
	for _, ev := range resp.Data.Events {
		kinds = append(kinds, ev.Kind)
	}
	assert.Equal(t, []event.Kind{event.KindLog, event.KindStream, event.KindEnd}, kinds)

	cfg := s.lastConfig()
	require.NotNil(t, cfg)
	assert.Equal(t, "zh-CN", cfg.Locale)
	assert.False(t, cfg.Runtime.EnableWebCrawl)
	assert.True(t, cfg.Runtime.EnableMentionedContext)
	assert.NotEmpty(t, cfg.Models)
}

func TestSkillHandler_InvokeErrors(t *testing.T) {
	tests := []struct {
		name       string
		skillErr   error
		path       string
		body       string
		ctype      string
		wantStatus int
		wantCode   types.ErrorCode
	}{
		{"unknown skill", nil, "/api/v1/skills/nope/invoke", `{"query":"x"}`, "application/json", http.StatusNotFound, types.ErrSkillNotFound},
		{"bad content type", nil, "/api/v1/skills/echo/invoke", `{"query":"x"}`, "text/plain", http.StatusBadRequest, types.ErrInvalidRequest},
		{"unknown field", nil, "/api/v1/skills/echo/invoke", `{"prompt":"x"}`, "application/json", http.StatusBadRequest, types.ErrInvalidRequest},
		{"skill validation", types.NewError(types.ErrMissingPrompt, "empty"), "/api/v1/skills/echo/invoke", `{"query":""}`, "application/json", http.StatusBadRequest, types.ErrMissingPrompt},
		{"upstream timeout", types.NewError(types.ErrUpstreamTimeout, "slow"), "/api/v1/skills/echo/invoke", `{"query":"x"}`, "application/json", http.StatusGatewayTimeout, types.ErrUpstreamTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := newTestMux(t, &echoSkill{err: tt.skillErr})
			r := httptest.NewRequest(http.MethodPost, tt.path, strings.NewReader(tt.body))
			r.Header.Set("Content-Type", tt.ctype)
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, r)

			assert.Equal(t, tt.wantStatus, w.Code)
			var resp Response
			require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
			require.NotNil(t, resp.Error)
			assert.Equal(t, string(tt.wantCode), resp.Error.Code)
		})
	}
}

func TestSkillHandler_InvokeSSE(t *testing.T) {
	srv := httptest.NewServer(newTestMux(t, &echoSkill{}))
	defer srv.Close()

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/skills/echo/invoke", strings.NewReader(`{"query":"hi"}`))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	var names []string
	var sawDone bool
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			names = append(names, strings.TrimPrefix(line, "event: "))
		case line == "data: [DONE]":
			sawDone = true
		}
	}
	assert.Equal(t, []string{"log", "stream", "end"}, names)
	assert.True(t, sawDone)
}

func TestSkillHandler_InvokeSSEReportsFailureAsEvent(t *testing.T) {
	srv := httptest.NewServer(newTestMux(t, &echoSkill{err: types.NewError(types.ErrUpstreamStatus, "bad gateway")}))
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/skills/echo/invoke", strings.NewReader(`{"query":"hi"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body strings.Builder
	_, _ = bufio.NewReader(resp.Body).WriteTo(&body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body.String(), "event: error")
	assert.Contains(t, body.String(), "UPSTREAM_STATUS")
	assert.Contains(t, body.String(), "event: end")
}

// =============================================================================
// 🧪 WebSocket
// =============================================================================

func TestSkillHandler_WebSocket(t *testing.T) {
	srv := httptest.NewServer(newTestMux(t, &echoSkill{}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/api/v1/skills/echo/ws", nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	require.NoError(t, wsjson.Write(ctx, conn, api.InvokeRequest{Query: "over ws"}))

	var kinds []event.Kind
	var streamed string
	for {
		var ev event.Event
		if err := wsjson.Read(ctx, conn, &ev); err != nil {
			assert.Equal(t, websocket.StatusNormalClosure, websocket.CloseStatus(err))
			break
		}
		kinds = append(kinds, ev.Kind)
		if ev.Kind == event.KindStream {
			streamed += ev.Content
		}
	}
	assert.Equal(t, []event.Kind{event.KindLog, event.KindStream, event.KindEnd}, kinds)
	assert.Equal(t, "over ws", streamed)
}

func TestSkillHandler_WebSocketRejectsGarbage(t *testing.T) {
	srv := httptest.NewServer(newTestMux(t, &echoSkill{}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/api/v1/skills/echo/ws", nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte("not json")))
	_, _, err = conn.Read(ctx)
	assert.Equal(t, websocket.StatusUnsupportedData, websocket.CloseStatus(err))
}

func TestWSEmitter_StalledClientDoesNotPinWriter(t *testing.T) {
	type outcome struct {
		broken  bool
		elapsed time.Duration
	}
	done := make(chan outcome, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()

		e := &wsEmitter{conn: conn, logger: zap.NewNop(), writeTimeout: 50 * time.Millisecond}
		// 与注册表发送结束事件一致，ctx 不可取消
		ctx := context.WithoutCancel(r.Context())
		payload := strings.Repeat("x", 256<<10)
		start := time.Now()
		for i := 0; i < 1000 && !e.broken; i++ {
			e.Emit(ctx, event.Event{Kind: event.KindStream, Content: payload})
		}
		done <- outcome{broken: e.broken, elapsed: time.Since(start)}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	// 客户端从不读取
	select {
	case res := <-done:
		assert.True(t, res.broken, "emitter should give up on a stalled client")
		assert.Less(t, res.elapsed, 5*time.Second)
	case <-ctx.Done():
		t.Fatal("emitter blocked on a client that stopped reading")
	}
}
