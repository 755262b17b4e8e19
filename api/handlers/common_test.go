package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/BaSui01/skillflow/api"
	"github.com/BaSui01/skillflow/types"
)

func decodeErrorBody(t *testing.T, w *httptest.ResponseRecorder) *ErrorInfo {
	t.Helper()
	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	return resp.Error
}

// 技能失败在 JSON 调用路径上的状态码：调用方问题 4xx，上游问题 502/504，图执行问题 500
func TestStatusFor_SkillFailureClasses(t *testing.T) {
	groups := map[int][]types.ErrorCode{
		http.StatusBadRequest:            {types.ErrMissingPrompt, types.ErrMissingAPIKey},
		http.StatusNotFound:              {types.ErrSkillNotFound, types.ErrToolNotFound},
		http.StatusBadGateway:            {types.ErrUpstreamStatus, types.ErrStreamReadFailed, types.ErrResultNotFound},
		http.StatusGatewayTimeout:        {types.ErrUpstreamTimeout},
		http.StatusInternalServerError:   {types.ErrRecursionLimit, types.ErrBufferOverflow},
		http.StatusRequestEntityTooLarge: {types.ErrContextOverflow},
		499:                              {types.ErrCanceled},
	}
	for want, codes := range groups {
		for _, code := range codes {
			got := StatusFor(types.NewError(code, "x"))
			assert.Equal(t, want, got, "code %s", code)
		}
	}
	assert.Equal(t, http.StatusInternalServerError, StatusFor(types.NewError("SOMETHING_NEW", "x")))
}

func TestWriteError_UpstreamStatusKeepsExplicitCode(t *testing.T) {
	// 图片服务返回 503 时保留上游给出的状态
	err := types.NewError(types.ErrUpstreamStatus, "image generation returned HTTP 503").
		WithHTTPStatus(http.StatusServiceUnavailable).WithRetryable(true)

	w := httptest.NewRecorder()
	WriteError(w, err, nil)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	info := decodeErrorBody(t, w)
	assert.Equal(t, "UPSTREAM_STATUS", info.Code)
	assert.True(t, info.Retryable)
}

func TestWriteError_WrappedSkillError(t *testing.T) {
	// 包裹后仍按错误码映射
	inner := types.NewError(types.ErrRecursionLimit, "graph exceeded 25 steps")
	w := httptest.NewRecorder()
	WriteError(w, errors.Join(errors.New("invoke commonQnA"), inner), nil)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "RECURSION_LIMIT", decodeErrorBody(t, w).Code)
}

func TestWriteError_LogLevelFollowsStatus(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)

	WriteError(httptest.NewRecorder(), types.NewError(types.ErrSkillNotFound, "skill not found: nope"), logger)
	WriteError(httptest.NewRecorder(), errors.New("disk full"), logger)

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Equal(t, "SKILL_NOT_FOUND", entries[0].ContextMap()["code"])
	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
	assert.Equal(t, "INTERNAL_ERROR", entries[1].ContextMap()["code"])
}

func TestDecodeJSONBody_InvokeRequest(t *testing.T) {
	t.Run("decodes history and locale", func(t *testing.T) {
		body := `{"query":"hi","locale":"zh-CN","chatHistory":[{"role":"user","content":"earlier"}]}`
		var req api.InvokeRequest
		w := httptest.NewRecorder()
		require.NoError(t, DecodeJSONBody(w, httptest.NewRequest(http.MethodPost, "/api/v1/skills/commonQnA/invoke", strings.NewReader(body)), &req, nil))
		assert.Equal(t, "zh-CN", req.Locale)
		require.Len(t, req.ChatHistory, 1)
		assert.Equal(t, "earlier", req.ChatHistory[0].Content)
	})

	t.Run("typo in field name is rejected", func(t *testing.T) {
		var req api.InvokeRequest
		w := httptest.NewRecorder()
		err := DecodeJSONBody(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"qurey":"hi"}`)), &req, nil)
		assert.True(t, types.IsErrorCode(err, types.ErrInvalidRequest))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("oversized body names the limit", func(t *testing.T) {
		big := `{"query":"` + strings.Repeat("a", maxBodyBytes) + `"}`
		var req api.InvokeRequest
		w := httptest.NewRecorder()
		require.Error(t, DecodeJSONBody(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(big)), &req, nil))
		assert.Equal(t, "request body too large", decodeErrorBody(t, w).Message)
	})

	t.Run("missing body", func(t *testing.T) {
		var req api.InvokeRequest
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/", nil)
		r.Body = http.NoBody
		require.Error(t, DecodeJSONBody(w, r, &req, nil))
		assert.Equal(t, "request body is empty", decodeErrorBody(t, w).Message)
	})
}

func TestValidateContentType_ParamsAndCase(t *testing.T) {
	ok := func(ct string) bool {
		r := httptest.NewRequest(http.MethodPost, "/", nil)
		r.Header.Set("Content-Type", ct)
		return ValidateContentType(httptest.NewRecorder(), r, nil)
	}
	assert.True(t, ok("Application/JSON; charset=UTF-8"))
	assert.False(t, ok("application/jsonp"))
	assert.False(t, ok("text/event-stream"))
}

// ====== ResponseWriter 透传 ======

func TestResponseWriter_FlushReachesRecorder(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := NewResponseWriter(rec)

	_, err := io.WriteString(rw, "event: stream\n\n")
	require.NoError(t, err)
	rw.Flush()

	assert.True(t, rec.Flushed)
	assert.True(t, rw.Written)
	assert.Equal(t, http.StatusOK, rw.StatusCode)
}

func TestResponseWriter_ResponseControllerUnwraps(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := NewResponseWriter(rec)

	require.NoError(t, http.NewResponseController(rw).Flush())
	assert.True(t, rec.Flushed)
	assert.Same(t, http.ResponseWriter(rec), rw.Unwrap())
}

func TestResponseWriter_HijackPassesThrough(t *testing.T) {
	hijacked := make(chan *ResponseWriter, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := NewResponseWriter(w)
		conn, buf, err := rw.Hijack()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		defer conn.Close()
		_, _ = buf.WriteString("HTTP/1.1 101 Switching Protocols\r\nConnection: close\r\n\r\n")
		_ = buf.Flush()
		hijacked <- rw
	}))
	defer srv.Close()

	conn, err := net.DialTimeout("tcp", srv.Listener.Addr().String(), time.Second)
	require.NoError(t, err)
	defer conn.Close()
	_, err = io.WriteString(conn, "GET / HTTP/1.1\r\nHost: test\r\n\r\n")
	require.NoError(t, err)

	status, err := bufio.NewReader(conn).ReadString('\n')
	require.NoError(t, err)
	assert.Contains(t, status, "101")

	select {
	case rw := <-hijacked:
		assert.Equal(t, http.StatusSwitchingProtocols, rw.StatusCode)
		assert.True(t, rw.Written)
	case <-time.After(time.Second):
		t.Fatal("handler never hijacked the connection")
	}
}

func TestResponseWriter_HijackUnsupported(t *testing.T) {
	rw := NewResponseWriter(httptest.NewRecorder())
	_, _, err := rw.Hijack()
	assert.Error(t, err)
	assert.False(t, rw.Written)
}

func TestWriteError_CanceledInvocation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := types.NewError(types.ErrCanceled, "client went away").WithCause(ctx.Err())

	w := httptest.NewRecorder()
	WriteError(w, err, nil)
	assert.Equal(t, 499, w.Code)
}
