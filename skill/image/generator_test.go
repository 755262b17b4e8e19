package image

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/BaSui01/skillflow/config"
	"github.com/BaSui01/skillflow/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sseServer 以 OpenAI 风格的 SSE 分块写出 pieces，写完后按 hold 保持连接
func sseServer(t *testing.T, pieces []string, hold time.Duration, inspect func(*http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if inspect != nil {
			inspect(r)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, p := range pieces {
			chunk, _ := json.Marshal(map[string]any{
				"choices": []map[string]any{{"delta": map[string]string{"content": p}}},
			})
			fmt.Fprintf(w, "data: %s\n\n", chunk)
			flusher.Flush()
		}
		if hold > 0 {
			select {
			case <-r.Context().Done():
			case <-time.After(hold):
			}
			return
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestGenerator(timeout time.Duration, maxBuffer int) *Generator {
	return NewGenerator(nil, config.ImageConfig{Timeout: timeout, MaxBufferBytes: maxBuffer}, nil)
}

func TestGenerate_SendsStreamingRequest(t *testing.T) {
	var body wireRequest
	var auth string
	srv := sseServer(t, []string{"Done! ![fox](https://cdn.example.com/fox.png)", "\ngen_id: `", "gen-42`"}, 0, func(r *http.Request) {
		auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&body)
	})

	res, err := newTestGenerator(5*time.Second, 0).Generate(context.Background(), Request{
		Endpoint: srv.URL, APIKey: "sk-img", Model: "img-1", Prompt: "a red fox", Ratio: "16:9", ReferenceGenID: "gen-1",
	})
	require.NoError(t, err)
	assert.Equal(t, Result{URL: "https://cdn.example.com/fox.png", GenID: "gen-42"}, res)

	assert.Equal(t, "Bearer sk-img", auth)
	assert.True(t, body.Stream)
	assert.Equal(t, "img-1", body.Model)
	require.Len(t, body.Messages, 1)
	assert.Equal(t, "user", body.Messages[0].Role)
	assert.Contains(t, body.Messages[0].Content, "```json")
	assert.Contains(t, body.Messages[0].Content, `"ratio": "16:9"`)
	assert.Contains(t, body.Messages[0].Content, `"gen_id": "gen-1"`)
}

func TestGenerate_StopsReadingOnceBothMarkersFound(t *testing.T) {
	srv := sseServer(t, []string{"![a](https://cdn.example.com/a.png) gen_id: `g1`"}, 10*time.Second, nil)

	start := time.Now()
	res, err := newTestGenerator(30*time.Second, 0).Generate(context.Background(), Request{
		Endpoint: srv.URL, APIKey: "k", Prompt: "p",
	})
	require.NoError(t, err)
	assert.Equal(t, "g1", res.GenID)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestGenerate_RawTextStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "processing...\n![img](https://cdn.example.com/raw.png)\ngen_id: `raw-1`\n")
	}))
	defer srv.Close()

	res, err := newTestGenerator(5*time.Second, 0).Generate(context.Background(), Request{Endpoint: srv.URL, APIKey: "k", Prompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, Result{URL: "https://cdn.example.com/raw.png", GenID: "raw-1"}, res)
}

func TestGenerate_URLWithoutGenIDSucceeds(t *testing.T) {
	srv := sseServer(t, []string{"![a](https://cdn.example.com/a.png)"}, 0, nil)

	res, err := newTestGenerator(5*time.Second, 0).Generate(context.Background(), Request{Endpoint: srv.URL, APIKey: "k", Prompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/a.png", res.URL)
	assert.Empty(t, res.GenID)
}

func TestGenerate_ValidationErrors(t *testing.T) {
	g := newTestGenerator(time.Second, 0)

	_, err := g.Generate(context.Background(), Request{Endpoint: "http://x", APIKey: "k", Prompt: "  "})
	assert.True(t, types.IsErrorCode(err, types.ErrMissingPrompt))

	_, err = g.Generate(context.Background(), Request{Endpoint: "http://x", Prompt: "p"})
	assert.True(t, types.IsErrorCode(err, types.ErrMissingAPIKey))

	_, err = g.Generate(context.Background(), Request{APIKey: "k", Prompt: "p"})
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidRequest))
}

func TestGenerate_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"quota"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := newTestGenerator(time.Second, 0).Generate(context.Background(), Request{Endpoint: srv.URL, APIKey: "k", Prompt: "p"})
	assert.True(t, types.IsErrorCode(err, types.ErrUpstreamStatus))
	assert.Contains(t, err.Error(), "429")
}

func TestGenerate_TimeoutWithoutURL(t *testing.T) {
	srv := sseServer(t, []string{"still thinking"}, 5*time.Second, nil)

	_, err := newTestGenerator(150*time.Millisecond, 0).Generate(context.Background(), Request{Endpoint: srv.URL, APIKey: "k", Prompt: "p"})
	assert.True(t, types.IsErrorCode(err, types.ErrResultNotFound), "got %v", err)
}

func TestGenerate_StreamEndsWithoutURL(t *testing.T) {
	srv := sseServer(t, []string{"sorry, I cannot draw that"}, 0, nil)

	_, err := newTestGenerator(time.Second, 0).Generate(context.Background(), Request{Endpoint: srv.URL, APIKey: "k", Prompt: "p"})
	assert.True(t, types.IsErrorCode(err, types.ErrResultNotFound))
}

func TestGenerate_BufferOverflow(t *testing.T) {
	srv := sseServer(t, []string{strings.Repeat("x", 80), strings.Repeat("y", 80)}, 0, nil)

	_, err := newTestGenerator(time.Second, 100).Generate(context.Background(), Request{Endpoint: srv.URL, APIKey: "k", Prompt: "p"})
	assert.True(t, types.IsErrorCode(err, types.ErrBufferOverflow))
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

type brokenBody struct{ sent bool }

func (b *brokenBody) Read(p []byte) (int, error) {
	if !b.sent {
		b.sent = true
		return copy(p, "data: {\"choices\":[{\"delta\":{\"content\":\"half\"}}]}\n"), nil
	}
	return 0, errors.New("connection reset by peer")
}

func (b *brokenBody) Close() error { return nil }

func TestGenerate_UnreadableBody(t *testing.T) {
	client := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return &http.Response{StatusCode: http.StatusOK, Body: io.ReadCloser(&brokenBody{}), Header: http.Header{}, Request: r}, nil
	})}
	g := NewGenerator(client, config.ImageConfig{Timeout: time.Second}, nil)

	_, err := g.Generate(context.Background(), Request{Endpoint: "http://image.invalid", APIKey: "k", Prompt: "p"})
	assert.True(t, types.IsErrorCode(err, types.ErrStreamReadFailed), "got %v", err)
}

// endlessBody 无限输出不含换行的字节并记录读取量
type endlessBody struct{ read int }

func (b *endlessBody) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 'x'
	}
	b.read += len(p)
	return len(p), nil
}

func (b *endlessBody) Close() error { return nil }

func TestGenerate_NewlineFreeStreamStopsAtBufferLimit(t *testing.T) {
	body := &endlessBody{}
	client := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return &http.Response{StatusCode: http.StatusOK, Body: body, Header: http.Header{}, Request: r}, nil
	})}
	const limit = 64 << 10
	g := NewGenerator(client, config.ImageConfig{Timeout: 5 * time.Second, MaxBufferBytes: limit}, nil)

	_, err := g.Generate(context.Background(), Request{Endpoint: "http://image.invalid", APIKey: "k", Prompt: "p"})
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrBufferOverflow), "got %v", err)
	assert.LessOrEqual(t, body.read, 2*limit, "stream read past the buffer limit")
}
