package handler

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"heritage-guide/internal/catalog"
	"heritage-guide/internal/domain"
	"heritage-guide/internal/throttle"
	"heritage-guide/internal/usecase"
)

type stubChat struct {
	out   usecase.ChatOutput
	in    usecase.ChatInput
	calls int
}

func (s *stubChat) Reply(_ context.Context, in usecase.ChatInput) usecase.ChatOutput {
	s.in = in
	s.calls++
	return s.out
}

type stubScan struct {
	out   usecase.ScanOutput
	in    usecase.ScanInput
	calls int
}

func (s *stubScan) Classify(_ context.Context, in usecase.ScanInput) usecase.ScanOutput {
	s.in = in
	s.calls++
	return s.out
}

// unreachableLLM fails the test if the handler ever reaches the upstream.
type unreachableLLM struct{ t *testing.T }

func (u unreachableLLM) Complete(context.Context, domain.CompletionRequest) (string, error) {
	u.t.Fatal("upstream must not be called")
	return "", nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestHandler(t *testing.T, chat ChatReplier, scan Classifier, opts ...Option) *Handler {
	t.Helper()
	opts = append([]Option{WithLogger(quietLogger())}, opts...)
	h, err := NewHandler(chat, scan, catalog.Default(), opts...)
	require.NoError(t, err)
	return h
}

func makeEvent(method, path, body string) events.APIGatewayProxyRequest {
	return events.APIGatewayProxyRequest{
		HTTPMethod: method,
		Path:       path,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       body,
	}
}

func parseBody[T any](t *testing.T, body string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(body), &v))
	return v
}

func TestNewHandler_ValidatesDependencies(t *testing.T) {
	_, err := NewHandler(nil, &stubScan{}, catalog.Default())
	require.Error(t, err)

	_, err = NewHandler(&stubChat{}, nil, catalog.Default())
	require.Error(t, err)

	_, err = NewHandler(&stubChat{}, &stubScan{}, nil)
	require.Error(t, err)
}

// ---------------------------------------------------------------------------
// POST /chat
// ---------------------------------------------------------------------------

func TestHandle_Chat_HappyPath(t *testing.T) {
	chat := &stubChat{out: usecase.ChatOutput{Reply: "Keep going.", Mode: domain.ChatModeUpstream}}
	h := newTestHandler(t, chat, &stubScan{})

	resp, err := h.Handle(context.Background(), makeEvent(http.MethodPost, "/chat", `{
		"message": "Apa maknanya?",
		"objectName": "Batik Parang",
		"objectData": {"description": "d", "history": "h", "philosophy": "p", "culturalMeaning": "c"},
		"locale": "ID",
		"history": [{"role": "user", "content": "hi"}, {"role": "assistant", "content": "halo"}]
	}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "application/json", resp.Headers["Content-Type"])

	out := parseBody[chatResponse](t, resp.Body)
	require.Equal(t, chatResponse{Reply: "Keep going.", Mode: "upstream"}, out)

	require.Equal(t, usecase.ChatInput{
		Message:    "Apa maknanya?",
		ObjectName: "Batik Parang",
		Object:     usecase.ObjectFacts{Description: "d", History: "h", Philosophy: "p", CulturalMeaning: "c"},
		Locale:     domain.LocaleID,
		History: []domain.ChatTurn{
			{Role: "user", Content: "hi"},
			{Role: "assistant", Content: "halo"},
		},
	}, chat.in)
}

func TestHandle_Chat_MissingFieldsDefault(t *testing.T) {
	chat := &stubChat{out: usecase.ChatOutput{Reply: "x", Mode: domain.ChatModeMock}}
	h := newTestHandler(t, chat, &stubScan{})

	resp, err := h.Handle(context.Background(), makeEvent(http.MethodPost, "/chat", `{"locale":"fr"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, usecase.ChatInput{Locale: domain.LocaleEN}, chat.in)
}

func TestHandle_Chat_InvalidBody(t *testing.T) {
	cases := map[string]string{
		"not json":      `not-json`,
		"empty body":    ``,
		"null":          `null`,
		"wrong type":    `{"message": 5}`,
		"history shape": `{"history": "nope"}`,
		"array":         `[1,2]`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			chat := &stubChat{}
			h := newTestHandler(t, chat, &stubScan{})

			resp, err := h.Handle(context.Background(), makeEvent(http.MethodPost, "/chat", body))
			require.NoError(t, err)
			require.Equal(t, http.StatusBadRequest, resp.StatusCode)
			require.Equal(t, chatResponse{Reply: "Invalid request.", Mode: "error"}, parseBody[chatResponse](t, resp.Body))
			require.Zero(t, chat.calls)
		})
	}
}

func TestHandle_Chat_BodyTooLarge(t *testing.T) {
	chat := &stubChat{}
	h := newTestHandler(t, chat, &stubScan{}, WithMaxBodyBytes(16))

	resp, err := h.Handle(context.Background(), makeEvent(http.MethodPost, "/chat", `{"message":"`+strings.Repeat("a", 64)+`"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Zero(t, chat.calls)
}

func TestHandle_Chat_NoCredentialUsesFallback(t *testing.T) {
	chat, err := usecase.NewChatService(nil, throttle.New(0), usecase.ChatConfig{}, quietLogger())
	require.NoError(t, err)
	h := newTestHandler(t, chat, &stubScan{})

	obj, ok := catalog.Default().ByID("batik-parang")
	require.True(t, ok)
	body, err := json.Marshal(map[string]any{
		"message":    "What is the philosophy?",
		"objectName": obj.Name.EN,
		"objectData": map[string]string{"philosophy": obj.Philosophy.EN},
	})
	require.NoError(t, err)

	resp, err := h.Handle(context.Background(), makeEvent(http.MethodPost, "/chat", string(body)))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	out := parseBody[chatResponse](t, resp.Body)
	require.Equal(t, "mock", out.Mode)
	require.Contains(t, out.Reply, "philosophy")
	require.Contains(t, out.Reply, "Batik Parang")
	require.Contains(t, out.Reply, obj.Philosophy.EN)
}

// ---------------------------------------------------------------------------
// POST /scan
// ---------------------------------------------------------------------------

func TestHandle_Scan_HappyPath(t *testing.T) {
	scan := &stubScan{out: usecase.ScanOutput{ID: "gamelan", Name: "Gamelan", Confidence: 0.9, Mode: domain.ScanModeUpstream}}
	h := newTestHandler(t, &stubChat{}, scan)

	resp, err := h.Handle(context.Background(), makeEvent(http.MethodPost, "/scan",
		`{"image":"aGVsbG8=","mimeType":"image/png","locale":"id"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, scanResponse{ID: "gamelan", Name: "Gamelan", Confidence: 0.9, Mode: "upstream"}, parseBody[scanResponse](t, resp.Body))
	require.Equal(t, usecase.ScanInput{Image: "aGVsbG8=", MIMEType: "image/png", Locale: domain.LocaleID}, scan.in)
}

func TestHandle_Scan_InvalidBody(t *testing.T) {
	for _, body := range []string{`not-json`, `null`, `{"image": 42}`} {
		scan := &stubScan{}
		h := newTestHandler(t, &stubChat{}, scan)

		resp, err := h.Handle(context.Background(), makeEvent(http.MethodPost, "/scan", body))
		require.NoError(t, err)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode, "body=%s", body)
		require.Equal(t, "Invalid request", parseBody[errorResponse](t, resp.Body).Error)
		require.Zero(t, scan.calls)
	}
}

func TestHandle_Scan_EmptyImageIsNoKeyEvenWithCredential(t *testing.T) {
	scan, err := usecase.NewScanService(unreachableLLM{t: t}, throttle.New(time.Hour), catalog.Default(), nil,
		usecase.ScanConfig{Model: "vision", Provider: "groq"}, quietLogger())
	require.NoError(t, err)
	h := newTestHandler(t, &stubChat{}, scan)

	resp, err := h.Handle(context.Background(), makeEvent(http.MethodPost, "/scan", `{"image":"","mimeType":"image/jpeg"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, scanResponse{Mode: "no-key"}, parseBody[scanResponse](t, resp.Body))
}

// ---------------------------------------------------------------------------
// Catalog endpoints
// ---------------------------------------------------------------------------

func TestHandle_ListObjects(t *testing.T) {
	h := newTestHandler(t, &stubChat{}, &stubScan{})

	resp, err := h.Handle(context.Background(), makeEvent(http.MethodGet, "/objects", ""))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	all := parseBody[[]catalog.Object](t, resp.Body)
	require.Len(t, all, len(catalog.Default().All()))

	event := makeEvent(http.MethodGet, "/objects", "")
	event.QueryStringParameters = map[string]string{"category": "batik"}
	resp, err = h.Handle(context.Background(), event)
	require.NoError(t, err)
	batik := parseBody[[]catalog.Object](t, resp.Body)
	require.NotEmpty(t, batik)
	for _, o := range batik {
		require.Equal(t, "batik", o.Category)
	}

	event.QueryStringParameters = map[string]string{"category": "pottery"}
	resp, err = h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.JSONEq(t, `[]`, resp.Body)
}

func TestHandle_GetObject(t *testing.T) {
	h := newTestHandler(t, &stubChat{}, &stubScan{})

	resp, err := h.Handle(context.Background(), makeEvent(http.MethodGet, "/objects/batik-parang", ""))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	obj := parseBody[catalog.Object](t, resp.Body)
	require.Equal(t, "batik-parang", obj.ID)
	require.Equal(t, "Batik Parang", obj.Name.EN)

	resp, err = h.Handle(context.Background(), makeEvent(http.MethodGet, "/objects/unknown", ""))
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.Equal(t, "object not found", parseBody[errorResponse](t, resp.Body).Error)
}

func TestHandle_Categories(t *testing.T) {
	h := newTestHandler(t, &stubChat{}, &stubScan{})

	resp, err := h.Handle(context.Background(), makeEvent(http.MethodGet, "/categories", ""))
	require.NoError(t, err)
	require.Equal(t, catalog.Categories(), parseBody[[]string](t, resp.Body))
}

// ---------------------------------------------------------------------------
// Cross-cutting
// ---------------------------------------------------------------------------

func TestHandle_UsesProvidedCorrelationID_CaseInsensitive(t *testing.T) {
	h := newTestHandler(t, &stubChat{out: usecase.ChatOutput{Reply: "ok", Mode: "mock"}}, &stubScan{})

	event := makeEvent(http.MethodPost, "/chat", `{"message":"hi"}`)
	event.Headers["x-correlation-id"] = "corr-123"
	resp, err := h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, "corr-123", resp.Headers["X-Correlation-Id"])
}

func TestHandle_GeneratesCorrelationID(t *testing.T) {
	h := newTestHandler(t, &stubChat{}, &stubScan{})

	resp, err := h.Handle(context.Background(), makeEvent(http.MethodPost, "/chat", `not-json`))
	require.NoError(t, err)
	_, err = uuid.Parse(resp.Headers["X-Correlation-Id"])
	require.NoError(t, err)
}

func TestHandle_Base64Body(t *testing.T) {
	chat := &stubChat{out: usecase.ChatOutput{Reply: "ok", Mode: "mock"}}
	h := newTestHandler(t, chat, &stubScan{})

	event := makeEvent(http.MethodPost, "/chat", base64.StdEncoding.EncodeToString([]byte(`{"message":"hi"}`)))
	event.IsBase64Encoded = true
	resp, err := h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "hi", chat.in.Message)

	event.Body = "!!not base64!!"
	resp, err = h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServeHTTP_HealthAndCORS(t *testing.T) {
	h := newTestHandler(t, &stubChat{}, &stubScan{}, WithAllowedOrigins([]string{"https://guide.example"}))
	srv := httptest.NewServer(h)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "ok", string(body))
	require.NotEmpty(t, resp.Header.Get("X-Correlation-Id"))

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/chat", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://guide.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, "https://guide.example", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestWriteJSON_EncodeFailureUsesHandlerLogger(t *testing.T) {
	var logs bytes.Buffer
	h, err := NewHandler(&stubChat{}, &stubScan{}, catalog.Default(), WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	h.writeJSON(rec, http.StatusOK, map[string]any{"bad": make(chan int)})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, logs.String(), "error serializing response body")
}

func TestHandle_UnknownRoute(t *testing.T) {
	h := newTestHandler(t, &stubChat{}, &stubScan{})

	resp, err := h.Handle(context.Background(), makeEvent(http.MethodGet, "/nope", ""))
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}
