package bedrock

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/densefog/parley/pkg/errors"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := New("us-west-2", "us.amazon.nova-lite-v1:0",
		credentials.NewStaticCredentialsProvider("test", "test", ""),
		server.Client(),
	)
	client.Endpoint = server.URL
	return client
}

func converseBody(text string) string {
	return `{
		"output": {"message": {"role": "assistant", "content": [{"text": ` + jsonString(text) + `}]}},
		"stopReason": "end_turn",
		"usage": {"inputTokens": 12, "outputTokens": 7, "totalTokens": 19}
	}`
}

func jsonString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func TestConverse_Success(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody []byte

	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotBody, _ = io.ReadAll(r.Body)

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, converseBody("hello from nova"))
	})

	result, err := client.Converse(context.Background(), []Message{
		NewTextMessage("user", "hi"),
	})
	require.NoError(t, err)

	assert.Equal(t, "hello from nova", result.Text)
	assert.Equal(t, "end_turn", result.StopReason)
	assert.Equal(t, 12, result.InputTokens)
	assert.Equal(t, 7, result.OutputTokens)

	assert.Equal(t, "/model/us.amazon.nova-lite-v1:0/converse", gotPath)
	assert.NotEmpty(t, gotAuth, "request must be signed")

	var payload map[string]any
	require.NoError(t, json.Unmarshal(gotBody, &payload))

	inference := payload["inferenceConfig"].(map[string]any)
	assert.InDelta(t, 2000, inference["maxTokens"].(float64), 0.0001)
	assert.InDelta(t, 0.7, inference["temperature"].(float64), 0.0001)
	assert.InDelta(t, 0.9, inference["topP"].(float64), 0.0001)

	messages := payload["messages"].([]any)
	require.Len(t, messages, 1)
	first := messages[0].(map[string]any)
	assert.Equal(t, "user", first["role"])
}

func TestConverse_ThrottlingFromHeader(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Amzn-Errortype", "ThrottlingException:http://internal")
		w.WriteHeader(http.StatusTooManyRequests)
		io.WriteString(w, `{"message": "Too many requests, please wait"}`)
	})

	_, err := client.Converse(context.Background(), []Message{NewTextMessage("user", "hi")})
	require.Error(t, err)

	chatErr, ok := err.(*errors.ChatError)
	require.True(t, ok, "error type = %T", err)
	assert.Equal(t, errors.TypeThrottled, chatErr.Type)
	assert.True(t, chatErr.Retryable)
	assert.Equal(t, "us-west-2", chatErr.Region)
	assert.Contains(t, chatErr.Message, "Too many requests")
}

func TestConverse_AccessDeniedFromBodyType(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		io.WriteString(w, `{"__type": "com.amazonaws.bedrock#AccessDeniedException", "message": "no model access"}`)
	})

	_, err := client.Converse(context.Background(), []Message{NewTextMessage("user", "hi")})
	require.Error(t, err)

	chatErr, ok := err.(*errors.ChatError)
	require.True(t, ok, "error type = %T", err)
	assert.Equal(t, errors.TypeAccessDenied, chatErr.Type)
	assert.True(t, chatErr.Retryable)
}

func TestConverse_ValidationIsNotRetryable(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Amzn-Errortype", "ValidationException")
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"message": "input too long"}`)
	})

	_, err := client.Converse(context.Background(), []Message{NewTextMessage("user", "hi")})
	require.Error(t, err)

	chatErr, ok := err.(*errors.ChatError)
	require.True(t, ok, "error type = %T", err)
	assert.Equal(t, errors.TypeInvalidRequest, chatErr.Type)
	assert.False(t, chatErr.Retryable)
	assert.Equal(t, 400, chatErr.HTTPStatusCode())
}

func TestConverse_UnknownErrorIsBackend(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, `{"message": "internal failure"}`)
	})

	_, err := client.Converse(context.Background(), []Message{NewTextMessage("user", "hi")})
	require.Error(t, err)

	chatErr, ok := err.(*errors.ChatError)
	require.True(t, ok, "error type = %T", err)
	assert.Equal(t, errors.TypeBackend, chatErr.Type)
	assert.False(t, chatErr.Retryable)
}

func TestConverse_StatusFallbackWithoutCode(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := client.Converse(context.Background(), []Message{NewTextMessage("user", "hi")})
	require.Error(t, err)

	chatErr, ok := err.(*errors.ChatError)
	require.True(t, ok, "error type = %T", err)
	assert.Equal(t, errors.TypeThrottled, chatErr.Type)
}

func TestConverse_EmptyContentIsBackendError(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"output": {"message": {"role": "assistant", "content": []}}, "stopReason": "end_turn"}`)
	})

	_, err := client.Converse(context.Background(), []Message{NewTextMessage("user", "hi")})
	require.Error(t, err)

	chatErr, ok := err.(*errors.ChatError)
	require.True(t, ok, "error type = %T", err)
	assert.Equal(t, errors.TypeBackend, chatErr.Type)
}

func TestAWSErrorCode(t *testing.T) {
	tests := []struct {
		name   string
		header string
		body   string
		want   string
	}{
		{"plain header", "ThrottlingException", "", "ThrottlingException"},
		{"header with uri", "ThrottlingException:http://internal", "", "ThrottlingException"},
		{"namespaced body type", "", `{"__type": "com.amazonaws.bedrock#ValidationException"}`, "ValidationException"},
		{"plain body type", "", `{"__type": "AccessDeniedException"}`, "AccessDeniedException"},
		{"header wins over body", "ThrottlingException", `{"__type": "ValidationException"}`, "ThrottlingException"},
		{"nothing", "", `{}`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := http.Header{}
			if tt.header != "" {
				header.Set("X-Amzn-Errortype", tt.header)
			}
			if got := awsErrorCode(header, []byte(tt.body)); got != tt.want {
				t.Errorf("awsErrorCode() = %q, want %q", got, tt.want)
			}
		})
	}
}
