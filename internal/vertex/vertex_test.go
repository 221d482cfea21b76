package vertex

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitechat/relay/internal/config"
	"github.com/sitechat/relay/internal/domain"
	"github.com/sitechat/relay/internal/logging"
)

func testLog() *logging.Logger {
	return logging.New(io.Discard, "silent")
}

func testCaller(endpoint string) *Caller {
	c := NewCaller(config.GoogleConfig{Endpoint: endpoint}, testLog())
	c.retryDelay = time.Millisecond
	return c
}

func simpleRequest() *GenerateRequest {
	return BuildRequest("be nice", &domain.ChatRequest{Message: "hi"}, nil)
}

func TestBuildRequestSingleTurn(t *testing.T) {
	greq := BuildRequest("system", &domain.ChatRequest{Message: "hello"}, nil)

	require.Len(t, greq.Contents, 1)
	assert.Equal(t, "user", greq.Contents[0].Role)
	assert.Equal(t, "hello", greq.Contents[0].Parts[0].Text)
	require.NotNil(t, greq.SystemInstruction)
	assert.Equal(t, "system", greq.SystemInstruction.Parts[0].Text)
	assert.Nil(t, greq.Tools)
	assert.Nil(t, greq.ToolConfig)
}

func TestBuildRequestHistoryReplacesMessage(t *testing.T) {
	greq := BuildRequest("system", &domain.ChatRequest{
		Message: "latest",
		History: []domain.ConversationTurn{
			{Role: "user", Content: "first"},
			{Role: "assistant", Content: "second"},
		},
	}, nil)

	require.Len(t, greq.Contents, 2)
	assert.Equal(t, "user", greq.Contents[0].Role)
	assert.Equal(t, "model", greq.Contents[1].Role)
	assert.Equal(t, "second", greq.Contents[1].Parts[0].Text)
}

func TestBuildRequestTools(t *testing.T) {
	tools := json.RawMessage(`[{"functionDeclarations":[{"name":"book"}]}]`)
	greq := BuildRequest("system", &domain.ChatRequest{Message: "hi"}, tools)

	require.NotNil(t, greq.ToolConfig)
	assert.Equal(t, "AUTO", greq.ToolConfig.FunctionCallingConfig.Mode)

	body, err := json.Marshal(greq)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"system_instruction"`)
	assert.Contains(t, string(body), `"functionDeclarations"`)

	// A JSON null schema means no tools.
	noTools := BuildRequest("system", &domain.ChatRequest{Message: "hi"}, json.RawMessage("null"))
	assert.Nil(t, noTools.ToolConfig)
}

func TestOpenSuccessFirstAttempt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		io.WriteString(w, "data: {\"candidates\":[]}\n\n")
	}))
	defer srv.Close()

	body, outcome, err := testCaller(srv.URL).Open(context.Background(), "tok", simpleRequest())
	require.NoError(t, err)
	defer body.Close()

	assert.Equal(t, domain.RetryOutcome{Attempts: 1, FinalStatus: http.StatusOK}, outcome)
	raw, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "candidates")
}

func TestOpenAcceptsNon200Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	body, outcome, err := testCaller(srv.URL).Open(context.Background(), "tok", simpleRequest())
	require.NoError(t, err)
	body.Close()

	assert.Equal(t, domain.RetryOutcome{Attempts: 1, FinalStatus: http.StatusCreated}, outcome)
}

func TestOpenNonRetryableStopsImmediately(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer srv.Close()

	_, outcome, err := testCaller(srv.URL).Open(context.Background(), "tok", simpleRequest())
	require.Error(t, err)

	var relErr *domain.RelayError
	require.ErrorAs(t, err, &relErr)
	assert.Equal(t, domain.KindUpstreamNonRetryable, relErr.Kind)
	assert.Equal(t, 1, outcome.Attempts)
	assert.Equal(t, http.StatusBadRequest, outcome.FinalStatus)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, "vertex_400", ErrorType(err, outcome))
}

func TestOpenRetriesUntilExhausted(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, outcome, err := testCaller(srv.URL).Open(context.Background(), "tok", simpleRequest())
	require.Error(t, err)

	var relErr *domain.RelayError
	require.ErrorAs(t, err, &relErr)
	assert.Equal(t, domain.KindUpstreamExhausted, relErr.Kind)
	assert.Equal(t, 3, outcome.Attempts)
	assert.Equal(t, http.StatusServiceUnavailable, outcome.FinalStatus)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, "vertex_5xx", ErrorType(err, outcome))
}

func TestOpenRecoversAfterRetryableFailure(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "slow down", http.StatusTooManyRequests)
			return
		}
		io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	body, outcome, err := testCaller(srv.URL).Open(context.Background(), "tok", simpleRequest())
	require.NoError(t, err)
	body.Close()

	assert.Equal(t, 2, outcome.Attempts)
	assert.Equal(t, http.StatusOK, outcome.FinalStatus)
}

func TestOpenNetworkErrorClassification(t *testing.T) {
	_, outcome, err := testCaller("http://127.0.0.1:1/v1").Open(context.Background(), "tok", simpleRequest())
	require.Error(t, err)
	assert.Equal(t, 3, outcome.Attempts)
	assert.Equal(t, 0, outcome.FinalStatus)
	assert.Equal(t, "network_error", ErrorType(err, outcome))
}

func TestStreamEndpoint(t *testing.T) {
	got := StreamEndpoint(config.GoogleConfig{
		ProjectID: "proj", Location: "global", Model: "gemini-3-flash-preview",
	})
	assert.Equal(t,
		"https://aiplatform.googleapis.com/v1/projects/proj/locations/global/publishers/google/models/gemini-3-flash-preview:streamGenerateContent?alt=sse",
		got)

	assert.Equal(t, "http://override", StreamEndpoint(config.GoogleConfig{Endpoint: "http://override"}))
}

func TestErrorTypeTable(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		outcome domain.RetryOutcome
		want    string
	}{
		{"timeout", &domain.RelayError{Kind: domain.KindUpstreamExhausted, Timeout: true}, domain.RetryOutcome{FinalStatus: 503}, "timeout"},
		{"auth", &domain.RelayError{Kind: domain.KindAuth}, domain.RetryOutcome{}, "auth_error"},
		{"stream", &domain.RelayError{Kind: domain.KindStreamInterrupted}, domain.RetryOutcome{FinalStatus: 200}, "stream_error"},
		{"5xx", &domain.RelayError{Kind: domain.KindUpstreamExhausted}, domain.RetryOutcome{FinalStatus: 502}, "vertex_5xx"},
		{"4xx", &domain.RelayError{Kind: domain.KindUpstreamNonRetryable}, domain.RetryOutcome{FinalStatus: 403}, "vertex_403"},
		{"network", &domain.RelayError{Kind: domain.KindUpstreamExhausted}, domain.RetryOutcome{}, "network_error"},
		{"unclassified", io.EOF, domain.RetryOutcome{}, "unknown"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ErrorType(tc.err, tc.outcome))
		})
	}
}

func testPrivateKeyPEM(t *testing.T) string {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	return string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}))
}

func TestCredentialsToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "urn:ietf:params:oauth:grant-type:jwt-bearer", r.Form.Get("grant_type"))
		assert.NotEmpty(t, r.Form.Get("assertion"))
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"access_token":"granted","token_type":"Bearer","expires_in":3600}`)
	}))
	defer srv.Close()

	creds := NewCredentials(config.GoogleConfig{
		ClientEmail: "svc@proj.iam.gserviceaccount.com",
		PrivateKey:  testPrivateKeyPEM(t),
		TokenURL:    srv.URL,
		Scope:       config.DefaultScope,
	}, testLog())

	tok, err := creds.Token()
	require.NoError(t, err)
	assert.Equal(t, "granted", tok)

	// The second call reuses the cached token.
	again, err := creds.Token()
	require.NoError(t, err)
	assert.Equal(t, "granted", again)
}

func TestCredentialsTokenEndpointFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	creds := NewCredentials(config.GoogleConfig{
		ClientEmail: "svc@proj.iam.gserviceaccount.com",
		PrivateKey:  testPrivateKeyPEM(t),
		TokenURL:    srv.URL,
		Scope:       config.DefaultScope,
	}, testLog())

	_, err := creds.Token()
	require.Error(t, err)

	var relErr *domain.RelayError
	require.ErrorAs(t, err, &relErr)
	assert.Equal(t, domain.KindAuth, relErr.Kind)
	assert.Equal(t, "auth_error", ErrorType(err, domain.RetryOutcome{}))
}

func TestCredentialsBadKey(t *testing.T) {
	creds := NewCredentials(config.GoogleConfig{
		ClientEmail: "svc@proj.iam.gserviceaccount.com",
		PrivateKey:  "not a key",
		TokenURL:    "http://127.0.0.1:1/token",
		Scope:       config.DefaultScope,
	}, testLog())

	_, err := creds.Token()
	require.Error(t, err)

	var relErr *domain.RelayError
	require.ErrorAs(t, err, &relErr)
	assert.Equal(t, domain.KindAuth, relErr.Kind)
}
