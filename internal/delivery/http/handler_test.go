package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ehtisham-id/proj7-ai-platform-api/internal/config"
	"github.com/ehtisham-id/proj7-ai-platform-api/internal/domain"
	"github.com/ehtisham-id/proj7-ai-platform-api/internal/notify"
	mockpub "github.com/ehtisham-id/proj7-ai-platform-api/internal/publisher/mock"
	mockrepo "github.com/ehtisham-id/proj7-ai-platform-api/internal/repository/mock"
	"github.com/ehtisham-id/proj7-ai-platform-api/internal/storage"
	"github.com/ehtisham-id/proj7-ai-platform-api/internal/summarize"
	"github.com/ehtisham-id/proj7-ai-platform-api/internal/tasks"
	"github.com/ehtisham-id/proj7-ai-platform-api/internal/usecase"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testMaxChars = 200

type testEnv struct {
	router  *gin.Engine
	repo    *mockrepo.MockJobRepository
	pub     *mockpub.MockPublisher
	store   *storage.MemoryStorage
	hub     *notify.Hub
	counter *mockrepo.RateCounter
}

func setupTestRouter(t *testing.T, tweak ...func(*RouterDeps)) *testEnv {
	t.Helper()
	logger := zap.NewNop()
	env := &testEnv{
		repo:    mockrepo.NewMockJobRepository(),
		pub:     mockpub.NewMockPublisher(),
		store:   storage.NewMemoryStorage("test"),
		hub:     notify.NewHub(logger),
		counter: &mockrepo.RateCounter{},
	}

	registry := tasks.NewRegistry()
	registry.MustRegister(tasks.NewSummarization(summarize.NewExtractive(summarize.DefaultRatio), testMaxChars))

	deps := &RouterDeps{
		SubmitUC:    usecase.NewSubmitJobUsecase(env.repo, env.pub, registry, logger),
		GetJobUC:    usecase.NewGetJobUsecase(env.repo, env.store, time.Hour, logger),
		Registry:    registry,
		Hub:         env.hub,
		RateCounter: env.counter,
		HealthChecks: map[string]HealthCheck{
			"postgres": env.repo.Ping,
		},
		Server: config.ServerConfig{
			RateLimit:    100,
			MaxBodyBytes: 1 << 20,
			CORSOrigins:  []string{"*"},
		},
		Auth:      config.AuthConfig{OwnerHeader: "X-Owner-ID"},
		Keepalive: time.Second,
		Logger:    logger,
	}
	for _, fn := range tweak {
		fn(deps)
	}
	env.router = NewRouter(deps)
	return env
}

func (e *testEnv) do(method, path, owner string, body []byte, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if owner != "" {
		req.Header.Set("X-Owner-ID", owner)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func jsonBody(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func submitBody(t *testing.T, taskType, text string) []byte {
	return jsonBody(t, map[string]any{
		"task_type": taskType,
		"payload":   map[string]string{"text": text},
	})
}

func TestSubmitHandler_Success(t *testing.T) {
	env := setupTestRouter(t)

	w := env.do(http.MethodPost, "/api/v1/jobs", "alice", submitBody(t, "summarization", "Hello world."), "application/json")
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	var resp domain.SubmitResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEqual(t, uuid.Nil, resp.JobID)
	assert.Equal(t, domain.StatusPending, resp.Status)

	msgs := env.pub.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "alice", msgs[0].OwnerID)
	assert.Equal(t, resp.JobID, msgs[0].JobID)
}

func TestSubmitHandler_Rejections(t *testing.T) {
	cases := []struct {
		name  string
		owner string
		body  []byte
		want  int
	}{
		{"missing owner", "", submitBody(t, "summarization", "Hi."), http.StatusUnauthorized},
		{"unknown task type", "alice", submitBody(t, "translation", "Hi."), http.StatusBadRequest},
		{"empty text", "alice", submitBody(t, "summarization", "   "), http.StatusBadRequest},
		{"too large", "alice", submitBody(t, "summarization", strings.Repeat("a", testMaxChars+1)), http.StatusRequestEntityTooLarge},
		{"not json", "alice", []byte("{"), http.StatusBadRequest},
		{"missing payload", "alice", jsonBody(t, map[string]string{"task_type": "summarization"}), http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := setupTestRouter(t)
			w := env.do(http.MethodPost, "/api/v1/jobs", tc.owner, tc.body, "application/json")
			assert.Equal(t, tc.want, w.Code, w.Body.String())
			assert.Empty(t, env.repo.GetAll(), "rejected submissions must not create jobs")
			assert.Empty(t, env.pub.Messages())
		})
	}
}

func TestSubmitHandler_PublishFailure(t *testing.T) {
	env := setupTestRouter(t)
	env.pub.PublishFn = func(context.Context, *domain.TaskMessage) error {
		return errors.New("broker down")
	}

	w := env.do(http.MethodPost, "/api/v1/jobs", "alice", submitBody(t, "summarization", "Hello."), "application/json")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	jobs := env.repo.GetAll()
	require.Len(t, jobs, 1)
	assert.Equal(t, domain.StatusFailed, jobs[0].Status)
}

func TestSubmitHandler_RateLimited(t *testing.T) {
	env := setupTestRouter(t, func(d *RouterDeps) { d.Server.RateLimit = 1 })

	w := env.do(http.MethodPost, "/api/v1/jobs", "alice", submitBody(t, "summarization", "One."), "application/json")
	assert.Equal(t, http.StatusAccepted, w.Code)
	w = env.do(http.MethodPost, "/api/v1/jobs", "alice", submitBody(t, "summarization", "Two."), "application/json")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), domain.ErrRateLimitExceeded.Error())
	assert.Len(t, env.repo.GetAll(), 1)
}

func TestSubmitHandler_BodyTooLarge(t *testing.T) {
	env := setupTestRouter(t, func(d *RouterDeps) { d.Server.MaxBodyBytes = 64 })

	w := env.do(http.MethodPost, "/api/v1/jobs", "alice", submitBody(t, "summarization", strings.Repeat("b", 100)), "application/json")
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestSummarizeHandler_JSON(t *testing.T) {
	env := setupTestRouter(t)

	w := env.do(http.MethodPost, "/api/v1/summarize", "alice", jsonBody(t, map[string]string{"text": "A sentence. Another one."}), "application/json")
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	msgs := env.pub.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, domain.TaskSummarization, msgs[0].TaskType)

	var payload tasks.SummarizationPayload
	require.NoError(t, json.Unmarshal(msgs[0].Payload, &payload))
	assert.Equal(t, "A sentence. Another one.", payload.Text)
}

func TestSummarizeHandler_MultipartLossyDecode(t *testing.T) {
	env := setupTestRouter(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "notes.txt")
	require.NoError(t, err)
	_, err = fw.Write([]byte("Caf\xe9 notes. More text here."))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	w := env.do(http.MethodPost, "/api/v1/summarize", "alice", buf.Bytes(), mw.FormDataContentType())
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	msgs := env.pub.Messages()
	require.Len(t, msgs, 1)
	var payload tasks.SummarizationPayload
	require.NoError(t, json.Unmarshal(msgs[0].Payload, &payload))
	assert.Equal(t, "Caf\uFFFD notes. More text here.", payload.Text)
}

func TestSummarizeHandler_MultipartMissingFile(t *testing.T) {
	env := setupTestRouter(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("text", "not a file"))
	require.NoError(t, mw.Close())

	w := env.do(http.MethodPost, "/api/v1/summarize", "alice", buf.Bytes(), mw.FormDataContentType())
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetJobHandler(t *testing.T) {
	env := setupTestRouter(t)

	ref := storage.ResultKey(uuid.NewString(), "summary.txt")
	_, err := env.store.Put(context.Background(), ref, []byte("sum"), nil)
	require.NoError(t, err)
	now := time.Now().UTC()
	job := &domain.Job{
		ID:              uuid.Must(uuid.NewV7()),
		OwnerID:         "alice",
		TaskType:        domain.TaskSummarization,
		Status:          domain.StatusCompleted,
		ResultReference: &ref,
		CreatedAt:       now,
		FinishedAt:      &now,
	}
	env.repo.Put(job)

	w := env.do(http.MethodGet, "/api/v1/jobs/"+job.ID.String(), "alice", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var view domain.JobView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	assert.Equal(t, domain.StatusCompleted, view.Status)
	assert.NotEmpty(t, view.ResultURL)

	foreign := env.do(http.MethodGet, "/api/v1/jobs/"+job.ID.String(), "bob", nil, "")
	missing := env.do(http.MethodGet, "/api/v1/jobs/"+uuid.NewString(), "alice", nil, "")
	assert.Equal(t, http.StatusNotFound, foreign.Code)
	assert.Equal(t, http.StatusNotFound, missing.Code)
	assert.Equal(t, missing.Body.String(), foreign.Body.String(), "foreign and missing jobs must look the same")

	bad := env.do(http.MethodGet, "/api/v1/jobs/not-a-uuid", "alice", nil, "")
	assert.Equal(t, http.StatusBadRequest, bad.Code)
}

func TestTaskTypeHandler(t *testing.T) {
	env := setupTestRouter(t)

	w := env.do(http.MethodGet, "/api/v1/task-types", "", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		TaskTypes []domain.TaskTypeInfo `json:"task_types"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.TaskTypes, 1)
	assert.Equal(t, domain.TaskSummarization, body.TaskTypes[0].Name)
}

func TestHealthHandler(t *testing.T) {
	env := setupTestRouter(t)

	w := env.do(http.MethodGet, "/api/v1/health", "", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)

	env.repo.PingFunc = func(context.Context) error { return errors.New("db down") }
	w = env.do(http.MethodGet, "/api/v1/health", "", nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"postgres":"unavailable"`)
}
