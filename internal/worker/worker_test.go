package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type initExecutor struct {
	initCalls int
	initErrs  []error
	execCalls int
}

func (e *initExecutor) Init(ctx context.Context) error {
	e.initCalls++
	if len(e.initErrs) > 0 {
		err := e.initErrs[0]
		e.initErrs = e.initErrs[1:]
		return err
	}
	return nil
}

func (e *initExecutor) Execute(ctx context.Context, input any) (any, error) {
	e.execCalls++
	return input, nil
}

func testConfig() Config {
	return Config{ID: "w-1", Category: "parse", MaxRetries: 1, Timeout: time.Second}
}

func TestWorker_ExecuteSuccess(t *testing.T) {
	w := New(testConfig(), ExecutorFunc(func(ctx context.Context, input any) (any, error) {
		return "ok:" + input.(string), nil
	}))

	res := w.Execute(context.Background(), "doc")

	assert.True(t, res.Success)
	assert.NoError(t, res.Err)
	assert.Equal(t, "ok:doc", res.Data)
	assert.Equal(t, Metadata{Category: "parse", WorkerID: "w-1"}, res.Metadata)
	assert.True(t, w.Ready())
}

func TestWorker_ExecuteFailure(t *testing.T) {
	cause := errors.New("model unavailable")
	w := New(testConfig(), ExecutorFunc(func(ctx context.Context, input any) (any, error) {
		return nil, cause
	}))

	res := w.Execute(context.Background(), nil)

	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, ErrExecution)
	assert.ErrorIs(t, res.Err, cause)
	assert.Nil(t, res.Data)
}

func TestWorker_ExecuteRecoversPanic(t *testing.T) {
	w := New(testConfig(), ExecutorFunc(func(ctx context.Context, input any) (any, error) {
		panic("boom")
	}))

	var res Result
	require.NotPanics(t, func() {
		res = w.Execute(context.Background(), nil)
	})

	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, ErrExecution)
	assert.ErrorIs(t, res.Err, ErrPanic)
}

func TestWorker_ExecuteMeasuresElapsed(t *testing.T) {
	w := New(testConfig(), ExecutorFunc(func(ctx context.Context, input any) (any, error) {
		time.Sleep(20 * time.Millisecond)
		return nil, nil
	}))

	res := w.Execute(context.Background(), nil)
	assert.GreaterOrEqual(t, res.Elapsed, 20*time.Millisecond)
}

func TestWorker_LazyInitOnce(t *testing.T) {
	exec := &initExecutor{}
	w := New(testConfig(), exec)
	assert.False(t, w.Ready())

	for i := 0; i < 3; i++ {
		res := w.Execute(context.Background(), i)
		require.True(t, res.Success)
	}

	assert.Equal(t, 1, exec.initCalls)
	assert.Equal(t, 3, exec.execCalls)

	require.NoError(t, w.Init(context.Background()))
	assert.Equal(t, 1, exec.initCalls)
}

func TestWorker_InitFailureIsSticky(t *testing.T) {
	exec := &initExecutor{initErrs: []error{errors.New("no credentials")}}
	w := New(testConfig(), exec)

	res := w.Execute(context.Background(), nil)
	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, ErrInitialization)

	res = w.Execute(context.Background(), nil)
	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, ErrInitialization)
	assert.Contains(t, res.Err.Error(), "no credentials")

	assert.Equal(t, 1, exec.initCalls)
	assert.Zero(t, exec.execCalls)

	require.NoError(t, w.Init(context.Background()))
	res = w.Execute(context.Background(), "x")
	assert.True(t, res.Success)
	assert.Equal(t, 2, exec.initCalls)
	assert.Equal(t, 1, exec.execCalls)
}

func TestTyped(t *testing.T) {
	exec := Typed(func(ctx context.Context, in int) (int, error) {
		return in * 2, nil
	})

	out, err := exec.Execute(context.Background(), 21)
	require.NoError(t, err)
	assert.Equal(t, 42, out)

	_, err = exec.Execute(context.Background(), "21")
	assert.ErrorContains(t, err, "unexpected input type string")
}

func TestResult_MarshalJSON(t *testing.T) {
	res := Result{
		Success:  false,
		Err:      errors.New("execution timeout"),
		Elapsed:  1500 * time.Millisecond,
		Metadata: Metadata{Category: "score", WorkerID: "score-1"},
	}

	data, err := json.Marshal(res)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"success": false,
		"error": "execution timeout",
		"elapsed_time_ms": 1500,
		"metadata": {"category": "score", "worker_id": "score-1"}
	}`, string(data))
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"missing id", func(c *Config) { c.ID = "" }, "worker id is required"},
		{"missing category", func(c *Config) { c.Category = "" }, "category is required"},
		{"negative retries", func(c *Config) { c.MaxRetries = -1 }, "max_retries"},
		{"zero timeout", func(c *Config) { c.Timeout = 0 }, "timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
