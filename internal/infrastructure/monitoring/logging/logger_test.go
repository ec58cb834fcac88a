package logging

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// newObservedLogger returns a Logger whose output is captured in memory.
func newObservedLogger() (Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return &zapLogger{z: zap.New(core)}, logs
}

func TestNewLogger_Formats(t *testing.T) {
	cases := []struct {
		name string
		cfg  LogConfig
	}{
		{"json defaults", LogConfig{}},
		{"explicit json", LogConfig{Level: "info", Format: "json", OutputPaths: []string{"stdout"}}},
		{"console", LogConfig{Level: "debug", Format: "console", OutputPaths: []string{"stdout"}}},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			l, err := NewLogger(tc.cfg)
			require.NoError(t, err)
			assert.NotNil(t, l)
		})
	}
}

func TestNewLogger_BadOutputPath(t *testing.T) {
	_, err := NewLogger(LogConfig{OutputPaths: []string{"/nonexistent-dir-xyz/sub/out.log"}})
	assert.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in   string
		want zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"DEBUG", zapcore.DebugLevel},
		{"warn", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"info", zapcore.InfoLevel},
		{"", zapcore.InfoLevel},
		{"verbose", zapcore.InfoLevel},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, parseLevel(tc.in), "level %q", tc.in)
	}
}

func TestLogger_EmitsFields(t *testing.T) {
	l, logs := newObservedLogger()

	l.Info("document tokenized",
		String("doc_id", "d-1"),
		Int("tokens", 42),
		Bool("chunked", false),
		Duration("elapsed", 5*time.Millisecond),
	)

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "document tokenized", entries[0].Message)

	fields := entries[0].ContextMap()
	assert.Equal(t, "d-1", fields["doc_id"])
	assert.EqualValues(t, 42, fields["tokens"])
	assert.Equal(t, false, fields["chunked"])
}

func TestErr_Field(t *testing.T) {
	l, logs := newObservedLogger()

	l.Error("merge failed", Err(errors.New("overlap at token 3")))
	l.Warn("no cause", Err(nil))

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "overlap at token 3", entries[0].ContextMap()["error"])
	assert.Equal(t, "<nil>", entries[1].ContextMap()["error"])
}

func TestWith_DoesNotMutateParent(t *testing.T) {
	parent, logs := newObservedLogger()
	child := parent.With(String("component", "gazetteer"))

	parent.Info("parent entry")
	child.Info("child entry")

	entries := logs.All()
	require.Len(t, entries, 2)
	_, parentHas := entries[0].ContextMap()["component"]
	assert.False(t, parentHas, "parent must not inherit child fields")
	assert.Equal(t, "gazetteer", entries[1].ContextMap()["component"])
}

func TestNamed_AppendsName(t *testing.T) {
	l, logs := newObservedLogger()

	l.Named("pipeline").Named("merge").Info("named entry")

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "pipeline.merge", entries[0].LoggerName)
}

func TestNopLogger_DiscardsEverything(t *testing.T) {
	l := NewNopLogger()
	assert.NotPanics(t, func() {
		l.Debug("x")
		l.Info("x", Int("n", 1))
		l.Warn("x")
		l.Error("x", Err(errors.New("boom")))
		l.With(String("k", "v")).Named("sub").Info("x")
	})
}

func TestDefault_SetAndGet(t *testing.T) {
	orig := Default()
	defer SetDefault(orig)

	l, _ := newObservedLogger()
	SetDefault(l)
	assert.Equal(t, l, Default())

	// nil must be ignored
	SetDefault(nil)
	assert.Equal(t, l, Default())
}
