package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew_UnknownLevelFallsBackToInfo(t *testing.T) {
	lggr, err := New("chatty")
	require.NoError(t, err)
	require.NotNil(t, lggr)
}

func TestTestObserved_RecordsNamedFields(t *testing.T) {
	lggr, logs := TestObserved(t, zapcore.InfoLevel)

	lggr.Named("automation").With("company_id", "c1").Infow("rule triggered", "rule_id", "r1")
	lggr.Debugw("below level")

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "rule triggered", entries[0].Message)
	assert.Equal(t, "automation", entries[0].LoggerName)
	ctx := entries[0].ContextMap()
	assert.Equal(t, "c1", ctx["company_id"])
	assert.Equal(t, "r1", ctx["rule_id"])
}

func TestNop_DoesNotPanic(t *testing.T) {
	lggr := Nop()
	lggr.Errorw("ignored", "k", "v")
	lggr.Named("x").With("a", 1).Warnw("ignored")
	_ = lggr.Sync()
}
