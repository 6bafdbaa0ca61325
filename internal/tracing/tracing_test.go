package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestInitTracer_Disabled(t *testing.T) {
	p, err := InitTracer(context.Background(), Config{ServiceName: "benchctl"}, zap.NewNop())
	require.NoError(t, err)
	assert.False(t, p.Enabled())

	ctx, span := p.Tracer().Start(context.Background(), "task help")
	AddEvent(ctx, "noop")
	span.End()
	assert.False(t, span.SpanContext().IsValid())

	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestInitTracer_EnabledRecordsSpans(t *testing.T) {
	p, err := InitTracer(context.Background(), Config{
		ServiceName:  "benchctl",
		OTLPEndpoint: "127.0.0.1:1",
		Enabled:      true,
	}, nil)
	require.NoError(t, err)
	assert.True(t, p.Enabled())

	_, span := p.Tracer().Start(context.Background(), "task view")
	assert.True(t, span.SpanContext().IsValid())
	span.End()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// export to the unreachable collector is abandoned
	_ = p.Shutdown(ctx)
}
