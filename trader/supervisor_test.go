package trader

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/autotrader/market/markettest"
)

func TestSupervisorReplacesActiveLoop(t *testing.T) {
	gw := &fakeGateway{candles: markettest.Doji(10, 10)}
	first, _, _ := newLoop(t, strategyConfig("baseline"), gw, &stubStrategy{})
	second, _, _ := newLoop(t, strategyConfig("ichimoku"), gw, &stubStrategy{})

	s := NewSupervisor()
	require.NoError(t, s.Launch(context.Background(), first))
	assert.Same(t, first, s.Active())

	require.NoError(t, s.Launch(context.Background(), second))
	assert.Equal(t, Stopped, first.State())
	assert.Equal(t, Running, second.State())
	assert.Same(t, second, s.Active())

	s.Stop()
	assert.Equal(t, Stopped, second.State())
	assert.Nil(t, s.Active())
}

func TestSupervisorRejectsUsedLoop(t *testing.T) {
	l, _, _ := newLoop(t, strategyConfig("baseline"), &fakeGateway{}, &stubStrategy{})
	l.Stop()

	s := NewSupervisor()
	assert.ErrorIs(t, s.Launch(context.Background(), l), ErrAlreadyStarted)
}
