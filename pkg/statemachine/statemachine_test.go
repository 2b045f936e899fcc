package statemachine_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/courier/pkg/statemachine"
)

type status string
type event string

func lifecycle() *statemachine.Table[status, event] {
	return statemachine.New[status, event]().
		Allow("claim", "sending", "pending", "failed").
		Allow("succeed", "sent", "sending").
		Allow("fail", "failed", "sending").
		Terminal("sent")
}

func TestTable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from    status
		event   event
		want    status
		wantErr bool
	}{
		{"pending", "claim", "sending", false},
		{"failed", "claim", "sending", false},
		{"sending", "succeed", "sent", false},
		{"sending", "fail", "failed", false},
		{"sent", "claim", "sent", true},
		{"pending", "succeed", "pending", true},
		{"unknown", "claim", "unknown", true},
	}

	table := lifecycle()
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/%s", tt.from, tt.event), func(t *testing.T) {
			t.Parallel()
			got, err := table.Next(tt.from, tt.event)
			assert.Equal(t, tt.want, got)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, statemachine.IsNoTransitionAvailableError(err))
				assert.False(t, table.Can(tt.from, tt.event))
				return
			}
			require.NoError(t, err)
			assert.True(t, table.Can(tt.from, tt.event))
		})
	}
}

func TestSourcesAndTerminal(t *testing.T) {
	t.Parallel()

	table := lifecycle()
	assert.ElementsMatch(t, []status{"pending", "failed"}, table.Sources("claim"))
	assert.True(t, table.IsTerminal("sent"))
	assert.False(t, table.IsTerminal("pending"))
}
