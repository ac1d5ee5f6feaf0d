package main

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Akhilkandikonda/pipedream/internal/poll"
)

func TestDescribeReport(t *testing.T) {
	tests := []struct {
		name string
		rep  poll.RunReport
		want string
	}{
		{
			name: "already active",
			rep:  poll.RunReport{Source: "golang", Kind: poll.RunDeploy, AlreadyActive: true},
			want: "golang: already active",
		},
		{
			name: "deploy",
			rep:  poll.RunReport{Source: "golang", Kind: poll.RunDeploy, Emitted: 3},
			want: "golang: activated, 3 sample events emitted",
		},
		{
			name: "primed",
			rep:  poll.RunReport{Source: "invoices", Kind: poll.RunSchedule, Primed: true, Discovered: 12},
			want: "invoices: cursor primed, 12 existing items skipped",
		},
		{
			name: "scheduled",
			rep: poll.RunReport{
				Source: "invoices", Kind: poll.RunSchedule,
				Emitted: 2, Skipped: 5, Pages: 3, Duration: 1234567 * time.Microsecond,
			},
			want: "invoices: 2 new, 5 already seen (3 pages, 1.235s)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, describeReport(&tt.rep))
		})
	}
}

func TestExplainRunError(t *testing.T) {
	err := explainRunError("golang", fmt.Errorf("run: %w", poll.ErrNotActivated))
	assert.ErrorIs(t, err, poll.ErrNotActivated)
	assert.Contains(t, err.Error(), "pipedream deploy golang")

	other := errors.New("boom")
	assert.Equal(t, other, explainRunError("golang", other))
}
