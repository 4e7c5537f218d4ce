package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestListOptions_Clamp(t *testing.T) {
	tests := []struct {
		name       string
		input      ListOptions
		wantLimit  int
		wantOffset int
	}{
		{"zero limit", ListOptions{}, 20, 0},
		{"over max", ListOptions{Limit: 500}, 100, 0},
		{"negative offset", ListOptions{Limit: 10, Offset: -3}, 10, 0},
		{"filters kept", ListOptions{Limit: 50, Offset: 10, Status: "Failed", User: "u-1"}, 50, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.input.Clamp()
			assert.Equal(t, tt.wantLimit, tt.input.Limit)
			assert.Equal(t, tt.wantOffset, tt.input.Offset)
		})
	}
}

func TestListOptions_MatchesJob(t *testing.T) {
	job := &Job{UserID: "u-1", UserPrincipalName: "Alice@Example.com", Status: StatusMonitoring}

	tests := []struct {
		name string
		opts ListOptions
		want bool
	}{
		{"no filter", ListOptions{}, true},
		{"status", ListOptions{Status: "Monitoring"}, true},
		{"other status", ListOptions{Status: "Queued"}, false},
		{"principal name any case", ListOptions{User: "alice@example.com"}, true},
		{"user id", ListOptions{User: "u-1"}, true},
		{"other user", ListOptions{User: "bob@example.com"}, false},
		{"both must match", ListOptions{Status: "Failed", User: "u-1"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.opts.MatchesJob(job))
		})
	}
}

func TestListOptions_WindowAndPage(t *testing.T) {
	opts := ListOptions{Limit: 2, Offset: 1}
	start, end := opts.Window(5)
	assert.Equal(t, 1, start)
	assert.Equal(t, 3, end)
	assert.Equal(t, &Pagination{Total: 5, Limit: 2, Offset: 1, HasMore: true}, opts.Page(5))

	start, end = opts.Window(2)
	assert.Equal(t, []int{1, 2}, []int{start, end})
	assert.False(t, opts.Page(2).HasMore)

	start, end = ListOptions{Limit: 10, Offset: 7}.Window(3)
	assert.Equal(t, start, end)
}
