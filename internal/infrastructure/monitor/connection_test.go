package monitor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsOnlineRequiresAllDependencies(t *testing.T) {
	tests := []struct {
		name   string
		status Status
		want   bool
	}{
		{"all up", Status{Directory: true, Redis: true, DocStore: true}, true},
		{"redis down", Status{Directory: true, Redis: false, DocStore: true}, false},
		{"directory down", Status{Directory: false, Redis: true, DocStore: true}, false},
		{"docstore down", Status{Directory: true, Redis: true, DocStore: false}, false},
		{"all down", Status{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &Monitor{status: tt.status}
			assert.Equal(t, tt.want, m.IsOnline())
		})
	}
}

func TestGetStatusSnapshot(t *testing.T) {
	status := Status{Directory: true, Redis: true, DocStore: true, OutboxSize: 4}
	m := &Monitor{status: status}
	assert.Equal(t, status, m.GetStatus())
}
