package replica

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistryStartsDisconnected(t *testing.T) {
	registry := NewRegistry(map[string]string{"r1": "10.0.0.1:9000"})

	snap, ok := registry.GetStatus("r1")
	require.True(t, ok)
	assert.Equal(t, "r1", snap.Name)
	assert.Equal(t, "10.0.0.1:9000", snap.Addr)
	assert.False(t, snap.Ready)
	assert.Equal(t, 0, snap.Failures)
	assert.Equal(t, int64(0), snap.PingMS)
}

func TestGetStatusUnknownReplica(t *testing.T) {
	registry := NewRegistry(map[string]string{})
	_, ok := registry.GetStatus("ghost")
	assert.False(t, ok)
}

func TestSnapshotPreservesConfigurationOrder(t *testing.T) {
	registry := &Registry{statuses: map[string]*Status{
		"b": {Name: "b", Addr: "b:1"},
		"a": {Name: "a", Addr: "a:1"},
	}, order: []string{"b", "a"}}

	snap := registry.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "b", snap[0].Name)
	assert.Equal(t, "a", snap[1].Name)
}
