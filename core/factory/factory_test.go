package factory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type limits struct {
	TimeLimit time.Duration `json:"time_limit"`
	MaxNodes  int           `json:"max_nodes"`
}

func TestRegistryCreate(t *testing.T) {
	reg := NewRegistry[limits]()
	require.NoError(t, reg.Register("exact", func(conf map[string]any) (limits, error) {
		var l limits
		err := Decode(conf, &l)
		return l, err
	}))
	l, err := reg.Create(ModuleConfig{Type: "exact", Conf: map[string]any{"time_limit": "1m30s", "max_nodes": "500"}})
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, l.TimeLimit)
	assert.Equal(t, 500, l.MaxNodes)
}

func TestRegistryErrors(t *testing.T) {
	reg := NewRegistry[int]()
	require.NoError(t, reg.Register("x", func(map[string]any) (int, error) { return 1, nil }))
	assert.ErrorIs(t, reg.Register("x", func(map[string]any) (int, error) { return 2, nil }), ErrDuplicateType)
	assert.Error(t, reg.Register("y", nil))

	_, err := reg.Create(ModuleConfig{Type: "z"})
	assert.ErrorIs(t, err, ErrUnknownType)
	assert.Contains(t, err.Error(), "[x]")
}

func TestRegistryNames(t *testing.T) {
	reg := NewRegistry[int]()
	for _, n := range []string{"sqlite", "jsonl", "rotating"} {
		require.NoError(t, reg.Register(n, func(map[string]any) (int, error) { return 0, nil }))
	}
	assert.Equal(t, []string{"jsonl", "rotating", "sqlite"}, reg.Names())
}

func TestDecodeNilConf(t *testing.T) {
	var l limits
	require.NoError(t, Decode(nil, &l))
	assert.Zero(t, l)
}
