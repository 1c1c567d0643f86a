package jsonutil_test

import (
	"testing"
	"time"

	"github.com/autobackup-watch/autobackup/pkg/jsonutil"
	"github.com/autobackup-watch/autobackup/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonical(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"sorted keys", map[string]any{"b": 1, "a": 2, "c": 3}, `{"a":2,"b":1,"c":3}`},
		{"nested", map[string]any{"z": map[string]any{"y": 1, "x": []any{true, nil}}}, `{"z":{"x":[true,null],"y":1}}`},
		{"null", nil, `null`},
		{"control chars escaped", "a|b\n", `"a|b\n"`},
		{"html left alone", "<a&b>", `"<a&b>"`},
		{"large integer exact", map[string]any{"n": uint64(9007199254740993)}, `{"n":9007199254740993}`},
		{"fraction", 1.5, `1.5`},
		{"empty object", map[string]any{}, `{}`},
		{"empty array", []string{}, `[]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := jsonutil.Canonical(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestCanonical_ValueAndPointerAgree(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	rec := model.AuditRecord{
		Timestamp: ts,
		EventType: model.EventTypeVersion,
		File:      "notes.txt",
		Version:   3,
		Details:   map[string]any{"size": 10, "artifact_dir": ".autobackup"},
	}

	first, err := jsonutil.Canonical(rec)
	require.NoError(t, err)
	second, err := jsonutil.Canonical(&rec)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Contains(t, string(first), `"details":{"artifact_dir":".autobackup","size":10}`)
}

func TestDigest(t *testing.T) {
	a, err := jsonutil.Digest(map[string]any{"x": 1, "y": "two"})
	require.NoError(t, err)
	b, err := jsonutil.Digest(map[string]any{"y": "two", "x": 1})
	require.NoError(t, err)
	assert.Equal(t, a, b, "key order must not change the digest")
	assert.Len(t, a, 64)

	c, err := jsonutil.Digest(map[string]any{"x": 2, "y": "two"})
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestCanonical_Unsupported(t *testing.T) {
	_, err := jsonutil.Canonical(make(chan int))
	assert.Error(t, err)

	_, err = jsonutil.Digest(func() {})
	assert.Error(t, err)
}
