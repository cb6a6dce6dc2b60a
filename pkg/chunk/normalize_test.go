package chunk_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spoolworks/spool/pkg/chunk"
)

func TestParseContentField(t *testing.T) {
	c, err := chunk.Parse([]byte(`{"content":"hello"}`))
	require.NoError(t, err)
	assert.Equal(t, chunk.KindToken, c.Kind)
	assert.Equal(t, "hello", c.Content)
}

func TestParseTextField(t *testing.T) {
	c, err := chunk.Parse([]byte(`{"text":"hello"}`))
	require.NoError(t, err)
	assert.Equal(t, "hello", c.Content)
}

func TestParseContentWinsOverText(t *testing.T) {
	c, err := chunk.Parse([]byte(`{"content":"a","text":"b"}`))
	require.NoError(t, err)
	assert.Equal(t, "a", c.Content)
}

func TestParseNestedChunk(t *testing.T) {
	c, err := chunk.Parse([]byte(`{"chunk":{"kind":"code","content":"x := 1"}}`))
	require.NoError(t, err)
	assert.Equal(t, chunk.KindCode, c.Kind)
	assert.Equal(t, "x := 1", c.Content)
}

func TestParseKinds(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    chunk.Kind
	}{
		{"token", `{"kind":"token","content":"a"}`, chunk.KindToken},
		{"explanation", `{"kind":"explanation","content":"a"}`, chunk.KindExplanation},
		{"code", `{"kind":"code","content":"a"}`, chunk.KindCode},
		{"done", `{"kind":"done"}`, chunk.KindDone},
		{"unknown kind", `{"kind":"banana","content":"a"}`, chunk.KindUnrecognized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := chunk.Parse([]byte(tt.payload))
			require.NoError(t, err)
			assert.Equal(t, tt.want, c.Kind)
		})
	}
}

func TestParseDoneWithoutContent(t *testing.T) {
	c, err := chunk.Parse([]byte(`{"kind":"done"}`))
	require.NoError(t, err)
	assert.Equal(t, chunk.KindDone, c.Kind)
	assert.Empty(t, c.Content)
}

func TestParseUnparseable(t *testing.T) {
	for _, payload := range []string{
		`{}`,
		`{"kind":"token"}`,
		`not json at all`,
		`{"content":42}`,
	} {
		_, err := chunk.Parse([]byte(payload))
		assert.ErrorIs(t, err, chunk.ErrUnparseable, "payload: %s", payload)
	}
}

func TestParseMetadata(t *testing.T) {
	c, err := chunk.Parse([]byte(`{"kind":"code","content":"x","isComplete":true,"metadata":{"confidence":0.9,"language":"go"}}`))
	require.NoError(t, err)
	require.NotNil(t, c.Meta.IsComplete)
	assert.True(t, *c.Meta.IsComplete)
	assert.InDelta(t, 0.9, c.Meta.Confidence, 0.0001)
	assert.Equal(t, "go", c.Meta.Language)
}

func TestParseMetadataIsComplete(t *testing.T) {
	c, err := chunk.Parse([]byte(`{"content":"x","metadata":{"isComplete":false}}`))
	require.NoError(t, err)
	require.NotNil(t, c.Meta.IsComplete)
	assert.False(t, *c.Meta.IsComplete)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "token", chunk.KindToken.String())
	assert.Equal(t, "done", chunk.KindDone.String())
	assert.Equal(t, "unrecognized", chunk.KindUnrecognized.String())
	assert.Equal(t, "unrecognized", chunk.Kind(99).String())
}
