package pvalue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueEqual(t *testing.T) {
	assert.True(t, I32(42).Equal(I32(42)))
	assert.False(t, I32(42).Equal(I32(43)))
	assert.False(t, I32(42).Equal(U32(42)))
	assert.True(t, None.Equal(Value{Kind: KindNone}))
	assert.True(t, Blob([]byte("abc")).Equal(Blob([]byte("abc"))))
	assert.True(t, Enum("Source", 1).Equal(Enum("Source", 1)))
	assert.False(t, Enum("Source", 1).Equal(Enum("Source", 2)))
}

func TestValueString(t *testing.T) {
	assert.Equal(t, "42", I32(42).String())
	assert.Equal(t, "true", Bool(true).String())
	assert.Equal(t, "hello", String("hello").String())
	assert.Equal(t, "<3 bytes>", Blob([]byte{1, 2, 3}).String())
	assert.Equal(t, "CANON(1)", Enum("CANON", 1).String())
}

func TestLess(t *testing.T) {
	lt, err := Less(I32(1), I32(2))
	require.NoError(t, err)
	assert.True(t, lt)

	lt, err = Less(F64(1.5), F64(1.4))
	require.NoError(t, err)
	assert.False(t, lt)

	_, err = Less(I32(1), U32(1))
	assert.Error(t, err)

	_, err = Less(String("a"), String("b"))
	assert.Error(t, err)
}

func TestToFloat64(t *testing.T) {
	f, ok := ToFloat64(I64(10))
	assert.True(t, ok)
	assert.Equal(t, float64(10), f)

	_, ok = ToFloat64(String("x"))
	assert.False(t, ok)
}
