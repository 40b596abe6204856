package bytesize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	cases := []struct {
		in   string
		want Size
	}{
		{"1024", 1024},
		{"4M", 4 * MB},
		{"4MB", 4 * MB},
		{"1.5GB", Size(1.5 * float64(GB))},
		{"500 KB", 500 * KB},
		{"2GiB", 2 * GB},
	}
	for _, c := range cases {
		got, err := Parse(c.in)
		require.NoError(t, err, c.in)
		assert.Equal(t, c.want, got, c.in)
	}
}

func TestParseInvalid(t *testing.T) {
	_, err := Parse("")
	assert.Error(t, err)
	_, err = Parse("4XB")
	assert.Error(t, err)
}

func TestStringRoundTrip(t *testing.T) {
	assert.Equal(t, "4MB", (4 * MB).String())
	assert.Equal(t, "0B", Size(0).String())
	assert.Equal(t, "512B", Size(512).String())
}

func TestUnmarshalText(t *testing.T) {
	var s Size
	require.NoError(t, s.UnmarshalText([]byte("4M")))
	assert.Equal(t, 4*MB, s)
}
