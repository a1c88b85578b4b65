package normalization

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type mode string

const (
	modeFile   mode = "file"
	modeSQLite mode = "sqlite"
)

func TestNormalizer(t *testing.T) {
	n := NewNormalizer("cache backend", map[string]mode{
		"file":   modeFile,
		"sqlite": modeSQLite,
	}, modeFile)

	tests := []struct {
		name  string
		input string
		want  mode
	}{
		{"exact", "sqlite", modeSQLite},
		{"case and spaces", "  SQLite ", modeSQLite},
		{"empty uses default", "", modeFile},
		{"unknown uses default", "redis", modeFile},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, n.Normalize(tt.input))
		})
	}

	_, err := n.Parse("redis")
	require.ErrorContains(t, err, "invalid cache backend \"redis\", valid options: file, sqlite")

	got, err := n.Parse("")
	require.NoError(t, err)
	require.Equal(t, modeFile, got)
	require.Equal(t, []string{"file", "sqlite"}, n.ValidKeys())
}
