package source

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsInvalidFile(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"", true},
		{"   ", true},
		{"__MACOSX/lista.csv", true},
		{"pasta/__MACOSX/lista.csv", true},
		{"._lista.csv", true},
		{"pasta/._lista.xlsx", true},
		{"lista", true},
		{"lista.txt", true},
		{"lista.zip", true},
		{"lista.csv", false},
		{"LISTA.XLSX", false},
		{"pasta/lista.xls", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsInvalidFile(tt.name))
		})
	}
}

func TestIgnore(t *testing.T) {
	ig, err := NewIgnore([]string{"~$*", "**/tmp/**"})
	require.NoError(t, err)

	assert.True(t, ig.Match("~$lista.xlsx"))
	assert.True(t, ig.Match("inbox/~$lista.xlsx"))
	assert.True(t, ig.Match("a/tmp/b.csv"))
	assert.False(t, ig.Match("lista.csv"))

	var none *Ignore
	assert.False(t, none.Match("anything"))

	_, err = NewIgnore([]string{"[unclosed"})
	assert.Error(t, err)
}
