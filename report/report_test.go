package report

import (
	"archive/zip"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/teranos/pegabatch/pegabot"
	"github.com/teranos/pegabatch/pulse/batch"
)

const aliceJSON = `{
  "profiles": [{
    "username": "alice",
    "url": "https://twitter.com/alice",
    "avatar": "https://pbs.twimg.com/alice.jpg",
    "bot_probability": {"all": 0.82},
    "language_independent": {"user": 0.5, "friend": 0.4, "temporal": 0.9, "network": 0.7},
    "language_dependent": {"sentiment": {"value": 0.3}}
  }],
  "twitter_data": {
    "user_id": 1234567890123456789,
    "user_name": "Alice",
    "created_at": "Wed Mar 21 12:30:00 +0000 2012",
    "following": "10",
    "followers": 2000,
    "number_tweets": 31,
    "hashtags": ["eleicoes", "brasil"],
    "mentions": "bob",
    "usedCache": true
  }
}`

func alice(t *testing.T) *pegabot.Payload {
	t.Helper()
	var p pegabot.Payload
	require.NoError(t, json.Unmarshal([]byte(aliceJSON), &p))
	return &p
}

func TestRowsResultColumns(t *testing.T) {
	rows := Rows(
		[]batch.Row{{"Perfil": "@alice"}},
		batch.PartialResult{"alice": alice(t)},
		nil,
	)
	require.Len(t, rows, 1)
	r := rows[0]
	require.Len(t, r, len(Columns))

	assert.Equal(t, "alice", r[0])
	assert.Equal(t, "", r[1])
	assert.Equal(t, 0.82, r[2])
	assert.Equal(t, 0.5, r[3])
	assert.Equal(t, 0.4, r[4])
	assert.Equal(t, 0.9, r[5])
	assert.Equal(t, 0.7, r[6])
	assert.Equal(t, 0.3, r[7])
	assert.Equal(t, "https://twitter.com/alice", r[8])
	assert.Equal(t, "https://pbs.twimg.com/alice.jpg", r[9])
	assert.Equal(t, `"1234567890123456789"`, r[10])
	assert.Equal(t, "Alice", r[11])
	assert.Equal(t, "2012-03-21 12:30:00", r[12])
	assert.Equal(t, int64(10), r[13])
	assert.Equal(t, int64(2000), r[14])
	assert.Equal(t, int64(31), r[15])
	assert.Equal(t, "eleicoes, brasil", r[16])
	assert.Equal(t, "bob", r[17])
	assert.Equal(t, "Sim", r[18])
}

func TestRowsInputOrderWithErrors(t *testing.T) {
	bobScore := 0.1
	bob := &pegabot.Payload{Profiles: []pegabot.Profile{{BotProbability: pegabot.BotProbability{All: &bobScore}}}}

	input := []batch.Row{
		{"perfil": "bob"},
		{"perfil": "ghost"},
		{"perfil": "@bob"},
		{"perfil": "alice"},
	}
	errs := []batch.LineError{
		{RowIndex: 1, Message: `Erro ao analisar handle "ghost" - perfil não encontrado`},
		{RowIndex: 7, Message: "Error: stale"},
	}
	rows := Rows(input, batch.PartialResult{"alice": alice(t), "bob": bob}, errs)

	require.Len(t, rows, 4)
	assert.Equal(t, "bob", rows[0][0])
	assert.Equal(t, "Não", rows[0][18])
	assert.Equal(t, "ghost", rows[1][0])
	assert.Equal(t, `Erro ao analisar handle "ghost" - perfil não encontrado`, rows[1][1])
	assert.Equal(t, "alice", rows[2][0])
	assert.Equal(t, "Linha 9", rows[3][0])
	assert.Equal(t, "stale", rows[3][1])
}

func TestRowsMissingBlocks(t *testing.T) {
	rows := Rows([]batch.Row{{"perfil": "x"}}, batch.PartialResult{"x": {Profiles: []pegabot.Profile{{}}}}, nil)
	require.Len(t, rows, 1)
	assert.Equal(t, "", rows[0][2])
	assert.Equal(t, "", rows[0][10])
	assert.Equal(t, "Não", rows[0][18])
}

func TestOutputName(t *testing.T) {
	assert.Equal(t, "42_lista_results.xlsx", OutputName("/work/42_lista.csv"))
	assert.Equal(t, "42_lista_results.xlsx", OutputName("42_lista.v2.xlsx"))
	assert.Equal(t, "semext_results.xlsx", OutputName("semext"))
}

func TestFormatErrors(t *testing.T) {
	got := FormatErrors([]batch.LineError{{RowIndex: 0, Message: "a"}, {RowIndex: 3, Message: "b"}})
	assert.Equal(t, "Linha 2: a\nLinha 5: b", got)
}

func TestWriteXLSXAndArchive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "42_lista_results.xlsx")
	rows := Rows([]batch.Row{{"perfil": "alice"}}, batch.PartialResult{"alice": alice(t)}, nil)
	require.NoError(t, WriteXLSX(path, rows))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	got, err := f.GetRows(Sheet)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.Len(t, got, 2)
	assert.Equal(t, Columns, got[0])
	assert.Equal(t, "alice", got[1][0])
	assert.Equal(t, `"1234567890123456789"`, got[1][10])

	zipPath, err := Archive(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "42_lista_results.zip"), zipPath)

	zr, err := zip.OpenReader(zipPath)
	require.NoError(t, err)
	defer zr.Close()
	require.Len(t, zr.File, 1)
	assert.Equal(t, "42_lista_results.xlsx", zr.File[0].Name)
}
