// Package report renders finished jobs as result spreadsheets.
package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/teranos/pegabatch/handle"
	"github.com/teranos/pegabatch/pegabot"
	"github.com/teranos/pegabatch/pulse/batch"
)

// Columns of the result spreadsheet, in order.
var Columns = []string{
	"Perfil Twitter",
	"Mensagem de Erro",
	"Análise Total",
	"Análise Usuário",
	"Análise Amigos",
	"Análise Temporal",
	"Análise Rede",
	"Análise Sentimento",
	"URL do Perfil",
	"Avatar do Perfil",
	"ID do Usuário",
	"Nome do Usuário",
	"Criação da Conta",
	"Seguindo",
	"Seguidores",
	"Número de Tweets",
	"Hashtags Recentes",
	"Menções Recentes",
	"Usou Cache",
}

// Row is one spreadsheet line aligned with Columns.
type Row []any

// Rows lays out a job's results and line errors in input order. Each
// identifier appears once even when it was listed several times; every line
// error gets its own row.
func Rows(input []batch.Row, results batch.PartialResult, errs []batch.LineError) []Row {
	byLine := make(map[int][]batch.LineError, len(errs))
	for _, e := range errs {
		byLine[e.RowIndex] = append(byLine[e.RowIndex], e)
	}

	out := make([]Row, 0, len(results)+len(errs))
	emitted := make(map[string]bool, len(results))
	for i, r := range input {
		for _, e := range byLine[i] {
			out = append(out, errorRow(rawIdentifier(r), e.Message))
		}
		delete(byLine, i)

		key, ok := handle.Column(r)
		if !ok {
			continue
		}
		id, ok := handle.Normalize(r[key])
		if !ok || emitted[id] {
			continue
		}
		if p, ok := results[id]; ok {
			out = append(out, resultRow(id, p))
			emitted[id] = true
		}
	}

	// Errors or results that no longer match an input line
	var lines []int
	for i := range byLine {
		lines = append(lines, i)
	}
	sort.Ints(lines)
	for _, i := range lines {
		for _, e := range byLine[i] {
			out = append(out, errorRow(fmt.Sprintf("Linha %d", i+batch.RowOffset), e.Message))
		}
	}
	var rest []string
	for id := range results {
		if !emitted[id] {
			rest = append(rest, id)
		}
	}
	sort.Strings(rest)
	for _, id := range rest {
		out = append(out, resultRow(id, results[id]))
	}
	return out
}

// FormatErrors is the text stored on a request and attached to error mail.
func FormatErrors(errs []batch.LineError) string {
	return batch.FormatErrors(errs)
}

func rawIdentifier(r batch.Row) string {
	key, ok := handle.Column(r)
	if !ok {
		return ""
	}
	if id, ok := handle.Normalize(r[key]); ok {
		return id
	}
	if r[key] == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(r[key]))
}

func errorRow(profile, msg string) Row {
	row := make(Row, len(Columns))
	for i := range row {
		row[i] = ""
	}
	row[0] = profile
	row[1] = strings.TrimSpace(strings.TrimPrefix(msg, "Error:"))
	return row
}

func resultRow(id string, p *pegabot.Payload) Row {
	row := errorRow(id, "")
	if p == nil || len(p.Profiles) == 0 {
		return row
	}
	prof := p.Profiles[0]
	row[2] = score(prof.BotProbability.All)
	row[3] = score(prof.LanguageIndependent.User)
	row[4] = score(prof.LanguageIndependent.Friend)
	row[5] = score(prof.LanguageIndependent.Temporal)
	row[6] = score(prof.LanguageIndependent.Network)
	row[7] = score(prof.Sentiment())
	row[8] = prof.URL
	row[9] = prof.Avatar

	row[18] = "Não"
	if td := p.TwitterData; td != nil {
		// Quoted so spreadsheet apps keep every digit of large ids
		row[10] = `"` + string(td.UserID) + `"`
		row[11] = string(td.UserName)
		row[12] = accountDate(string(td.CreatedAt))
		row[13] = int64(td.Following)
		row[14] = int64(td.Followers)
		row[15] = int64(td.NumberTweets)
		row[16] = td.Hashtags.String()
		row[17] = td.Mentions.String()
		if td.UsedCache {
			row[18] = "Sim"
		}
	}
	return row
}

func score(v *float64) any {
	if v == nil {
		return ""
	}
	return *v
}

var createdLayouts = []string{
	time.RubyDate,
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// accountDate renders account creation as "2006-01-02 15:04:05" UTC,
// leaving unrecognised text as it came.
func accountDate(s string) string {
	s = strings.TrimSpace(s)
	for _, layout := range createdLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC().Format("2006-01-02 15:04:05")
		}
	}
	return s
}
