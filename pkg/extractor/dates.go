package extractor

import (
	"regexp"
	"strconv"
	"time"

	"github.com/transparencia-br/fiscal/pkg/models"
)

var (
	dmyPattern      = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})/(\d{4})\b`)
	isoPattern      = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
	monthPattern    = regexp.MustCompile(`\b(janeiro|fevereiro|marco|abril|maio|junho|julho|agosto|setembro|outubro|novembro|dezembro)( de)? (\d{4})\b`)
	relativePattern = regexp.MustCompile(`\bultim[oa]s? (\d+) (dia|dias|mes|meses|semana|semanas|ano|anos)\b`)
	yearPattern     = regexp.MustCompile(`\b(19|20)\d{2}\b`)
)

// monthIndex maps folded Portuguese month names to time.Month.
var monthIndex = map[string]time.Month{
	"janeiro": time.January, "fevereiro": time.February, "marco": time.March,
	"abril": time.April, "maio": time.May, "junho": time.June,
	"julho": time.July, "agosto": time.August, "setembro": time.September,
	"outubro": time.October, "novembro": time.November, "dezembro": time.December,
}

// extractDateRange resolves the date expressions in folded text into a
// single range. Priority: relative expressions, then explicit dates, then
// month references, then a bare year expanded to the full calendar year.
// ref anchors relative expressions so extraction is reproducible.
func extractDateRange(folded string, ref time.Time) *models.DateRange {
	if r := matchRelative(folded, ref); r != nil {
		return r
	}

	var dates []time.Time
	for _, m := range dmyPattern.FindAllStringSubmatch(folded, -1) {
		day, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		year, _ := strconv.Atoi(m[3])
		if t, ok := civilDate(year, month, day); ok {
			dates = append(dates, t)
		}
	}
	for _, m := range isoPattern.FindAllStringSubmatch(folded, -1) {
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		day, _ := strconv.Atoi(m[3])
		if t, ok := civilDate(year, month, day); ok {
			dates = append(dates, t)
		}
	}
	if len(dates) > 0 {
		return rangeOf(dates)
	}

	if months := monthPattern.FindAllStringSubmatch(folded, -1); len(months) > 0 {
		for _, m := range months {
			year, _ := strconv.Atoi(m[3])
			start := time.Date(year, monthIndex[m[1]], 1, 0, 0, 0, 0, time.UTC)
			dates = append(dates, start, start.AddDate(0, 1, -1))
		}
		return rangeOf(dates)
	}

	if years := yearPattern.FindAllString(folded, -1); len(years) > 0 {
		for _, y := range years {
			year, _ := strconv.Atoi(y)
			dates = append(dates,
				time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC),
				time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC))
		}
		return rangeOf(dates)
	}

	return nil
}

// matchRelative resolves "últimos N dias/semanas/meses/anos" against ref.
func matchRelative(folded string, ref time.Time) *models.DateRange {
	m := relativePattern.FindStringSubmatch(folded)
	if m == nil {
		return nil
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return nil
	}
	end := ref.UTC().Truncate(24 * time.Hour)
	var start time.Time
	switch m[2] {
	case "dia", "dias":
		start = end.AddDate(0, 0, -n)
	case "semana", "semanas":
		start = end.AddDate(0, 0, -7*n)
	case "mes", "meses":
		start = end.AddDate(0, -n, 0)
	default:
		start = end.AddDate(-n, 0, 0)
	}
	return &models.DateRange{Start: start, End: end}
}

// civilDate validates calendar components strictly (31/02 is rejected).
func civilDate(year, month, day int) (time.Time, bool) {
	if year < 1900 || year > 2100 || month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Year() != year || int(t.Month()) != month || t.Day() != day {
		return time.Time{}, false
	}
	return t, true
}

func rangeOf(dates []time.Time) *models.DateRange {
	min, max := dates[0], dates[0]
	for _, d := range dates[1:] {
		if d.Before(min) {
			min = d
		}
		if d.After(max) {
			max = d
		}
	}
	return &models.DateRange{Start: min, End: max}
}
