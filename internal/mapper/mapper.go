package mapper

import (
	"regexp"
	"strconv"
	"strings"

	"estatesync/internal/models"
	"estatesync/internal/notes"
)

// columnFields maps spreadsheet headers to store field names. Headers not
// listed here are dropped during mapping.
var columnFields = map[string]string{
	"物件番号":    models.KeyField,
	"物件名":     "property_name",
	"住所":      "address",
	"売主名":     "seller_name",
	"買主名":     "buyer_name",
	"担当者":     "agent_name",
	"ステータス":   "status",
	"電話番号":    "phone",
	"媒介契約日":   "mediation_contract_date",
	"媒介作成締め日": "mediation_deadline",
	"契約日":     "contract_date",
	"決済日":     "settlement_date",
	"登記完了日":   "registration_completion_date",
	"引渡完了日":   "handover_completion_date",
	"査定日":     "appraisal_date",
	"売買価格":    "sale_price",
	"査定価格":    "appraisal_price",
	"仲介手数料":   "brokerage_fee",
	"広告料":     "advertising_fee",
	"備考":      "notes",
	"対応履歴":    "call_notes",
}

// dateMarkers classify a header as a date column. Ordered so new formats
// are additive.
var dateMarkers = []string{
	"締め日",
	"締切",
	"契約日",
	"決済日",
	"登記完了",
	"引渡完了",
	"査定日",
	"完了日",
}

// numberMarkers classify a header as a numeric (fee/price) column.
var numberMarkers = []string{
	"価格",
	"手数料",
	"広告料",
	"金額",
	"料金",
}

// datePattern extracts a YYYY/M/D style date embedded anywhere in a cell.
// Hyphens and kanji separators are accepted alongside slashes.
var datePattern = regexp.MustCompile(`(\d{4})[/\-年](\d{1,2})[/\-月](\d{1,2})`)

// numberCleaner strips thousands separators and currency suffixes before
// numeric parsing.
var numberCleaner = strings.NewReplacer(",", "", "，", "", "¥", "", "￥", "", "円", "", " ", "", "　", "")

// MapToRecord converts one source row into a typed record. Cells under
// unknown headers are dropped; malformed values degrade to nil, never to
// an error.
func MapToRecord(headers []string, row []any) models.Record {
	record := make(models.Record, len(headers))

	for i, rawHeader := range headers {
		header := strings.TrimSpace(rawHeader)
		field, ok := columnFields[header]
		if !ok {
			continue
		}

		var cell any
		if i < len(row) {
			cell = row[i]
		}

		text := cellText(cell)
		if text == "" {
			// Empty wins over column classification.
			record[field] = nil
			continue
		}

		switch {
		case isDateHeader(header):
			record[field] = parseDate(text)
		case isNumberHeader(header):
			record[field] = parseNumber(text)
		default:
			record[field] = text
		}
	}

	enrichFromCallNotes(record)

	return record
}

// enrichFromCallNotes derives contact summary fields from the free-text
// call history column.
func enrichFromCallNotes(record models.Record) {
	text, ok := record["call_notes"].(string)
	if !ok || text == "" {
		return
	}

	if latest, found := notes.MostRecent(text); found {
		record["last_contact_at"] = latest.Time.Format("2006-01-02 15:04")
	}
	if n := notes.CountCalls(text); n > 0 {
		record["call_count"] = float64(n)
	}
}

func isDateHeader(header string) bool {
	for _, marker := range dateMarkers {
		if strings.Contains(header, marker) {
			return true
		}
	}
	return false
}

func isNumberHeader(header string) bool {
	for _, marker := range numberMarkers {
		if strings.Contains(header, marker) {
			return true
		}
	}
	return false
}

// cellText renders a raw cell to trimmed text. Sheets hands cells over as
// strings or numbers depending on cell formatting.
func cellText(cell any) string {
	switch v := cell.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(v, 10)
	case int:
		return strconv.Itoa(v)
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}

// parseDate normalizes the first embedded date to YYYY-MM-DD, or nil when
// no valid date is present.
func parseDate(text string) any {
	m := datePattern.FindStringSubmatch(text)
	if m == nil {
		return nil
	}

	year, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	day, _ := strconv.Atoi(m[3])

	if month < 1 || month > 12 || day < 1 || day > 31 {
		return nil
	}

	var b strings.Builder
	b.WriteString(strconv.Itoa(year))
	b.WriteByte('-')
	if month < 10 {
		b.WriteByte('0')
	}
	b.WriteString(strconv.Itoa(month))
	b.WriteByte('-')
	if day < 10 {
		b.WriteByte('0')
	}
	b.WriteString(strconv.Itoa(day))
	return b.String()
}

// parseNumber strips separators and currency suffixes, then parses. Returns
// nil when nothing numeric remains.
func parseNumber(text string) any {
	cleaned := numberCleaner.Replace(text)
	if cleaned == "" {
		return nil
	}
	n, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return nil
	}
	return n
}
