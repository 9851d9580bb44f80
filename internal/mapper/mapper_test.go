package mapper

import (
	"testing"

	"estatesync/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapToRecordDates(t *testing.T) {
	tests := []struct {
		name string
		cell any
		want any
	}{
		{"SlashDate", "2024/1/15", "2024-01-15"},
		{"HyphenDate", "2024-1-5", "2024-01-05"},
		{"EmbeddedInText", "済 2024/3/10 予定", "2024-03-10"},
		{"KanjiSeparators", "2024年3月10", "2024-03-10"},
		{"Empty", "", nil},
		{"Whitespace", "   ", nil},
		{"FullWidthWhitespace", "　", nil},
		{"Nil", nil, nil},
		{"Garbage", "未定", nil},
		{"InvalidMonth", "2024/13/01", nil},
		{"InvalidDay", "2024/1/32", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record := MapToRecord([]string{"媒介作成締め日"}, []any{tt.cell})
			got, ok := record["mediation_deadline"]
			require.True(t, ok, "date column must be present in the record")
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMapToRecordNumbers(t *testing.T) {
	tests := []struct {
		name string
		cell any
		want any
	}{
		{"Plain", "3000000", float64(3000000)},
		{"ThousandsSeparators", "3,000,000", float64(3000000)},
		{"YenSuffix", "960,000円", float64(960000)},
		{"TrailingText", "960,000円（税込）", nil},
		{"YenSign", "¥1,200,000", float64(1200000)},
		{"NumericCell", float64(500000), float64(500000)},
		{"Empty", "", nil},
		{"Garbage", "応相談", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record := MapToRecord([]string{"売買価格"}, []any{tt.cell})
			got, ok := record["sale_price"]
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMapToRecordFullRow(t *testing.T) {
	headers := []string{"物件番号", "物件名", "売主名", "媒介作成締め日", "仲介手数料", "不明な列", "備考"}
	row := []any{"B-1024", "グリーンハイツ301", "山田太郎", "2024/1/15", "1,056,000円", "落とされる", "備考テキスト"}

	record := MapToRecord(headers, row)

	assert.Equal(t, "B-1024", record[models.KeyField])
	assert.Equal(t, "グリーンハイツ301", record["property_name"])
	assert.Equal(t, "山田太郎", record["seller_name"])
	assert.Equal(t, "2024-01-15", record["mediation_deadline"])
	assert.Equal(t, float64(1056000), record["brokerage_fee"])
	assert.Equal(t, "備考テキスト", record["notes"])

	// Unknown headers are dropped, not nulled.
	_, ok := record["不明な列"]
	assert.False(t, ok)

	assert.Equal(t, "B-1024", record.NaturalKey())
}

func TestMapToRecordShortRow(t *testing.T) {
	// Row shorter than the header set: missing cells become nil.
	headers := []string{"物件番号", "決済日"}
	record := MapToRecord(headers, []any{"B-7"})

	assert.Equal(t, "B-7", record[models.KeyField])
	assert.Nil(t, record["settlement_date"])
}

func TestNaturalKeyFromNumericCell(t *testing.T) {
	record := MapToRecord([]string{"物件番号"}, []any{float64(1024)})
	assert.Equal(t, "1024", record.NaturalKey())
}

func TestMapToRecordCallNotesEnrichment(t *testing.T) {
	headers := []string{"物件番号", "対応履歴"}
	row := []any{"C-55", "2023/9/14 12:24 ご来店\n2024/1/10 15:00 お電話\n折り返し待ち"}

	record := MapToRecord(headers, row)

	assert.Equal(t, "2024-01-10 15:00", record["last_contact_at"])
	assert.Equal(t, float64(2), record["call_count"])
}

func TestMapToRecordCallNotesWithoutTimestamps(t *testing.T) {
	headers := []string{"物件番号", "対応履歴"}
	record := MapToRecord(headers, []any{"C-56", "連絡つかず"})

	assert.Equal(t, "連絡つかず", record["call_notes"])
	_, hasContact := record["last_contact_at"]
	assert.False(t, hasContact)
	_, hasCount := record["call_count"]
	assert.False(t, hasCount)
}
