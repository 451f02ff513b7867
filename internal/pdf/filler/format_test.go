package filler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/a3tai/subsidy-form-filler/internal/pdf/appdata"
	"github.com/a3tai/subsidy-form-filler/internal/pdf/template"
)

func TestFormatText(t *testing.T) {
	date := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		fc   template.FieldConfig
		v    appdata.Value
		want string
	}{
		{"number groups thousands", template.FieldConfig{Type: template.FieldTypeNumber}, appdata.Number(12500000), "12,500,000"},
		{"number keeps decimals", template.FieldConfig{Type: template.FieldTypeNumber}, appdata.Number(1234.5), "1,234.5"},
		{"numeric string", template.FieldConfig{Type: template.FieldTypeNumber}, appdata.String("3000000"), "3,000,000"},
		{"full-width digits", template.FieldConfig{Type: template.FieldTypeNumber}, appdata.String("１２３４"), "1,234"},
		{"non-numeric number is kept", template.FieldConfig{Type: template.FieldTypeNumber}, appdata.String("約100万円"), "約100万円"},
		{"date default layout", template.FieldConfig{Type: template.FieldTypeDate}, appdata.Time(date), "2025年4月1日"},
		{"date string", template.FieldConfig{Type: template.FieldTypeDate}, appdata.String("2025-04-01"), "2025年4月1日"},
		{
			"date custom layout",
			template.FieldConfig{Type: template.FieldTypeDate, Format: template.Format{DateLayout: "2006/01/02"}},
			appdata.Time(date), "2025/04/01",
		},
		{"checked checkbox", template.FieldConfig{Type: template.FieldTypeCheckbox}, appdata.Bool(true), DefaultTrueValue},
		{"unchecked checkbox", template.FieldConfig{Type: template.FieldTypeCheckbox}, appdata.Bool(false), ""},
		{
			"custom true value",
			template.FieldConfig{Type: template.FieldTypeCheckbox, Format: template.Format{TrueValue: "有"}},
			appdata.String("はい"), "有",
		},
		{"text", template.FieldConfig{Type: template.FieldTypeText}, appdata.String("株式会社テスト"), "株式会社テスト"},
		{"list as lines", template.FieldConfig{Type: template.FieldTypeMultiline}, appdata.List(appdata.String("a"), appdata.String("b")), "a\nb"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatText(tt.fc, tt.v))
		})
	}
}

func TestSingleLine(t *testing.T) {
	assert.Equal(t, "東京都千代田区 丸の内1-1", singleLine("東京都千代田区\r\n丸の内1-1"))
	assert.Equal(t, "a b", singleLine("a\n\n b \n"))
	assert.Equal(t, "株式会社　テスト", singleLine("株式会社　テスト"))
}
