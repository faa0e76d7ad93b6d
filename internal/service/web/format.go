package web

import (
	"encoding/json"
	"html/template"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/vladislavdragonenkov/oda/internal/domain"
)

// currencyLocale: суммы датасета в реалах, показываем их в бразильской нотации.
var currencyLocale = language.MustParse("pt-BR")

func newPrinter() *message.Printer {
	return message.NewPrinter(currencyLocale)
}

// FormatBRL форматирует сумму как «R$ 1.234,56».
func FormatBRL(amount decimal.Decimal) string {
	return newPrinter().Sprintf("R$ %.2f", amount.Round(2).InexactFloat64())
}

// FormatCount форматирует целое с разделителем тысяч pt-BR.
func FormatCount(n int) string {
	return newPrinter().Sprintf("%d", n)
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(domain.DateLayout)
}

func formatFloat(v float64) string {
	return newPrinter().Sprintf("%.3f", v)
}

// toJS сериализует данные графиков для вставки в <script>.
func toJS(v interface{}) (template.JS, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return template.JS(data), nil
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"brl":   FormatBRL,
		"count": FormatCount,
		"date":  formatDate,
		"float": formatFloat,
		"js":    toJS,
		"add":   func(a, b int) int { return a + b },
		"sub":   func(a, b int) int { return a - b },
	}
}
