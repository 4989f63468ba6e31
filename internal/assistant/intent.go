package assistant

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

type Intent string

const (
	IntentConversational Intent = "conversational"
	IntentInsertion      Intent = "data-insertion"
	IntentQuery          Intent = "data-query"
)

type CasualKind string

const (
	CasualGreeting        CasualKind = "greeting"
	CasualThanks          CasualKind = "thanks"
	CasualFarewell        CasualKind = "farewell"
	CasualAcknowledgement CasualKind = "acknowledgement"
	CasualOther           CasualKind = "other"
)

type Classification struct {
	Intent Intent
	// Casual is set only for conversational input.
	Casual CasualKind
}

const casualMaxRunes = 30

var casualMarkers = []struct {
	kind    CasualKind
	markers []string
}{
	{CasualGreeting, []string{"oi", "olá", "ola", "bom dia", "boa tarde", "boa noite", "tudo bem", "hello", "hi", "hey"}},
	{CasualThanks, []string{"obrigado", "obrigada", "valeu", "thanks", "thank you"}},
	{CasualFarewell, []string{"tchau", "até logo", "até mais", "bye"}},
	{CasualAcknowledgement, []string{"ok", "beleza", "entendi", "certo", "legal"}},
}

var insertionMarkers = []string{
	"adicionar", "adicione", "add",
	"criar", "crie", "create",
	"registrar", "registre", "record",
	"gastei", "gasto", "paguei", "pago", "recebi", "ganhei", "comprei",
	"spent", "paid", "received", "earned",
}

var currencyWords = []string{"reais", "real", "usd", "dólares", "dolares", "conto", "contos"}

var currencySymbols = []string{"r$", "$"}

var queryMarkers = []string{
	"quanto", "quantos", "quantas", "qual", "quais", "quando", "onde", "como",
	"total", "saldo", "balance", "how much", "what", "which",
	"mostre", "mostrar", "listar", "liste", "show", "list",
	"transações", "contas", "cartões", "metas", "investimentos", "gastos", "despesas", "receitas",
	"hoje", "ontem", "semana", "mês", "mes", "ano", "último", "ultima", "last", "this month",
}

var digitPattern = regexp.MustCompile(`[0-9]`)

// Classify maps free text to an intent without calling the model.
func Classify(text string) Intent {
	return ClassifyDetailed(text).Intent
}

// ClassifyDetailed applies the rules in priority order: short casual text,
// insertion markers, query markers, and finally the conversational default.
func ClassifyDetailed(text string) Classification {
	folded := fold(text)
	words := wordForm(folded)

	if utf8.RuneCountInString(strings.TrimSpace(text)) < casualMaxRunes {
		for _, group := range casualMarkers {
			if containsAnyWord(words, group.markers) {
				return Classification{Intent: IntentConversational, Casual: group.kind}
			}
		}
	}

	if containsAnyWord(words, insertionMarkers) || (digitPattern.MatchString(folded) && hasCurrency(folded, words)) {
		return Classification{Intent: IntentInsertion}
	}
	if containsAnyWord(words, queryMarkers) {
		return Classification{Intent: IntentQuery}
	}
	return Classification{Intent: IntentConversational, Casual: CasualOther}
}

func hasCurrency(folded, words string) bool {
	for _, symbol := range currencySymbols {
		if strings.Contains(folded, symbol) {
			return true
		}
	}
	return containsAnyWord(words, currencyWords)
}

// containsAnyWord matches markers on word boundaries against a string produced
// by wordForm.
func containsAnyWord(words string, markers []string) bool {
	for _, marker := range markers {
		if strings.Contains(words, " "+wordForm(fold(marker))+" ") {
			return true
		}
	}
	return false
}

// fold lower-cases text and removes combining accents so "Olá" and "ola"
// compare equal.
func fold(text string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, text)
	if err != nil {
		folded = text
	}
	return strings.ToLower(folded)
}

// wordForm collapses every run of characters other than letters and digits
// into a single space and pads the result with spaces.
func wordForm(text string) string {
	var b strings.Builder
	b.Grow(len(text) + 2)
	b.WriteByte(' ')
	space := true
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			space = false
			continue
		}
		if !space {
			b.WriteByte(' ')
			space = true
		}
	}
	if !space {
		b.WriteByte(' ')
	}
	return b.String()
}
