package assistant

import "strings"

// ConversationalReply answers small talk without touching the model or the
// store.
func ConversationalReply(kind CasualKind, name string) string {
	switch kind {
	case CasualGreeting:
		return addressed("Olá", name, "!") + " Sou o assistente financeiro do Cash Plan. Posso consultar seus gastos, saldos e metas ou registrar novas movimentações. Como posso ajudar?"
	case CasualThanks:
		return addressed("Por nada", name, "!") + " Se precisar de mais alguma coisa, é só chamar."
	case CasualFarewell:
		return addressed("Até logo", name, "!") + " Cuide bem das suas finanças."
	case CasualAcknowledgement:
		return addressed("Combinado", name, ".") + " Estou por aqui se precisar."
	default:
		return addressed("Oi", name, "!") + ` Posso responder perguntas sobre suas finanças, como "quanto gastei este mês?", ou registrar dados, como "adicione uma despesa de 50 reais com mercado".`
	}
}

func addressed(opening, name, closing string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return opening + closing
	}
	return opening + ", " + name + closing
}
