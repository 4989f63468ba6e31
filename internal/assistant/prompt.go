package assistant

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cashplan/cashplan/internal/store"
)

type QueryPromptInput struct {
	Schema   string
	UserID   int64
	UserName string
	Question string
	MaxRows  int
}

type InsertPromptInput struct {
	Schema     string
	UserID     int64
	Today      time.Time
	Categories []store.Category
	Question   string
}

func BuildQueryPrompt(in QueryPromptInput) (string, error) {
	if err := checkPromptContext(in.Schema, in.UserID); err != nil {
		return "", err
	}
	maxRows := in.MaxRows
	if maxRows <= 0 {
		maxRows = 100
	}
	name := strings.TrimSpace(in.UserName)
	if name == "" {
		name = "usuário"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Você é o assistente financeiro do app Cash Plan. O usuário atual é %s (ID: %d).\n", name, in.UserID)
	b.WriteString("Converta a pergunta do usuário em uma única consulta SQL (PostgreSQL) que a responda.\n\n")
	b.WriteString("Esquema do banco de dados:\n")
	b.WriteString(strings.TrimSpace(in.Schema))
	b.WriteString("\n\nRegras obrigatórias:\n")
	fmt.Fprintf(&b, "1. Toda tabela lida pela consulta deve ser filtrada por user_id = %d, inclusive em JOINs e subconsultas. Use o alias da tabela no filtro quando houver mais de uma tabela.\n", in.UserID)
	b.WriteString("2. Use somente SELECT. Nunca gere INSERT, UPDATE, DELETE ou comandos de administração.\n")
	b.WriteString("3. Gere uma única instrução, sem ponto e vírgula no meio.\n")
	b.WriteString("4. Retorne APENAS o texto da consulta, sem blocos de código markdown, sem comentários e sem explicações.\n")
	b.WriteString("5. Use SQL portável: nada de casts com ::, nada de ILIKE e nada de WITH. Para datas use CURRENT_DATE, EXTRACT e INTERVAL '1' MONTH.\n")
	fmt.Fprintf(&b, "6. Limite o resultado a no máximo %d linhas com LIMIT.\n", maxRows)
	b.WriteString("7. Em transactions, despesas têm amount negativo e receitas amount positivo.\n\n")
	fmt.Fprintf(&b, "Pergunta do usuário: %s", strings.TrimSpace(in.Question))
	return b.String(), nil
}

func BuildInsertPrompt(in InsertPromptInput) (string, error) {
	if err := checkPromptContext(in.Schema, in.UserID); err != nil {
		return "", err
	}
	today := in.Today
	if today.IsZero() {
		today = time.Now()
	}

	var b strings.Builder
	b.WriteString("Você é o assistente financeiro do app Cash Plan e deve transformar o pedido do usuário em um registro estruturado.\n\n")
	b.WriteString("Esquema do banco de dados:\n")
	b.WriteString(strings.TrimSpace(in.Schema))
	fmt.Fprintf(&b, "\n\nData de hoje: %s\n", today.Format("2006-01-02"))
	b.WriteString(categoryLines(in.Categories))
	b.WriteString(`
Responda APENAS com um objeto JSON, sem markdown, em um destes formatos:
{"entity_type": "<tipo>", "data": {...}}
{"error": "<motivo em português>"}

Tipos e campos:
- transaction: obrigatórios description, amount, type ("income" ou "expense"); opcionais date (YYYY-MM-DD, padrão hoje), category (padrão "Outros"), account_id.
- account: obrigatórios name, bank; opcionais balance (padrão 0), investments (padrão 0), color.
- credit_card: obrigatórios name, bank, limit (inteiro); opcionais used (inteiro, padrão 0), color.
- goal: obrigatórios name, target; opcionais current (padrão 0), color.
- investment: obrigatórios name, type ("Renda Fixa" ou "Renda Variável"), value; opcionais return_rate (padrão 0), color.

Convenções:
- Despesas (expense) têm amount negativo e receitas (income) têm amount positivo.
- Escolha a categoria mais adequada entre as categorias do usuário.
- Nunca informe id nem user_id.
- Se faltar informação essencial, responda com {"error": "..."} explicando o que falta.

Exemplos:
Pedido: "Gastei 50 com mercado"
{"entity_type": "transaction", "data": {"description": "Mercado", "amount": -50.0, "type": "expense", "category": "Alimentação"}}
Pedido: "Recebi 3000 de salário ontem"
{"entity_type": "transaction", "data": {"description": "Salário", "amount": 3000.0, "type": "income", "category": "Salário", "date": "<ontem em YYYY-MM-DD>"}}
Pedido: "Criar conta Nubank no banco Nubank com saldo de 1200"
{"entity_type": "account", "data": {"name": "Nubank", "bank": "Nubank", "balance": 1200.0}}
Pedido: "Adicionar meta de viagem de 10 mil"
{"entity_type": "goal", "data": {"name": "Viagem", "target": 10000.0}}
Pedido: "Registrar um gasto"
{"error": "Informe o valor e a descrição do gasto."}
`)
	fmt.Fprintf(&b, "\nPedido do usuário: %s", strings.TrimSpace(in.Question))
	return b.String(), nil
}

// BuildExplanationPrompt asks for a friendly reading of rows returned by sql.
func BuildExplanationPrompt(sql, rowsJSON, currency string) string {
	if strings.TrimSpace(currency) == "" {
		currency = "R$"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "A consulta SQL `%s` foi executada e retornou os seguintes dados em JSON:\n", strings.TrimSpace(sql))
	b.WriteString(rowsJSON)
	b.WriteString("\n\nExplique esses dados para o usuário em português, de forma amigável e natural.\n")
	fmt.Fprintf(&b, "Formate valores monetários com %s e vírgula decimal (ex.: %s 1.234,56).\n", currency, currency)
	b.WriteString("Se não houver dados, diga explicitamente que nenhum registro foi encontrado.\n")
	b.WriteString("Não mencione SQL, tabelas ou colunas na resposta.")
	return b.String()
}

func checkPromptContext(schema string, userID int64) error {
	if strings.TrimSpace(schema) == "" {
		return fmt.Errorf("%w: schema description is empty", ErrPromptContext)
	}
	if userID <= 0 {
		return fmt.Errorf("%w: user id must be positive", ErrPromptContext)
	}
	return nil
}

func categoryLines(categories []store.Category) string {
	byType := map[string][]string{}
	for _, category := range categories {
		byType[category.Type] = append(byType[category.Type], category.Name)
	}
	if len(byType) == 0 {
		for _, category := range store.DefaultCategories {
			byType[category.Type] = append(byType[category.Type], category.Name)
		}
	}
	var b strings.Builder
	for _, kind := range []string{store.TransactionIncome, store.TransactionExpense} {
		names := byType[kind]
		sort.Strings(names)
		fmt.Fprintf(&b, "Categorias de %s: %s\n", kind, strings.Join(names, ", "))
	}
	return b.String()
}
