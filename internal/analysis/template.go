// Package analysis holds the static financial-analysis prompt template
// and the message construction for the analysis route. The streaming and
// finalization machinery is shared with the chat route; only the message
// list differs here.
package analysis

import (
	"fmt"
	"strings"

	"github.com/ifinance/relay/internal/domain"
)

// TemplateName identifies the seeded analysis template.
const TemplateName = "Análise Financeira iFinance"

// SystemPrompt is the fixed system message for financial-analysis runs.
const SystemPrompt = `Você é um consultor financeiro especializado da iFinance, com expertise em análise de demonstrativos financeiros, cálculo de indicadores e elaboração de relatórios executivos.

Sua missão é fornecer análises financeiras completas, profissionais e acionáveis, seguindo rigorosamente o formato estruturado abaixo.

# FORMATO OBRIGATÓRIO DE RESPOSTA

## 1. Resumo Inicial: Visão Geral do Negócio e Principais Destaques
- Apresente os principais números da empresa (ROB, ROL, Lucro Líquido)
- Destaque as margens principais (Margem Bruta, EBITDA, Margem Líquida)
- Identifique os principais pontos de atenção ou alertas críticos

## 2. Análise Detalhada

### 2.1. Receita, Crescimento e Concentração de Clientes
### 2.2. Custos e Despesas Fixas e Variáveis, com Destaque para Gargalos
### 2.3. Margem Bruta, EBITDA, Margem Líquida
### 2.4. Ponto de Equilíbrio (Break-even) e Análise de Caixa
### 2.5. Endividamento, Prazos Médios (PMR, PMP, PMO) e Necessidade de Capital de Giro

## 3. Alertas e Riscos

## 4. Oportunidades de Melhoria

## 5. Checklist de Apresentação

## 6. Próximos Passos

# DIRETRIZES IMPORTANTES

1. **Tom profissional e empático:** Mantenha sempre um tom consultivo, claro e acessível
2. **Formatação clara:** Use markdown, tabelas, listas e seções bem definidas
3. **Números precisos:** Sempre mostre os cálculos realizados
4. **Acionável:** Toda análise deve ter recomendações práticas

Lembre-se: Você representa a iFinance, uma consultoria de excelência. Sua análise deve ser impecável, completa e valiosa para o cliente.`

// BuildDocumentContext concatenates the extracted text of the given files
// plus any extra context supplied by the caller.
func BuildDocumentContext(files []domain.FileRecord, additionalContext string) string {
	sections := make([]string, 0, len(files))
	for _, file := range files {
		text := file.ExtractedText
		if text == "" {
			text = "Sem conteúdo extraído"
		}
		sections = append(sections, fmt.Sprintf("### Arquivo: %s\n\n%s", file.Name, text))
	}

	content := strings.Join(sections, "\n\n---\n\n")

	if additionalContext != "" {
		if content != "" {
			content += "\n\n"
		}
		content += "### Contexto Adicional Fornecido\n\n" + additionalContext
	}

	return content
}

// UserPrompt builds the user message for an analysis run.
func UserPrompt(clientName, documentContext string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Faça a análise financeira completa do cliente %s", clientName)

	if documentContext != "" {
		b.WriteString("\n\nDados financeiros extraídos:\n\n")
		b.WriteString(documentContext)
	} else {
		b.WriteString("\n\nOs dados financeiros foram anexados. Por favor, analise-os completamente.")
	}

	b.WriteString("\n\nSiga rigorosamente o formato estabelecido no seu prompt de sistema, incluindo todas as seções obrigatórias.")
	return b.String()
}

// Messages builds the full message list for an analysis run.
func Messages(clientName string, files []domain.FileRecord, additionalContext string) []domain.Message {
	return []domain.Message{
		{Role: domain.RoleSystem, Content: SystemPrompt},
		{Role: domain.RoleUser, Content: UserPrompt(clientName, BuildDocumentContext(files, additionalContext))},
	}
}

// SeedTemplate is the template record seeded at startup so the templates
// endpoint can serve it.
func SeedTemplate() *domain.FinancialTemplate {
	return &domain.FinancialTemplate{
		ID:          "ifinance-template",
		Name:        TemplateName,
		Description: "Análise financeira completa com indicadores, alertas e próximos passos",
		Prompt:      SystemPrompt,
		Category:    "financeiro",
		Active:      true,
		Model:       "gpt-4o",
		Temperature: 0.3,
		MaxTokens:   8000,
	}
}
