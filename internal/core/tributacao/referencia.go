// internal/core/tributacao/referencia.go
package tributacao

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/pricetax/fiscaliva/internal/core/fiscal"
	"github.com/pricetax/fiscaliva/internal/domain"
)

// CarregarReferencia lê a planilha oficial de classificação tributária e
// indexa os códigos cClassTrib por código. A tabela é opcional: quando o
// arquivo não existe o chamador segue sem enriquecimento.
func CarregarReferencia(caminho string) (map[string]domain.InfoClassificacao, error) {
	f, err := os.Open(caminho)
	if err != nil {
		return nil, fmt.Errorf("erro ao abrir tabela de classificação tributária: %w", err)
	}
	defer f.Close()
	return CarregarReferenciaReader(f)
}

// CarregarReferenciaReader indexa a tabela a partir de um leitor XLSX.
// Quando a planilha traz a coluna NFe, linhas marcadas "Sim" têm
// preferência sobre as demais ocorrências do mesmo código.
func CarregarReferenciaReader(r io.Reader) (map[string]domain.InfoClassificacao, error) {
	planilha, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("erro ao ler tabela de classificação tributária: %w", err)
	}
	defer planilha.Close()

	aba := localizarAbaClassificacao(planilha)
	linhas, err := planilha.GetRows(aba)
	if err != nil {
		return nil, fmt.Errorf("erro ao ler aba %q: %w", aba, err)
	}

	cabecalho := -1
	for i := 0; i < len(linhas) && i < 15; i++ {
		for _, cel := range linhas[i] {
			norm := fiscal.NormalizarTexto(cel)
			if strings.Contains(norm, "CODIGO") && strings.Contains(norm, "CLASSIFICACAO") {
				cabecalho = i
				break
			}
		}
		if cabecalho >= 0 {
			break
		}
	}
	if cabecalho < 0 {
		return nil, fmt.Errorf("tabela de classificação tributária sem cabeçalho reconhecível na aba %q", aba)
	}

	header := linhas[cabecalho]
	colCodigo := colunaReferencia(header, "CODIGO", "CLASSIFICACAO")
	colDescricao := colunaReferencia(header, "DESCRICAO", "CLASSIFICACAO")
	colTipo := colunaReferencia(header, "TIPO", "ALIQUOTA")
	colNFe := -1
	for idx, h := range header {
		if fiscal.NormalizarTexto(h) == "NFE" {
			colNFe = idx
			break
		}
	}
	if colCodigo < 0 {
		return nil, fmt.Errorf("coluna de código da classificação tributária não encontrada")
	}

	celula := func(linha []string, idx int) string {
		if idx >= 0 && idx < len(linha) {
			return strings.TrimSpace(linha[idx])
		}
		return ""
	}

	indice := make(map[string]domain.InfoClassificacao)
	preferido := make(map[string]bool)
	for _, linha := range linhas[cabecalho+1:] {
		codigo := celula(linha, colCodigo)
		if codigo == "" {
			continue
		}
		nfe := colNFe >= 0 && strings.EqualFold(celula(linha, colNFe), "sim")
		if _, existe := indice[codigo]; existe && (preferido[codigo] || !nfe) {
			continue
		}
		indice[codigo] = domain.InfoClassificacao{
			Codigo:       codigo,
			Descricao:    celula(linha, colDescricao),
			TipoAliquota: celula(linha, colTipo),
		}
		preferido[codigo] = nfe
	}
	return indice, nil
}

func localizarAbaClassificacao(planilha *excelize.File) string {
	for _, nome := range planilha.GetSheetList() {
		if strings.Contains(fiscal.NormalizarTexto(nome), "CLASSIFICACAO TRIBUTARIA") {
			return nome
		}
	}
	return planilha.GetSheetName(0)
}

// colunaReferencia devolve o índice do primeiro cabeçalho que contém todos
// os termos informados, já normalizados.
func colunaReferencia(header []string, termos ...string) int {
	for idx, h := range header {
		norm := fiscal.NormalizarTexto(h)
		if norm == "" {
			continue
		}
		todos := true
		for _, termo := range termos {
			if !strings.Contains(norm, termo) {
				todos = false
				break
			}
		}
		if todos {
			return idx
		}
	}
	return -1
}
