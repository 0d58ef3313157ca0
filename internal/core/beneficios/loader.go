// internal/core/beneficios/loader.go
package beneficios

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pricetax/fiscaliva/internal/core/fiscal"
	"github.com/pricetax/fiscaliva/internal/domain"
	"github.com/schollz/closestmatch"
	"github.com/shakinm/xlsReader/xls"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// Palavras-chave de cada coluna obrigatória. Os rótulos variam entre revisões
// do dataset; a descoberta compara texto normalizado e recorre a busca por
// proximidade antes de desistir.
var (
	chavesNcm      = []string{"NCM IBS", "NCM", "CODIGO NCM"}
	chavesAnexo    = []string{"ANEXO"}
	chavesDescAnexo = []string{"DESCRICAO ANEXO", "DESCRICAO DO ANEXO", "DESCRICAO"}
	chavesReducao  = []string{"REDUCAO BASE", "REDUCAO ALIQUOTA", "REDUCAO", "PERCENTUAL REDUCAO"}
)

// CarregarTabela lê a tabela de benefícios de um arquivo .xlsx ou legado .xls
// e devolve as regras validadas. Qualquer malformação é fatal: nenhuma tabela
// parcial é servida.
func CarregarTabela(caminho string) ([]Regra, error) {
	arquivo, err := os.Open(caminho)
	if err != nil {
		return nil, &domain.TabelaBeneficiosError{Motivo: fmt.Sprintf("não foi possível abrir %s: %v", caminho, err)}
	}
	defer arquivo.Close()
	return CarregarTabelaReader(arquivo, caminho)
}

// CarregarTabelaReader lê a tabela a partir de um reader; o nome do arquivo
// decide o formato (.xlsx ou .xls).
func CarregarTabelaReader(r io.Reader, nomeArquivo string) ([]Regra, error) {
	var linhas [][]string
	var err error

	switch strings.ToLower(filepath.Ext(nomeArquivo)) {
	case ".xlsx", ".xlsm":
		linhas, err = lerLinhasXLSX(r)
	case ".xls":
		linhas, err = lerLinhasXLS(r)
	default:
		return nil, &domain.TabelaBeneficiosError{Motivo: fmt.Sprintf("formato de tabela não suportado: %s", filepath.Ext(nomeArquivo))}
	}
	if err != nil {
		return nil, &domain.TabelaBeneficiosError{Motivo: fmt.Sprintf("não foi possível ler %s: %v", nomeArquivo, err)}
	}

	return montarRegras(linhas)
}

func lerLinhasXLSX(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	planilhas := f.GetSheetList()
	if len(planilhas) == 0 {
		return nil, fmt.Errorf("planilha sem abas")
	}
	return f.GetRows(planilhas[0])
}

func lerLinhasXLS(r io.Reader) ([][]string, error) {
	dados, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	workbook, err := xls.OpenReader(bytes.NewReader(dados))
	if err != nil {
		// alguns .xls são .xlsx renomeados
		if _, errX := excelize.OpenReader(bytes.NewReader(dados)); errX == nil {
			return lerLinhasXLSX(bytes.NewReader(dados))
		}
		return nil, err
	}

	sheets := workbook.GetSheets()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("planilha sem abas")
	}

	var linhas [][]string
	for _, row := range sheets[0].GetRows() {
		var linha []string
		for _, cell := range row.GetCols() {
			linha = append(linha, cell.GetString())
		}
		linhas = append(linhas, linha)
	}
	return linhas, nil
}

func montarRegras(linhas [][]string) ([]Regra, error) {
	cabecalho := localizarCabecalho(linhas)
	if cabecalho < 0 {
		return nil, &domain.TabelaBeneficiosError{Motivo: "cabeçalho com coluna NCM não encontrado"}
	}

	header := linhas[cabecalho]
	idxNcm := localizarColuna(header, chavesNcm)
	idxAnexo := localizarColuna(header, chavesAnexo)
	idxDesc := localizarColuna(header, chavesDescAnexo)
	idxReducao := localizarColuna(header, chavesReducao)

	for nome, idx := range map[string]int{
		"NCM/IBS":         idxNcm,
		"ANEXO":           idxAnexo,
		"DESCRIÇÃO ANEXO": idxDesc,
		"REDUÇÃO BASE":    idxReducao,
	} {
		if idx < 0 {
			return nil, &domain.TabelaBeneficiosError{Motivo: fmt.Sprintf("coluna obrigatória %q não encontrada", nome)}
		}
	}

	celula := func(linha []string, idx int) string {
		if idx < len(linha) {
			return strings.TrimSpace(linha[idx])
		}
		return ""
	}

	var regras []Regra
	for i := cabecalho + 1; i < len(linhas); i++ {
		linha := linhas[i]
		valorNcm := celula(linha, idxNcm)
		anexo := celula(linha, idxAnexo)
		descricao := celula(linha, idxDesc)
		valorReducao := celula(linha, idxReducao)

		if valorNcm == "" && anexo == "" && descricao == "" && valorReducao == "" {
			continue
		}
		if valorNcm == "" {
			return nil, &domain.TabelaBeneficiosError{Linha: i + 1, Motivo: "linha com dados mas sem código NCM/IBS"}
		}

		padrao := NormalizarPadrao(valorNcm)
		switch padrao.Tipo {
		case PadraoNBS:
			// família de serviços: vive no anexo próprio, fora do motor NCM
			continue
		case PadraoInvalido:
			return nil, &domain.TabelaBeneficiosError{Linha: i + 1, Motivo: fmt.Sprintf("padrão NCM/IBS não reconhecido: %q", valorNcm)}
		}

		reducao, err := parseReducao(valorReducao)
		if err != nil {
			return nil, &domain.TabelaBeneficiosError{Linha: i + 1, Motivo: err.Error()}
		}

		regras = append(regras, Regra{
			Padrao:         padrao,
			Reducao:        reducao,
			Anexo:          anexo,
			DescricaoAnexo: descricao,
			Ordem:          len(regras),
		})
	}

	if len(regras) == 0 {
		return nil, &domain.TabelaBeneficiosError{Motivo: "nenhuma regra utilizável na tabela"}
	}
	return regras, nil
}

// localizarCabecalho procura nas primeiras linhas aquela que contém a coluna
// de NCM (datasets reais trazem títulos e notas antes do cabeçalho).
func localizarCabecalho(linhas [][]string) int {
	limite := 40
	if len(linhas) < limite {
		limite = len(linhas)
	}
	for i := 0; i < limite; i++ {
		for _, cel := range linhas[i] {
			norm := fiscal.NormalizarTexto(cel)
			if strings.Contains(norm, "NCM") {
				return i
			}
		}
	}
	return -1
}

// localizarColuna tenta primeiro correspondência direta com as palavras-chave
// e depois busca por proximidade sobre os cabeçalhos normalizados.
func localizarColuna(header []string, chaves []string) int {
	normales := make([]string, len(header))
	for i, h := range header {
		normales[i] = fiscal.NormalizarTexto(h)
	}

	for _, chave := range chaves {
		for idx, norm := range normales {
			if norm != "" && strings.Contains(norm, chave) {
				return idx
			}
		}
	}

	var candidatos []string
	for _, norm := range normales {
		if norm != "" {
			candidatos = append(candidatos, norm)
		}
	}
	if len(candidatos) == 0 {
		return -1
	}
	cm := closestmatch.New(candidatos, []int{2, 3})
	for _, chave := range chaves {
		aproximado := cm.Closest(chave)
		if aproximado == "" {
			continue
		}
		for idx, norm := range normales {
			if norm == aproximado {
				return idx
			}
		}
	}
	return -1
}

// parseReducao aceita fração (0.6), pontos percentuais (60) ou percentual
// com símbolo ("60%"), sempre devolvendo pontos percentuais 0-100.
func parseReducao(valor string) (decimal.Decimal, error) {
	limpo := strings.TrimSpace(valor)
	if limpo == "" {
		return decimal.Zero, fmt.Errorf("redução vazia")
	}
	percentual := strings.Contains(limpo, "%")
	limpo = strings.ReplaceAll(limpo, "%", "")

	reducao := fiscal.ParseValorBR(limpo)
	if reducao.IsZero() && fiscal.SomenteDigitos(limpo) == "" {
		return decimal.Zero, fmt.Errorf("redução não numérica: %q", valor)
	}
	if !percentual && reducao.LessThanOrEqual(decimal.NewFromInt(1)) {
		reducao = reducao.Mul(decimal.NewFromInt(100))
	}
	if reducao.IsNegative() || reducao.GreaterThan(decimal.NewFromInt(100)) {
		return decimal.Zero, fmt.Errorf("redução fora do intervalo 0-100: %s", reducao)
	}
	return reducao, nil
}
