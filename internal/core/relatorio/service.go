// internal/core/relatorio/service.go
package relatorio

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"github.com/pricetax/fiscaliva/internal/domain"
)

// Nomes das abas da planilha de validação.
const (
	AbaResumo         = "Resumo"
	AbaValidacao      = "Validação"
	AbaDivergencias   = "Divergências"
	AbaDadosCompletos = "Dados Completos"
)

// Service gera os relatórios de um lote de validação.
type Service interface {
	// GerarExcel monta a planilha de quatro abas com o resumo do lote, o
	// resultado por documento, as divergências e o detalhamento por item.
	GerarExcel(resumo domain.ResumoLote) ([]byte, error)

	// GerarCSV exporta o detalhamento por item separado por ponto e vírgula,
	// codificado em Windows-1252 para importação em ERPs legados.
	GerarCSV(resumo domain.ResumoLote) ([]byte, error)
}

type service struct{}

// NewService cria o serviço de relatórios.
func NewService() Service {
	return &service{}
}

func (s *service) GerarExcel(resumo domain.ResumoLote) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", AbaResumo); err != nil {
		return nil, fmt.Errorf("falha ao montar a planilha: %w", err)
	}
	for _, aba := range []string{AbaValidacao, AbaDivergencias, AbaDadosCompletos} {
		if _, err := f.NewSheet(aba); err != nil {
			return nil, fmt.Errorf("falha ao criar a aba %s: %w", aba, err)
		}
	}

	if err := escreverResumo(f, resumo); err != nil {
		return nil, err
	}
	if err := escreverValidacao(f, resumo.Documentos); err != nil {
		return nil, err
	}
	if err := escreverDivergencias(f, resumo.Documentos); err != nil {
		return nil, err
	}
	if err := escreverDadosCompletos(f, resumo.Documentos); err != nil {
		return nil, err
	}

	buffer, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("falha ao gravar a planilha: %w", err)
	}
	return buffer.Bytes(), nil
}

func (s *service) GerarCSV(resumo domain.ResumoLote) ([]byte, error) {
	var buffer bytes.Buffer

	encoder := charmap.Windows1252.NewEncoder()
	writer := csv.NewWriter(transform.NewWriter(&buffer, encoder))
	writer.Comma = ';'

	cabecalho := []string{
		"Arquivo", "Chave Acesso", "Item", "NCM/NBS", "CFOP", "Descrição",
		"Valor", "Base Líquida", "IBS Declarado", "IBS Esperado",
		"CBS Declarado", "CBS Esperado", "cClassTrib", "Regime", "Status",
	}
	if err := writer.Write(cabecalho); err != nil {
		return nil, fmt.Errorf("falha ao gerar o CSV: %w", err)
	}

	for _, doc := range resumo.Documentos {
		for _, item := range doc.Itens {
			registro := []string{
				doc.Arquivo,
				doc.ChaveAcesso,
				strconv.Itoa(item.Numero),
				codigoItem(item),
				item.Cfop,
				item.Descricao,
				valorBR(item.Valor),
				valorBR(item.BaseLiquida),
				valorBR(item.DeclaradoIBS),
				valorBR(item.EsperadoIBS),
				valorBR(item.DeclaradoCBS),
				valorBR(item.EsperadoCBS),
				item.Classificacao.Codigo,
				item.Regime.Regime,
				item.Status,
			}
			if err := writer.Write(registro); err != nil {
				return nil, fmt.Errorf("falha ao gerar o CSV: %w", err)
			}
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("falha ao gerar o CSV: %w", err)
	}
	return buffer.Bytes(), nil
}

// escreverResumo preenche a aba de métricas gerais do lote.
func escreverResumo(f *excelize.File, resumo domain.ResumoLote) error {
	linhas := [][]interface{}{
		{"Métrica", "Valor"},
		{"Total de XMLs Processados", resumo.TotalXmls},
		{"XMLs Conformes", resumo.XmlsConformes},
		{"XMLs com Divergências", resumo.XmlsDivergentes},
		{"XMLs com Erros", resumo.XmlsErros},
		{"% Conformidade", fmt.Sprintf("%.2f%%", resumo.PercentualConformes)},
		{"", ""},
		{"Total de Itens", resumo.TotalItens},
		{"Itens Conformes", resumo.ItensConformes},
		{"Itens Divergentes", resumo.ItensDivergentes},
		{"Itens com Erro", resumo.ItensErros},
		{"", ""},
		{"Valor Total (R$)", resumo.ValorTotal.InexactFloat64()},
		{"Tolerância (R$)", resumo.Tolerancia.InexactFloat64()},
		{"", ""},
		{"Data do Processamento", resumo.GeradoEm},
	}
	for i, linha := range linhas {
		if err := escreverLinha(f, AbaResumo, i+1, linha); err != nil {
			return err
		}
	}
	return f.SetColWidth(AbaResumo, "A", "A", 28)
}

// escreverValidacao preenche a aba com uma linha por documento do lote.
func escreverValidacao(f *excelize.File, docs []domain.ResultadoDocumento) error {
	cabecalho := []interface{}{
		"Arquivo", "Status", "Chave Acesso", "Emitente", "CNPJ Emitente",
		"UF Emitente", "Destinatário", "CNPJ Destinatário", "Data Emissão",
		"Total Itens", "Itens Conformes", "Itens Divergentes",
		"Valor Total (R$)", "Mensagem",
	}
	if err := escreverLinha(f, AbaValidacao, 1, cabecalho); err != nil {
		return err
	}
	for i, doc := range docs {
		linha := []interface{}{
			doc.Arquivo,
			doc.Status,
			doc.ChaveAcesso,
			doc.EmitNome,
			doc.EmitCnpj,
			doc.EmitUF,
			doc.DestNome,
			doc.DestCnpj,
			doc.DataEmissao,
			doc.TotalItens,
			doc.ItensConformes,
			doc.ItensDivergentes,
			doc.ValorTotal.InexactFloat64(),
			mensagemDoc(doc),
		}
		if err := escreverLinha(f, AbaValidacao, i+2, linha); err != nil {
			return err
		}
	}
	return nil
}

// escreverDivergencias preenche a aba somente com documentos divergentes ou
// com erro de processamento.
func escreverDivergencias(f *excelize.File, docs []domain.ResultadoDocumento) error {
	cabecalho := []interface{}{
		"Arquivo", "Status", "Chave Acesso", "Emitente", "Destinatário",
		"Itens Divergentes", "Valor Total (R$)", "Mensagem",
	}
	if err := escreverLinha(f, AbaDivergencias, 1, cabecalho); err != nil {
		return err
	}
	linha := 2
	for _, doc := range docs {
		if doc.Status != domain.StatusDivergente && doc.Status != domain.StatusErro {
			continue
		}
		valores := []interface{}{
			doc.Arquivo,
			doc.Status,
			doc.ChaveAcesso,
			doc.EmitNome,
			doc.DestNome,
			doc.ItensDivergentes,
			doc.ValorTotal.InexactFloat64(),
			mensagemDoc(doc),
		}
		if err := escreverLinha(f, AbaDivergencias, linha, valores); err != nil {
			return err
		}
		linha++
	}
	return nil
}

// escreverDadosCompletos preenche a aba com uma linha por item validado.
func escreverDadosCompletos(f *excelize.File, docs []domain.ResultadoDocumento) error {
	cabecalho := []interface{}{
		"Arquivo", "Chave Acesso", "Emitente", "Destinatário", "Item",
		"NCM/NBS", "CFOP", "Descrição", "Valor Item (R$)", "Base Líquida (R$)",
		"IBS XML (R$)", "IBS Esperado (R$)", "Dif. IBS (R$)", "CBS XML (R$)",
		"CBS Esperado (R$)", "Dif. CBS (R$)", "cClassTrib", "Regime", "Status",
	}
	if err := escreverLinha(f, AbaDadosCompletos, 1, cabecalho); err != nil {
		return err
	}
	linha := 2
	for _, doc := range docs {
		for _, item := range doc.Itens {
			valores := []interface{}{
				doc.Arquivo,
				doc.ChaveAcesso,
				doc.EmitNome,
				doc.DestNome,
				item.Numero,
				codigoItem(item),
				item.Cfop,
				item.Descricao,
				item.Valor.InexactFloat64(),
				item.BaseLiquida.InexactFloat64(),
				item.DeclaradoIBS.InexactFloat64(),
				item.EsperadoIBS.InexactFloat64(),
				item.DiffIBS.InexactFloat64(),
				item.DeclaradoCBS.InexactFloat64(),
				item.EsperadoCBS.InexactFloat64(),
				item.DiffCBS.InexactFloat64(),
				item.Classificacao.Codigo,
				item.Regime.Regime,
				item.Status,
			}
			if err := escreverLinha(f, AbaDadosCompletos, linha, valores); err != nil {
				return err
			}
			linha++
		}
	}
	return nil
}

// escreverLinha grava os valores a partir da coluna A da linha indicada.
func escreverLinha(f *excelize.File, aba string, numero int, valores []interface{}) error {
	celula, err := excelize.CoordinatesToCellName(1, numero)
	if err != nil {
		return fmt.Errorf("falha ao escrever na aba %s: %w", aba, err)
	}
	if err := f.SetSheetRow(aba, celula, &valores); err != nil {
		return fmt.Errorf("falha ao escrever na aba %s: %w", aba, err)
	}
	return nil
}

// mensagemDoc prioriza a mensagem de validação e cai para o erro de leitura
// quando o documento nem chegou a ser validado.
func mensagemDoc(doc domain.ResultadoDocumento) string {
	if doc.Mensagem != "" {
		return doc.Mensagem
	}
	return doc.Erro
}

// codigoItem devolve o NCM da mercadoria ou, em notas de serviço, o NBS.
func codigoItem(item domain.ResultadoItem) string {
	if item.Ncm != "" {
		return item.Ncm
	}
	return item.Nbs
}

// valorBR formata o decimal com vírgula, no padrão aceito pelos ERPs
// nacionais.
func valorBR(valor decimal.Decimal) string {
	return strings.Replace(valor.StringFixed(2), ".", ",", 1)
}
