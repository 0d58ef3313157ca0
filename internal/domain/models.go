// internal/domain/models.go
package domain

import (
	"github.com/shopspring/decimal"
)

// Regimes tributários do IVA dual (IBS/CBS). O regime RED_<N> para reduções
// genéricas é montado dinamicamente pelo cálculo de alíquotas.
const (
	RegimePadrao              = "TRIBUTACAO_PADRAO"
	RegimeAliqZero            = "ALIQ_ZERO_CESTA_BASICA_NACIONAL"
	RegimeRed60Alimentos      = "RED_60_ALIMENTOS"
	RegimeRed60Essencialidade = "RED_60_ESSENCIALIDADE"
)

// Status de conformidade de itens e documentos.
const (
	StatusConforme   = "CONFORME"
	StatusDivergente = "DIVERGENTE"
	StatusErro       = "ERRO"
)

// Situações de NFSe conforme o cStat do layout nacional.
const (
	SituacaoAtiva       = "Ativa"
	SituacaoCancelada   = "Cancelada"
	SituacaoSubstituida = "Substituída"
)

// ItemFiscal é uma linha de produto/serviço extraída do XML. Produzido pela
// extração, consumido somente para leitura pelo motor de validação.
type ItemFiscal struct {
	Numero        int             `json:"numero"`
	Ncm           string          `json:"ncm,omitempty"`
	Nbs           string          `json:"nbs,omitempty"`
	Cfop          string          `json:"cfop"`
	Cst           string          `json:"cst"`
	Descricao     string          `json:"descricao"`
	Quantidade    decimal.Decimal `json:"quantidade"`
	ValorUnitario decimal.Decimal `json:"valor_unitario"`
	ValorTotal    decimal.Decimal `json:"valor_total"`
	VIcms         decimal.Decimal `json:"vicms"`
	VPis          decimal.Decimal `json:"vpis"`
	VCofins       decimal.Decimal `json:"vcofins"`
	VIbsDeclarado decimal.Decimal `json:"vibs_declarado"`
	VCbsDeclarado decimal.Decimal `json:"vcbs_declarado"`
}

// DocumentoFiscal é uma NFe ou NFSe já extraída para registros tipados.
// Erro preenchido indica arquivo que falhou na extração: o documento entra
// no lote apenas para contagem de erros.
type DocumentoFiscal struct {
	Arquivo     string          `json:"arquivo"`
	Modelo      string          `json:"modelo"`
	ChaveAcesso string          `json:"chave_acesso"`
	Numero      string          `json:"numero"`
	Situacao    string          `json:"situacao,omitempty"`
	DataEmissao string          `json:"data_emissao,omitempty"`
	EmitCnpj    string          `json:"emit_cnpj"`
	EmitNome    string          `json:"emit_nome"`
	EmitUF      string          `json:"emit_uf,omitempty"`
	DestCnpj    string          `json:"dest_cnpj,omitempty"`
	DestNome    string          `json:"dest_nome,omitempty"`
	ValorTotal  decimal.Decimal `json:"valor_total"`
	Erro        string          `json:"erro,omitempty"`
	Itens       []ItemFiscal    `json:"itens"`
}

// Enquadramento é um benefício fiscal em que um código se enquadrou.
// Especificidade é o comprimento do padrão casado (8 = código exato).
type Enquadramento struct {
	Padrao         string          `json:"padrao"`
	TipoPadrao     string          `json:"tipo_padrao"`
	Especificidade int             `json:"especificidade"`
	Reducao        decimal.Decimal `json:"reducao"`
	Anexo          string          `json:"anexo"`
	DescricaoAnexo string          `json:"descricao_anexo"`
	Fonte          string          `json:"fonte"`
	Ordem          int             `json:"ordem"`
}

// RegimeTributario carrega as alíquotas resolvidas e a trilha de auditoria.
// TotalIVA é sempre AliqIBS + AliqCBS.
type RegimeTributario struct {
	Regime         string          `json:"regime"`
	AliqIBS        decimal.Decimal `json:"aliq_ibs"`
	AliqCBS        decimal.Decimal `json:"aliq_cbs"`
	TotalIVA       decimal.Decimal `json:"total_iva"`
	Reducao        decimal.Decimal `json:"reducao"`
	Anexo          string          `json:"anexo,omitempty"`
	DescricaoAnexo string          `json:"descricao_anexo,omitempty"`
	Fonte          string          `json:"fonte"`
}

// Classificacao é o cClassTrib resolvido com a justificativa legal e, quando a
// tabela de referência está carregada, a descrição longa do código.
type Classificacao struct {
	Codigo       string `json:"cclasstrib"`
	Mensagem     string `json:"mensagem"`
	Descricao    string `json:"descricao,omitempty"`
	TipoAliquota string `json:"tipo_aliquota,omitempty"`
}

// ResultadoItem é a saída do pipeline para uma linha do documento.
type ResultadoItem struct {
	Numero        int              `json:"numero"`
	Ncm           string           `json:"ncm,omitempty"`
	Nbs           string           `json:"nbs,omitempty"`
	Cfop          string           `json:"cfop"`
	Cst           string           `json:"cst"`
	Descricao     string           `json:"descricao"`
	Valor         decimal.Decimal  `json:"valor"`
	Regime        RegimeTributario `json:"regime"`
	Classificacao Classificacao    `json:"classificacao"`
	BaseLiquida   decimal.Decimal  `json:"base_liquida"`
	EsperadoIBS   decimal.Decimal  `json:"esperado_ibs"`
	EsperadoCBS   decimal.Decimal  `json:"esperado_cbs"`
	DeclaradoIBS  decimal.Decimal  `json:"declarado_ibs"`
	DeclaradoCBS  decimal.Decimal  `json:"declarado_cbs"`
	DiffIBS       decimal.Decimal  `json:"diff_ibs"`
	DiffCBS       decimal.Decimal  `json:"diff_cbs"`
	Status        string           `json:"status"`
	Erro          string           `json:"erro,omitempty"`
}

// ResultadoDocumento agrega os itens de um arquivo processado.
// ValorTotal é a soma dos valores dos itens validados.
type ResultadoDocumento struct {
	Arquivo          string          `json:"arquivo"`
	Modelo           string          `json:"modelo,omitempty"`
	ChaveAcesso      string          `json:"chave_acesso,omitempty"`
	Numero           string          `json:"numero,omitempty"`
	Situacao         string          `json:"situacao,omitempty"`
	DataEmissao      string          `json:"data_emissao,omitempty"`
	EmitCnpj         string          `json:"emit_cnpj,omitempty"`
	EmitNome         string          `json:"emit_nome,omitempty"`
	EmitUF           string          `json:"emit_uf,omitempty"`
	DestCnpj         string          `json:"dest_cnpj,omitempty"`
	DestNome         string          `json:"dest_nome,omitempty"`
	ValorTotal       decimal.Decimal `json:"valor_total"`
	TotalItens       int             `json:"total_itens"`
	ItensConformes   int             `json:"itens_conformes"`
	ItensDivergentes int             `json:"itens_divergentes"`
	ItensErros       int             `json:"itens_erros"`
	Status           string          `json:"status"`
	Mensagem         string          `json:"mensagem,omitempty"`
	Erro             string          `json:"erro,omitempty"`
	Itens            []ResultadoItem `json:"itens,omitempty"`
}

// ResumoLote é o fechamento de um lote de XMLs validados.
type ResumoLote struct {
	TotalXmls           int                  `json:"total_xmls"`
	XmlsConformes       int                  `json:"xmls_conformes"`
	XmlsDivergentes     int                  `json:"xmls_divergentes"`
	XmlsErros           int                  `json:"xmls_erros"`
	PercentualConformes float64              `json:"percentual_conformes"`
	TotalItens          int                  `json:"total_itens"`
	ItensConformes      int                  `json:"itens_conformes"`
	ItensDivergentes    int                  `json:"itens_divergentes"`
	ItensErros          int                  `json:"itens_erros"`
	ValorTotal          decimal.Decimal      `json:"valor_total"`
	Tolerancia          decimal.Decimal      `json:"tolerancia"`
	GeradoEm            string               `json:"gerado_em"`
	Documentos          []ResultadoDocumento `json:"documentos"`
}

// RadarNCM é uma linha do radar de benefícios montado a partir do SPED:
// vendas de saída consolidadas por NCM, descrição e CFOP, com o benefício em
// que o código se enquadra e o cClassTrib sugerido para a combinação.
type RadarNCM struct {
	Arquivo      string          `json:"arquivo,omitempty"`
	Ncm          string          `json:"ncm"`
	Descricao    string          `json:"descricao"`
	Cfop         string          `json:"cfop"`
	Itens        int             `json:"itens"`
	ValorTotal   decimal.Decimal `json:"valor_total"`
	TemBeneficio bool            `json:"tem_beneficio"`
	Ambiguo      bool            `json:"ambiguo"`
	Regime       string          `json:"regime"`
	Reducao      decimal.Decimal `json:"reducao"`
	AliqIBS      decimal.Decimal `json:"aliq_ibs"`
	AliqCBS      decimal.Decimal `json:"aliq_cbs"`
	TotalIVA     decimal.Decimal `json:"total_iva"`
	ClassTrib    string          `json:"cclasstrib_sugerido"`
	Anexos       []string        `json:"anexos,omitempty"`
}

// InfoClassificacao é uma linha da tabela de referência de códigos de
// classificação tributária (descrição longa e tipo de alíquota por código).
type InfoClassificacao struct {
	Codigo       string `json:"codigo"`
	Descricao    string `json:"descricao"`
	TipoAliquota string `json:"tipo_aliquota,omitempty"`
}
