// internal/core/tributacao/tabelas.go
package tributacao

import "strings"

// Códigos de classificação tributária recorrentes nas regras fixas.
const (
	ClassVendaPadrao = "000001"
	ClassNaoOnerosa  = "410999"
	ClassCestaBasica = "200003"
	ClassReducao60   = "200034"
)

// cfopsVendaPadrao lista os CFOPs de venda da matriz PRICETAX que
// classificam como tributação regular (000001).
var cfopsVendaPadrao = []string{
	// Vendas internas (5xxx).
	"5101", "5102", "5103", "5104", "5105", "5106",
	"5109", "5110", "5111", "5112", "5113", "5114", "5115", "5116",
	"5117", "5118", "5119", "5120", "5122", "5123", "5124", "5125",
	// Substituição tributária.
	"5401", "5405",
	// Vendas interestaduais (6xxx).
	"6101", "6102", "6103", "6104", "6105", "6106", "6107", "6108",
	"6109", "6110", "6111", "6112", "6113", "6114", "6115", "6116",
	"6117", "6118", "6119", "6120", "6122", "6123", "6124", "6125",
	"6401", "6403", "6404", "6408", "6409", "6410", "6411", "6412", "6413",
	"6501", "6502", "6503", "6504", "6505",
	"6551", "6552", "6553", "6554", "6555", "6556", "6557",
	"6653", "6654", "6655", "6656", "6657", "6658", "6659", "6660",
	"6661", "6662", "6663", "6664", "6665", "6666", "6667",
	"6901", "6902", "6903", "6904", "6905", "6906", "6907", "6908",
	"6909", "6910", "6911", "6912", "6913", "6914", "6915", "6916",
	"6917", "6918", "6919", "6920", "6921", "6922",
	// Vendas para o exterior (7xxx).
	"7101", "7102", "7105", "7106", "7127",
}

// cfopsNaoOnerosos lista os CFOPs de operações não onerosas (brindes,
// doações, amostras grátis, remessas em consignação), que não geram
// débito de IBS/CBS (410999).
var cfopsNaoOnerosos = []string{
	"5910", "6910", "7910",
	"5911", "6911", "7911",
	"5949", "6949", "7949",
	"5917", "6917", "7917",
}

// tabelaCfop consolida os dois grupos. A matriz de venda tem prioridade:
// 6910, 6911 e 6917 integram a faixa 6901-6922 e permanecem 000001.
var tabelaCfop = montarTabelaCfop()

func montarTabelaCfop() map[string]string {
	m := make(map[string]string, len(cfopsVendaPadrao)+len(cfopsNaoOnerosos))
	for _, cfop := range cfopsVendaPadrao {
		m[cfop] = ClassVendaPadrao
	}
	for _, cfop := range cfopsNaoOnerosos {
		if _, ok := m[cfop]; !ok {
			m[cfop] = ClassNaoOnerosa
		}
	}
	return m
}

// cstsSaidaTributada são os CSTs de IBS/CBS aceitos pela regra genérica
// de saída tributada (CFOP 5xxx/6xxx/7xxx fora da matriz fixa).
var cstsSaidaTributada = map[string]bool{
	"000": true,
	"200": true,
	"201": true,
	"202": true,
	"900": true,
}

// chaveAnexo indexa o mapeamento oficial (% de redução, anexo) → cClassTrib
// extraído da tabela de classificação tributária.
type chaveAnexo struct {
	Reducao int
	Anexo   string
}

var classPorReducaoAnexo = map[chaveAnexo]string{
	// Redução 100% (alíquota zero).
	{100, "ANEXO I"}:    "200003",
	{100, "ANEXO XII"}:  "200004",
	{100, "ANEXO IV"}:   "200005",
	{100, "ANEXO XIII"}: "200007",
	{100, "ANEXO V"}:    "200008",
	{100, "ANEXO XIV"}:  "200009",
	{100, "ANEXO VI"}:   "200011",
	{100, "ANEXO XV"}:   "200014",
	// Redução 60%.
	{60, "ANEXO II"}:   "200028",
	{60, "ANEXO III"}:  "200029",
	{60, "ANEXO IV"}:   "200030",
	{60, "ANEXO V"}:    "200031",
	{60, "ANEXO VI"}:   "200033",
	{60, "ANEXO VII"}:  "200034",
	{60, "ANEXO VIII"}: "200035",
	{60, "ANEXO IX"}:   "200038",
	{60, "ANEXO X"}:    "200039",
	{60, "ANEXO XI"}:   "200043",
}

// O Anexo XI desdobra em dois códigos conforme a descrição do benefício.
var anexoXIPorDescricao = []struct {
	Chave  string
	Codigo string
}{
	{"soberania", "200043"},
	{"segurança cibernética", "200044"},
	{"segurança da informação", "200044"},
}

var nomesAnexos = map[string]string{
	"ANEXO I":    "Cesta Básica Nacional",
	"ANEXO II":   "Educação",
	"ANEXO III":  "Saúde Humana",
	"ANEXO IV":   "Dispositivos Médicos",
	"ANEXO V":    "Acessibilidade",
	"ANEXO VI":   "Nutrição Enteral/Parenteral",
	"ANEXO VII":  "Alimentos (Cesta Estendida)",
	"ANEXO VIII": "Higiene e Limpeza",
	"ANEXO IX":   "Insumos Agropecuários",
	"ANEXO X":    "Produções Audiovisuais Nacionais",
	"ANEXO XI":   "Soberania e Segurança Nacional",
	"ANEXO XII":  "Dispositivos Médicos (Alíquota Zero)",
	"ANEXO XIII": "Acessibilidade (Alíquota Zero)",
	"ANEXO XIV":  "Medicamentos",
	"ANEXO XV":   "Hortícolas, Frutas e Ovos",
}

var rotulosRegime = map[string]string{
	"TRIBUTACAO_PADRAO":               "Tributação Padrão",
	"RED_60_ESSENCIALIDADE":           "Redução 60% (Essencialidade)",
	"RED_60_ALIMENTOS":                "Redução 60% (Alimentos)",
	"ALIQ_ZERO_CESTA_BASICA_NACIONAL": "Alíquota Zero (Cesta Básica Nacional)",
}

var tiposAliquota = map[string]string{
	"01": "Alíquota padrão",
	"02": "Alíquota específica por unidade de medida",
	"03": "Alíquota reduzida",
	"04": "Alíquota zero",
	"05": "Imunidade",
	"06": "Isenção",
	"07": "Não incidência",
	"08": "Suspensão",
}

// RotuloRegime devolve o rótulo legível de um regime tributário.
// Regimes fora do mapa voltam como recebidos.
func RotuloRegime(regime string) string {
	if rotulo, ok := rotulosRegime[strings.ToUpper(strings.TrimSpace(regime))]; ok {
		return rotulo
	}
	return regime
}

// DescricaoTipoAliquota mapeia o código de tipo de alíquota do portal de
// Classificação Tributária para a descrição legível.
func DescricaoTipoAliquota(codigo string) string {
	limpo := strings.TrimSpace(codigo)
	if descricao, ok := tiposAliquota[limpo]; ok {
		return descricao
	}
	if limpo == "" {
		return ""
	}
	return "Tipo " + limpo
}
