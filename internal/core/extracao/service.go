// internal/core/extracao/service.go
package extracao

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pricetax/fiscaliva/internal/core/beneficios"
	"github.com/pricetax/fiscaliva/internal/core/fiscal"
	"github.com/pricetax/fiscaliva/internal/core/tributacao"
	"github.com/pricetax/fiscaliva/internal/domain"
)

// Arquivo é um arquivo bruto recebido para extração, já carregado em memória.
type Arquivo struct {
	Nome     string
	Conteudo []byte
}

// Service extrai documentos fiscais tipados de XMLs de NFe e NFSe e monta o
// radar de benefícios a partir de arquivos SPED.
type Service interface {
	// ExtrairNFe faz o parse de um XML de NFe (nfeProc ou NFe puro).
	ExtrairNFe(conteudo []byte, nome string) (domain.DocumentoFiscal, error)

	// ExtrairNFSe faz o parse de um XML de NFSe do padrão nacional.
	ExtrairNFSe(conteudo []byte, nome string) (domain.DocumentoFiscal, error)

	// Extrair detecta o modelo do XML e delega. Falhas não interrompem o
	// lote: o documento volta com Erro preenchido.
	Extrair(arquivo Arquivo) domain.DocumentoFiscal

	// ExtrairLote processa uma lista de arquivos, expandindo ZIPs.
	ExtrairLote(arquivos []Arquivo) []domain.DocumentoFiscal

	// RadarSped lê um arquivo SPED e consolida as vendas de saída por NCM,
	// descrição e CFOP, cruzando cada linha com o motor de benefícios.
	RadarSped(r io.Reader, rotuloPadrao string) ([]domain.RadarNCM, error)
}

type service struct {
	beneficios beneficios.Service
	tributos   tributacao.Service
}

func NewService(beneficiosSvc beneficios.Service, tributosSvc tributacao.Service) Service {
	return &service{beneficios: beneficiosSvc, tributos: tributosSvc}
}

func (s *service) Extrair(arquivo Arquivo) domain.DocumentoFiscal {
	var (
		doc domain.DocumentoFiscal
		err error
	)
	if bytes.Contains(arquivo.Conteudo, []byte("infNFSe")) {
		doc, err = s.ExtrairNFSe(arquivo.Conteudo, arquivo.Nome)
	} else {
		doc, err = s.ExtrairNFe(arquivo.Conteudo, arquivo.Nome)
	}
	if err != nil {
		return domain.DocumentoFiscal{Arquivo: arquivo.Nome, Erro: err.Error()}
	}
	return doc
}

func (s *service) ExtrairLote(arquivos []Arquivo) []domain.DocumentoFiscal {
	var docs []domain.DocumentoFiscal
	for _, arquivo := range arquivos {
		if strings.EqualFold(filepath.Ext(arquivo.Nome), ".zip") {
			internos, err := ExpandirZip(arquivo.Conteudo)
			if err != nil {
				docs = append(docs, domain.DocumentoFiscal{Arquivo: arquivo.Nome, Erro: err.Error()})
				continue
			}
			for _, interno := range internos {
				docs = append(docs, s.Extrair(interno))
			}
			continue
		}
		docs = append(docs, s.Extrair(arquivo))
	}
	return docs
}

// ExpandirZip devolve os XMLs contidos em um ZIP, em qualquer nível de
// diretório.
func ExpandirZip(conteudo []byte) ([]Arquivo, error) {
	leitor, err := zip.NewReader(bytes.NewReader(conteudo), int64(len(conteudo)))
	if err != nil {
		return nil, fmt.Errorf("falha ao abrir ZIP: %w", err)
	}
	var arquivos []Arquivo
	for _, interno := range leitor.File {
		if interno.FileInfo().IsDir() || !strings.HasSuffix(strings.ToLower(interno.Name), ".xml") {
			continue
		}
		f, err := interno.Open()
		if err != nil {
			return nil, fmt.Errorf("falha ao ler %s do ZIP: %w", interno.Name, err)
		}
		dados, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("falha ao ler %s do ZIP: %w", interno.Name, err)
		}
		arquivos = append(arquivos, Arquivo{Nome: interno.Name, Conteudo: dados})
	}
	return arquivos, nil
}

// Estruturas do XML de NFe, namespace http://www.portalfiscal.inf.br/nfe.

type nfeProc struct {
	XMLName xml.Name `xml:"nfeProc"`
	NFe     nfeRaiz  `xml:"NFe"`
	ProtNFe protNFe  `xml:"protNFe"`
}

type protNFe struct {
	InfProt struct {
		ChNFe string `xml:"chNFe"`
		CStat string `xml:"cStat"`
	} `xml:"infProt"`
}

type nfeRaiz struct {
	XMLName xml.Name `xml:"NFe"`
	InfNFe  infNFe   `xml:"infNFe"`
}

type infNFe struct {
	Id    string   `xml:"Id,attr"`
	Ide   ideNFe   `xml:"ide"`
	Emit  emitNFe  `xml:"emit"`
	Dest  destNFe  `xml:"dest"`
	Det   []detNFe `xml:"det"`
	Total totalNFe `xml:"total"`
}

type ideNFe struct {
	Mod   string `xml:"mod"`
	Serie string `xml:"serie"`
	NNF   string `xml:"nNF"`
	DhEmi string `xml:"dhEmi"`
}

type emitNFe struct {
	CNPJ      string `xml:"CNPJ"`
	XNome     string `xml:"xNome"`
	EnderEmit struct {
		UF string `xml:"UF"`
	} `xml:"enderEmit"`
}

type destNFe struct {
	CNPJ  string `xml:"CNPJ"`
	CPF   string `xml:"CPF"`
	XNome string `xml:"xNome"`
}

type detNFe struct {
	NItem   string     `xml:"nItem,attr"`
	Prod    prodNFe    `xml:"prod"`
	Imposto impostoNFe `xml:"imposto"`
}

type prodNFe struct {
	NCM    string `xml:"NCM"`
	CFOP   string `xml:"CFOP"`
	XProd  string `xml:"xProd"`
	QCom   string `xml:"qCom"`
	VUnCom string `xml:"vUnCom"`
	VProd  string `xml:"vProd"`
}

type impostoNFe struct {
	ICMS   grupoICMS   `xml:"ICMS"`
	PIS    grupoPIS    `xml:"PIS"`
	COFINS grupoCOFINS `xml:"COFINS"`
	IBSCBS grupoIBSCBS `xml:"IBSCBS"`
}

// icmsVariante cobre os campos comuns dos filhos ICMS00, ICMS10 etc. O CSOSN
// aparece no lugar do CST para emitentes do Simples Nacional.
type icmsVariante struct {
	CST   string `xml:"CST"`
	CSOSN string `xml:"CSOSN"`
	VICMS string `xml:"vICMS"`
}

type grupoICMS struct {
	ICMS00    icmsVariante `xml:"ICMS00"`
	ICMS10    icmsVariante `xml:"ICMS10"`
	ICMS20    icmsVariante `xml:"ICMS20"`
	ICMS30    icmsVariante `xml:"ICMS30"`
	ICMS40    icmsVariante `xml:"ICMS40"`
	ICMS51    icmsVariante `xml:"ICMS51"`
	ICMS60    icmsVariante `xml:"ICMS60"`
	ICMS70    icmsVariante `xml:"ICMS70"`
	ICMS90    icmsVariante `xml:"ICMS90"`
	ICMSSN101 icmsVariante `xml:"ICMSSN101"`
	ICMSSN102 icmsVariante `xml:"ICMSSN102"`
	ICMSSN500 icmsVariante `xml:"ICMSSN500"`
	ICMSSN900 icmsVariante `xml:"ICMSSN900"`
}

// ativa devolve a variante preenchida. O grupo ICMS traz um único filho
// conforme a situação tributária do item.
func (g grupoICMS) ativa() icmsVariante {
	for _, v := range []icmsVariante{
		g.ICMS00, g.ICMS10, g.ICMS20, g.ICMS30, g.ICMS40, g.ICMS51, g.ICMS60,
		g.ICMS70, g.ICMS90, g.ICMSSN101, g.ICMSSN102, g.ICMSSN500, g.ICMSSN900,
	} {
		if v.CST != "" || v.CSOSN != "" {
			return v
		}
	}
	return icmsVariante{}
}

type pisVariante struct {
	CST  string `xml:"CST"`
	VPIS string `xml:"vPIS"`
}

type grupoPIS struct {
	PISAliq pisVariante `xml:"PISAliq"`
	PISQtde pisVariante `xml:"PISQtde"`
	PISNT   pisVariante `xml:"PISNT"`
	PISOutr pisVariante `xml:"PISOutr"`
}

func (g grupoPIS) ativa() pisVariante {
	for _, v := range []pisVariante{g.PISAliq, g.PISQtde, g.PISNT, g.PISOutr} {
		if v.CST != "" {
			return v
		}
	}
	return pisVariante{}
}

type cofinsVariante struct {
	CST     string `xml:"CST"`
	VCOFINS string `xml:"vCOFINS"`
}

type grupoCOFINS struct {
	COFINSAliq cofinsVariante `xml:"COFINSAliq"`
	COFINSQtde cofinsVariante `xml:"COFINSQtde"`
	COFINSNT   cofinsVariante `xml:"COFINSNT"`
	COFINSOutr cofinsVariante `xml:"COFINSOutr"`
}

func (g grupoCOFINS) ativa() cofinsVariante {
	for _, v := range []cofinsVariante{g.COFINSAliq, g.COFINSQtde, g.COFINSNT, g.COFINSOutr} {
		if v.CST != "" {
			return v
		}
	}
	return cofinsVariante{}
}

// grupoIBSCBS é o grupo da reforma tributária (NT 2025.002). Presente apenas
// em notas já emitidas com os campos de IBS/CBS.
type grupoIBSCBS struct {
	CST        string  `xml:"CST"`
	CClassTrib string  `xml:"cClassTrib"`
	Valores    gIBSCBS `xml:"gIBSCBS"`
}

type gIBSCBS struct {
	VBC     string  `xml:"vBC"`
	GIBSUF  gIBSUF  `xml:"gIBSUF"`
	GIBSMun gIBSMun `xml:"gIBSMun"`
	VIBS    string  `xml:"vIBS"`
	GCBS    gCBS    `xml:"gCBS"`
}

type gIBSUF struct {
	PIBSUF string `xml:"pIBSUF"`
	VIBSUF string `xml:"vIBSUF"`
}

type gIBSMun struct {
	PIBSMun string `xml:"pIBSMun"`
	VIBSMun string `xml:"vIBSMun"`
}

type gCBS struct {
	PCBS string `xml:"pCBS"`
	VCBS string `xml:"vCBS"`
}

type totalNFe struct {
	ICMSTot struct {
		VNF string `xml:"vNF"`
	} `xml:"ICMSTot"`
}

func (s *service) ExtrairNFe(conteudo []byte, nome string) (domain.DocumentoFiscal, error) {
	raiz, chaveProtocolo, err := parseNFe(conteudo)
	if err != nil {
		return domain.DocumentoFiscal{}, err
	}

	inf := raiz.InfNFe
	modelo := "NFe"
	if inf.Ide.Mod == "65" {
		modelo = "NFCe"
	}
	destCnpj := inf.Dest.CNPJ
	if destCnpj == "" {
		destCnpj = inf.Dest.CPF
	}

	doc := domain.DocumentoFiscal{
		Arquivo:     nome,
		Modelo:      modelo,
		ChaveAcesso: chaveProtocolo,
		Numero:      inf.Ide.NNF,
		DataEmissao: formatarDataXML(inf.Ide.DhEmi),
		EmitCnpj:    inf.Emit.CNPJ,
		EmitNome:    inf.Emit.XNome,
		EmitUF:      inf.Emit.EnderEmit.UF,
		DestCnpj:    destCnpj,
		DestNome:    inf.Dest.XNome,
		ValorTotal:  fiscal.ParseValorXML(inf.Total.ICMSTot.VNF),
	}
	if doc.ChaveAcesso == "" {
		doc.ChaveAcesso = chaveDoId(inf.Id)
	}

	for i, det := range inf.Det {
		doc.Itens = append(doc.Itens, itemDoDet(i+1, det))
	}
	if len(doc.Itens) == 0 {
		return domain.DocumentoFiscal{}, errors.New("nenhum item encontrado na NFe")
	}
	return doc, nil
}

// parseNFe tenta primeiro o envelope nfeProc (nota autorizada com protocolo)
// e cai para o elemento NFe puro.
func parseNFe(conteudo []byte) (nfeRaiz, string, error) {
	var proc nfeProc
	if err := xml.Unmarshal(conteudo, &proc); err == nil && proc.NFe.InfNFe.Id != "" {
		return proc.NFe, proc.ProtNFe.InfProt.ChNFe, nil
	}

	var raiz nfeRaiz
	if err := xml.Unmarshal(conteudo, &raiz); err != nil {
		return nfeRaiz{}, "", fmt.Errorf("falha ao fazer parse do XML: %w", err)
	}
	if raiz.InfNFe.Id == "" && raiz.InfNFe.Ide.NNF == "" {
		return nfeRaiz{}, "", errors.New("XML inválido ou não é uma NF-e")
	}
	return raiz, "", nil
}

func itemDoDet(posicao int, det detNFe) domain.ItemFiscal {
	numero, err := strconv.Atoi(strings.TrimSpace(det.NItem))
	if err != nil || numero <= 0 {
		numero = posicao
	}

	icms := det.Imposto.ICMS.ativa()
	cst := icms.CST
	if cst == "" {
		cst = icms.CSOSN
	}

	item := domain.ItemFiscal{
		Numero:        numero,
		Ncm:           det.Prod.NCM,
		Cfop:          det.Prod.CFOP,
		Cst:           cst,
		Descricao:     det.Prod.XProd,
		Quantidade:    fiscal.ParseValorXML(det.Prod.QCom),
		ValorUnitario: fiscal.ParseValorXML(det.Prod.VUnCom),
		ValorTotal:    fiscal.ParseValorXML(det.Prod.VProd),
		VIcms:         fiscal.ParseValorXML(icms.VICMS),
		VPis:          fiscal.ParseValorXML(det.Imposto.PIS.ativa().VPIS),
		VCofins:       fiscal.ParseValorXML(det.Imposto.COFINS.ativa().VCOFINS),
	}

	// vIBS consolida UF + município; notas antigas trazem só as parcelas.
	reforma := det.Imposto.IBSCBS.Valores
	item.VIbsDeclarado = fiscal.ParseValorXML(reforma.VIBS)
	if item.VIbsDeclarado.IsZero() {
		item.VIbsDeclarado = fiscal.ParseValorXML(reforma.GIBSUF.VIBSUF).
			Add(fiscal.ParseValorXML(reforma.GIBSMun.VIBSMun))
	}
	item.VCbsDeclarado = fiscal.ParseValorXML(reforma.GCBS.VCBS)
	return item
}

// chaveDoId extrai os 44 dígitos da chave de acesso do atributo Id
// ("NFe" + chave).
func chaveDoId(id string) string {
	id = strings.TrimSpace(id)
	if strings.HasPrefix(id, "NFe") && len(id) == 47 {
		return id[3:]
	}
	if len(id) == 44 {
		return id
	}
	return ""
}

// formatarDataXML converte datas ISO 8601 dos XMLs para dd/mm/aaaa hh:mm:ss.
// Valores fora do padrão passam adiante sem conversão.
func formatarDataXML(iso string) string {
	iso = strings.TrimSpace(iso)
	if iso == "" {
		return ""
	}
	t, err := time.Parse(time.RFC3339, iso)
	if err != nil {
		return iso
	}
	return t.Format("02/01/2006 15:04:05")
}
