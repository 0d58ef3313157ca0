// internal/core/extracao/nfse.go
package extracao

import (
	"errors"
	"fmt"
	"strings"

	"github.com/beevik/etree"
	"github.com/shopspring/decimal"

	"github.com/pricetax/fiscaliva/internal/core/fiscal"
	"github.com/pricetax/fiscaliva/internal/domain"
)

// ExtrairNFSe lê o layout nacional da NFS-e (namespace
// http://www.sped.fazenda.gov.br/nfse). A nota de serviço vira um documento
// com um único item, identificado pelo NBS no lugar do NCM.
func (s *service) ExtrairNFSe(conteudo []byte, nome string) (domain.DocumentoFiscal, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(conteudo); err != nil {
		return domain.DocumentoFiscal{}, fmt.Errorf("falha ao fazer parse do XML: %w", err)
	}

	inf := doc.FindElement("//infNFSe")
	if inf == nil {
		return domain.DocumentoFiscal{}, errors.New("XML inválido ou não é uma NFS-e")
	}
	infDPS := inf.FindElement("DPS/infDPS")

	resultado := domain.DocumentoFiscal{
		Arquivo:     nome,
		Modelo:      "NFSe",
		ChaveAcesso: chaveNFSe(inf),
		Numero:      texto(inf, "nNFSe"),
		Situacao:    situacaoNFSe(texto(inf, "cStat")),
		DataEmissao: formatarDataXML(texto(infDPS, "dhEmi")),
		EmitCnpj:    texto(inf, "emit/CNPJ"),
		EmitNome:    texto(inf, "emit/xNome"),
		EmitUF:      texto(inf, "emit/enderNac/UF"),
		ValorTotal:  valorXML(inf, "valores/vBC"),
	}
	if resultado.DataEmissao == "" {
		resultado.DataEmissao = formatarDataXML(texto(inf, "dhProc"))
	}

	destCnpj := texto(infDPS, "toma/CNPJ")
	if destCnpj == "" {
		destCnpj = texto(infDPS, "toma/CPF")
	}
	resultado.DestCnpj = destCnpj
	resultado.DestNome = texto(infDPS, "toma/xNome")

	descricao := texto(infDPS, "serv/cServ/xDescServ")
	if descricao == "" {
		descricao = texto(inf, "xTribNac")
	}

	resultado.Itens = []domain.ItemFiscal{{
		Numero:        1,
		Nbs:           texto(infDPS, "serv/cServ/cNBS"),
		Cst:           texto(infDPS, "valores/trib/tribFed/piscofins/CST"),
		Descricao:     descricao,
		Quantidade:    decimal.NewFromInt(1),
		ValorUnitario: resultado.ValorTotal,
		ValorTotal:    resultado.ValorTotal,
		VPis:          valorXML(infDPS, "valores/trib/tribFed/piscofins/vPis"),
		VCofins:       valorXML(infDPS, "valores/trib/tribFed/piscofins/vCofins"),
	}}
	return resultado, nil
}

// chaveNFSe extrai a chave de acesso do atributo Id ("NFS" + chave no padrão
// do Portal Nacional).
func chaveNFSe(inf *etree.Element) string {
	chave := strings.TrimSpace(inf.SelectAttrValue("Id", ""))
	return strings.TrimPrefix(chave, "NFS")
}

// situacaoNFSe traduz o cStat do layout nacional.
func situacaoNFSe(cstat string) string {
	switch cstat {
	case "100":
		return domain.SituacaoAtiva
	case "101":
		return domain.SituacaoCancelada
	case "102":
		return domain.SituacaoSubstituida
	}
	return "Desconhecido"
}

// texto devolve o texto do primeiro elemento no caminho, tolerando elementos
// ausentes.
func texto(el *etree.Element, caminho string) string {
	if el == nil {
		return ""
	}
	filho := el.FindElement(caminho)
	if filho == nil {
		return ""
	}
	return strings.TrimSpace(filho.Text())
}

func valorXML(el *etree.Element, caminho string) decimal.Decimal {
	return fiscal.ParseValorXML(texto(el, caminho))
}
