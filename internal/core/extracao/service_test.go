package extracao

import (
	"archive/zip"
	"bytes"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/pricetax/fiscaliva/internal/core/beneficios"
	"github.com/pricetax/fiscaliva/internal/core/tributacao"
)

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	valor, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("decimal inválido %q: %v", s, err)
	}
	return valor
}

// servicoExtracao monta o extrator com uma tabela de benefícios mínima: leite
// em pó 04022110 na cesta básica (redução de 100%).
func servicoExtracao(t *testing.T) Service {
	t.Helper()
	regras := []beneficios.Regra{
		{
			Padrao:         beneficios.NormalizarPadrao("04022110"),
			Reducao:        decimal.NewFromInt(100),
			Anexo:          "ANEXO I",
			DescricaoAnexo: "Cesta Básica Nacional",
			Ordem:          0,
		},
	}
	return NewService(beneficios.NewService(regras), tributacao.NewService(0.10, 0.90, nil))
}

const xmlNFeProc = `<?xml version="1.0" encoding="UTF-8"?>
<nfeProc xmlns="http://www.portalfiscal.inf.br/nfe" versao="4.00">
  <NFe>
    <infNFe Id="NFe35260811222333000181550010000012341000012349" versao="4.00">
      <ide>
        <mod>55</mod>
        <serie>1</serie>
        <nNF>1234</nNF>
        <dhEmi>2026-03-15T10:30:00-03:00</dhEmi>
      </ide>
      <emit>
        <CNPJ>11222333000181</CNPJ>
        <xNome>Distribuidora Alfa LTDA</xNome>
        <enderEmit><UF>SP</UF></enderEmit>
      </emit>
      <dest>
        <CNPJ>99888777000166</CNPJ>
        <xNome>Mercado Beta</xNome>
      </dest>
      <det nItem="1">
        <prod>
          <NCM>04022110</NCM>
          <CFOP>5102</CFOP>
          <xProd>Leite em po integral</xProd>
          <qCom>10.0000</qCom>
          <vUnCom>25.5000</vUnCom>
          <vProd>255.00</vProd>
        </prod>
        <imposto>
          <ICMS><ICMS00><CST>00</CST><vICMS>30.60</vICMS></ICMS00></ICMS>
          <PIS><PISAliq><CST>01</CST><vPIS>4.21</vPIS></PISAliq></PIS>
          <COFINS><COFINSAliq><CST>01</CST><vCOFINS>19.38</vCOFINS></COFINSAliq></COFINS>
          <IBSCBS>
            <CST>000</CST>
            <cClassTrib>000001</cClassTrib>
            <gIBSCBS>
              <vBC>200.81</vBC>
              <gIBSUF><pIBSUF>0.10</pIBSUF><vIBSUF>0.20</vIBSUF></gIBSUF>
              <gIBSMun><pIBSMun>0.00</pIBSMun><vIBSMun>0.00</vIBSMun></gIBSMun>
              <vIBS>0.20</vIBS>
              <gCBS><pCBS>0.90</pCBS><vCBS>1.81</vCBS></gCBS>
            </gIBSCBS>
          </IBSCBS>
        </imposto>
      </det>
      <det nItem="2">
        <prod>
          <NCM>22021000</NCM>
          <CFOP>5405</CFOP>
          <xProd>Refrigerante lata</xProd>
          <qCom>50.0000</qCom>
          <vUnCom>4.0000</vUnCom>
          <vProd>200.00</vProd>
        </prod>
        <imposto>
          <ICMS><ICMSSN102><CSOSN>102</CSOSN></ICMSSN102></ICMS>
          <PIS><PISNT><CST>06</CST></PISNT></PIS>
          <COFINS><COFINSNT><CST>06</CST></COFINSNT></COFINS>
        </imposto>
      </det>
      <total><ICMSTot><vNF>455.00</vNF></ICMSTot></total>
    </infNFe>
  </NFe>
  <protNFe>
    <infProt>
      <chNFe>35260811222333000181550010000012341000012349</chNFe>
      <cStat>100</cStat>
    </infProt>
  </protNFe>
</nfeProc>`

const xmlNFeSimples = `<NFe xmlns="http://www.portalfiscal.inf.br/nfe">
  <infNFe Id="NFe43260999888777000166550020000056781000056789" versao="4.00">
    <ide><mod>65</mod><serie>2</serie><nNF>5678</nNF></ide>
    <emit>
      <CNPJ>99888777000166</CNPJ>
      <xNome>Padaria Omega</xNome>
      <enderEmit><UF>RS</UF></enderEmit>
    </emit>
    <dest><CPF>12345678901</CPF><xNome>Consumidor Final</xNome></dest>
    <det nItem="1">
      <prod>
        <NCM>19059090</NCM>
        <CFOP>5102</CFOP>
        <xProd>Pao frances</xProd>
        <qCom>2.0000</qCom>
        <vUnCom>15.0000</vUnCom>
        <vProd>30.00</vProd>
      </prod>
      <imposto>
        <ICMS><ICMS40><CST>40</CST></ICMS40></ICMS>
        <IBSCBS>
          <CST>000</CST>
          <cClassTrib>000001</cClassTrib>
          <gIBSCBS>
            <vBC>30.00</vBC>
            <gIBSUF><pIBSUF>0.10</pIBSUF><vIBSUF>0.02</vIBSUF></gIBSUF>
            <gIBSMun><pIBSMun>0.00</pIBSMun><vIBSMun>0.01</vIBSMun></gIBSMun>
            <gCBS><pCBS>0.90</pCBS><vCBS>0.27</vCBS></gCBS>
          </gIBSCBS>
        </IBSCBS>
      </imposto>
    </det>
    <total><ICMSTot><vNF>30.00</vNF></ICMSTot></total>
  </infNFe>
</NFe>`

func TestExtrairNFe(t *testing.T) {
	svc := servicoExtracao(t)

	t.Run("Nota autorizada com protocolo", func(t *testing.T) {
		doc, err := svc.ExtrairNFe([]byte(xmlNFeProc), "nota.xml")
		if err != nil {
			t.Fatalf("erro inesperado: %v", err)
		}

		if doc.Modelo != "NFe" {
			t.Errorf("modelo = %q, esperado NFe", doc.Modelo)
		}
		if doc.ChaveAcesso != "35260811222333000181550010000012341000012349" {
			t.Errorf("chave = %q", doc.ChaveAcesso)
		}
		if doc.Numero != "1234" {
			t.Errorf("número = %q", doc.Numero)
		}
		if doc.DataEmissao != "15/03/2026 10:30:00" {
			t.Errorf("data de emissão = %q", doc.DataEmissao)
		}
		if doc.EmitCnpj != "11222333000181" || doc.EmitNome != "Distribuidora Alfa LTDA" || doc.EmitUF != "SP" {
			t.Errorf("emitente = %q / %q / %q", doc.EmitCnpj, doc.EmitNome, doc.EmitUF)
		}
		if doc.DestCnpj != "99888777000166" || doc.DestNome != "Mercado Beta" {
			t.Errorf("destinatário = %q / %q", doc.DestCnpj, doc.DestNome)
		}
		if !doc.ValorTotal.Equal(dec(t, "455")) {
			t.Errorf("valor total = %s", doc.ValorTotal)
		}
		if len(doc.Itens) != 2 {
			t.Fatalf("itens = %d, esperado 2", len(doc.Itens))
		}

		primeiro := doc.Itens[0]
		if primeiro.Numero != 1 || primeiro.Ncm != "04022110" || primeiro.Cfop != "5102" {
			t.Errorf("item 1 = %+v", primeiro)
		}
		if primeiro.Cst != "00" {
			t.Errorf("CST do item 1 = %q", primeiro.Cst)
		}
		if !primeiro.Quantidade.Equal(dec(t, "10")) || !primeiro.ValorTotal.Equal(dec(t, "255")) {
			t.Errorf("quantidade/valor do item 1 = %s / %s", primeiro.Quantidade, primeiro.ValorTotal)
		}
		if !primeiro.VIcms.Equal(dec(t, "30.60")) || !primeiro.VPis.Equal(dec(t, "4.21")) || !primeiro.VCofins.Equal(dec(t, "19.38")) {
			t.Errorf("impostos do item 1 = %s / %s / %s", primeiro.VIcms, primeiro.VPis, primeiro.VCofins)
		}
		if !primeiro.VIbsDeclarado.Equal(dec(t, "0.20")) {
			t.Errorf("IBS declarado = %s", primeiro.VIbsDeclarado)
		}
		if !primeiro.VCbsDeclarado.Equal(dec(t, "1.81")) {
			t.Errorf("CBS declarado = %s", primeiro.VCbsDeclarado)
		}

		segundo := doc.Itens[1]
		if segundo.Cst != "102" {
			t.Errorf("CSOSN do item 2 = %q, esperado 102", segundo.Cst)
		}
		if !segundo.VIcms.IsZero() || !segundo.VIbsDeclarado.IsZero() || !segundo.VCbsDeclarado.IsZero() {
			t.Errorf("item 2 deveria ter impostos zerados: %+v", segundo)
		}
	})

	t.Run("Nota sem protocolo usa a chave do atributo Id", func(t *testing.T) {
		doc, err := svc.ExtrairNFe([]byte(xmlNFeSimples), "nfce.xml")
		if err != nil {
			t.Fatalf("erro inesperado: %v", err)
		}

		if doc.Modelo != "NFCe" {
			t.Errorf("modelo = %q, esperado NFCe", doc.Modelo)
		}
		if doc.ChaveAcesso != "43260999888777000166550020000056781000056789" {
			t.Errorf("chave = %q", doc.ChaveAcesso)
		}
		if doc.DestCnpj != "12345678901" {
			t.Errorf("destinatário por CPF = %q", doc.DestCnpj)
		}
		if doc.DataEmissao != "" {
			t.Errorf("data de emissão = %q, esperado vazio", doc.DataEmissao)
		}
	})

	t.Run("Parcelas de UF e município somam o IBS declarado", func(t *testing.T) {
		doc, err := svc.ExtrairNFe([]byte(xmlNFeSimples), "nfce.xml")
		if err != nil {
			t.Fatalf("erro inesperado: %v", err)
		}

		item := doc.Itens[0]
		if !item.VIbsDeclarado.Equal(dec(t, "0.03")) {
			t.Errorf("IBS declarado = %s, esperado 0.03", item.VIbsDeclarado)
		}
		if !item.VCbsDeclarado.Equal(dec(t, "0.27")) {
			t.Errorf("CBS declarado = %s, esperado 0.27", item.VCbsDeclarado)
		}
		if item.Cst != "40" {
			t.Errorf("CST = %q", item.Cst)
		}
	})

	t.Run("XML malformado", func(t *testing.T) {
		_, err := svc.ExtrairNFe([]byte("isto nao é xml"), "ruim.xml")
		if err == nil || !strings.Contains(err.Error(), "falha ao fazer parse") {
			t.Errorf("erro = %v", err)
		}
	})

	t.Run("XML que não é nota fiscal", func(t *testing.T) {
		_, err := svc.ExtrairNFe([]byte("<NFe><infNFe></infNFe></NFe>"), "vazio.xml")
		if err == nil || err.Error() != "XML inválido ou não é uma NF-e" {
			t.Errorf("erro = %v", err)
		}
	})

	t.Run("Nota sem itens", func(t *testing.T) {
		conteudo := `<NFe><infNFe Id="NFe35260811222333000181550010000012341000012349"><ide><nNF>1</nNF></ide></infNFe></NFe>`
		_, err := svc.ExtrairNFe([]byte(conteudo), "sem-itens.xml")
		if err == nil || err.Error() != "nenhum item encontrado na NFe" {
			t.Errorf("erro = %v", err)
		}
	})
}

func TestExtrairDetectaModelo(t *testing.T) {
	svc := servicoExtracao(t)

	t.Run("NFe", func(t *testing.T) {
		doc := svc.Extrair(Arquivo{Nome: "a.xml", Conteudo: []byte(xmlNFeProc)})
		if doc.Erro != "" || doc.Modelo != "NFe" {
			t.Errorf("modelo = %q, erro = %q", doc.Modelo, doc.Erro)
		}
	})

	t.Run("NFSe", func(t *testing.T) {
		doc := svc.Extrair(Arquivo{Nome: "s.xml", Conteudo: []byte(xmlNFSeCompleta)})
		if doc.Erro != "" || doc.Modelo != "NFSe" {
			t.Errorf("modelo = %q, erro = %q", doc.Modelo, doc.Erro)
		}
	})

	t.Run("Conteúdo inválido vira documento com erro", func(t *testing.T) {
		doc := svc.Extrair(Arquivo{Nome: "ruim.xml", Conteudo: []byte("???")})
		if doc.Erro == "" {
			t.Error("esperava erro preenchido")
		}
		if doc.Arquivo != "ruim.xml" {
			t.Errorf("arquivo = %q", doc.Arquivo)
		}
	})
}

func zipDe(t *testing.T, entradas []Arquivo) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, entrada := range entradas {
		f, err := w.Create(entrada.Nome)
		if err != nil {
			t.Fatalf("falha ao criar entrada %s: %v", entrada.Nome, err)
		}
		if _, err := f.Write(entrada.Conteudo); err != nil {
			t.Fatalf("falha ao escrever entrada %s: %v", entrada.Nome, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("falha ao fechar ZIP: %v", err)
	}
	return buf.Bytes()
}

func TestExtrairLote(t *testing.T) {
	svc := servicoExtracao(t)

	t.Run("Expande ZIP e ignora arquivos que não são XML", func(t *testing.T) {
		pacote := zipDe(t, []Arquivo{
			{Nome: "notas/a.xml", Conteudo: []byte(xmlNFeSimples)},
			{Nome: "leia-me.txt", Conteudo: []byte("ignorar")},
		})

		docs := svc.ExtrairLote([]Arquivo{
			{Nome: "notas.zip", Conteudo: pacote},
			{Nome: "direto.xml", Conteudo: []byte(xmlNFeProc)},
			{Nome: "quebrado.xml", Conteudo: []byte("nao é xml")},
		})

		if len(docs) != 3 {
			t.Fatalf("documentos = %d, esperado 3", len(docs))
		}
		if docs[0].Arquivo != "notas/a.xml" || docs[0].Modelo != "NFCe" {
			t.Errorf("doc do ZIP = %q / %q", docs[0].Arquivo, docs[0].Modelo)
		}
		if docs[1].Modelo != "NFe" {
			t.Errorf("doc direto = %q", docs[1].Modelo)
		}
		if docs[2].Erro == "" {
			t.Error("doc quebrado deveria carregar o erro")
		}
	})

	t.Run("ZIP corrompido vira documento com erro", func(t *testing.T) {
		docs := svc.ExtrairLote([]Arquivo{{Nome: "ruim.zip", Conteudo: []byte("x")}})
		if len(docs) != 1 {
			t.Fatalf("documentos = %d", len(docs))
		}
		if !strings.Contains(docs[0].Erro, "falha ao abrir ZIP") {
			t.Errorf("erro = %q", docs[0].Erro)
		}
	})
}

func TestChaveDoId(t *testing.T) {
	casos := []struct {
		id       string
		esperado string
	}{
		{"NFe35260811222333000181550010000012341000012349", "35260811222333000181550010000012341000012349"},
		{"35260811222333000181550010000012341000012349", "35260811222333000181550010000012341000012349"},
		{"NFe123", ""},
		{"", ""},
	}
	for _, caso := range casos {
		if got := chaveDoId(caso.id); got != caso.esperado {
			t.Errorf("chaveDoId(%q) = %q, esperado %q", caso.id, got, caso.esperado)
		}
	}
}

func TestFormatarDataXML(t *testing.T) {
	casos := []struct {
		entrada  string
		esperado string
	}{
		{"2026-03-15T10:30:00-03:00", "15/03/2026 10:30:00"},
		{"2026-12-01T08:05:09Z", "01/12/2026 08:05:09"},
		{"15/03/2026", "15/03/2026"},
		{"", ""},
	}
	for _, caso := range casos {
		if got := formatarDataXML(caso.entrada); got != caso.esperado {
			t.Errorf("formatarDataXML(%q) = %q, esperado %q", caso.entrada, got, caso.esperado)
		}
	}
}
