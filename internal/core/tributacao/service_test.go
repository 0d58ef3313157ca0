package tributacao

import (
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/pricetax/fiscaliva/internal/core/beneficios"
	"github.com/pricetax/fiscaliva/internal/domain"
)

func servicoPadrao() Service {
	return NewService(0.10, 0.90, nil)
}

func resultadoCom(reducao string, anexo string) beneficios.Resultado {
	valor, _ := decimal.NewFromString(reducao)
	enq := domain.Enquadramento{
		Padrao:         "04",
		Reducao:        valor,
		Anexo:          anexo,
		DescricaoAnexo: "Descrição do " + anexo,
		Fonte:          "LC 214/25, " + anexo,
	}
	return beneficios.Resultado{
		Codigo:         "04022110",
		Enquadramentos: []domain.Enquadramento{enq},
		Escolhido:      &enq,
	}
}

func TestCalcularRegime(t *testing.T) {
	svc := servicoPadrao()

	casos := []struct {
		nome      string
		resultado beneficios.Resultado
		regime    string
		aliqIBS   string
		aliqCBS   string
	}{
		{
			nome:      "Sem benefício aplica tributação padrão",
			resultado: beneficios.Resultado{Codigo: "22021000", SemBeneficio: true},
			regime:    domain.RegimePadrao,
			aliqIBS:   "0.10",
			aliqCBS:   "0.90",
		},
		{
			nome:      "Redução de 100% zera as duas alíquotas",
			resultado: resultadoCom("100", "ANEXO I"),
			regime:    domain.RegimeAliqZero,
			aliqIBS:   "0",
			aliqCBS:   "0",
		},
		{
			nome:      "Redução de 60% no Anexo VII segue a trilha de alimentos",
			resultado: resultadoCom("60", "ANEXO VII"),
			regime:    domain.RegimeRed60Alimentos,
			aliqIBS:   "0.04",
			aliqCBS:   "0.36",
		},
		{
			nome:      "Redução de 60% fora do Anexo VII segue a essencialidade",
			resultado: resultadoCom("60", "ANEXO III"),
			regime:    domain.RegimeRed60Essencialidade,
			aliqIBS:   "0.04",
			aliqCBS:   "0.36",
		},
		{
			nome:      "Redução genérica de 30% escala as alíquotas base",
			resultado: resultadoCom("30", "ANEXO IX"),
			regime:    "RED_30",
			aliqIBS:   "0.07",
			aliqCBS:   "0.63",
		},
	}

	for _, caso := range casos {
		t.Run(caso.nome, func(t *testing.T) {
			regime := svc.CalcularRegime(caso.resultado)
			if regime.Regime != caso.regime {
				t.Errorf("regime = %q, esperado %q", regime.Regime, caso.regime)
			}
			ibs, _ := decimal.NewFromString(caso.aliqIBS)
			cbs, _ := decimal.NewFromString(caso.aliqCBS)
			if !regime.AliqIBS.Equal(ibs) {
				t.Errorf("aliqIBS = %s, esperado %s", regime.AliqIBS, ibs)
			}
			if !regime.AliqCBS.Equal(cbs) {
				t.Errorf("aliqCBS = %s, esperado %s", regime.AliqCBS, cbs)
			}
			if !regime.TotalIVA.Equal(regime.AliqIBS.Add(regime.AliqCBS)) {
				t.Errorf("totalIVA = %s não é a soma de %s e %s", regime.TotalIVA, regime.AliqIBS, regime.AliqCBS)
			}
		})
	}

	t.Run("Fonte do regime padrão cita a regra geral", func(t *testing.T) {
		regime := svc.CalcularRegime(beneficios.Resultado{})
		if regime.Fonte != FontePadrao {
			t.Errorf("fonte = %q", regime.Fonte)
		}
	})

	t.Run("Fonte do benefício cita o anexo", func(t *testing.T) {
		regime := svc.CalcularRegime(resultadoCom("100", "ANEXO I"))
		if regime.Fonte != "LC 214/25, ANEXO I" {
			t.Errorf("fonte = %q", regime.Fonte)
		}
	})
}

func TestTotalIVASempreSomaDasAliquotas(t *testing.T) {
	svc := servicoPadrao()
	resultados := []beneficios.Resultado{
		{},
		resultadoCom("100", "ANEXO I"),
		resultadoCom("60", "ANEXO VII"),
		resultadoCom("60", "ANEXO II"),
		resultadoCom("30", "ANEXO IX"),
		resultadoCom("12.5", "ANEXO X"),
	}
	for _, resultado := range resultados {
		regime := svc.CalcularRegime(resultado)
		if !regime.TotalIVA.Equal(regime.AliqIBS.Add(regime.AliqCBS)) {
			t.Errorf("regime %q: totalIVA = %s, soma = %s",
				regime.Regime, regime.TotalIVA, regime.AliqIBS.Add(regime.AliqCBS))
		}
	}
}

func TestClassificar(t *testing.T) {
	svc := servicoPadrao()

	casos := []struct {
		nome    string
		cst     string
		cfop    string
		regime  string
		codigo  string
		trechos []string
	}{
		{
			nome:    "Cesta básica nacional com CFOP de venda",
			cst:     "000",
			cfop:    "5102",
			regime:  domain.RegimeAliqZero,
			codigo:  "200003",
			trechos: []string{"Cesta Básica Nacional", "Anexo I"},
		},
		{
			nome:    "Redução 60% alimentos cita o Anexo VII",
			cst:     "000",
			cfop:    "5102",
			regime:  domain.RegimeRed60Alimentos,
			codigo:  "200034",
			trechos: []string{"Redução 60%", "Anexo VII"},
		},
		{
			nome:    "Redução 60% essencialidade cita os arts. 137 a 145",
			cst:     "000",
			cfop:    "5102",
			regime:  domain.RegimeRed60Essencialidade,
			codigo:  "200034",
			trechos: []string{"Redução 60%", "essencialidade"},
		},
		{
			nome:    "Venda interna padrão cai na matriz PRICETAX",
			cst:     "000",
			cfop:    "5102",
			regime:  domain.RegimePadrao,
			codigo:  "000001",
			trechos: []string{"matriz PRICETAX"},
		},
		{
			nome:    "Venda interestadual padrão também classifica 000001",
			cst:     "000",
			cfop:    "6102",
			regime:  domain.RegimePadrao,
			codigo:  "000001",
			trechos: []string{"matriz PRICETAX"},
		},
		{
			nome:    "Remessa em bonificação é operação não onerosa",
			cst:     "000",
			cfop:    "5910",
			regime:  domain.RegimePadrao,
			codigo:  "410999",
			trechos: []string{"não onerosa", "brindes"},
		},
		{
			nome:    "Consignação interestadual 6910 permanece na matriz de venda",
			cst:     "000",
			cfop:    "6910",
			regime:  domain.RegimePadrao,
			codigo:  "000001",
			trechos: []string{"matriz PRICETAX"},
		},
		{
			nome:    "Saída fora da matriz com CST normal usa a regra genérica",
			cst:     "000",
			cfop:    "5999",
			regime:  domain.RegimePadrao,
			codigo:  "000001",
			trechos: []string{"Regra genérica"},
		},
		{
			nome:    "Entrada não classifica e pede revisão manual",
			cst:     "000",
			cfop:    "1102",
			regime:  domain.RegimePadrao,
			codigo:  "",
			trechos: []string{"revisar manualmente"},
		},
		{
			nome:    "Saída fora da matriz com CST especial pede revisão manual",
			cst:     "040",
			cfop:    "5999",
			regime:  domain.RegimePadrao,
			codigo:  "",
			trechos: []string{"revisar manualmente"},
		},
		{
			nome:    "CFOP com pontuação é saneado antes da consulta",
			cst:     "000",
			cfop:    "5.102",
			regime:  domain.RegimePadrao,
			codigo:  "000001",
			trechos: []string{"CFOP 5102"},
		},
	}

	for _, caso := range casos {
		t.Run(caso.nome, func(t *testing.T) {
			classe, err := svc.Classificar(caso.cst, caso.cfop, caso.regime)
			if err != nil {
				t.Fatalf("Classificar retornou erro inesperado: %v", err)
			}
			if classe.Codigo != caso.codigo {
				t.Errorf("código = %q, esperado %q", classe.Codigo, caso.codigo)
			}
			for _, trecho := range caso.trechos {
				if !strings.Contains(classe.Mensagem, trecho) {
					t.Errorf("mensagem %q deveria conter %q", classe.Mensagem, trecho)
				}
			}
		})
	}

	t.Run("CFOP vazio falha com erro de CFOP ausente", func(t *testing.T) {
		for _, cfop := range []string{"", "   ", "abc"} {
			classe, err := svc.Classificar("000", cfop, domain.RegimeAliqZero)
			if !errors.Is(err, domain.ErrCfopAusente) {
				t.Errorf("Classificar(cfop=%q): esperava ErrCfopAusente, obteve %v", cfop, err)
			}
			if classe.Codigo != "" {
				t.Errorf("Classificar(cfop=%q): código deveria ser vazio, obteve %q", cfop, classe.Codigo)
			}
		}
	})
}

// O regime do produto decide a classificação antes de qualquer regra de
// CFOP: um item da cesta básica permanece 200003 mesmo em CFOP não oneroso.
func TestClassificarRegimePrevaleceSobreCfop(t *testing.T) {
	svc := servicoPadrao()

	cfops := []string{"5102", "6102", "5910", "6910", "7949", "1102"}
	casos := map[string]string{
		domain.RegimeAliqZero:            "200003",
		domain.RegimeRed60Alimentos:      "200034",
		domain.RegimeRed60Essencialidade: "200034",
	}

	for regime, esperado := range casos {
		for _, cfop := range cfops {
			classe, err := svc.Classificar("000", cfop, regime)
			if err != nil {
				t.Fatalf("Classificar(%q, %q): %v", cfop, regime, err)
			}
			if classe.Codigo != esperado {
				t.Errorf("Classificar(%q, %q) = %q, esperado %q independente do CFOP",
					cfop, regime, classe.Codigo, esperado)
			}
		}
	}
}

func TestClassificarEnquadramento(t *testing.T) {
	svc := servicoPadrao()

	enq := func(reducao int64, anexo, descricao string) domain.Enquadramento {
		return domain.Enquadramento{
			Reducao:        decimal.NewFromInt(reducao),
			Anexo:          anexo,
			DescricaoAnexo: descricao,
		}
	}

	casos := []struct {
		nome   string
		enq    domain.Enquadramento
		codigo string
		trecho string
	}{
		{
			nome:   "Cesta básica nacional",
			enq:    enq(100, "ANEXO I", ""),
			codigo: "200003",
			trecho: "Cesta Básica Nacional",
		},
		{
			nome:   "Anexo VII aceita grafia com minúsculas",
			enq:    enq(60, "Anexo VII", ""),
			codigo: "200034",
			trecho: "Cesta Estendida",
		},
		{
			nome:   "Medicamentos com alíquota zero",
			enq:    enq(100, "ANEXO XIV", ""),
			codigo: "200009",
			trecho: "Medicamentos",
		},
		{
			nome:   "Anexo XI com descrição de soberania",
			enq:    enq(60, "ANEXO_XI", "Bens relativos à soberania nacional"),
			codigo: "200043",
			trecho: "Soberania",
		},
		{
			nome:   "Anexo XI com descrição de segurança cibernética",
			enq:    enq(60, "ANEXO XI", "Serviços de segurança cibernética"),
			codigo: "200044",
			trecho: "Segurança da Informação",
		},
		{
			nome:   "Anexo XI sem descrição usa o código base",
			enq:    enq(60, "ANEXO XI", ""),
			codigo: "200043",
			trecho: "Soberania",
		},
		{
			nome:   "Par sem mapeamento volta vazio",
			enq:    enq(50, "ANEXO I", ""),
			codigo: "",
			trecho: "Mapeamento não encontrado",
		},
	}

	for _, caso := range casos {
		t.Run(caso.nome, func(t *testing.T) {
			classe := svc.ClassificarEnquadramento(caso.enq)
			if classe.Codigo != caso.codigo {
				t.Errorf("código = %q, esperado %q", classe.Codigo, caso.codigo)
			}
			if !strings.Contains(classe.Mensagem, caso.trecho) {
				t.Errorf("mensagem %q deveria conter %q", classe.Mensagem, caso.trecho)
			}
		})
	}
}

func TestClassificarEnriqueceComTabelaOficial(t *testing.T) {
	referencia := map[string]domain.InfoClassificacao{
		"200003": {
			Codigo:       "200003",
			Descricao:    "Operações com alíquota zero da Cesta Básica Nacional de Alimentos",
			TipoAliquota: "04",
		},
	}
	svc := NewService(0.10, 0.90, referencia)

	classe, err := svc.Classificar("000", "5102", domain.RegimeAliqZero)
	if err != nil {
		t.Fatalf("Classificar: %v", err)
	}
	if classe.Codigo != "200003" {
		t.Fatalf("código = %q", classe.Codigo)
	}
	if classe.Descricao != referencia["200003"].Descricao {
		t.Errorf("descrição não enriquecida: %q", classe.Descricao)
	}
	if classe.TipoAliquota != "Alíquota zero" {
		t.Errorf("tipo de alíquota = %q, esperado %q", classe.TipoAliquota, "Alíquota zero")
	}
}

func TestRotuloRegime(t *testing.T) {
	casos := map[string]string{
		"TRIBUTACAO_PADRAO":               "Tributação Padrão",
		"RED_60_ESSENCIALIDADE":           "Redução 60% (Essencialidade)",
		"RED_60_ALIMENTOS":                "Redução 60% (Alimentos)",
		"ALIQ_ZERO_CESTA_BASICA_NACIONAL": "Alíquota Zero (Cesta Básica Nacional)",
		"RED_30":                          "RED_30",
	}
	for regime, esperado := range casos {
		if obtido := RotuloRegime(regime); obtido != esperado {
			t.Errorf("RotuloRegime(%q) = %q, esperado %q", regime, obtido, esperado)
		}
	}
}

func TestDescricaoTipoAliquota(t *testing.T) {
	casos := map[string]string{
		"01": "Alíquota padrão",
		"04": "Alíquota zero",
		"05": "Imunidade",
		"08": "Suspensão",
		"99": "Tipo 99",
		"":   "",
	}
	for codigo, esperado := range casos {
		if obtido := DescricaoTipoAliquota(codigo); obtido != esperado {
			t.Errorf("DescricaoTipoAliquota(%q) = %q, esperado %q", codigo, obtido, esperado)
		}
	}
}

func TestTabelaCfopConsolidada(t *testing.T) {
	t.Run("Não onerosos recebem 410999", func(t *testing.T) {
		for _, cfop := range []string{"5910", "7910", "5911", "7911", "5949", "6949", "7949", "5917", "7917"} {
			if tabelaCfop[cfop] != ClassNaoOnerosa {
				t.Errorf("tabelaCfop[%q] = %q, esperado %q", cfop, tabelaCfop[cfop], ClassNaoOnerosa)
			}
		}
	})

	t.Run("Faixa 6901-6922 mantém prioridade de venda", func(t *testing.T) {
		for _, cfop := range []string{"6910", "6911", "6917"} {
			if tabelaCfop[cfop] != ClassVendaPadrao {
				t.Errorf("tabelaCfop[%q] = %q, esperado %q", cfop, tabelaCfop[cfop], ClassVendaPadrao)
			}
		}
	})
}
