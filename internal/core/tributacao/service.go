// internal/core/tributacao/service.go
package tributacao

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/pricetax/fiscaliva/internal/core/beneficios"
	"github.com/pricetax/fiscaliva/internal/core/fiscal"
	"github.com/pricetax/fiscaliva/internal/domain"
)

// FontePadrao fundamenta o regime geral do ano de teste da reforma.
const FontePadrao = "LC 214/25, regra geral art. 10 e disposiçoes do ADCT art. 125 (ano teste)"

var (
	cem      = decimal.NewFromInt(100)
	sessenta = decimal.NewFromInt(60)
)

// Service calcula o regime de IBS/CBS de um produto e resolve o
// cClassTrib da operação conforme a LC 214/2025.
type Service interface {
	// CalcularRegime converte o resultado da consulta de benefícios nas
	// alíquotas efetivas do ano de referência.
	CalcularRegime(resultado beneficios.Resultado) domain.RegimeTributario

	// Classificar sugere o cClassTrib da operação. O regime do produto tem
	// precedência absoluta sobre regras baseadas apenas no CFOP.
	Classificar(cst, cfop, regime string) (domain.Classificacao, error)

	// ClassificarEnquadramento resolve o cClassTrib correspondente a um
	// enquadramento de benefício, pelo par (redução, anexo).
	ClassificarEnquadramento(enq domain.Enquadramento) domain.Classificacao
}

type service struct {
	aliqIBS    decimal.Decimal
	aliqCBS    decimal.Decimal
	referencia map[string]domain.InfoClassificacao
}

// NewService cria o serviço com as alíquotas base do ano de referência, em
// pontos percentuais, e a tabela oficial de classificação tributária usada
// para enriquecer os códigos resolvidos (pode ser nil quando indisponível).
func NewService(aliqIBS, aliqCBS float64, referencia map[string]domain.InfoClassificacao) Service {
	return &service{
		aliqIBS:    decimal.NewFromFloat(aliqIBS),
		aliqCBS:    decimal.NewFromFloat(aliqCBS),
		referencia: referencia,
	}
}

func (s *service) CalcularRegime(resultado beneficios.Resultado) domain.RegimeTributario {
	regime := domain.RegimeTributario{
		Regime:  domain.RegimePadrao,
		AliqIBS: s.aliqIBS,
		AliqCBS: s.aliqCBS,
		Fonte:   FontePadrao,
	}

	if resultado.Escolhido != nil {
		enq := resultado.Escolhido
		fator := cem.Sub(enq.Reducao).Div(cem)
		regime.AliqIBS = s.aliqIBS.Mul(fator)
		regime.AliqCBS = s.aliqCBS.Mul(fator)
		regime.Reducao = enq.Reducao
		regime.Anexo = enq.Anexo
		regime.DescricaoAnexo = enq.DescricaoAnexo
		regime.Fonte = enq.Fonte
		regime.Regime = rotularReducao(enq.Reducao, enq.Anexo)
	}

	// Identidade do total: sempre a soma das duas alíquotas efetivas.
	regime.TotalIVA = regime.AliqIBS.Add(regime.AliqCBS)
	return regime
}

// rotularReducao escolhe o identificador de regime para a redução aplicada.
// A trilha da redução de 60% segue o anexo do enquadramento: Anexo VII é a
// cesta básica estendida (alimentos), os demais caem na essencialidade.
func rotularReducao(reducao decimal.Decimal, anexo string) string {
	switch {
	case reducao.Equal(cem):
		return domain.RegimeAliqZero
	case reducao.Equal(sessenta):
		if fiscal.NormalizarTexto(anexo) == "ANEXO VII" {
			return domain.RegimeRed60Alimentos
		}
		return domain.RegimeRed60Essencialidade
	default:
		return fmt.Sprintf("RED_%d", reducao.IntPart())
	}
}

func (s *service) Classificar(cst, cfop, regime string) (domain.Classificacao, error) {
	cstLimpo := fiscal.SomenteDigitos(cst)
	cfopLimpo := fiscal.SomenteDigitos(cfop)
	regimeNorm := strings.ToUpper(strings.TrimSpace(regime))

	if cfopLimpo == "" {
		return domain.Classificacao{}, domain.ErrCfopAusente
	}

	// Prioridade 1: regime IVA do produto. O cClassTrib segue o fundamento
	// legal do benefício, nunca o CFOP isolado.
	if strings.Contains(regimeNorm, domain.RegimeAliqZero) {
		msg := fmt.Sprintf(
			"✅ Cesta Básica Nacional (Anexo I LC 214/25) → cClassTrib %s. "+
				"Operação onerosa com redução de 100%% (alíquota zero). "+
				"Fundamento: LC 214/2025, Anexo I.",
			ClassCestaBasica,
		)
		return s.enriquecer(domain.Classificacao{Codigo: ClassCestaBasica, Mensagem: msg}), nil
	}

	if strings.Contains(regimeNorm, "RED_60") {
		fundamento := "arts. 137 a 145 (essencialidade)"
		if strings.Contains(regimeNorm, "ALIMENTO") {
			fundamento = "Anexo VII (Cesta Básica Estendida)"
		}
		msg := fmt.Sprintf(
			"✅ Redução 60%% (%s) → cClassTrib %s. "+
				"Operação onerosa com redução de 60%%. "+
				"Fundamento: LC 214/2025, %s.",
			fundamento, ClassReducao60, fundamento,
		)
		return s.enriquecer(domain.Classificacao{Codigo: ClassReducao60, Mensagem: msg}), nil
	}

	// Prioridade 2: matriz fixa de CFOPs.
	if codigo, ok := tabelaCfop[cfopLimpo]; ok {
		var msg string
		if codigo == ClassNaoOnerosa {
			msg = fmt.Sprintf(
				"⚠️ Operação não onerosa (CFOP %s) → cClassTrib %s. "+
					"Não gera débito de IBS/CBS. "+
					"Exemplos: brindes, doações, amostras grátis.",
				cfopLimpo, codigo,
			)
		} else {
			msg = fmt.Sprintf("Regra padrão PRICETAX: CFOP %s → cClassTrib %s (conforme matriz PRICETAX).", cfopLimpo, codigo)
		}
		return s.enriquecer(domain.Classificacao{Codigo: codigo, Mensagem: msg}), nil
	}

	// Prioridade 3: regra genérica para saídas com CST de tributação normal.
	if (cfopLimpo[0] == '5' || cfopLimpo[0] == '6' || cfopLimpo[0] == '7') && cstsSaidaTributada[cstLimpo] {
		msg := fmt.Sprintf(
			"Regra genérica: CFOP %s é saída tributada padrão → cClassTrib %s "+
				"(tributação regular sem benefício). Revise se for operação especial "+
				"(doação, brinde, bonificação, remessa técnica etc.).",
			cfopLimpo, ClassVendaPadrao,
		)
		return s.enriquecer(domain.Classificacao{Codigo: ClassVendaPadrao, Mensagem: msg}), nil
	}

	// Sem regra aplicável: orientação de revisão manual, com código vazio.
	return domain.Classificacao{
		Mensagem: "Não foi possível localizar um cClassTrib padrão para o CFOP informado. " +
			"Provável operação especial (devolução, bonificação, remessa, teste, garantia etc.) – revisar manualmente.",
	}, nil
}

func (s *service) ClassificarEnquadramento(enq domain.Enquadramento) domain.Classificacao {
	anexo := fiscal.NormalizarTexto(enq.Anexo)
	reducao := int(enq.Reducao.IntPart())

	// O Anexo XI desdobra em dois códigos conforme a descrição do benefício.
	if anexo == "ANEXO XI" && enq.DescricaoAnexo != "" {
		descricao := strings.ToLower(enq.DescricaoAnexo)
		for _, especial := range anexoXIPorDescricao {
			if strings.Contains(descricao, especial.Chave) {
				nome := "Anexo XI - Soberania e Segurança Nacional"
				if especial.Codigo == "200044" {
					nome = "Anexo XI - Segurança da Informação/Cibernética"
				}
				return s.enriquecer(domain.Classificacao{Codigo: especial.Codigo, Mensagem: nome})
			}
		}
	}

	if codigo, ok := classPorReducaoAnexo[chaveAnexo{Reducao: reducao, Anexo: anexo}]; ok {
		nome := anexo
		if n, ok := nomesAnexos[anexo]; ok {
			nome = n
		}
		msg := fmt.Sprintf("%s - %s (Redução %d%%)", anexo, nome, reducao)
		return s.enriquecer(domain.Classificacao{Codigo: codigo, Mensagem: msg})
	}

	return domain.Classificacao{
		Mensagem: fmt.Sprintf("Mapeamento não encontrado para Redução %d%% + %s", reducao, anexo),
	}
}

// enriquecer anexa a descrição oficial e o tipo de alíquota do código,
// quando a tabela de classificação tributária está carregada.
func (s *service) enriquecer(c domain.Classificacao) domain.Classificacao {
	if info, ok := s.referencia[c.Codigo]; ok {
		c.Descricao = info.Descricao
		c.TipoAliquota = DescricaoTipoAliquota(info.TipoAliquota)
	}
	return c
}
