// internal/core/beneficios/service.go
package beneficios

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pricetax/fiscaliva/internal/core/fiscal"
	"github.com/pricetax/fiscaliva/internal/domain"
	"github.com/shopspring/decimal"
)

// TipoPadrao classifica a notação usada na coluna NCM/IBS da tabela de
// benefícios.
type TipoPadrao int

const (
	PadraoInvalido TipoPadrao = iota
	PadraoCapitulo            // 1-2 dígitos: capítulo da nomenclatura
	PadraoPosicao             // 3 dígitos legados expandidos para posição de 4
	PadraoPrefixo             // 4-7 dígitos: prefixo direto
	PadraoExato               // 8 dígitos: NCM exato
	PadraoConjunto            // conjunto enumerado de códigos ("0402/0403")
	PadraoNBS                 // 9 dígitos: família de serviços, fora do motor NCM
)

func (t TipoPadrao) String() string {
	switch t {
	case PadraoCapitulo:
		return "capitulo"
	case PadraoPosicao:
		return "posicao"
	case PadraoPrefixo:
		return "prefixo"
	case PadraoExato:
		return "exato"
	case PadraoConjunto:
		return "conjunto"
	case PadraoNBS:
		return "nbs"
	default:
		return "invalido"
	}
}

// Padrao é a notação normalizada de uma linha da tabela. Prefixos carrega um
// único prefixo para padrões simples e um por membro para conjuntos; o
// comprimento do prefixo casado é a especificidade do match.
type Padrao struct {
	Tipo          TipoPadrao
	ValorOriginal string
	Prefixos      []string
}

// Regra é uma linha da tabela de benefícios já validada: padrão + redução em
// pontos percentuais (0-100) + referência legal. Imutável após a carga.
type Regra struct {
	Padrao         Padrao
	Reducao        decimal.Decimal
	Anexo          string
	DescricaoAnexo string
	Ordem          int
}

// Resultado é a resolução de um código contra a tabela: todos os
// enquadramentos do nível mais específico que casou, ordenados pela ordem de
// declaração na tabela, e o escolhido (primeiro deles).
type Resultado struct {
	Codigo             string                 `json:"codigo"`
	Enquadramentos     []domain.Enquadramento `json:"enquadramentos"`
	Escolhido          *domain.Enquadramento  `json:"escolhido,omitempty"`
	MultiEnquadramento bool                   `json:"multi_enquadramento"`
	SemBeneficio       bool                   `json:"sem_beneficio"`
}

// ResumoAnexos agrega os anexos envolvidos em um conjunto de NCMs e aponta os
// códigos com enquadramento ambíguo.
type ResumoAnexos struct {
	AnexosEncontrados []string    `json:"anexos_encontrados"`
	TotalAnexos       int         `json:"total_anexos"`
	NcmsAmbiguos      []Resultado `json:"ncms_ambiguos"`
	TotalAmbiguos     int         `json:"total_ambiguos"`
	Mensagem          string      `json:"mensagem"`
}

// Service é o motor de enquadramento de benefícios fiscais. A tabela é
// carregada uma vez e nunca muda durante o processamento: as consultas são
// seguras para uso concorrente.
type Service interface {
	Consultar(ncm string) (Resultado, error)
	AnexosEnvolvidos(ncms []string) ResumoAnexos
	TotalRegras() int
}

type service struct {
	regras []Regra
	// índice por tamanho de prefixo: consulta desce de 8 até 2 e para no
	// primeiro nível com match, sem varredura linear e sem depender de ordem
	// de iteração de mapas.
	porTamanho map[int]map[string][]int
	tamanhos   []int
}

// NewService monta o motor a partir das regras carregadas pela carga da
// tabela (ver loader.go).
func NewService(regras []Regra) Service {
	s := &service{
		regras:     regras,
		porTamanho: make(map[int]map[string][]int),
	}
	for i := range regras {
		for _, prefixo := range regras[i].Padrao.Prefixos {
			tam := len(prefixo)
			if tam < 1 || tam > 8 {
				continue
			}
			nivel, ok := s.porTamanho[tam]
			if !ok {
				nivel = make(map[string][]int)
				s.porTamanho[tam] = nivel
			}
			nivel[prefixo] = append(nivel[prefixo], i)
		}
	}
	for tam := range s.porTamanho {
		s.tamanhos = append(s.tamanhos, tam)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(s.tamanhos)))
	return s
}

func (s *service) TotalRegras() int {
	return len(s.regras)
}

// Consultar resolve um NCM contra a tabela. Ausência de enquadramento é um
// resultado válido (tributação padrão), não um erro; apenas códigos
// malformados retornam erro.
func (s *service) Consultar(ncm string) (Resultado, error) {
	normalizado, err := fiscal.NormalizarNCM(ncm)
	if err != nil {
		return Resultado{}, fmt.Errorf("NCM %q: %w", ncm, err)
	}

	resultado := Resultado{Codigo: normalizado}

	for _, tam := range s.tamanhos {
		indices := s.porTamanho[tam][normalizado[:tam]]
		if len(indices) == 0 {
			continue
		}
		// nível mais específico encontrado; empates resolvidos pela ordem de
		// declaração na tabela, estável entre execuções.
		ordenados := append([]int(nil), indices...)
		sort.Slice(ordenados, func(a, b int) bool {
			return s.regras[ordenados[a]].Ordem < s.regras[ordenados[b]].Ordem
		})
		for _, idx := range ordenados {
			regra := s.regras[idx]
			resultado.Enquadramentos = append(resultado.Enquadramentos, domain.Enquadramento{
				Padrao:         regra.Padrao.ValorOriginal,
				TipoPadrao:     regra.Padrao.Tipo.String(),
				Especificidade: tam,
				Reducao:        regra.Reducao,
				Anexo:          regra.Anexo,
				DescricaoAnexo: regra.DescricaoAnexo,
				Fonte:          "LC 214/25, " + regra.Anexo,
				Ordem:          regra.Ordem,
			})
		}
		break
	}

	if len(resultado.Enquadramentos) == 0 {
		resultado.SemBeneficio = true
		return resultado, nil
	}
	resultado.Escolhido = &resultado.Enquadramentos[0]
	resultado.MultiEnquadramento = len(resultado.Enquadramentos) > 1
	return resultado, nil
}

// AnexosEnvolvidos consulta cada NCM e agrega os anexos encontrados,
// destacando os códigos que se aplicam a mais de um anexo.
func (s *service) AnexosEnvolvidos(ncms []string) ResumoAnexos {
	anexosSet := make(map[string]bool)
	resumo := ResumoAnexos{}

	for _, ncm := range ncms {
		resultado, err := s.Consultar(ncm)
		if err != nil {
			continue
		}
		if resultado.MultiEnquadramento {
			resumo.NcmsAmbiguos = append(resumo.NcmsAmbiguos, resultado)
		}
		for _, enq := range resultado.Enquadramentos {
			anexosSet[enq.Anexo] = true
		}
	}

	for anexo := range anexosSet {
		resumo.AnexosEncontrados = append(resumo.AnexosEncontrados, anexo)
	}
	sort.Strings(resumo.AnexosEncontrados)
	resumo.TotalAnexos = len(resumo.AnexosEncontrados)
	resumo.TotalAmbiguos = len(resumo.NcmsAmbiguos)

	if resumo.TotalAmbiguos > 0 {
		resumo.Mensagem = fmt.Sprintf(
			"Você possui produtos que se aplicam a múltiplos anexos: %s. Escolha um anexo principal para esta análise.",
			strings.Join(resumo.AnexosEncontrados, ", "))
	} else {
		resumo.Mensagem = "Todos os produtos têm enquadramento único."
	}
	return resumo
}

// NormalizarPadrao converte a notação da coluna NCM/IBS em um Padrao tipado.
//
// Regras herdadas do dataset legal:
//   - 1 dígito: capítulo com zero à esquerda ("2" vira "02")
//   - 2 dígitos: capítulo direto
//   - 3 dígitos: "102"/"103"/"104" viram posição "01"+finais; "811"/"901"/
//     "903" viram posição com zero à esquerda; demais ganham "0" à frente
//   - 4 a 7 dígitos: prefixo direto
//   - 8 dígitos: NCM exato
//   - 9 dígitos: NBS (família de serviços, ignorada por este motor)
//   - valores separados por "/" ou ";": conjunto enumerado, cada membro
//     normalizado pelas regras acima
func NormalizarPadrao(valor string) Padrao {
	original := strings.TrimSpace(valor)
	if original == "" {
		return Padrao{Tipo: PadraoInvalido, ValorOriginal: original}
	}

	if strings.ContainsAny(original, "/;") {
		return normalizarConjunto(original)
	}
	return normalizarSimples(original)
}

func normalizarSimples(original string) Padrao {
	digitos := fiscal.SomenteDigitos(original)
	if digitos == "" {
		return Padrao{Tipo: PadraoInvalido, ValorOriginal: original}
	}

	switch len(digitos) {
	case 1:
		return Padrao{Tipo: PadraoCapitulo, ValorOriginal: original, Prefixos: []string{"0" + digitos}}
	case 2:
		return Padrao{Tipo: PadraoCapitulo, ValorOriginal: original, Prefixos: []string{digitos}}
	case 3:
		switch digitos {
		case "102", "103", "104":
			return Padrao{Tipo: PadraoPosicao, ValorOriginal: original, Prefixos: []string{"01" + digitos[1:]}}
		case "811", "901", "903":
			return Padrao{Tipo: PadraoPosicao, ValorOriginal: original, Prefixos: []string{"0" + digitos}}
		default:
			return Padrao{Tipo: PadraoPosicao, ValorOriginal: original, Prefixos: []string{"0" + digitos}}
		}
	case 4, 5, 6, 7:
		return Padrao{Tipo: PadraoPrefixo, ValorOriginal: original, Prefixos: []string{digitos}}
	case 8:
		return Padrao{Tipo: PadraoExato, ValorOriginal: original, Prefixos: []string{digitos}}
	case 9:
		return Padrao{Tipo: PadraoNBS, ValorOriginal: original}
	default:
		return Padrao{Tipo: PadraoInvalido, ValorOriginal: original}
	}
}

func normalizarConjunto(original string) Padrao {
	separado := strings.FieldsFunc(original, func(r rune) bool {
		return r == '/' || r == ';'
	})
	conjunto := Padrao{Tipo: PadraoConjunto, ValorOriginal: original}
	for _, parte := range separado {
		membro := normalizarSimples(strings.TrimSpace(parte))
		switch membro.Tipo {
		case PadraoNBS:
			return Padrao{Tipo: PadraoNBS, ValorOriginal: original}
		case PadraoInvalido:
			return Padrao{Tipo: PadraoInvalido, ValorOriginal: original}
		}
		conjunto.Prefixos = append(conjunto.Prefixos, membro.Prefixos...)
	}
	if len(conjunto.Prefixos) == 0 {
		return Padrao{Tipo: PadraoInvalido, ValorOriginal: original}
	}
	return conjunto
}
