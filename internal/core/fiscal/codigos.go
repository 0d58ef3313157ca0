// internal/core/fiscal/codigos.go
package fiscal

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/pricetax/fiscaliva/internal/domain"
	"github.com/shopspring/decimal"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// NbsDigitosPadrao é o tamanho da NBS na versão corrente da nomenclatura.
const NbsDigitosPadrao = 9

// SomenteDigitos remove tudo que não for dígito.
func SomenteDigitos(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizarNCM canonicaliza um NCM: remove pontuação, rejeita códigos com
// mais de 8 dígitos e completa com zeros à esquerda até 8.
func NormalizarNCM(raw string) (string, error) {
	digitos := SomenteDigitos(raw)
	if digitos == "" || len(digitos) > 8 {
		return "", domain.ErrCodigoTamanhoInvalido
	}
	return preencherZeros(digitos, 8), nil
}

// NormalizarNBS canonicaliza um código NBS para o tamanho esperado da
// nomenclatura de serviços (configurável por versão da taxonomia).
func NormalizarNBS(raw string, digitos int) (string, error) {
	if digitos <= 0 {
		digitos = NbsDigitosPadrao
	}
	d := SomenteDigitos(raw)
	if d == "" || len(d) > digitos {
		return "", domain.ErrCodigoTamanhoInvalido
	}
	return preencherZeros(d, digitos), nil
}

// EhNBS informa se o código pertence à família de serviços (NBS) pelo
// tamanho em dígitos. NCM tem 8; NBS tem 9 na versão corrente.
func EhNBS(raw string, digitos int) bool {
	if digitos <= 0 {
		digitos = NbsDigitosPadrao
	}
	return len(SomenteDigitos(raw)) == digitos
}

// NormalizarCFOP valida e canonicaliza um CFOP: exatamente 4 dígitos com o
// primeiro entre 1 e 7. String vazia devolve vazio sem erro; a ausência de
// CFOP é tratada na classificação, não aqui.
func NormalizarCFOP(raw string) (string, error) {
	digitos := SomenteDigitos(raw)
	if digitos == "" {
		return "", nil
	}
	if len(digitos) != 4 {
		return "", domain.ErrCfopInvalido
	}
	if digitos[0] < '1' || digitos[0] > '7' {
		return "", domain.ErrCfopInvalido
	}
	return digitos, nil
}

// ValidarCNPJ verifica tamanho, sequência repetida e os dois dígitos
// verificadores oficiais.
func ValidarCNPJ(raw string) bool {
	cnpj := SomenteDigitos(raw)
	if len(cnpj) != 14 {
		return false
	}
	todosIguais := true
	for i := 1; i < 14; i++ {
		if cnpj[i] != cnpj[0] {
			todosIguais = false
			break
		}
	}
	if todosIguais {
		return false
	}
	dv1 := digitoVerificadorCNPJ(cnpj[:12], []int{5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2})
	dv2 := digitoVerificadorCNPJ(cnpj[:13], []int{6, 5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2})
	return cnpj[12] == byte('0'+dv1) && cnpj[13] == byte('0'+dv2)
}

// CnpjMatriz converte um CNPJ qualquer para o da matriz (raiz + 0001 + DVs
// recalculados).
func CnpjMatriz(raw string) string {
	cnpj := SomenteDigitos(raw)
	if len(cnpj) != 14 {
		return cnpj
	}
	base := cnpj[:8] + "0001"
	dv1 := digitoVerificadorCNPJ(base, []int{5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2})
	base += string(byte('0' + dv1))
	dv2 := digitoVerificadorCNPJ(base, []int{6, 5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2})
	return base + string(byte('0'+dv2))
}

func digitoVerificadorCNPJ(parcial string, pesos []int) int {
	soma := 0
	for i, peso := range pesos {
		soma += int(parcial[i]-'0') * peso
	}
	resto := soma % 11
	if resto < 2 {
		return 0
	}
	return 11 - resto
}

// ParseValorBR converte valores no formato brasileiro ("1.234,56") ou já com
// ponto decimal ("1234.56") para decimal. Vazio ou inválido vale zero.
func ParseValorBR(s string) decimal.Decimal {
	limpo := strings.TrimSpace(s)
	limpo = strings.TrimPrefix(limpo, "R$")
	limpo = strings.TrimSpace(limpo)
	if limpo == "" {
		return decimal.Zero
	}
	switch {
	case strings.Contains(limpo, ",") && strings.Contains(limpo, "."):
		limpo = strings.ReplaceAll(limpo, ".", "")
		limpo = strings.Replace(limpo, ",", ".", 1)
	case strings.Contains(limpo, ","):
		limpo = strings.Replace(limpo, ",", ".", 1)
	}
	valor, err := decimal.NewFromString(limpo)
	if err != nil {
		return decimal.Zero
	}
	return valor
}

// ParseValorXML converte valores de campos XML fiscais (ponto decimal).
// Vazio ou inválido vale zero: tags ausentes são comuns e não são erro.
func ParseValorXML(s string) decimal.Decimal {
	limpo := strings.TrimSpace(s)
	if limpo == "" {
		return decimal.Zero
	}
	valor, err := decimal.NewFromString(limpo)
	if err != nil {
		return decimal.Zero
	}
	return valor
}

var normalizadorTexto = transform.Chain(norm.NFD, transform.RemoveFunc(func(r rune) bool {
	return unicode.Is(unicode.Mn, r)
}))

var naoAlfanumerico = regexp.MustCompile(`[^A-Z0-9 ]+`)
var espacos = regexp.MustCompile(`\s+`)

// NormalizarTexto remove acentuação, pontuação e caixa para comparações
// tolerantes de cabeçalhos e descrições de anexos.
func NormalizarTexto(s string) string {
	resultado, _, _ := transform.String(normalizadorTexto, s)
	resultado = strings.ToUpper(resultado)
	resultado = naoAlfanumerico.ReplaceAllString(resultado, " ")
	resultado = espacos.ReplaceAllString(resultado, " ")
	return strings.TrimSpace(resultado)
}

// CompetenciaDeData converte datas SPED (ddmmaaaa) para competência mm/aaaa.
func CompetenciaDeData(ddmmaaaa string) string {
	d := SomenteDigitos(ddmmaaaa)
	if len(d) != 8 {
		return ""
	}
	return d[2:4] + "/" + d[4:8]
}

func preencherZeros(s string, tamanho int) string {
	for len(s) < tamanho {
		s = "0" + s
	}
	return s
}
