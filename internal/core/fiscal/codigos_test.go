package fiscal

import (
	"errors"
	"testing"

	"github.com/pricetax/fiscaliva/internal/domain"
)

func TestNormalizarNCM(t *testing.T) {
	t.Run("Remove pontuação e mantém 8 dígitos", func(t *testing.T) {
		casos := map[string]string{
			"0402.21.10":  "04022110",
			"2202 10 00":  "22021000",
			"8471-30-12":  "84713012",
			"22021000":    "22021000",
			"402":         "00000402",
			"1":           "00000001",
		}
		for entrada, esperado := range casos {
			obtido, err := NormalizarNCM(entrada)
			if err != nil {
				t.Fatalf("NormalizarNCM(%q) retornou erro inesperado: %v", entrada, err)
			}
			if obtido != esperado {
				t.Errorf("NormalizarNCM(%q) = %q, esperado %q", entrada, obtido, esperado)
			}
		}
	})

	t.Run("Rejeita códigos com mais de 8 dígitos", func(t *testing.T) {
		_, err := NormalizarNCM("123456789")
		if !errors.Is(err, domain.ErrCodigoTamanhoInvalido) {
			t.Errorf("esperava ErrCodigoTamanhoInvalido, obteve %v", err)
		}
	})

	t.Run("Rejeita entrada vazia ou sem dígitos", func(t *testing.T) {
		for _, entrada := range []string{"", "   ", "abc", "..--"} {
			if _, err := NormalizarNCM(entrada); err == nil {
				t.Errorf("NormalizarNCM(%q) deveria falhar", entrada)
			}
		}
	})

	t.Run("Idempotente sob reinserção de pontuação", func(t *testing.T) {
		base, _ := NormalizarNCM("04022110")
		variantes := []string{"04.02.21.10", "0402.2110", "0-4-0-2-2-1-1-0", " 04022110 "}
		for _, v := range variantes {
			obtido, err := NormalizarNCM(v)
			if err != nil {
				t.Fatalf("NormalizarNCM(%q): %v", v, err)
			}
			if obtido != base {
				t.Errorf("NormalizarNCM(%q) = %q, esperado %q", v, obtido, base)
			}
		}
	})
}

func TestNormalizarCFOP(t *testing.T) {
	t.Run("Aceita CFOPs válidos", func(t *testing.T) {
		for entrada, esperado := range map[string]string{
			"5102":  "5102",
			"5.102": "5102",
			"6 108": "6108",
			"7101":  "7101",
			"1403":  "1403",
		} {
			obtido, err := NormalizarCFOP(entrada)
			if err != nil {
				t.Fatalf("NormalizarCFOP(%q): %v", entrada, err)
			}
			if obtido != esperado {
				t.Errorf("NormalizarCFOP(%q) = %q, esperado %q", entrada, obtido, esperado)
			}
		}
	})

	t.Run("Vazio não é erro do normalizador", func(t *testing.T) {
		obtido, err := NormalizarCFOP("")
		if err != nil || obtido != "" {
			t.Errorf("NormalizarCFOP(\"\") = (%q, %v), esperado (\"\", nil)", obtido, err)
		}
	})

	t.Run("Rejeita tamanho e primeiro dígito inválidos", func(t *testing.T) {
		for _, entrada := range []string{"510", "51020", "0102", "8102", "9999"} {
			if _, err := NormalizarCFOP(entrada); !errors.Is(err, domain.ErrCfopInvalido) {
				t.Errorf("NormalizarCFOP(%q): esperava ErrCfopInvalido, obteve %v", entrada, err)
			}
		}
	})
}

func TestEhNBS(t *testing.T) {
	if !EhNBS("123456789", 9) {
		t.Error("código de 9 dígitos deveria ser NBS")
	}
	if EhNBS("04022110", 9) {
		t.Error("NCM de 8 dígitos não é NBS")
	}
	if !EhNBS("1.15301.00", 9) {
		t.Error("NBS pontuada de 9 dígitos deveria ser NBS")
	}
}

func TestValidarCNPJ(t *testing.T) {
	t.Run("Aceita CNPJ com dígitos verificadores corretos", func(t *testing.T) {
		for _, cnpj := range []string{"11222333000181", "11.222.333/0001-81"} {
			if !ValidarCNPJ(cnpj) {
				t.Errorf("ValidarCNPJ(%q) deveria ser verdadeiro", cnpj)
			}
		}
	})

	t.Run("Rejeita inválidos", func(t *testing.T) {
		for _, cnpj := range []string{"11222333000180", "11111111111111", "1122233300018", "", "abc"} {
			if ValidarCNPJ(cnpj) {
				t.Errorf("ValidarCNPJ(%q) deveria ser falso", cnpj)
			}
		}
	})
}

func TestCnpjMatriz(t *testing.T) {
	obtido := CnpjMatriz("11222333000262")
	if obtido != "11222333000181" {
		t.Errorf("CnpjMatriz de filial = %q, esperado 11222333000181", obtido)
	}
	if !ValidarCNPJ(obtido) {
		t.Errorf("CNPJ da matriz %q deveria validar", obtido)
	}
}

func TestParseValorBR(t *testing.T) {
	casos := map[string]string{
		"1.234,56":  "1234.56",
		"1234,56":   "1234.56",
		"1234.56":   "1234.56",
		"R$ 10,00":  "10",
		"":          "0",
		"abc":       "0",
		"0,02":      "0.02",
	}
	for entrada, esperado := range casos {
		obtido := ParseValorBR(entrada)
		if obtido.String() != esperado {
			t.Errorf("ParseValorBR(%q) = %s, esperado %s", entrada, obtido, esperado)
		}
	}
}

func TestNormalizarTexto(t *testing.T) {
	casos := map[string]string{
		"Redução Base":          "REDUCAO BASE",
		"NCM/IBS":               "NCM IBS",
		"  Descrição   Anexo ":  "DESCRICAO ANEXO",
		"Segurança cibernética": "SEGURANCA CIBERNETICA",
	}
	for entrada, esperado := range casos {
		if obtido := NormalizarTexto(entrada); obtido != esperado {
			t.Errorf("NormalizarTexto(%q) = %q, esperado %q", entrada, obtido, esperado)
		}
	}
}

func TestCompetenciaDeData(t *testing.T) {
	if c := CompetenciaDeData("15032026"); c != "03/2026" {
		t.Errorf("CompetenciaDeData(15032026) = %q, esperado 03/2026", c)
	}
	if c := CompetenciaDeData("123"); c != "" {
		t.Errorf("data truncada deveria devolver vazio, obteve %q", c)
	}
}
