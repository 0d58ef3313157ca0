// internal/core/cnpj/service_test.go
package cnpj

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

const corpoBrasilAPI = `{
	"razao_social": "COMERCIO ALFA LTDA",
	"nome_fantasia": "ALFA",
	"descricao_situacao_cadastral": "ATIVA",
	"porte": "DEMAIS",
	"natureza_juridica": "Sociedade Empresária Limitada",
	"uf": "SP",
	"municipio": "SAO PAULO",
	"cnae_fiscal": 4711302,
	"cnae_fiscal_descricao": "Comercio varejista de mercadorias",
	"opcao_pelo_simples": false,
	"opcao_pelo_mei": false,
	"regime_tributario": [
		{"ano": 2024, "forma_de_tributacao": "LUCRO PRESUMIDO"},
		{"ano": 2025, "forma_de_tributacao": "Lucro Real"}
	]
}`

const corpoOpenCNPJ = `{
	"alias": "ALFA",
	"status": {"text": "Ativa"},
	"address": {"state": "SP", "city": "Sao Paulo"},
	"mainActivity": {"id": 4711302, "text": "Comercio varejista de mercadorias"},
	"company": {
		"name": "COMERCIO ALFA LTDA",
		"size": {"text": "Demais"},
		"nature": {"text": "Sociedade Empresária Limitada"},
		"simples": {"optant": true},
		"simei": {"optant": false}
	},
	"registrations": [
		{"state": "SP", "number": "123456789", "enabled": true,
		 "status": {"text": "Ativo"}, "type": {"text": "Normal"}}
	]
}`

// servicoDeTeste sobe um servidor com os dois provedores e aponta o cliente
// para ele.
func servicoDeTeste(t *testing.T, brasil, office http.HandlerFunc) Service {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/brasil/", brasil)
	mux.HandleFunc("/office/", office)
	servidor := httptest.NewServer(mux)
	t.Cleanup(servidor.Close)

	return NewService(Opcoes{
		URLBrasilAPI: servidor.URL + "/brasil/",
		URLOpenCNPJ:  servidor.URL + "/office/",
		Espera:       time.Millisecond,
	})
}

func respondaJSON(corpo string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, corpo)
	}
}

func respondaStatus(status int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}
}

func TestConsultar(t *testing.T) {
	ctx := context.Background()

	t.Run("CNPJ inválido não vai à rede", func(t *testing.T) {
		chamadas := 0
		conte := func(w http.ResponseWriter, r *http.Request) {
			chamadas++
			w.WriteHeader(http.StatusOK)
		}
		svc := servicoDeTeste(t, conte, conte)

		for _, entrada := range []string{"11111111111111", "12.345", "11222333000180"} {
			if _, err := svc.Consultar(ctx, entrada); !errors.Is(err, ErrCnpjInvalido) {
				t.Errorf("Consultar(%q) err = %v, esperado ErrCnpjInvalido", entrada, err)
			}
		}
		if chamadas != 0 {
			t.Errorf("chamadas de rede = %d, esperado nenhuma", chamadas)
		}
	})

	t.Run("Cadastro completo pela BrasilAPI", func(t *testing.T) {
		svc := servicoDeTeste(t, respondaJSON(corpoBrasilAPI), respondaJSON(corpoOpenCNPJ))

		empresa, err := svc.Consultar(ctx, "11.222.333/0001-81")
		if err != nil {
			t.Fatalf("Consultar: %v", err)
		}
		if empresa.Fonte != "BrasilAPI" {
			t.Errorf("Fonte = %q, esperado BrasilAPI", empresa.Fonte)
		}
		if empresa.Cnpj != "11222333000181" {
			t.Errorf("Cnpj = %q", empresa.Cnpj)
		}
		if empresa.RazaoSocial != "COMERCIO ALFA LTDA" {
			t.Errorf("RazaoSocial = %q", empresa.RazaoSocial)
		}
		if empresa.Situacao != "ATIVO" {
			t.Errorf("Situacao = %q, esperado ATIVO", empresa.Situacao)
		}
		if empresa.RegimeTributario != "LUCRO REAL" {
			t.Errorf("RegimeTributario = %q, esperado LUCRO REAL", empresa.RegimeTributario)
		}
		if empresa.CnaePrincipal != "4711302 - Comercio varejista de mercadorias" {
			t.Errorf("CnaePrincipal = %q", empresa.CnaePrincipal)
		}
		if empresa.SimplesNacional {
			t.Error("SimplesNacional deveria ser falso")
		}
		if len(empresa.InscricoesEstaduais) != 1 || empresa.InscricoesEstaduais[0].UF != "SP" {
			t.Errorf("InscricoesEstaduais = %+v", empresa.InscricoesEstaduais)
		}
	})

	t.Run("Filial aponta a matriz e segue sem inscrições", func(t *testing.T) {
		svc := servicoDeTeste(t, respondaJSON(corpoBrasilAPI), respondaStatus(http.StatusNotFound))

		empresa, err := svc.Consultar(ctx, "11222333000262")
		if err != nil {
			t.Fatalf("Consultar: %v", err)
		}
		if empresa.Cnpj != "11222333000262" {
			t.Errorf("Cnpj = %q", empresa.Cnpj)
		}
		if empresa.Matriz != "11222333000181" {
			t.Errorf("Matriz = %q, esperado 11222333000181", empresa.Matriz)
		}
		if empresa.InscricoesEstaduais != nil {
			t.Errorf("InscricoesEstaduais = %+v, esperado nenhuma", empresa.InscricoesEstaduais)
		}
	})

	t.Run("Indisponibilidade cai para a OpenCNPJ", func(t *testing.T) {
		svc := servicoDeTeste(t, respondaStatus(http.StatusServiceUnavailable), respondaJSON(corpoOpenCNPJ))

		empresa, err := svc.Consultar(ctx, "11222333000181")
		if err != nil {
			t.Fatalf("Consultar: %v", err)
		}
		if empresa.Fonte != "OpenCNPJ" {
			t.Errorf("Fonte = %q, esperado OpenCNPJ", empresa.Fonte)
		}
		if empresa.RazaoSocial != "COMERCIO ALFA LTDA" {
			t.Errorf("RazaoSocial = %q", empresa.RazaoSocial)
		}
		if empresa.Situacao != "ATIVO" {
			t.Errorf("Situacao = %q, esperado ATIVO", empresa.Situacao)
		}
		if empresa.RegimeTributario != "SIMPLES NACIONAL" {
			t.Errorf("RegimeTributario = %q, esperado SIMPLES NACIONAL", empresa.RegimeTributario)
		}
		if len(empresa.InscricoesEstaduais) != 1 {
			t.Errorf("InscricoesEstaduais = %+v", empresa.InscricoesEstaduais)
		}
	})

	t.Run("Retenta uma única vez após 429", func(t *testing.T) {
		tentativas := 0
		brasil := func(w http.ResponseWriter, r *http.Request) {
			tentativas++
			if tentativas == 1 {
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			respondaJSON(corpoBrasilAPI)(w, r)
		}
		svc := servicoDeTeste(t, brasil, respondaJSON(corpoOpenCNPJ))

		empresa, err := svc.Consultar(ctx, "11222333000181")
		if err != nil {
			t.Fatalf("Consultar: %v", err)
		}
		if tentativas != 2 {
			t.Errorf("tentativas = %d, esperado 2", tentativas)
		}
		if empresa.Fonte != "BrasilAPI" {
			t.Errorf("Fonte = %q, esperado BrasilAPI", empresa.Fonte)
		}
	})

	t.Run("Não encontrado não tenta a alternativa", func(t *testing.T) {
		chamadasOffice := 0
		office := func(w http.ResponseWriter, r *http.Request) {
			chamadasOffice++
			respondaJSON(corpoOpenCNPJ)(w, r)
		}
		svc := servicoDeTeste(t, respondaStatus(http.StatusNotFound), office)

		if _, err := svc.Consultar(ctx, "11222333000181"); !errors.Is(err, ErrNaoEncontrado) {
			t.Errorf("err = %v, esperado ErrNaoEncontrado", err)
		}
		if chamadasOffice != 0 {
			t.Errorf("chamadas à OpenCNPJ = %d, esperado nenhuma", chamadasOffice)
		}
	})

	t.Run("Ambos indisponíveis devolve indisponibilidade", func(t *testing.T) {
		svc := servicoDeTeste(t,
			respondaStatus(http.StatusInternalServerError),
			respondaStatus(http.StatusBadGateway))

		if _, err := svc.Consultar(ctx, "11222333000181"); !errors.Is(err, ErrIndisponivel) {
			t.Errorf("err = %v, esperado ErrIndisponivel", err)
		}
	})
}

func TestRegimeUnificado(t *testing.T) {
	sim := true
	corrente := time.Now().Year()

	casos := []struct {
		nome     string
		resposta respostaBrasilAPI
		esperado string
	}{
		{
			nome:     "MEI tem prioridade sobre tudo",
			resposta: respostaBrasilAPI{OpcaoPeloMei: &sim, OpcaoPeloSimples: &sim},
			esperado: "MEI",
		},
		{
			nome: "Simples vem antes do histórico",
			resposta: respostaBrasilAPI{
				OpcaoPeloSimples: &sim,
				RegimeTributario: []regimeAnual{{corrente, "LUCRO REAL"}},
			},
			esperado: "SIMPLES NACIONAL",
		},
		{
			nome: "Ano mais recente até o corrente",
			resposta: respostaBrasilAPI{RegimeTributario: []regimeAnual{
				{corrente + 4, "LUCRO PRESUMIDO"},
				{corrente - 2, "lucro presumido"},
				{corrente - 1, "Lucro Real"},
			}},
			esperado: "LUCRO REAL",
		},
		{
			nome: "Somente anos futuros usa o mais recente",
			resposta: respostaBrasilAPI{RegimeTributario: []regimeAnual{
				{corrente + 4, "Lucro Presumido"},
				{corrente + 5, "Lucro Real"},
			}},
			esperado: "LUCRO REAL",
		},
		{
			nome:     "Sem histórico",
			resposta: respostaBrasilAPI{},
			esperado: "N/A",
		},
	}
	for _, caso := range casos {
		t.Run(caso.nome, func(t *testing.T) {
			if got := regimeUnificado(caso.resposta); got != caso.esperado {
				t.Errorf("regimeUnificado = %q, esperado %q", got, caso.esperado)
			}
		})
	}
}

func TestNormalizarSituacao(t *testing.T) {
	casos := []struct {
		entrada  string
		esperado string
	}{
		{"ATIVA", "ATIVO"},
		{"Inapta", "INAPTO"},
		{"SUSPENSA", "SUSPENSO"},
		{"BAIXADA", "BAIXADO"},
		{"", "N/A"},
		{"NULA", "NULA"},
	}
	for _, caso := range casos {
		if got := normalizarSituacao(caso.entrada); got != caso.esperado {
			t.Errorf("normalizarSituacao(%q) = %q, esperado %q", caso.entrada, got, caso.esperado)
		}
	}
}
