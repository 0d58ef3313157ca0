// internal/core/cnpj/service.go
package cnpj

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pricetax/fiscaliva/internal/core/fiscal"
)

// Endpoints públicos de consulta cadastral.
const (
	URLBrasilAPI = "https://brasilapi.com.br/api/cnpj/v1/"
	URLOpenCNPJ  = "https://open.cnpja.com/office/"
)

const (
	timeoutPadrao = 15 * time.Second
	esperaPadrao  = 2 * time.Second
)

var (
	// ErrCnpjInvalido indica dígitos verificadores inválidos. Nenhuma
	// chamada de rede é feita nesse caso.
	ErrCnpjInvalido = errors.New("CNPJ inválido")

	// ErrNaoEncontrado indica CNPJ bem formado porém inexistente na Receita.
	ErrNaoEncontrado = errors.New("CNPJ não encontrado")

	// ErrIndisponivel indica falha transitória dos provedores de consulta.
	ErrIndisponivel = errors.New("serviço de consulta indisponível")
)

// InscricaoEstadual é um registro estadual retornado pela OpenCNPJ.
type InscricaoEstadual struct {
	UF         string `json:"uf"`
	Numero     string `json:"numero"`
	Habilitada bool   `json:"habilitada"`
	Status     string `json:"status,omitempty"`
	Tipo       string `json:"tipo,omitempty"`
}

// Empresa é o cadastro consolidado de um CNPJ.
type Empresa struct {
	Cnpj                string              `json:"cnpj"`
	Matriz              string              `json:"matriz"`
	RazaoSocial         string              `json:"razao_social"`
	NomeFantasia        string              `json:"nome_fantasia,omitempty"`
	Situacao            string              `json:"situacao"`
	Porte               string              `json:"porte,omitempty"`
	NaturezaJuridica    string              `json:"natureza_juridica,omitempty"`
	UF                  string              `json:"uf,omitempty"`
	Municipio           string              `json:"municipio,omitempty"`
	CnaePrincipal       string              `json:"cnae_principal,omitempty"`
	RegimeTributario    string              `json:"regime_tributario"`
	SimplesNacional     bool                `json:"simples_nacional"`
	Mei                 bool                `json:"mei"`
	InscricoesEstaduais []InscricaoEstadual `json:"inscricoes_estaduais,omitempty"`
	Fonte               string              `json:"fonte"`
}

// Service consulta dados cadastrais de CNPJ em APIs públicas.
type Service interface {
	// Consultar valida os dígitos verificadores e busca o cadastro na
	// BrasilAPI, caindo para a OpenCNPJ quando ela está indisponível.
	Consultar(ctx context.Context, cnpj string) (Empresa, error)
}

// Opcoes ajusta o cliente de consulta. O zero value usa os endpoints
// públicos com os tempos padrão.
type Opcoes struct {
	Timeout      time.Duration // por tentativa; 0 usa 15s
	Espera       time.Duration // antes da retentativa em 429; 0 usa 2s
	URLBrasilAPI string        // base alternativa, para testes
	URLOpenCNPJ  string        // base alternativa, para testes
}

type service struct {
	httpClient *http.Client
	brasilAPI  string
	openCNPJ   string
	espera     time.Duration
}

// NewService cria o cliente de consulta cadastral.
func NewService(opcoes Opcoes) Service {
	timeout := opcoes.Timeout
	if timeout <= 0 {
		timeout = timeoutPadrao
	}
	espera := opcoes.Espera
	if espera <= 0 {
		espera = esperaPadrao
	}
	brasilAPI := opcoes.URLBrasilAPI
	if brasilAPI == "" {
		brasilAPI = URLBrasilAPI
	}
	openCNPJ := opcoes.URLOpenCNPJ
	if openCNPJ == "" {
		openCNPJ = URLOpenCNPJ
	}
	return &service{
		httpClient: &http.Client{Timeout: timeout},
		brasilAPI:  brasilAPI,
		openCNPJ:   openCNPJ,
		espera:     espera,
	}
}

func (s *service) Consultar(ctx context.Context, cnpj string) (Empresa, error) {
	limpo := fiscal.SomenteDigitos(cnpj)
	if !fiscal.ValidarCNPJ(limpo) {
		return Empresa{}, ErrCnpjInvalido
	}

	empresa, err := s.consultarBrasilAPI(ctx, limpo)
	if err == nil {
		// Inscrições estaduais só existem na OpenCNPJ; falha aqui não
		// derruba o cadastro já obtido.
		if resposta, errIE := s.buscarOpenCNPJ(ctx, limpo); errIE == nil {
			empresa.InscricoesEstaduais = inscricoesDe(resposta)
		}
		return empresa, nil
	}
	if errors.Is(err, ErrNaoEncontrado) {
		return Empresa{}, err
	}

	resposta, errAlt := s.buscarOpenCNPJ(ctx, limpo)
	if errAlt != nil {
		return Empresa{}, errAlt
	}
	return empresaDeOpenCNPJ(limpo, resposta), nil
}

type regimeAnual struct {
	Ano   int    `json:"ano"`
	Forma string `json:"forma_de_tributacao"`
}

type respostaBrasilAPI struct {
	RazaoSocial       string        `json:"razao_social"`
	NomeFantasia      string        `json:"nome_fantasia"`
	SituacaoCadastral string        `json:"descricao_situacao_cadastral"`
	Porte             string        `json:"porte"`
	NaturezaJuridica  string        `json:"natureza_juridica"`
	UF                string        `json:"uf"`
	Municipio         string        `json:"municipio"`
	CnaeFiscal        int           `json:"cnae_fiscal"`
	CnaeDescricao     string        `json:"cnae_fiscal_descricao"`
	OpcaoPeloSimples  *bool         `json:"opcao_pelo_simples"`
	OpcaoPeloMei      *bool         `json:"opcao_pelo_mei"`
	RegimeTributario  []regimeAnual `json:"regime_tributario"`
}

func (s *service) consultarBrasilAPI(ctx context.Context, cnpj string) (Empresa, error) {
	corpo, err := s.buscar(ctx, s.brasilAPI+cnpj, "BrasilAPI")
	if err != nil {
		return Empresa{}, err
	}

	var resposta respostaBrasilAPI
	if err := json.Unmarshal(corpo, &resposta); err != nil {
		return Empresa{}, fmt.Errorf("%w: resposta inesperada da BrasilAPI: %v", ErrIndisponivel, err)
	}

	return Empresa{
		Cnpj:             cnpj,
		Matriz:           fiscal.CnpjMatriz(cnpj),
		RazaoSocial:      resposta.RazaoSocial,
		NomeFantasia:     resposta.NomeFantasia,
		Situacao:         normalizarSituacao(resposta.SituacaoCadastral),
		Porte:            resposta.Porte,
		NaturezaJuridica: resposta.NaturezaJuridica,
		UF:               resposta.UF,
		Municipio:        resposta.Municipio,
		CnaePrincipal:    cnaeDe(resposta.CnaeFiscal, resposta.CnaeDescricao),
		RegimeTributario: regimeUnificado(resposta),
		SimplesNacional:  resposta.OpcaoPeloSimples != nil && *resposta.OpcaoPeloSimples,
		Mei:              resposta.OpcaoPeloMei != nil && *resposta.OpcaoPeloMei,
		Fonte:            "BrasilAPI",
	}, nil
}

type campoTexto struct {
	Text string `json:"text"`
}

type respostaOpenCNPJ struct {
	Alias   string     `json:"alias"`
	Status  campoTexto `json:"status"`
	Address struct {
		State string `json:"state"`
		City  string `json:"city"`
	} `json:"address"`
	MainActivity struct {
		ID   int    `json:"id"`
		Text string `json:"text"`
	} `json:"mainActivity"`
	Company struct {
		Name    string     `json:"name"`
		Size    campoTexto `json:"size"`
		Nature  campoTexto `json:"nature"`
		Simples struct {
			Optant bool `json:"optant"`
		} `json:"simples"`
		Simei struct {
			Optant bool `json:"optant"`
		} `json:"simei"`
	} `json:"company"`
	Registrations []struct {
		State   string     `json:"state"`
		Number  string     `json:"number"`
		Enabled bool       `json:"enabled"`
		Status  campoTexto `json:"status"`
		Type    campoTexto `json:"type"`
	} `json:"registrations"`
}

func (s *service) buscarOpenCNPJ(ctx context.Context, cnpj string) (respostaOpenCNPJ, error) {
	var resposta respostaOpenCNPJ

	corpo, err := s.buscar(ctx, s.openCNPJ+cnpj, "OpenCNPJ")
	if err != nil {
		return resposta, err
	}
	if err := json.Unmarshal(corpo, &resposta); err != nil {
		return resposta, fmt.Errorf("%w: resposta inesperada da OpenCNPJ: %v", ErrIndisponivel, err)
	}
	return resposta, nil
}

func empresaDeOpenCNPJ(cnpj string, resposta respostaOpenCNPJ) Empresa {
	regime := "N/A"
	switch {
	case resposta.Company.Simei.Optant:
		regime = "MEI"
	case resposta.Company.Simples.Optant:
		regime = "SIMPLES NACIONAL"
	}
	return Empresa{
		Cnpj:                cnpj,
		Matriz:              fiscal.CnpjMatriz(cnpj),
		RazaoSocial:         resposta.Company.Name,
		NomeFantasia:        resposta.Alias,
		Situacao:            normalizarSituacao(resposta.Status.Text),
		Porte:               resposta.Company.Size.Text,
		NaturezaJuridica:    resposta.Company.Nature.Text,
		UF:                  resposta.Address.State,
		Municipio:           resposta.Address.City,
		CnaePrincipal:       cnaeDe(resposta.MainActivity.ID, resposta.MainActivity.Text),
		RegimeTributario:    regime,
		SimplesNacional:     resposta.Company.Simples.Optant,
		Mei:                 resposta.Company.Simei.Optant,
		InscricoesEstaduais: inscricoesDe(resposta),
		Fonte:               "OpenCNPJ",
	}
}

func inscricoesDe(resposta respostaOpenCNPJ) []InscricaoEstadual {
	if len(resposta.Registrations) == 0 {
		return nil
	}
	inscricoes := make([]InscricaoEstadual, 0, len(resposta.Registrations))
	for _, registro := range resposta.Registrations {
		inscricoes = append(inscricoes, InscricaoEstadual{
			UF:         registro.State,
			Numero:     registro.Number,
			Habilitada: registro.Enabled,
			Status:     registro.Status.Text,
			Tipo:       registro.Type.Text,
		})
	}
	return inscricoes
}

// buscar executa um GET com uma única retentativa após 429.
func (s *service) buscar(ctx context.Context, url, provedor string) ([]byte, error) {
	status, corpo, err := s.requisitar(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("%w: falha na %s: %v", ErrIndisponivel, provedor, err)
	}
	if status == http.StatusTooManyRequests {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ErrIndisponivel, ctx.Err())
		case <-time.After(s.espera):
		}
		status, corpo, err = s.requisitar(ctx, url)
		if err != nil {
			return nil, fmt.Errorf("%w: falha na %s: %v", ErrIndisponivel, provedor, err)
		}
	}

	switch {
	case status == http.StatusOK:
		return corpo, nil
	case status == http.StatusBadRequest || status == http.StatusNotFound:
		return nil, ErrNaoEncontrado
	default:
		return nil, fmt.Errorf("%w: %s devolveu status %d", ErrIndisponivel, provedor, status)
	}
}

func (s *service) requisitar(ctx context.Context, url string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, nil, err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	corpo, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, corpo, nil
}

// regimeUnificado prioriza MEI, depois Simples Nacional e por fim a forma de
// tributação do ano corrente ou do mais recente disponível.
func regimeUnificado(resposta respostaBrasilAPI) string {
	if resposta.OpcaoPeloMei != nil && *resposta.OpcaoPeloMei {
		return "MEI"
	}
	if resposta.OpcaoPeloSimples != nil && *resposta.OpcaoPeloSimples {
		return "SIMPLES NACIONAL"
	}
	regimes := resposta.RegimeTributario
	if len(regimes) == 0 {
		return "N/A"
	}

	anoCorrente := time.Now().Year()
	alvo := 0
	for _, regime := range regimes {
		if regime.Ano > alvo && regime.Ano <= anoCorrente {
			alvo = regime.Ano
		}
	}
	if alvo == 0 {
		// Só há anos futuros; usa o mais recente informado.
		for _, regime := range regimes {
			if regime.Ano > alvo {
				alvo = regime.Ano
			}
		}
	}
	for i := len(regimes) - 1; i >= 0; i-- {
		if regimes[i].Ano == alvo {
			return strings.ToUpper(strings.TrimSpace(regimes[i].Forma))
		}
	}
	return strings.ToUpper(strings.TrimSpace(regimes[len(regimes)-1].Forma))
}

// normalizarSituacao reduz as variações da Receita aos rótulos canônicos.
func normalizarSituacao(texto string) string {
	s := strings.ToUpper(strings.TrimSpace(texto))
	switch {
	case s == "":
		return "N/A"
	case strings.Contains(s, "ATIV"):
		return "ATIVO"
	case strings.Contains(s, "INAPT"):
		return "INAPTO"
	case strings.Contains(s, "SUSP"):
		return "SUSPENSO"
	case strings.Contains(s, "BAIX"):
		return "BAIXADO"
	}
	return s
}

func cnaeDe(codigo int, descricao string) string {
	if codigo == 0 {
		return descricao
	}
	if descricao == "" {
		return strconv.Itoa(codigo)
	}
	return strconv.Itoa(codigo) + " - " + descricao
}
