// internal/core/extracao/sped.go
package extracao

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/encoding/charmap"

	"github.com/pricetax/fiscaliva/internal/core/beneficios"
	"github.com/pricetax/fiscaliva/internal/core/fiscal"
	"github.com/pricetax/fiscaliva/internal/domain"
)

// cfopSaida reconhece CFOPs de saída (5xxx, 6xxx e 7xxx).
var cfopSaida = regexp.MustCompile(`^[567]\d{3}$`)

type produtoSped struct {
	Ncm       string
	Descricao string
}

type itemVenda struct {
	codItem string
	cfop    string
	valor   decimal.Decimal
}

func (s *service) RadarSped(r io.Reader, rotuloPadrao string) ([]domain.RadarNCM, error) {
	decodificador := charmap.ISO8859_1.NewDecoder()
	scanner := bufio.NewScanner(decodificador.Reader(r))

	produtos := make(map[string]produtoSped)
	var itens []itemVenda
	rotulo := rotuloPadrao
	cabecalhoLido := false
	docAtivo := ""

	for scanner.Scan() {
		campos := strings.Split(strings.TrimSpace(scanner.Text()), "|")
		if len(campos) < 2 {
			continue
		}
		switch campos[1] {
		case "0000":
			if !cabecalhoLido {
				rotulo = rotuloDoCabecalho(campos, rotuloPadrao)
				cabecalhoLido = true
			}
		case "0200":
			if len(campos) >= 9 {
				produtos[campos[2]] = produtoSped{Ncm: campos[8], Descricao: campos[3]}
			}
		case "C100":
			docAtivo = chaveDocumentoC100(campos)
		case "C170":
			if docAtivo == "" || len(campos) < 12 || !cfopSaida.MatchString(campos[11]) {
				break
			}
			valor, err := decimal.NewFromString(strings.Replace(campos[7], ",", ".", 1))
			if err != nil {
				break
			}
			itens = append(itens, itemVenda{codItem: campos[3], cfop: campos[11], valor: valor})
		case "C190", "C300", "D100", "E100":
			// Fim do bloco do documento corrente.
			docAtivo = ""
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("erro ao ler SPED: %w", err)
	}

	consolidado := make(map[string]*domain.RadarNCM)
	var ordem []string
	for _, item := range itens {
		produto, ok := produtos[item.codItem]
		if !ok {
			continue
		}
		chave := produto.Ncm + "|" + produto.Descricao + "|" + item.cfop
		linha, ok := consolidado[chave]
		if !ok {
			linha = &domain.RadarNCM{
				Arquivo:   rotulo,
				Ncm:       produto.Ncm,
				Descricao: produto.Descricao,
				Cfop:      item.cfop,
			}
			consolidado[chave] = linha
			ordem = append(ordem, chave)
		}
		linha.Itens++
		linha.ValorTotal = linha.ValorTotal.Add(item.valor)
	}

	radar := make([]domain.RadarNCM, 0, len(ordem))
	for _, chave := range ordem {
		linha := consolidado[chave]
		s.enriquecerRadar(linha)
		radar = append(radar, *linha)
	}
	sort.SliceStable(radar, func(i, j int) bool {
		return radar[i].ValorTotal.GreaterThan(radar[j].ValorTotal)
	})
	return radar, nil
}

// chaveDocumentoC100 identifica o documento de saída do registro C100. A
// chave da NFe tem prioridade; sem ela vale série-número. Entradas devolvem
// vazio e encerram o contexto corrente.
func chaveDocumentoC100(campos []string) string {
	if len(campos) <= 2 || campos[2] != "1" {
		return ""
	}
	if len(campos) > 9 && campos[9] != "" {
		return campos[9]
	}
	if len(campos) > 7 && campos[6] != "" && campos[7] != "" {
		return campos[6] + "-" + campos[7]
	}
	return ""
}

// rotuloDoCabecalho monta "MM/AAAA - NOME" a partir do registro 0000. Sem
// cabeçalho aproveitável, vale o nome do arquivo.
func rotuloDoCabecalho(campos []string, padrao string) string {
	var dtIni, dtFin, nome string
	if len(campos) > 4 {
		dtIni = campos[4]
	}
	if len(campos) > 5 {
		dtFin = campos[5]
	}
	if len(campos) > 6 {
		nome = strings.TrimSpace(campos[6])
	}

	competencia := fiscal.CompetenciaDeData(dtIni)
	if competencia == "" {
		competencia = fiscal.CompetenciaDeData(dtFin)
	}
	if nome == "" {
		nome = padrao
	}
	if competencia != "" {
		return competencia + " - " + nome
	}
	return nome
}

// enriquecerRadar cruza a linha consolidada com o motor de benefícios e
// resolve o cClassTrib sugerido para o par NCM + CFOP.
func (s *service) enriquecerRadar(linha *domain.RadarNCM) {
	consulta, err := s.beneficios.Consultar(linha.Ncm)
	if err != nil {
		consulta = beneficios.Resultado{}
	}
	regime := s.tributos.CalcularRegime(consulta)

	linha.TemBeneficio = consulta.Escolhido != nil
	linha.Ambiguo = consulta.MultiEnquadramento
	linha.Regime = regime.Regime
	linha.Reducao = regime.Reducao
	linha.AliqIBS = regime.AliqIBS
	linha.AliqCBS = regime.AliqCBS
	linha.TotalIVA = regime.TotalIVA

	vistos := make(map[string]bool)
	for _, enq := range consulta.Enquadramentos {
		if enq.Anexo == "" || vistos[enq.Anexo] {
			continue
		}
		vistos[enq.Anexo] = true
		linha.Anexos = append(linha.Anexos, enq.Anexo)
	}

	if classe, err := s.tributos.Classificar("", linha.Cfop, regime.Regime); err == nil {
		linha.ClassTrib = classe.Codigo
	}
}
