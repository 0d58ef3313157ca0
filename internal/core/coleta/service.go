// internal/core/coleta/service.go
package coleta

import (
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pricetax/fiscaliva/internal/domain"
)

// Arquivos de captura, um por família de documento.
const (
	ArquivoNFe  = "xml_nfe_data.csv"
	ArquivoNFSe = "xml_nfse_data.csv"
)

const bufferPadrao = 256

// Service acumula os documentos processados em arquivos CSV para análise
// de inteligência de mercado. A entrega é melhor esforço: toda falha é
// registrada em log e engolida, nunca propagada ao chamador.
type Service interface {
	// RegistrarDocumento enfileira o documento para gravação. Nunca bloqueia:
	// com o buffer cheio o documento é descartado.
	RegistrarDocumento(doc domain.DocumentoFiscal)

	// Close drena a fila, grava o que restou e encerra a goroutine de escrita.
	Close() error
}

// Opcoes ajusta a captura. O zero value anonimiza os CNPJs e usa o buffer
// padrão.
type Opcoes struct {
	PreservarCnpj bool        // grava o CNPJ em claro em vez do hash
	Origem        string      // rótulo da instância (api, cli); vazio usa "api"
	Buffer        int         // tamanho da fila; 0 usa bufferPadrao
	Logger        *zap.Logger // nil usa zap.NewNop()
}

type service struct {
	dir        string
	origem     string
	anonimizar bool
	fuso       *time.Location
	logger     *zap.Logger

	canal     chan domain.DocumentoFiscal
	encerrado chan struct{}

	mu      sync.RWMutex
	fechado bool
}

// NewService cria o coletor gravando em dir e inicia a goroutine de escrita.
func NewService(dir string, opcoes Opcoes) Service {
	buffer := opcoes.Buffer
	if buffer <= 0 {
		buffer = bufferPadrao
	}
	origem := opcoes.Origem
	if origem == "" {
		origem = "api"
	}
	logger := opcoes.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &service{
		dir:        dir,
		origem:     origem,
		anonimizar: !opcoes.PreservarCnpj,
		fuso:       fusoBrasilia(),
		logger:     logger,
		canal:      make(chan domain.DocumentoFiscal, buffer),
		encerrado:  make(chan struct{}),
	}
	go s.escrever()
	return s
}

func (s *service) RegistrarDocumento(doc domain.DocumentoFiscal) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.fechado {
		return
	}
	select {
	case s.canal <- doc:
	default:
		s.logger.Warn("coleta: buffer cheio, documento descartado",
			zap.String("arquivo", doc.Arquivo))
	}
}

func (s *service) Close() error {
	s.mu.Lock()
	if s.fechado {
		s.mu.Unlock()
		return nil
	}
	s.fechado = true
	s.mu.Unlock()

	close(s.canal)
	<-s.encerrado
	return nil
}

// escrever é a única goroutine que toca os arquivos de captura.
func (s *service) escrever() {
	defer close(s.encerrado)
	for doc := range s.canal {
		if err := s.gravarDocumento(doc); err != nil {
			s.logger.Warn("coleta: falha ao gravar documento",
				zap.String("arquivo", doc.Arquivo), zap.Error(err))
		}
	}
}

func (s *service) gravarDocumento(doc domain.DocumentoFiscal) error {
	if doc.Erro != "" || len(doc.Itens) == 0 {
		return nil
	}
	if doc.Modelo == "NFSe" {
		return s.gravarNFSe(doc)
	}
	return s.gravarNFe(doc)
}

var cabecalhoNFe = []string{
	"timestamp_captura", "origem", "data_emissao",
	"cnpj_emitente", "razao_emitente", "uf_emitente",
	"cnpj_destinatario", "razao_destinatario",
	"tipo_operacao", "ncm", "cfop", "descricao_produto", "cst",
	"quantidade", "valor_unitario", "valor_total",
	"vicms", "vpis", "vcofins", "vibs_declarado", "vcbs_declarado",
}

func (s *service) gravarNFe(doc domain.DocumentoFiscal) error {
	momento := s.timestamp()
	emitente := s.cnpj(doc.EmitCnpj)
	destinatario := s.cnpj(doc.DestCnpj)

	registros := make([][]string, 0, len(doc.Itens))
	for _, item := range doc.Itens {
		registros = append(registros, []string{
			momento,
			s.origem,
			doc.DataEmissao,
			emitente,
			doc.EmitNome,
			doc.EmitUF,
			destinatario,
			doc.DestNome,
			tipoOperacao(item.Cfop),
			item.Ncm,
			item.Cfop,
			truncar(item.Descricao, 100),
			item.Cst,
			item.Quantidade.String(),
			item.ValorUnitario.StringFixed(2),
			item.ValorTotal.StringFixed(2),
			item.VIcms.StringFixed(2),
			item.VPis.StringFixed(2),
			item.VCofins.StringFixed(2),
			item.VIbsDeclarado.StringFixed(2),
			item.VCbsDeclarado.StringFixed(2),
		})
	}
	return s.anexar(ArquivoNFe, cabecalhoNFe, registros)
}

var cabecalhoNFSe = []string{
	"timestamp_captura", "origem", "data_emissao",
	"cnpj_prestador", "razao_prestador", "uf_prestador",
	"cnpj_tomador", "razao_tomador",
	"nbs", "descricao_servico", "valor_servico",
	"vpis", "vcofins", "vibs_declarado", "vcbs_declarado",
}

func (s *service) gravarNFSe(doc domain.DocumentoFiscal) error {
	momento := s.timestamp()
	prestador := s.cnpj(doc.EmitCnpj)
	tomador := s.cnpj(doc.DestCnpj)

	registros := make([][]string, 0, len(doc.Itens))
	for _, item := range doc.Itens {
		registros = append(registros, []string{
			momento,
			s.origem,
			doc.DataEmissao,
			prestador,
			doc.EmitNome,
			doc.EmitUF,
			tomador,
			doc.DestNome,
			item.Nbs,
			truncar(item.Descricao, 200),
			item.ValorTotal.StringFixed(2),
			item.VPis.StringFixed(2),
			item.VCofins.StringFixed(2),
			item.VIbsDeclarado.StringFixed(2),
			item.VCbsDeclarado.StringFixed(2),
		})
	}
	return s.anexar(ArquivoNFSe, cabecalhoNFSe, registros)
}

// anexar abre o arquivo em modo de acréscimo, escrevendo o cabeçalho
// somente quando ele ainda está vazio.
func (s *service) anexar(nome string, cabecalho []string, registros [][]string) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("falha ao criar diretório de coleta: %w", err)
	}
	caminho := filepath.Join(s.dir, nome)

	f, err := os.OpenFile(caminho, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("falha ao abrir %s: %w", nome, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("falha ao inspecionar %s: %w", nome, err)
	}

	writer := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := writer.Write(cabecalho); err != nil {
			return fmt.Errorf("falha ao escrever em %s: %w", nome, err)
		}
	}
	for _, registro := range registros {
		if err := writer.Write(registro); err != nil {
			return fmt.Errorf("falha ao escrever em %s: %w", nome, err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("falha ao escrever em %s: %w", nome, err)
	}
	return nil
}

func (s *service) timestamp() string {
	return time.Now().In(s.fuso).Format("2006-01-02 15:04:05")
}

func (s *service) cnpj(valor string) string {
	if s.anonimizar {
		return HashCnpj(valor)
	}
	return valor
}

// HashCnpj anonimiza um CNPJ com os doze primeiros hexadecimais do SHA-256.
func HashCnpj(cnpj string) string {
	if cnpj == "" {
		return ""
	}
	soma := sha256.Sum256([]byte(cnpj))
	return hex.EncodeToString(soma[:])[:12]
}

// fusoBrasilia resolve o fuso de Brasília, caindo para GMT-3 fixo quando a
// base de fusos do sistema não está disponível.
func fusoBrasilia() *time.Location {
	fuso, err := time.LoadLocation("America/Sao_Paulo")
	if err != nil {
		return time.FixedZone("-03", -3*60*60)
	}
	return fuso
}

// tipoOperacao classifica o CFOP: 5/6/7 são saídas, 1/2/3 entradas.
func tipoOperacao(cfop string) string {
	if cfop == "" {
		return "INDEFINIDO"
	}
	switch cfop[0] {
	case '5', '6', '7':
		return "SAIDA"
	case '1', '2', '3':
		return "ENTRADA"
	default:
		return "INDEFINIDO"
	}
}

// truncar corta o texto em max runas preservando caracteres acentuados.
func truncar(texto string, max int) string {
	runas := []rune(texto)
	if len(runas) <= max {
		return texto
	}
	return string(runas[:max])
}
