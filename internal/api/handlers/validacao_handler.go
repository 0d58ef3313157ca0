// internal/api/handlers/validacao_handler.go
package handlers

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pricetax/fiscaliva/internal/api/responses"
	"github.com/pricetax/fiscaliva/internal/core/extracao"
	"github.com/pricetax/fiscaliva/internal/core/relatorio"
	"github.com/pricetax/fiscaliva/internal/core/validacao"
	"github.com/pricetax/fiscaliva/internal/domain"
)

const tipoXlsx = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ValidacaoHandler lida com o envio de XMLs para validação e com a geração
// do relatório do lote. O validador é construído por requisição porque a
// tolerância pode ser sobrescrita pelo campo "tolerancia" do formulário.
type ValidacaoHandler struct {
	extrator  extracao.Service
	relatorio relatorio.Service
	validador func(tolerancia float64) validacao.Service
}

// NewValidacaoHandler cria um novo handler de validação. A função validador
// deve devolver um serviço com a tolerância informada (zero usa o padrão da
// configuração).
func NewValidacaoHandler(extrator extracao.Service, relatorioSvc relatorio.Service, validador func(float64) validacao.Service) *ValidacaoHandler {
	return &ValidacaoHandler{
		extrator:  extrator,
		relatorio: relatorioSvc,
		validador: validador,
	}
}

// HandleValidacao valida o lote enviado e devolve o resumo em JSON.
func (h *ValidacaoHandler) HandleValidacao(c *gin.Context) {
	resumo, ok := h.processarLote(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, resumo)
}

// HandleRelatorio valida o lote enviado e devolve o relatório para download.
// O campo "formato" aceita xlsx (padrão) ou csv.
func (h *ValidacaoHandler) HandleRelatorio(c *gin.Context) {
	resumo, ok := h.processarLote(c)
	if !ok {
		return
	}

	carimbo := time.Now().Format("20060102_150405")
	switch c.PostForm("formato") {
	case "", "xlsx":
		planilha, err := h.relatorio.GerarExcel(resumo)
		if err != nil {
			responses.Error(c, http.StatusInternalServerError, "Erro ao gerar o relatório", err.Error())
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=fiscaliva_%s.xlsx", carimbo))
		c.Data(http.StatusOK, tipoXlsx, planilha)
	case "csv":
		arquivo, err := h.relatorio.GerarCSV(resumo)
		if err != nil {
			responses.Error(c, http.StatusInternalServerError, "Erro ao gerar o relatório", err.Error())
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=fiscaliva_%s.csv", carimbo))
		c.Data(http.StatusOK, "text/csv; charset=windows-1252", arquivo)
	default:
		responses.Error(c, http.StatusBadRequest, "Formato de relatório desconhecido: use xlsx ou csv")
	}
}

// processarLote lê os arquivos do formulário, extrai os documentos e roda a
// validação. Devolve ok=false quando a resposta de erro já foi escrita.
func (h *ValidacaoHandler) processarLote(c *gin.Context) (domain.ResumoLote, bool) {
	arquivos, ok := lerArquivos(c)
	if !ok {
		return domain.ResumoLote{}, false
	}

	tolerancia, ok := lerTolerancia(c)
	if !ok {
		return domain.ResumoLote{}, false
	}

	docs := h.extrator.ExtrairLote(arquivos)
	resumo := h.validador(tolerancia).ProcessarLote(c.Request.Context(), docs, nil)
	return resumo, true
}

// lerArquivos carrega em memória os arquivos do campo "files" (XML ou ZIP).
func lerArquivos(c *gin.Context) ([]extracao.Arquivo, bool) {
	form, err := c.MultipartForm()
	if err != nil {
		responses.Error(c, http.StatusBadRequest, "Formulário multipart inválido")
		return nil, false
	}
	cabecalhos := form.File["files"]
	if len(cabecalhos) == 0 {
		responses.Error(c, http.StatusBadRequest, "Nenhum arquivo foi enviado no campo files")
		return nil, false
	}

	arquivos := make([]extracao.Arquivo, 0, len(cabecalhos))
	for _, cabecalho := range cabecalhos {
		arquivo, err := cabecalho.Open()
		if err != nil {
			responses.Error(c, http.StatusInternalServerError, "Não foi possível abrir o arquivo "+cabecalho.Filename)
			return nil, false
		}
		conteudo, err := io.ReadAll(arquivo)
		arquivo.Close()
		if err != nil {
			responses.Error(c, http.StatusInternalServerError, "Não foi possível ler o arquivo "+cabecalho.Filename)
			return nil, false
		}
		arquivos = append(arquivos, extracao.Arquivo{Nome: cabecalho.Filename, Conteudo: conteudo})
	}
	return arquivos, true
}

// lerTolerancia interpreta o campo opcional "tolerancia" do formulário.
// Vazio devolve zero, que significa usar o padrão da configuração.
func lerTolerancia(c *gin.Context) (float64, bool) {
	bruto := c.PostForm("tolerancia")
	if bruto == "" {
		return 0, true
	}
	valor, err := strconv.ParseFloat(bruto, 64)
	if err != nil || valor < 0.01 || valor > 1.00 {
		responses.Error(c, http.StatusBadRequest, "Tolerância inválida: informe um valor entre 0.01 e 1.00")
		return 0, false
	}
	return valor, true
}
