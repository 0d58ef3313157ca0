// internal/api/handlers/radar_handler.go
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pricetax/fiscaliva/internal/api/responses"
	"github.com/pricetax/fiscaliva/internal/core/extracao"
)

// RadarHandler lida com o radar de benefícios a partir de um arquivo SPED.
type RadarHandler struct {
	service extracao.Service
}

// NewRadarHandler cria um novo handler do radar.
func NewRadarHandler(service extracao.Service) *RadarHandler {
	return &RadarHandler{
		service: service,
	}
}

// HandleRadar consolida as vendas de saída do SPED enviado por NCM e CFOP e
// devolve o enquadramento de benefício de cada linha.
func (h *RadarHandler) HandleRadar(c *gin.Context) {
	cabecalho, err := c.FormFile("spedFile")
	if err != nil {
		responses.Error(c, http.StatusBadRequest, "Arquivo SPED não encontrado ou inválido")
		return
	}
	arquivo, err := cabecalho.Open()
	if err != nil {
		responses.Error(c, http.StatusInternalServerError, "Não foi possível abrir o arquivo SPED")
		return
	}
	defer arquivo.Close()

	linhas, err := h.service.RadarSped(arquivo, cabecalho.Filename)
	if err != nil {
		responses.Error(c, http.StatusUnprocessableEntity, "Erro ao processar o arquivo SPED", err.Error())
		return
	}

	c.JSON(http.StatusOK, linhas)
}
