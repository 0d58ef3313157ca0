// internal/api/handlers/cnpj_handler.go
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pricetax/fiscaliva/internal/api/responses"
	"github.com/pricetax/fiscaliva/internal/core/cnpj"
)

// CnpjHandler lida com a consulta cadastral de CNPJ.
type CnpjHandler struct {
	service cnpj.Service
}

// NewCnpjHandler cria um novo handler de consulta de CNPJ.
func NewCnpjHandler(service cnpj.Service) *CnpjHandler {
	return &CnpjHandler{
		service: service,
	}
}

// HandleConsulta busca o cadastro do CNPJ da rota nos provedores públicos.
func (h *CnpjHandler) HandleConsulta(c *gin.Context) {
	empresa, err := h.service.Consultar(c.Request.Context(), c.Param("cnpj"))
	if err != nil {
		switch {
		case errors.Is(err, cnpj.ErrCnpjInvalido):
			responses.Error(c, http.StatusBadRequest, err.Error())
		case errors.Is(err, cnpj.ErrNaoEncontrado):
			responses.Error(c, http.StatusNotFound, "CNPJ não encontrado nos provedores consultados")
		case errors.Is(err, cnpj.ErrIndisponivel):
			responses.Error(c, http.StatusBadGateway, "Provedores de consulta indisponíveis no momento", err.Error())
		default:
			responses.Error(c, http.StatusInternalServerError, "Erro na consulta do CNPJ", err.Error())
		}
		return
	}

	c.JSON(http.StatusOK, empresa)
}
