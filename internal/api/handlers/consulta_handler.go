// internal/api/handlers/consulta_handler.go
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pricetax/fiscaliva/internal/api/responses"
	"github.com/pricetax/fiscaliva/internal/core/beneficios"
	"github.com/pricetax/fiscaliva/internal/core/tributacao"
	"github.com/pricetax/fiscaliva/internal/domain"
)

// ConsultaHandler lida com a consulta individual de NCM: enquadramento de
// benefício, alíquotas efetivas e, quando o CFOP é informado, o cClassTrib
// sugerido para a operação.
type ConsultaHandler struct {
	beneficios beneficios.Service
	tributos   tributacao.Service
}

// NewConsultaHandler cria um novo handler de consulta de benefícios.
func NewConsultaHandler(beneficiosSvc beneficios.Service, tributosSvc tributacao.Service) *ConsultaHandler {
	return &ConsultaHandler{
		beneficios: beneficiosSvc,
		tributos:   tributosSvc,
	}
}

type consultaResposta struct {
	Consulta      beneficios.Resultado    `json:"consulta"`
	Regime        domain.RegimeTributario `json:"regime"`
	Classificacao *domain.Classificacao   `json:"classificacao,omitempty"`
}

// HandleConsulta resolve o benefício do NCM da rota. Os parâmetros de query
// cfop e cst são opcionais; sem CFOP a resposta omite a classificação.
func (h *ConsultaHandler) HandleConsulta(c *gin.Context) {
	resultado, err := h.beneficios.Consultar(c.Param("codigo"))
	if err != nil {
		responses.Error(c, http.StatusBadRequest, err.Error())
		return
	}

	resposta := consultaResposta{
		Consulta: resultado,
		Regime:   h.tributos.CalcularRegime(resultado),
	}

	if cfop := c.Query("cfop"); cfop != "" {
		classificacao, err := h.tributos.Classificar(c.Query("cst"), cfop, resposta.Regime.Regime)
		if err != nil {
			responses.Error(c, http.StatusBadRequest, err.Error())
			return
		}
		resposta.Classificacao = &classificacao
	}

	c.JSON(http.StatusOK, resposta)
}
