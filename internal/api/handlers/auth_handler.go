// internal/api/handlers/auth_handler.go
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pricetax/fiscaliva/internal/api/responses"
	"github.com/pricetax/fiscaliva/internal/core/auth"
)

// AuthHandler lida com a autenticação da API.
type AuthHandler struct {
	service auth.Service
}

// NewAuthHandler cria um novo handler de autenticação.
func NewAuthHandler(service auth.Service) *AuthHandler {
	return &AuthHandler{
		service: service,
	}
}

// Login valida as credenciais e devolve o token de acesso.
func (h *AuthHandler) Login(c *gin.Context) {
	var credenciais struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&credenciais); err != nil {
		responses.Error(c, http.StatusBadRequest, "Informe usuário e senha")
		return
	}

	token, err := h.service.Login(c.Request.Context(), credenciais.Username, credenciais.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrCredenciaisInvalidas):
			responses.Error(c, http.StatusUnauthorized, err.Error())
		case errors.Is(err, auth.ErrAcessoBloqueado), errors.Is(err, auth.ErrMensalidadeAtrasada):
			responses.Error(c, http.StatusForbidden, err.Error())
		default:
			responses.Error(c, http.StatusInternalServerError, "Não foi possível autenticar", err.Error())
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token})
}
