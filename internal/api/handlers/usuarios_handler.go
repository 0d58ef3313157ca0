// internal/api/handlers/usuarios_handler.go
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pricetax/fiscaliva/internal/api/responses"
	"github.com/pricetax/fiscaliva/internal/core/auth"
)

// UsuariosHandler lida com a administração de contas (rotas restritas ao
// papel admin).
type UsuariosHandler struct {
	service auth.Service
}

// NewUsuariosHandler cria um novo handler de administração de usuários.
func NewUsuariosHandler(service auth.Service) *UsuariosHandler {
	return &UsuariosHandler{
		service: service,
	}
}

// Listar devolve todas as contas cadastradas, sem os hashes de senha.
func (h *UsuariosHandler) Listar(c *gin.Context) {
	usuarios, err := h.service.ListarUsuarios(c.Request.Context())
	if err != nil {
		responses.Error(c, http.StatusInternalServerError, "Não foi possível listar os usuários", err.Error())
		return
	}
	c.JSON(http.StatusOK, usuarios)
}

// Criar cadastra uma nova conta.
func (h *UsuariosHandler) Criar(c *gin.Context) {
	var corpo struct {
		Username       string   `json:"username" binding:"required"`
		Senha          string   `json:"senha" binding:"required"`
		Roles          []string `json:"roles"`
		Status         string   `json:"status"`
		DataVencimento string   `json:"data_vencimento"`
		Observacoes    string   `json:"observacoes"`
	}
	if err := c.ShouldBindJSON(&corpo); err != nil {
		responses.Error(c, http.StatusBadRequest, "Informe ao menos username e senha")
		return
	}

	usuario := auth.Usuario{
		Username:       corpo.Username,
		Roles:          corpo.Roles,
		Status:         corpo.Status,
		DataVencimento: corpo.DataVencimento,
		Observacoes:    corpo.Observacoes,
	}
	if err := h.service.CriarUsuario(c.Request.Context(), usuario, corpo.Senha); err != nil {
		switch {
		case errors.Is(err, auth.ErrUsuarioExiste):
			responses.Error(c, http.StatusConflict, err.Error())
		case errors.Is(err, auth.ErrStatusInvalido):
			responses.Error(c, http.StatusBadRequest, err.Error())
		default:
			responses.Error(c, http.StatusInternalServerError, "Não foi possível criar o usuário", err.Error())
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{"username": corpo.Username})
}

// Atualizar aplica uma mudança parcial na conta indicada na rota.
func (h *UsuariosHandler) Atualizar(c *gin.Context) {
	var mudancas auth.Atualizacao
	if err := c.ShouldBindJSON(&mudancas); err != nil {
		responses.Error(c, http.StatusBadRequest, "Corpo da requisição inválido")
		return
	}

	usuario, err := h.service.AtualizarUsuario(c.Request.Context(), c.Param("username"), mudancas)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrUsuarioNaoEncontrado):
			responses.Error(c, http.StatusNotFound, err.Error())
		case errors.Is(err, auth.ErrStatusInvalido):
			responses.Error(c, http.StatusBadRequest, err.Error())
		default:
			responses.Error(c, http.StatusInternalServerError, "Não foi possível atualizar o usuário", err.Error())
		}
		return
	}

	c.JSON(http.StatusOK, usuario)
}

// Remover apaga a conta indicada na rota.
func (h *UsuariosHandler) Remover(c *gin.Context) {
	if err := h.service.RemoverUsuario(c.Request.Context(), c.Param("username")); err != nil {
		switch {
		case errors.Is(err, auth.ErrUsuarioNaoEncontrado):
			responses.Error(c, http.StatusNotFound, err.Error())
		default:
			responses.Error(c, http.StatusInternalServerError, "Não foi possível remover o usuário", err.Error())
		}
		return
	}

	c.Status(http.StatusNoContent)
}
