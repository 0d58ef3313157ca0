// internal/api/middleware/auth.go
package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// ChaveClaims é a chave do contexto gin onde o AuthMiddleware deposita os
// claims do token validado.
const ChaveClaims = "user_claims"

// AuthMiddleware valida o token JWT do cabeçalho Authorization. O segredo vem
// da configuração da aplicação; um segredo vazio rejeita qualquer token.
func AuthMiddleware(segredo []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		bruto, err := extrairToken(c.GetHeader("Authorization"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}

		token, err := jwt.Parse(bruto, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("método de assinatura inesperado: %v", token.Header["alg"])
			}
			return segredo, nil
		})
		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Token inválido ou expirado"})
			return
		}

		if claims, ok := token.Claims.(jwt.MapClaims); ok {
			c.Set(ChaveClaims, claims)
		}

		c.Next()
	}
}

// extrairToken separa o token do esquema "Bearer <token>".
func extrairToken(cabecalho string) (string, error) {
	if cabecalho == "" {
		return "", fmt.Errorf("token de autorização não fornecido")
	}
	partes := strings.Fields(cabecalho)
	if len(partes) != 2 || !strings.EqualFold(partes[0], "Bearer") {
		return "", fmt.Errorf("formato do token inválido")
	}
	return partes[1], nil
}

// PermissionMiddleware exige que o token validado carregue o papel informado.
// Deve ser registrado depois do AuthMiddleware.
func PermissionMiddleware(papel string) gin.HandlerFunc {
	return func(c *gin.Context) {
		valor, existe := c.Get(ChaveClaims)
		if !existe {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Claims do usuário não encontrados"})
			return
		}

		claims, ok := valor.(jwt.MapClaims)
		if !ok || !possuiPapel(claims, papel) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Acesso negado: permissão necessária ausente"})
			return
		}

		c.Next()
	}
}

func possuiPapel(claims jwt.MapClaims, papel string) bool {
	papeis, ok := claims["roles"].([]interface{})
	if !ok {
		return false
	}
	for _, p := range papeis {
		if texto, ok := p.(string); ok && texto == papel {
			return true
		}
	}
	return false
}
