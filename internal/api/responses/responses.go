// internal/api/responses/responses.go
package responses

import (
	"sync"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var (
	mu     sync.RWMutex
	logger = zap.NewNop()
)

// InitLogger configura o logger compartilhado da camada HTTP. Em development
// a saída é legível no console; nos demais ambientes é JSON estruturado.
// Antes da chamada o pacote usa um logger nulo, então é seguro em testes.
func InitLogger(env string) {
	var (
		l   *zap.Logger
		err error
	)
	if env == "development" {
		l, err = zap.NewDevelopment()
	} else {
		l, err = zap.NewProduction()
	}
	if err != nil {
		return
	}

	mu.Lock()
	logger = l
	mu.Unlock()
}

// Logger devolve o logger compartilhado da camada HTTP.
func Logger() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// Error responde com o envelope de erro padrão da API e registra falhas de
// servidor no log. Detalhes adicionais (a causa subjacente, por exemplo) vão
// no campo "detalhes".
func Error(c *gin.Context, status int, mensagem string, detalhes ...string) {
	corpo := gin.H{"error": mensagem}
	if len(detalhes) > 0 {
		corpo["detalhes"] = detalhes
	}

	if status >= 500 {
		Logger().Error("erro na requisição",
			zap.Int("status", status),
			zap.String("rota", c.FullPath()),
			zap.String("mensagem", mensagem),
			zap.Strings("detalhes", detalhes),
		)
	}

	c.JSON(status, corpo)
}
