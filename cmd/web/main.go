// cmd/web/main.go
package main

import (
	"context"
	"log"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/gin-gonic/gin"
	"github.com/pricetax/fiscaliva/internal/api/handlers"
	"github.com/pricetax/fiscaliva/internal/api/middleware"
	"github.com/pricetax/fiscaliva/internal/api/responses"
	"github.com/pricetax/fiscaliva/internal/config"
	"github.com/pricetax/fiscaliva/internal/core/auth"
	"github.com/pricetax/fiscaliva/internal/core/beneficios"
	"github.com/pricetax/fiscaliva/internal/core/cnpj"
	"github.com/pricetax/fiscaliva/internal/core/coleta"
	"github.com/pricetax/fiscaliva/internal/core/extracao"
	"github.com/pricetax/fiscaliva/internal/core/relatorio"
	"github.com/pricetax/fiscaliva/internal/core/tributacao"
	"github.com/pricetax/fiscaliva/internal/core/validacao"
	"go.uber.org/zap"
)

// initFirestoreClient inicializa o cliente do Firestore do banco de usuários.
func initFirestoreClient(ctx context.Context, cfg config.FirestoreConfig, logger *zap.Logger) *firestore.Client {
	client, err := firestore.NewClientWithDatabase(ctx, cfg.ProjectID, cfg.DatabaseID)
	if err != nil {
		logger.Fatal("erro ao inicializar o cliente Firestore",
			zap.String("database", cfg.DatabaseID), zap.Error(err))
	}
	logger.Info("conectado ao Firestore", zap.String("database", cfg.DatabaseID))
	return client
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Configuração inválida: %v", err)
	}
	responses.InitLogger(cfg.App.Env)
	logger := responses.Logger()

	if cfg.JWT.Secret == "" {
		if cfg.App.Env == "production" {
			logger.Fatal("JWT_SECRET é obrigatório em produção")
		}
		logger.Warn("JWT_SECRET vazio; tokens serão assinados com segredo vazio")
	}

	ctx := context.Background()
	firestoreClient := initFirestoreClient(ctx, cfg.Firestore, logger)
	defer firestoreClient.Close()

	// A tabela de benefícios é a base de tudo: sem ela o serviço não sobe.
	regras, err := beneficios.CarregarTabela(cfg.Dados.TabelaBeneficios)
	if err != nil {
		logger.Fatal("tabela de benefícios indisponível",
			zap.String("arquivo", cfg.Dados.TabelaBeneficios), zap.Error(err))
	}
	beneficiosSvc := beneficios.NewService(regras)
	logger.Info("tabela de benefícios carregada", zap.Int("regras", beneficiosSvc.TotalRegras()))

	// A tabela de classificação só enriquece as mensagens; a falta dela não
	// impede a operação.
	referencia, err := tributacao.CarregarReferencia(cfg.Dados.TabelaClassificacao)
	if err != nil {
		logger.Warn("tabela de classificação indisponível, respostas sem descrição longa",
			zap.String("arquivo", cfg.Dados.TabelaClassificacao), zap.Error(err))
		referencia = nil
	}
	tributosSvc := tributacao.NewService(cfg.Aliquotas.IBS, cfg.Aliquotas.CBS, referencia)

	extracaoSvc := extracao.NewService(beneficiosSvc, tributosSvc)
	relatorioSvc := relatorio.NewService()
	authSvc := auth.NewService(firestoreClient, cfg.JWT.Secret)
	cnpjSvc := cnpj.NewService(cnpj.Opcoes{
		Timeout: time.Duration(cfg.Cnpj.TimeoutSegundos) * time.Second,
	})

	var coletor validacao.Coletor
	if cfg.Coleta.Habilitada {
		coletaSvc := coleta.NewService(cfg.Coleta.Diretorio, coleta.Opcoes{
			PreservarCnpj: !cfg.Coleta.AnonimizarCnpj,
			Origem:        "api",
			Logger:        logger,
		})
		defer coletaSvc.Close()
		coletor = coletaSvc
	}

	novoValidador := func(tolerancia float64) validacao.Service {
		if tolerancia <= 0 {
			tolerancia = cfg.Validacao.Tolerancia
		}
		return validacao.NewService(beneficiosSvc, tributosSvc, validacao.Opcoes{
			Tolerancia: tolerancia,
			Workers:    cfg.Validacao.Workers,
			Coletor:    coletor,
		})
	}

	authHandler := handlers.NewAuthHandler(authSvc)
	usuariosHandler := handlers.NewUsuariosHandler(authSvc)
	validacaoHandler := handlers.NewValidacaoHandler(extracaoSvc, relatorioSvc, novoValidador)
	radarHandler := handlers.NewRadarHandler(extracaoSvc)
	consultaHandler := handlers.NewConsultaHandler(beneficiosSvc, tributosSvc)
	cnpjHandler := handlers.NewCnpjHandler(cnpjSvc)

	router := gin.Default()
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	apiV1 := router.Group("/api/v1")
	{
		apiV1.POST("/login", authHandler.Login)
		protected := apiV1.Group("/")
		protected.Use(middleware.AuthMiddleware([]byte(cfg.JWT.Secret)))
		{
			protected.POST("/validacao/xml", validacaoHandler.HandleValidacao)
			protected.POST("/validacao/relatorio", validacaoHandler.HandleRelatorio)
			protected.POST("/sped/radar", radarHandler.HandleRadar)
			protected.GET("/beneficios/ncm/:codigo", consultaHandler.HandleConsulta)
			protected.GET("/cnpj/:cnpj", cnpjHandler.HandleConsulta)

			admin := protected.Group("/admin")
			admin.Use(middleware.PermissionMiddleware("admin"))
			{
				admin.GET("/usuarios", usuariosHandler.Listar)
				admin.POST("/usuarios", usuariosHandler.Criar)
				admin.PUT("/usuarios/:username", usuariosHandler.Atualizar)
				admin.DELETE("/usuarios/:username", usuariosHandler.Remover)
			}
		}
	}
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "UP"})
	})

	logger.Info("servidor iniciado", zap.String("endereco", cfg.HTTP.Addr()))
	if err := router.Run(cfg.HTTP.Addr()); err != nil {
		logger.Fatal("falha ao iniciar o servidor", zap.Error(err))
	}
}
