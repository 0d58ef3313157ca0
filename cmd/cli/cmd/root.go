// Package cmd reúne os comandos da CLI do fiscaliva.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pricetax/fiscaliva/internal/config"
	"github.com/pricetax/fiscaliva/internal/core/beneficios"
	"github.com/pricetax/fiscaliva/internal/core/tributacao"
)

const versao = "1.0.0"

var (
	arquivoConfig string
	verboso       bool
)

var rootCmd = &cobra.Command{
	Use:   "fiscaliva",
	Short: "Valida os valores de IBS/CBS de documentos fiscais conforme a LC 214/2025",
	Long: `fiscaliva confere os valores de IBS e CBS declarados em XMLs de NFe e NFSe
contra os valores esperados pelo enquadramento de cada item, sugere o
cClassTrib da operação e monta o radar de benefícios a partir do SPED.

Exemplos:
  fiscaliva validar ./xmls --tolerancia 0.05 --relatorio resultado.xlsx
  fiscaliva consultar 0402.21.10 --cfop 5102 --cst 000
  fiscaliva radar sped_abril_2026.txt`,
}

// Execute roda a CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&arquivoConfig, "config", "", "arquivo de configuração (padrão: fiscaliva.yaml em . ou ./config)")
	rootCmd.PersistentFlags().BoolVarP(&verboso, "verbose", "v", false, "liga o log detalhado")

	rootCmd.AddCommand(validarCmd)
	rootCmd.AddCommand(consultarCmd)
	rootCmd.AddCommand(radarCmd)
	rootCmd.AddCommand(versaoCmd)
}

var versaoCmd = &cobra.Command{
	Use:   "versao",
	Short: "Imprime a versão",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("fiscaliva versão " + versao)
	},
}

// base são os serviços de domínio compartilhados pelos comandos.
type base struct {
	cfg        *config.Config
	logger     *zap.Logger
	beneficios beneficios.Service
	tributos   tributacao.Service
}

// carregarBase lê a configuração e carrega as tabelas de dados. A tabela de
// benefícios é obrigatória; a de classificação só enriquece as respostas.
func carregarBase() (*base, error) {
	var (
		cfg *config.Config
		err error
	)
	if arquivoConfig != "" {
		cfg, err = config.LoadArquivo(arquivoConfig)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("configuração inválida: %w", err)
	}

	logger := novoLogger()

	regras, err := beneficios.CarregarTabela(cfg.Dados.TabelaBeneficios)
	if err != nil {
		return nil, fmt.Errorf("tabela de benefícios indisponível: %w", err)
	}
	beneficiosSvc := beneficios.NewService(regras)
	logger.Debug("tabela de benefícios carregada",
		zap.String("arquivo", cfg.Dados.TabelaBeneficios),
		zap.Int("regras", beneficiosSvc.TotalRegras()))

	referencia, err := tributacao.CarregarReferencia(cfg.Dados.TabelaClassificacao)
	if err != nil {
		logger.Warn("tabela de classificação indisponível, respostas sem descrição longa",
			zap.Error(err))
		referencia = nil
	}
	tributosSvc := tributacao.NewService(cfg.Aliquotas.IBS, cfg.Aliquotas.CBS, referencia)

	return &base{
		cfg:        cfg,
		logger:     logger,
		beneficios: beneficiosSvc,
		tributos:   tributosSvc,
	}, nil
}

// novoLogger monta um logger de console. Sem --verbose só avisos e erros
// aparecem; a saída dos comandos fica no stdout.
func novoLogger() *zap.Logger {
	cfg := zap.NewDevelopmentConfig()
	if !verboso {
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
