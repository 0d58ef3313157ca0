// internal/config/config.go
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config agrupa a configuração da aplicação (lida via Viper de env e
// opcionalmente de arquivo). Imutável depois de Load: os serviços recebem os
// valores no construtor e nunca leem estado global.
type Config struct {
	App       AppConfig
	HTTP      HTTPConfig
	JWT       JWTConfig
	Firestore FirestoreConfig
	Aliquotas AliquotasConfig
	Validacao ValidacaoConfig
	Dados     DadosConfig
	Coleta    ColetaConfig
	Cnpj      CnpjConfig
}

// AppConfig configuração geral da aplicação.
type AppConfig struct {
	Env  string // development, staging, production
	Nome string
}

// HTTPConfig configuração do servidor HTTP.
type HTTPConfig struct {
	Host string
	Port int
}

// Addr devolve o endereço de escuta (host:port).
func (c HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// JWTConfig configuração de tokens de acesso.
type JWTConfig struct {
	Secret string
}

// FirestoreConfig identifica o banco de usuários.
type FirestoreConfig struct {
	ProjectID  string
	DatabaseID string
}

// AliquotasConfig são as alíquotas-base do ano de referência, em pontos
// percentuais (0.10 = 0,10%). Trocar de ano de teste é trocar configuração,
// nunca código.
type AliquotasConfig struct {
	IBS float64
	CBS float64
}

// ValidacaoConfig parametriza o validador de divergências.
type ValidacaoConfig struct {
	Tolerancia float64 // em unidades monetárias, válida de 0.01 a 1.00 inclusive
	Workers    int     // 0 = número de CPUs
}

// DadosConfig aponta para os datasets versionados carregados na inicialização.
type DadosConfig struct {
	TabelaBeneficios    string
	TabelaClassificacao string
	NbsDigitos          int
}

// ColetaConfig parametriza o coletor de dados de mercado (canal lateral).
type ColetaConfig struct {
	Habilitada     bool
	Diretorio      string
	AnonimizarCnpj bool
}

// CnpjConfig parametriza o cliente de consulta cadastral.
type CnpjConfig struct {
	TimeoutSegundos int
}

// Load lê a configuração de variáveis de ambiente e, opcionalmente, de um
// arquivo fiscaliva.yaml no diretório corrente ou em ./config. As env vars
// têm prioridade sobre o arquivo.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("fiscaliva")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	_ = v.ReadInConfig() // arquivo é opcional

	return montar(v)
}

// LoadArquivo lê a configuração de um arquivo YAML explícito. Diferente de
// Load, a ausência do arquivo é erro. As env vars continuam com prioridade.
func LoadArquivo(caminho string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(caminho)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("falha ao ler a configuração %s: %w", caminho, err)
	}

	return montar(v)
}

func montar(v *viper.Viper) (*Config, error) {
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	cfg := &Config{
		App: AppConfig{
			Env:  getString(v, "APP_ENV", "development"),
			Nome: getString(v, "APP_NOME", "fiscaliva"),
		},
		HTTP: HTTPConfig{
			Host: getString(v, "HTTP_HOST", "0.0.0.0"),
			Port: getInt(v, "HTTP_PORT", 8080),
		},
		JWT: JWTConfig{
			Secret: getString(v, "JWT_SECRET", ""),
		},
		Firestore: FirestoreConfig{
			ProjectID:  getString(v, "FIRESTORE_PROJECT_ID", "fiscaliva-db"),
			DatabaseID: getString(v, "FIRESTORE_DATABASE_ID", "fiscaliva-db"),
		},
		Aliquotas: AliquotasConfig{
			IBS: getFloat(v, "ALIQ_IBS", 0.10),
			CBS: getFloat(v, "ALIQ_CBS", 0.90),
		},
		Validacao: ValidacaoConfig{
			Tolerancia: getFloat(v, "TOLERANCIA", 0.02),
			Workers:    getInt(v, "WORKERS", 0),
		},
		Dados: DadosConfig{
			TabelaBeneficios:    getString(v, "TABELA_BENEFICIOS", "dados/beneficios_lc214.xlsx"),
			TabelaClassificacao: getString(v, "TABELA_CLASSIFICACAO", "dados/classificacao_tributaria.xlsx"),
			NbsDigitos:          getInt(v, "NBS_DIGITOS", 9),
		},
		Coleta: ColetaConfig{
			Habilitada:     getBool(v, "COLETA_HABILITADA", true),
			Diretorio:      getString(v, "COLETA_DIR", "dados/coleta"),
			AnonimizarCnpj: getBool(v, "COLETA_ANONIMIZAR_CNPJ", true),
		},
		Cnpj: CnpjConfig{
			TimeoutSegundos: getInt(v, "CNPJ_TIMEOUT_SEGUNDOS", 15),
		},
	}

	if err := cfg.validar(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validar() error {
	if c.Validacao.Tolerancia < 0.01 || c.Validacao.Tolerancia > 1.00 {
		return fmt.Errorf("tolerância %.2f fora do intervalo permitido (0.01 a 1.00)", c.Validacao.Tolerancia)
	}
	if c.Aliquotas.IBS < 0 || c.Aliquotas.CBS < 0 {
		return fmt.Errorf("alíquotas-base não podem ser negativas (IBS %.4f, CBS %.4f)", c.Aliquotas.IBS, c.Aliquotas.CBS)
	}
	if c.Validacao.Workers < 0 {
		return fmt.Errorf("número de workers não pode ser negativo: %d", c.Validacao.Workers)
	}
	if c.Dados.NbsDigitos < 6 || c.Dados.NbsDigitos > 12 {
		return fmt.Errorf("tamanho de NBS inválido: %d dígitos", c.Dados.NbsDigitos)
	}
	return nil
}

func getString(v *viper.Viper, key, def string) string {
	if v.IsSet(key) {
		return v.GetString(key)
	}
	return def
}

func getInt(v *viper.Viper, key string, def int) int {
	if v.IsSet(key) {
		return v.GetInt(key)
	}
	return def
}

func getFloat(v *viper.Viper, key string, def float64) float64 {
	if v.IsSet(key) {
		return v.GetFloat64(key)
	}
	return def
}

func getBool(v *viper.Viper, key string, def bool) bool {
	if v.IsSet(key) {
		return v.GetBool(key)
	}
	return def
}
