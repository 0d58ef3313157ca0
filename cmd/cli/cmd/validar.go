// cmd/cli/cmd/validar.go
package cmd

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pricetax/fiscaliva/internal/core/coleta"
	"github.com/pricetax/fiscaliva/internal/core/extracao"
	"github.com/pricetax/fiscaliva/internal/core/relatorio"
	"github.com/pricetax/fiscaliva/internal/core/validacao"
	"github.com/pricetax/fiscaliva/internal/domain"
)

var (
	toleranciaFlag float64
	relatorioFlag  string
	formatoFlag    string
	detalharFlag   bool
)

var validarCmd = &cobra.Command{
	Use:   "validar <arquivo|diretório>...",
	Short: "Valida os valores de IBS/CBS declarados em XMLs de NFe/NFSe",
	Long: `Carrega os documentos dos caminhos informados (XMLs avulsos, ZIPs ou
diretórios, percorridos recursivamente), calcula os valores esperados de IBS
e CBS de cada item e confere os declarados dentro da tolerância.

Exemplos:
  fiscaliva validar ./xmls
  fiscaliva validar notas.zip --tolerancia 0.05
  fiscaliva validar ./xmls --relatorio resultado.xlsx
  fiscaliva validar ./xmls --relatorio itens.csv --formato csv`,
	Args: cobra.MinimumNArgs(1),
	RunE: runValidar,
}

func init() {
	validarCmd.Flags().Float64VarP(&toleranciaFlag, "tolerancia", "t", 0, "tolerância em reais (0.01 a 1.00); 0 usa a configuração")
	validarCmd.Flags().StringVarP(&relatorioFlag, "relatorio", "r", "", "grava o relatório no caminho informado")
	validarCmd.Flags().StringVarP(&formatoFlag, "formato", "f", "", "formato do relatório: xlsx ou csv (padrão pela extensão)")
	validarCmd.Flags().BoolVarP(&detalharFlag, "detalhar", "d", false, "lista também os documentos conformes")
}

func runValidar(cmd *cobra.Command, args []string) error {
	b, err := carregarBase()
	if err != nil {
		return err
	}
	defer b.logger.Sync()

	tolerancia := b.cfg.Validacao.Tolerancia
	if toleranciaFlag != 0 {
		if toleranciaFlag < 0.01 || toleranciaFlag > 1.00 {
			return fmt.Errorf("tolerância %.2f fora do intervalo permitido (0.01 a 1.00)", toleranciaFlag)
		}
		tolerancia = toleranciaFlag
	}

	arquivos, err := coletarArquivos(args)
	if err != nil {
		return err
	}
	if len(arquivos) == 0 {
		return fmt.Errorf("nenhum XML ou ZIP encontrado em %s", strings.Join(args, ", "))
	}

	extrator := extracao.NewService(b.beneficios, b.tributos)
	docs := extrator.ExtrairLote(arquivos)

	var coletor validacao.Coletor
	if b.cfg.Coleta.Habilitada {
		svc := coleta.NewService(b.cfg.Coleta.Diretorio, coleta.Opcoes{
			PreservarCnpj: !b.cfg.Coleta.AnonimizarCnpj,
			Origem:        "cli",
			Logger:        b.logger,
		})
		defer svc.Close()
		coletor = svc
	}

	validador := validacao.NewService(b.beneficios, b.tributos, validacao.Opcoes{
		Tolerancia: tolerancia,
		Workers:    b.cfg.Validacao.Workers,
		Coletor:    coletor,
	})

	// Progresso no stderr para não sujar um stdout redirecionado.
	progresso := func(p validacao.Progresso) {
		fmt.Fprintf(os.Stderr, "\rProcessando %d/%d", p.Atual, p.Total)
	}
	resumo := validador.ProcessarLote(cmd.Context(), docs, progresso)
	fmt.Fprintln(os.Stderr)

	imprimirResumo(resumo)

	if relatorioFlag != "" {
		if err := gravarRelatorio(resumo, relatorioFlag, formatoFlag); err != nil {
			return err
		}
		fmt.Printf("\nRelatório gravado em %s\n", relatorioFlag)
	}
	return nil
}

// coletarArquivos carrega em memória os XMLs e ZIPs dos caminhos informados.
// Diretórios são percorridos recursivamente.
func coletarArquivos(caminhos []string) ([]extracao.Arquivo, error) {
	var arquivos []extracao.Arquivo
	for _, caminho := range caminhos {
		info, err := os.Stat(caminho)
		if err != nil {
			return nil, fmt.Errorf("caminho inacessível: %w", err)
		}

		if !info.IsDir() {
			conteudo, err := os.ReadFile(caminho)
			if err != nil {
				return nil, fmt.Errorf("falha ao ler %s: %w", caminho, err)
			}
			arquivos = append(arquivos, extracao.Arquivo{Nome: caminho, Conteudo: conteudo})
			continue
		}

		err = filepath.WalkDir(caminho, func(atual string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !extensaoSuportada(atual) {
				return nil
			}
			conteudo, err := os.ReadFile(atual)
			if err != nil {
				return fmt.Errorf("falha ao ler %s: %w", atual, err)
			}
			arquivos = append(arquivos, extracao.Arquivo{Nome: atual, Conteudo: conteudo})
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return arquivos, nil
}

func extensaoSuportada(caminho string) bool {
	ext := strings.ToLower(filepath.Ext(caminho))
	return ext == ".xml" || ext == ".zip"
}

func imprimirResumo(resumo domain.ResumoLote) {
	fmt.Println()
	fmt.Println("Resumo da validação")
	fmt.Printf("  XMLs processados:  %d\n", resumo.TotalXmls)
	fmt.Printf("  Conformes:         %d (%.1f%%)\n", resumo.XmlsConformes, resumo.PercentualConformes)
	fmt.Printf("  Divergentes:       %d\n", resumo.XmlsDivergentes)
	fmt.Printf("  Com erro:          %d\n", resumo.XmlsErros)
	fmt.Printf("  Itens validados:   %d (%d conformes, %d divergentes, %d com erro)\n",
		resumo.TotalItens, resumo.ItensConformes, resumo.ItensDivergentes, resumo.ItensErros)
	fmt.Printf("  Valor total:       R$ %s\n", resumo.ValorTotal.StringFixed(2))
	fmt.Printf("  Tolerância:        R$ %s\n", resumo.Tolerancia.StringFixed(2))

	if !detalharFlag && resumo.XmlsDivergentes == 0 && resumo.XmlsErros == 0 {
		return
	}
	fmt.Println()
	for _, doc := range resumo.Documentos {
		if !detalharFlag && doc.Status == domain.StatusConforme {
			continue
		}
		fmt.Printf("  [%s] %s: %s\n", doc.Status, doc.Arquivo, doc.Mensagem)
	}
}

// gravarRelatorio exporta o resumo para o caminho pedido. Sem --formato a
// extensão do arquivo decide.
func gravarRelatorio(resumo domain.ResumoLote, caminho, formato string) error {
	if formato == "" {
		formato = "xlsx"
		if strings.EqualFold(filepath.Ext(caminho), ".csv") {
			formato = "csv"
		}
	}

	gerador := relatorio.NewService()
	var (
		conteudo []byte
		err      error
	)
	switch strings.ToLower(formato) {
	case "xlsx":
		conteudo, err = gerador.GerarExcel(resumo)
	case "csv":
		conteudo, err = gerador.GerarCSV(resumo)
	default:
		return fmt.Errorf("formato de relatório desconhecido: %s (use xlsx ou csv)", formato)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(caminho, conteudo, 0o644)
}
