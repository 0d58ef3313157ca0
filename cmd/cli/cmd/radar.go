// cmd/cli/cmd/radar.go
package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pricetax/fiscaliva/internal/core/extracao"
	"github.com/pricetax/fiscaliva/internal/core/tributacao"
	"github.com/pricetax/fiscaliva/internal/domain"
)

var radarCmd = &cobra.Command{
	Use:   "radar <sped.txt>",
	Short: "Monta o radar de benefícios a partir de um arquivo SPED",
	Long: `Lê um EFD ICMS/IPI, consolida as vendas de saída por NCM, descrição e
CFOP e cruza cada combinação com a tabela de benefícios da LC 214/2025,
apontando a redução aplicável e o cClassTrib sugerido.

Exemplo:
  fiscaliva radar sped_abril_2026.txt`,
	Args: cobra.ExactArgs(1),
	RunE: runRadar,
}

func runRadar(cmd *cobra.Command, args []string) error {
	b, err := carregarBase()
	if err != nil {
		return err
	}
	defer b.logger.Sync()

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("falha ao abrir o SPED: %w", err)
	}
	defer f.Close()

	extrator := extracao.NewService(b.beneficios, b.tributos)
	linhas, err := extrator.RadarSped(f, filepath.Base(args[0]))
	if err != nil {
		return err
	}
	if len(linhas) == 0 {
		fmt.Println("Nenhuma venda de saída com NCM encontrada no arquivo.")
		return nil
	}

	imprimirRadar(linhas)
	return nil
}

func imprimirRadar(linhas []domain.RadarNCM) {
	fmt.Printf("Radar de benefícios: %s\n\n", linhas[0].Arquivo)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NCM\tCFOP\tITENS\tVALOR\tREDUÇÃO\tREGIME\tCCLASSTRIB")

	comBeneficio := 0
	ambiguos := 0
	for _, linha := range linhas {
		if linha.TemBeneficio {
			comBeneficio++
		}
		marca := ""
		if linha.Ambiguo {
			ambiguos++
			marca = " (*)"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s%%\t%s\t%s%s\n",
			linha.Ncm, linha.Cfop, linha.Itens, linha.ValorTotal.StringFixed(2),
			linha.Reducao, tributacao.RotuloRegime(linha.Regime), linha.ClassTrib, marca)
	}
	w.Flush()

	fmt.Printf("\n%d de %d combinações NCM/CFOP com benefício da LC 214/2025.\n", comBeneficio, len(linhas))
	if ambiguos > 0 {
		fmt.Printf("(*) %d com mais de um anexo possível: revisar o enquadramento.\n", ambiguos)
	}
}
