// cmd/cli/cmd/consultar.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pricetax/fiscaliva/internal/core/tributacao"
)

var (
	cfopFlag string
	cstFlag  string
)

var consultarCmd = &cobra.Command{
	Use:   "consultar <ncm>",
	Short: "Consulta o enquadramento de benefícios e as alíquotas de um NCM",
	Long: `Resolve o NCM contra a tabela de benefícios da LC 214/2025 e imprime os
enquadramentos, as alíquotas efetivas de IBS/CBS do ano de referência e,
quando informado o CFOP, o cClassTrib sugerido para a operação.

Exemplos:
  fiscaliva consultar 0402.21.10
  fiscaliva consultar 04022110 --cfop 5102 --cst 000`,
	Args: cobra.ExactArgs(1),
	RunE: runConsultar,
}

func init() {
	consultarCmd.Flags().StringVar(&cfopFlag, "cfop", "", "CFOP da operação, para sugerir o cClassTrib")
	consultarCmd.Flags().StringVar(&cstFlag, "cst", "", "CST de ICMS da operação")
}

func runConsultar(cmd *cobra.Command, args []string) error {
	b, err := carregarBase()
	if err != nil {
		return err
	}
	defer b.logger.Sync()

	resultado, err := b.beneficios.Consultar(args[0])
	if err != nil {
		return err
	}
	regime := b.tributos.CalcularRegime(resultado)

	fmt.Printf("NCM %s: %s\n", resultado.Codigo, tributacao.RotuloRegime(regime.Regime))
	if resultado.SemBeneficio {
		fmt.Println("  Nenhum benefício da LC 214/2025 para este código.")
	}
	if resultado.MultiEnquadramento {
		fmt.Println("  Atenção: o código se enquadra em mais de um anexo; vale o primeiro da tabela.")
	}
	for i, enq := range resultado.Enquadramentos {
		fmt.Printf("  %d. %s (%s): redução %s%%, padrão %q (%s)\n",
			i+1, enq.Anexo, enq.DescricaoAnexo, enq.Reducao, enq.Padrao, enq.TipoPadrao)
		classe := b.tributos.ClassificarEnquadramento(enq)
		if classe.Codigo != "" {
			fmt.Printf("     cClassTrib %s: %s\n", classe.Codigo, classe.Mensagem)
		}
	}

	fmt.Println()
	fmt.Printf("Alíquotas: IBS %s%% + CBS %s%% = %s%%", regime.AliqIBS, regime.AliqCBS, regime.TotalIVA)
	if regime.Reducao.IsPositive() {
		fmt.Printf(" (redução de %s%%)", regime.Reducao)
	}
	fmt.Println()
	fmt.Printf("Fundamento: %s\n", regime.Fonte)

	if cfopFlag == "" {
		return nil
	}

	classe, err := b.tributos.Classificar(cstFlag, cfopFlag, regime.Regime)
	if err != nil {
		return err
	}
	fmt.Println()
	if classe.Codigo != "" {
		fmt.Printf("cClassTrib sugerido: %s\n", classe.Codigo)
	}
	fmt.Println(classe.Mensagem)
	if classe.Descricao != "" {
		fmt.Printf("Descrição oficial: %s\n", classe.Descricao)
	}
	if classe.TipoAliquota != "" {
		fmt.Printf("Tipo de alíquota: %s\n", classe.TipoAliquota)
	}
	return nil
}
