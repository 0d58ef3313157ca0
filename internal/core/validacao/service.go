// internal/core/validacao/service.go
package validacao

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pricetax/fiscaliva/internal/core/beneficios"
	"github.com/pricetax/fiscaliva/internal/core/fiscal"
	"github.com/pricetax/fiscaliva/internal/core/tributacao"
	"github.com/pricetax/fiscaliva/internal/domain"
)

// ToleranciaPadrao é a tolerância de conferência, em reais.
const ToleranciaPadrao = 0.02

// Coletor recebe os documentos processados para a captura de inteligência
// de mercado. A entrega é melhor esforço: falha do coletor nunca falha o lote.
type Coletor interface {
	RegistrarDocumento(doc domain.DocumentoFiscal)
}

// Progresso é a notificação de avanço de um lote. Somente informativa:
// notificações perdidas não afetam o resultado.
type Progresso struct {
	Atual   int    `json:"atual"`
	Total   int    `json:"total"`
	Arquivo string `json:"arquivo"`
}

// Service valida os valores de IBS/CBS declarados nos documentos contra os
// valores esperados pelo regime de cada item.
type Service interface {
	// ValidarItem roda o pipeline completo de um item: normalização,
	// benefícios, alíquotas, cClassTrib e conferência dos valores.
	ValidarItem(item domain.ItemFiscal) domain.ResultadoItem

	// ValidarDocumento valida os itens de um documento e fecha o status geral.
	ValidarDocumento(doc domain.DocumentoFiscal) domain.ResultadoDocumento

	// ProcessarLote valida documentos em paralelo e consolida o resumo.
	// O cancelamento do contexto interrompe o despacho dos restantes.
	ProcessarLote(ctx context.Context, docs []domain.DocumentoFiscal, progresso func(Progresso)) domain.ResumoLote
}

// Opcoes parametriza o motor na construção. O serviço não lê estado global:
// tolerância, paralelismo e coletor chegam por aqui.
type Opcoes struct {
	Tolerancia float64 // em reais; 0 usa ToleranciaPadrao
	Workers    int     // 0 usa o número de CPUs
	Coletor    Coletor // opcional
}

type service struct {
	beneficios beneficios.Service
	tributos   tributacao.Service
	tolerancia decimal.Decimal
	workers    int
	coletor    Coletor
}

func NewService(beneficiosSvc beneficios.Service, tributosSvc tributacao.Service, opcoes Opcoes) Service {
	tolerancia := opcoes.Tolerancia
	if tolerancia <= 0 {
		tolerancia = ToleranciaPadrao
	}
	workers := opcoes.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &service{
		beneficios: beneficiosSvc,
		tributos:   tributosSvc,
		tolerancia: decimal.NewFromFloat(tolerancia),
		workers:    workers,
		coletor:    opcoes.Coletor,
	}
}

func (s *service) ValidarItem(item domain.ItemFiscal) (res domain.ResultadoItem) {
	res = domain.ResultadoItem{
		Numero:       item.Numero,
		Ncm:          item.Ncm,
		Nbs:          item.Nbs,
		Cfop:         item.Cfop,
		Cst:          item.Cst,
		Descricao:    item.Descricao,
		Valor:        item.ValorTotal,
		DeclaradoIBS: item.VIbsDeclarado,
		DeclaradoCBS: item.VCbsDeclarado,
	}

	// Falha inesperada fica restrita ao item: o lote continua.
	defer func() {
		if causa := recover(); causa != nil {
			res.Status = domain.StatusErro
			res.Erro = fmt.Sprintf("falha inesperada: %v", causa)
		}
	}()

	cfop, err := fiscal.NormalizarCFOP(item.Cfop)
	if err != nil {
		res.Status = domain.StatusErro
		res.Erro = err.Error()
		return res
	}
	res.Cfop = cfop

	// Itens de serviço (NBS) ficam fora do motor de benefícios por NCM e
	// seguem a tributação padrão.
	var consulta beneficios.Resultado
	if item.Nbs == "" {
		consulta, err = s.beneficios.Consultar(item.Ncm)
		if err != nil {
			res.Status = domain.StatusErro
			res.Erro = err.Error()
			return res
		}
		res.Ncm = consulta.Codigo
	}

	regime := s.tributos.CalcularRegime(consulta)
	res.Regime = regime

	classe, err := s.tributos.Classificar(item.Cst, cfop, regime.Regime)
	if err != nil {
		res.Status = domain.StatusErro
		res.Erro = err.Error()
		return res
	}
	res.Classificacao = classe

	// Base líquida da transição: valor do item menos os tributos legados.
	base := item.ValorTotal.Sub(item.VIcms).Sub(item.VPis).Sub(item.VCofins)
	res.BaseLiquida = base
	res.EsperadoIBS = base.Mul(regime.AliqIBS).Shift(-2)
	res.EsperadoCBS = base.Mul(regime.AliqCBS).Shift(-2)
	res.DiffIBS = item.VIbsDeclarado.Sub(res.EsperadoIBS).Abs()
	res.DiffCBS = item.VCbsDeclarado.Sub(res.EsperadoCBS).Abs()

	// Tolerância inclusiva: diferença igual à tolerância ainda é conforme.
	if res.DiffIBS.Cmp(s.tolerancia) <= 0 && res.DiffCBS.Cmp(s.tolerancia) <= 0 {
		res.Status = domain.StatusConforme
	} else {
		res.Status = domain.StatusDivergente
	}
	return res
}

func (s *service) ValidarDocumento(doc domain.DocumentoFiscal) domain.ResultadoDocumento {
	res := domain.ResultadoDocumento{
		Arquivo:     doc.Arquivo,
		Modelo:      doc.Modelo,
		ChaveAcesso: doc.ChaveAcesso,
		Numero:      doc.Numero,
		Situacao:    doc.Situacao,
		DataEmissao: doc.DataEmissao,
		EmitCnpj:    doc.EmitCnpj,
		EmitNome:    doc.EmitNome,
		EmitUF:      doc.EmitUF,
		DestCnpj:    doc.DestCnpj,
		DestNome:    doc.DestNome,
		TotalItens:  len(doc.Itens),
	}
	if res.ChaveAcesso == "" {
		res.ChaveAcesso = ChaveDoArquivo(doc.Arquivo)
	}

	if doc.Erro != "" {
		res.Status = domain.StatusErro
		res.Erro = doc.Erro
		res.Mensagem = "Erro: " + doc.Erro
		return res
	}

	for _, item := range doc.Itens {
		resultado := s.ValidarItem(item)
		res.Itens = append(res.Itens, resultado)
		res.ValorTotal = res.ValorTotal.Add(item.ValorTotal)
		switch resultado.Status {
		case domain.StatusConforme:
			res.ItensConformes++
		case domain.StatusDivergente:
			res.ItensDivergentes++
		default:
			res.ItensErros++
		}
	}

	switch {
	case res.ItensErros > 0:
		res.Status = domain.StatusErro
		res.Mensagem = fmt.Sprintf("%d de %d itens com erro de processamento", res.ItensErros, res.TotalItens)
	case res.ItensDivergentes > 0:
		res.Status = domain.StatusDivergente
		res.Mensagem = fmt.Sprintf("%d de %d itens com divergência", res.ItensDivergentes, res.TotalItens)
	default:
		res.Status = domain.StatusConforme
		res.Mensagem = fmt.Sprintf("Todos os %d itens estão corretos", res.ItensConformes)
	}

	if s.coletor != nil {
		s.registrarColeta(doc)
	}
	return res
}

// registrarColeta entrega o documento ao coletor isolando qualquer pânico:
// a captura de mercado nunca derruba a validação.
func (s *service) registrarColeta(doc domain.DocumentoFiscal) {
	defer func() {
		_ = recover()
	}()
	s.coletor.RegistrarDocumento(doc)
}

func (s *service) ProcessarLote(ctx context.Context, docs []domain.DocumentoFiscal, progresso func(Progresso)) domain.ResumoLote {
	total := len(docs)
	resultados := make([]domain.ResultadoDocumento, total)

	workers := s.workers
	if workers > total {
		workers = total
	}
	if workers < 1 {
		workers = 1
	}

	// Notificações de progresso saem por um canal com folga para o lote
	// inteiro e são entregues em série por uma única goroutine.
	var notificacoes chan string
	drenado := make(chan struct{})
	if progresso != nil {
		notificacoes = make(chan string, total+1)
		go func() {
			defer close(drenado)
			atual := 0
			for arquivo := range notificacoes {
				atual++
				progresso(Progresso{Atual: atual, Total: total, Arquivo: arquivo})
			}
		}()
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				resultados[idx] = s.ValidarDocumento(docs[idx])
				if notificacoes != nil {
					select {
					case notificacoes <- docs[idx].Arquivo:
					default:
					}
				}
			}
		}()
	}

despacho:
	for idx := range docs {
		select {
		case <-ctx.Done():
			break despacho
		default:
		}
		select {
		case <-ctx.Done():
			break despacho
		case jobs <- idx:
		}
	}
	close(jobs)
	wg.Wait()

	if notificacoes != nil {
		close(notificacoes)
		<-drenado
	}

	// Num lote cancelado, os documentos não despachados são descartados.
	concluidos := make([]domain.ResultadoDocumento, 0, total)
	for _, res := range resultados {
		if res.Status != "" {
			concluidos = append(concluidos, res)
		}
	}
	return s.resumir(concluidos)
}

func (s *service) resumir(resultados []domain.ResultadoDocumento) domain.ResumoLote {
	resumo := domain.ResumoLote{
		TotalXmls:  len(resultados),
		Tolerancia: s.tolerancia,
		GeradoEm:   time.Now().Format("02/01/2006 15:04:05"),
		Documentos: resultados,
	}

	for _, res := range resultados {
		switch res.Status {
		case domain.StatusConforme:
			resumo.XmlsConformes++
		case domain.StatusDivergente:
			resumo.XmlsDivergentes++
		default:
			resumo.XmlsErros++
		}
		resumo.TotalItens += res.TotalItens
		resumo.ItensConformes += res.ItensConformes
		resumo.ItensDivergentes += res.ItensDivergentes
		resumo.ItensErros += res.ItensErros
		resumo.ValorTotal = resumo.ValorTotal.Add(res.ValorTotal)
	}
	if resumo.TotalXmls > 0 {
		resumo.PercentualConformes = float64(resumo.XmlsConformes) / float64(resumo.TotalXmls) * 100
	}
	return resumo
}

// ChaveDoArquivo extrai a chave de acesso dos 44 primeiros caracteres do
// nome do arquivo, convenção dos emissores ao salvar XMLs autorizados.
func ChaveDoArquivo(nome string) string {
	base := filepath.Base(nome)
	if len(base) < 44 {
		return ""
	}
	chave := base[:44]
	if fiscal.SomenteDigitos(chave) != chave {
		return ""
	}
	return chave
}
