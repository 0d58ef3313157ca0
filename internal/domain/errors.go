// internal/domain/errors.go
package domain

import (
	"errors"
	"fmt"
)

// Erros de validação de códigos fiscais. São erros de item: marcam o item como
// ERRO e nunca interrompem o lote.
var (
	ErrCodigoTamanhoInvalido = errors.New("código fiscal com tamanho inválido")
	ErrCfopInvalido          = errors.New("CFOP inválido: esperado 4 dígitos com primeiro dígito entre 1 e 7")
	ErrCfopAusente           = errors.New("Informe o CFOP da operação de venda para sugerir o cClassTrib padrão")
)

// TabelaBeneficiosError indica tabela de benefícios ausente ou malformada.
// É fatal na inicialização: nenhum processamento começa com tabela parcial.
type TabelaBeneficiosError struct {
	Motivo string
	Linha  int
}

func (e *TabelaBeneficiosError) Error() string {
	if e.Linha > 0 {
		return fmt.Sprintf("tabela de benefícios inválida (linha %d): %s", e.Linha, e.Motivo)
	}
	return fmt.Sprintf("tabela de benefícios inválida: %s", e.Motivo)
}
