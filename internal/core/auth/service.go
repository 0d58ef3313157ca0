// internal/core/auth/service.go
package auth

import (
	"context"
	"errors"
	"log"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
	"google.golang.org/api/iterator"
)

// Status de conta. O vazio equivale a ativo para contas antigas.
const (
	StatusAtivo        = "ativo"
	StatusBloqueado    = "bloqueado"
	StatusInadimplente = "inadimplente"
)

const (
	colecaoUsuarios = "users"
	validadeToken   = 24 * time.Hour
	formatoData     = "2006-01-02"
)

var (
	ErrCredenciaisInvalidas = errors.New("usuário ou senha inválidos")
	ErrAcessoBloqueado      = errors.New("acesso bloqueado, entre em contato com o administrador")
	ErrMensalidadeAtrasada  = errors.New("mensalidade em atraso, entre em contato com o financeiro")
	ErrUsuarioExiste        = errors.New("usuário já cadastrado")
	ErrUsuarioNaoEncontrado = errors.New("usuário não encontrado")
	ErrStatusInvalido       = errors.New("status inválido")
)

// Usuario é a conta armazenada no Firestore. DataVencimento em AAAA-MM-DD;
// vazia significa acesso sem prazo.
type Usuario struct {
	Username       string    `firestore:"username" json:"username"`
	PasswordHash   string    `firestore:"passwordHash" json:"-"`
	Roles          []string  `firestore:"roles" json:"roles"`
	Status         string    `firestore:"status" json:"status"`
	DataVencimento string    `firestore:"dataVencimento,omitempty" json:"data_vencimento,omitempty"`
	Observacoes    string    `firestore:"observacoes,omitempty" json:"observacoes,omitempty"`
	CriadoEm       time.Time `firestore:"criadoEm" json:"criado_em"`
}

// Atualizacao descreve uma mudança parcial de conta. Campos nil ficam como
// estão; DataVencimento apontando para vazio remove o prazo.
type Atualizacao struct {
	Status         *string  `json:"status,omitempty"`
	Roles          []string `json:"roles,omitempty"`
	DataVencimento *string  `json:"data_vencimento,omitempty"`
	Observacoes    *string  `json:"observacoes,omitempty"`
	Senha          *string  `json:"senha,omitempty"`
}

// Service autentica usuários e administra as contas.
type Service interface {
	// Login verifica credenciais e ciclo de vida da conta e devolve um JWT.
	// Mensalidade vencida muda o status para inadimplente antes de negar.
	Login(ctx context.Context, username, senha string) (string, error)

	CriarUsuario(ctx context.Context, usuario Usuario, senha string) error
	ListarUsuarios(ctx context.Context) ([]Usuario, error)
	AtualizarUsuario(ctx context.Context, username string, mudancas Atualizacao) (Usuario, error)
	RemoverUsuario(ctx context.Context, username string) error
}

type service struct {
	db      *firestore.Client
	segredo []byte
}

// NewService cria o serviço de autenticação com o segredo JWT da configuração.
func NewService(db *firestore.Client, segredo string) Service {
	return &service{db: db, segredo: []byte(segredo)}
}

func (s *service) Login(ctx context.Context, username, senha string) (string, error) {
	usuario, ref, err := s.buscarUsuario(ctx, strings.TrimSpace(username))
	if errors.Is(err, ErrUsuarioNaoEncontrado) {
		return "", ErrCredenciaisInvalidas
	}
	if err != nil {
		return "", err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(usuario.PasswordHash), []byte(senha)); err != nil {
		return "", ErrCredenciaisInvalidas
	}

	novoStatus, errAcesso := verificarAcesso(usuario, time.Now())
	if novoStatus != usuario.Status {
		if _, err := ref.Update(ctx, []firestore.Update{{Path: "status", Value: novoStatus}}); err != nil {
			log.Printf("Erro ao atualizar status de %s: %v", usuario.Username, err)
		}
	}
	if errAcesso != nil {
		return "", errAcesso
	}

	return s.gerarToken(usuario)
}

func (s *service) CriarUsuario(ctx context.Context, usuario Usuario, senha string) error {
	usuario.Username = strings.TrimSpace(usuario.Username)
	if usuario.Username == "" || senha == "" {
		return errors.New("usuário e senha são obrigatórios")
	}
	if usuario.Status == "" {
		usuario.Status = StatusAtivo
	}
	if !statusValido(usuario.Status) {
		return ErrStatusInvalido
	}
	if len(usuario.Roles) == 0 {
		usuario.Roles = []string{"usuario"}
	}

	if _, _, err := s.buscarUsuario(ctx, usuario.Username); err == nil {
		return ErrUsuarioExiste
	} else if !errors.Is(err, ErrUsuarioNaoEncontrado) {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(senha), bcrypt.DefaultCost)
	if err != nil {
		return errors.New("erro ao proteger a senha")
	}
	usuario.PasswordHash = string(hash)
	usuario.CriadoEm = time.Now()

	if _, err := s.db.Collection(colecaoUsuarios).Doc(usuario.Username).Set(ctx, usuario); err != nil {
		log.Printf("Erro detalhado do Firestore: %v", err)
		return errors.New("erro ao gravar no banco de dados")
	}
	return nil
}

func (s *service) ListarUsuarios(ctx context.Context) ([]Usuario, error) {
	iter := s.db.Collection(colecaoUsuarios).Documents(ctx)
	defer iter.Stop()

	var usuarios []Usuario
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			log.Printf("Erro detalhado do Firestore: %v", err)
			return nil, errors.New("erro ao consultar o banco de dados")
		}
		var usuario Usuario
		if err := doc.DataTo(&usuario); err != nil {
			return nil, errors.New("erro ao ler dados do usuário")
		}
		usuarios = append(usuarios, usuario)
	}
	sort.Slice(usuarios, func(i, j int) bool { return usuarios[i].Username < usuarios[j].Username })
	return usuarios, nil
}

func (s *service) AtualizarUsuario(ctx context.Context, username string, mudancas Atualizacao) (Usuario, error) {
	usuario, ref, err := s.buscarUsuario(ctx, strings.TrimSpace(username))
	if err != nil {
		return Usuario{}, err
	}

	usuario, err = aplicarAtualizacao(usuario, mudancas)
	if err != nil {
		return Usuario{}, err
	}

	if _, err := ref.Set(ctx, usuario); err != nil {
		log.Printf("Erro detalhado do Firestore: %v", err)
		return Usuario{}, errors.New("erro ao gravar no banco de dados")
	}
	return usuario, nil
}

func (s *service) RemoverUsuario(ctx context.Context, username string) error {
	_, ref, err := s.buscarUsuario(ctx, strings.TrimSpace(username))
	if err != nil {
		return err
	}
	if _, err := ref.Delete(ctx); err != nil {
		log.Printf("Erro detalhado do Firestore: %v", err)
		return errors.New("erro ao gravar no banco de dados")
	}
	return nil
}

func (s *service) buscarUsuario(ctx context.Context, username string) (Usuario, *firestore.DocumentRef, error) {
	query := s.db.Collection(colecaoUsuarios).Where("username", "==", username).Limit(1).Documents(ctx)
	defer query.Stop()

	doc, err := query.Next()
	if err == iterator.Done {
		return Usuario{}, nil, ErrUsuarioNaoEncontrado
	}
	if err != nil {
		log.Printf("Erro detalhado do Firestore: %v", err)
		return Usuario{}, nil, errors.New("erro ao consultar o banco de dados")
	}

	var usuario Usuario
	if err := doc.DataTo(&usuario); err != nil {
		return Usuario{}, nil, errors.New("erro ao ler dados do usuário")
	}
	return usuario, doc.Ref, nil
}

func (s *service) gerarToken(usuario Usuario) (string, error) {
	claims := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"username": usuario.Username,
		"roles":    usuario.Roles,
		"exp":      time.Now().Add(validadeToken).Unix(),
	})
	token, err := claims.SignedString(s.segredo)
	if err != nil {
		return "", errors.New("erro ao gerar token de acesso")
	}
	return token, nil
}

// verificarAcesso avalia o ciclo de vida da conta e devolve o status
// resultante. O dia do vencimento ainda dá acesso; a partir do seguinte a
// conta vira inadimplente.
func verificarAcesso(usuario Usuario, agora time.Time) (string, error) {
	switch usuario.Status {
	case StatusBloqueado:
		return usuario.Status, ErrAcessoBloqueado
	case StatusInadimplente:
		return usuario.Status, ErrMensalidadeAtrasada
	}
	if usuario.DataVencimento == "" {
		return usuario.Status, nil
	}
	if _, err := time.Parse(formatoData, usuario.DataVencimento); err != nil {
		// Data malformada não derruba a conta.
		return usuario.Status, nil
	}
	if agora.Format(formatoData) > usuario.DataVencimento {
		return StatusInadimplente, ErrMensalidadeAtrasada
	}
	return usuario.Status, nil
}

func aplicarAtualizacao(usuario Usuario, mudancas Atualizacao) (Usuario, error) {
	if mudancas.Status != nil {
		if !statusValido(*mudancas.Status) {
			return Usuario{}, ErrStatusInvalido
		}
		usuario.Status = *mudancas.Status
	}
	if mudancas.Roles != nil {
		usuario.Roles = mudancas.Roles
	}
	if mudancas.DataVencimento != nil {
		if *mudancas.DataVencimento != "" {
			if _, err := time.Parse(formatoData, *mudancas.DataVencimento); err != nil {
				return Usuario{}, errors.New("data de vencimento inválida, use AAAA-MM-DD")
			}
		}
		usuario.DataVencimento = *mudancas.DataVencimento
	}
	if mudancas.Observacoes != nil {
		usuario.Observacoes = *mudancas.Observacoes
	}
	if mudancas.Senha != nil {
		if *mudancas.Senha == "" {
			return Usuario{}, errors.New("a nova senha não pode ser vazia")
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(*mudancas.Senha), bcrypt.DefaultCost)
		if err != nil {
			return Usuario{}, errors.New("erro ao proteger a senha")
		}
		usuario.PasswordHash = string(hash)
	}
	return usuario, nil
}

func statusValido(status string) bool {
	switch status {
	case StatusAtivo, StatusBloqueado, StatusInadimplente:
		return true
	}
	return false
}
