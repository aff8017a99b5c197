// Package user はユーザー登録・認証・プロフィールのビジネスロジックを提供する。
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/hitoshi/textcheck/internal/credential"
	"github.com/hitoshi/textcheck/internal/model"
	"github.com/hitoshi/textcheck/internal/repository"
	"github.com/hitoshi/textcheck/internal/token"
)

const (
	usernameMinLength = 3
	usernameMaxLength = 50
	passwordMinLength = 8
)

// Service はユーザー管理のビジネスロジックを提供する。
type Service struct {
	repo      repository.IdentityRepository
	verifier  *credential.Verifier
	authority *token.Authority
}

// NewService はServiceを生成する。
func NewService(repo repository.IdentityRepository, verifier *credential.Verifier, authority *token.Authority) *Service {
	return &Service{
		repo:      repo,
		verifier:  verifier,
		authority: authority,
	}
}

// Register は新規ユーザーを登録する。
// バリデーション失敗は*model.APIErrorとして返す。
func (s *Service) Register(ctx context.Context, username, email, password string) (*model.Identity, error) {
	if len(username) < usernameMinLength || len(username) > usernameMaxLength {
		return nil, &model.APIError{
			Code:     model.ErrCodeInvalidRequest,
			Message:  fmt.Sprintf("ユーザー名は%d〜%d文字で指定してください。", usernameMinLength, usernameMaxLength),
			Category: "validation",
			Action:   "ユーザー名の長さを確認してください。",
		}
	}

	if _, err := mail.ParseAddress(email); err != nil {
		return nil, model.NewInvalidEmailError()
	}

	if apiErr := validatePassword(password); apiErr != nil {
		return nil, apiErr
	}

	hash, err := s.verifier.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	identity := &model.Identity{
		ID:             uuid.New().String(),
		Username:       username,
		Email:          email,
		CredentialHash: hash,
		Tier:           model.TierFree,
		UsageCount:     0,
		CreatedAt:      time.Now(),
	}

	if err := s.repo.Create(ctx, identity); err != nil {
		if errors.Is(err, model.ErrDuplicateUsername) {
			slog.Warn("registration failed: username already exists",
				slog.String("username", username),
			)
			return nil, model.NewDuplicateUsernameError(username)
		}
		return nil, fmt.Errorf("failed to create identity: %w", err)
	}

	slog.Info("identity registered",
		slog.String("identity_id", identity.ID),
		slog.String("username", username),
	)
	return identity, nil
}

// Login は認証情報を検証し、アクセストークンを発行する。
// 認証失敗はmodel.ErrInvalidCredentialsを返す。
// ユーザーの存在有無を区別しないため、どちらの失敗も同じエラーになる。
func (s *Service) Login(ctx context.Context, username, password string) (string, time.Time, error) {
	identity, err := s.repo.FindByUsername(ctx, username)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to find identity: %w", err)
	}
	if identity == nil || !s.verifier.Verify(password, identity.CredentialHash) {
		slog.Warn("login failed", slog.String("username", username))
		return "", time.Time{}, model.ErrInvalidCredentials
	}

	signed, expiresAt, err := s.authority.Issue(identity.ID)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to issue token: %w", err)
	}

	if err := s.repo.UpdateLastAuth(ctx, identity.ID, time.Now()); err != nil {
		return "", time.Time{}, fmt.Errorf("failed to update last auth: %w", err)
	}

	slog.Info("login succeeded",
		slog.String("identity_id", identity.ID),
		slog.String("username", username),
	)
	return signed, expiresAt, nil
}

// GetByID は指定IDのアイデンティティを取得する。
// 見つからない場合はmodel.ErrNotFoundを返す。
func (s *Service) GetByID(ctx context.Context, id string) (*model.Identity, error) {
	identity, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find identity: %w", err)
	}
	if identity == nil {
		return nil, model.ErrNotFound
	}
	return identity, nil
}

// TokenLifetime は発行するトークンの有効期間を返す。
func (s *Service) TokenLifetime() time.Duration {
	return s.authority.Lifetime()
}

// validatePassword はパスワード強度のポリシーを検証する。
// 8文字以上、数字1文字以上、大文字1文字以上。
func validatePassword(password string) *model.APIError {
	if len(password) < passwordMinLength {
		return model.NewWeakPasswordError(fmt.Sprintf("%d文字以上必要です", passwordMinLength))
	}

	var hasDigit, hasUpper bool
	for _, r := range password {
		switch {
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsUpper(r):
			hasUpper = true
		}
	}
	if !hasDigit {
		return model.NewWeakPasswordError("数字を1文字以上含める必要があります")
	}
	if !hasUpper {
		return model.NewWeakPasswordError("大文字を1文字以上含める必要があります")
	}
	return nil
}
