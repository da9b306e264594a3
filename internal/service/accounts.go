package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"rbx-valuation-api/internal/model"
	"rbx-valuation-api/internal/repository"
	"rbx-valuation-api/internal/secret"
)

// ProfileFetcher resolves a user's public profile.
type ProfileFetcher interface {
	FetchPublicProfile(ctx context.Context, userID int64) (*model.PublicProfile, error)
}

// AccountService links external accounts to bot users and keeps their
// session cookies encrypted at rest.
type AccountService struct {
	store    *repository.AccountStore
	vault    *secret.Vault
	profiles ProfileFetcher
	log      *zap.Logger
}

// NewAccountService creates an account service.
func NewAccountService(store *repository.AccountStore, vault *secret.Vault, profiles ProfileFetcher, logger *zap.Logger) *AccountService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccountService{
		store:    store,
		vault:    vault,
		profiles: profiles,
		log:      logger.Named("accounts"),
	}
}

// Link records a linked account. A non-empty cookie is encrypted and stored.
func (s *AccountService) Link(ctx context.Context, botUserID string, userID int64, cookie string) (*model.LinkedAccount, error) {
	profile, err := s.profiles.FetchPublicProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	acc := model.LinkedAccount{
		BotUserID:   botUserID,
		UserID:      userID,
		Username:    profile.Name,
		DisplayName: profile.DisplayName,
		LinkedAt:    time.Now().UTC(),
	}
	if existing, err := s.store.GetAccount(ctx, botUserID, userID); err == nil {
		acc.LinkedAt = existing.LinkedAt
		acc.HasCookie = existing.HasCookie
	}

	if cookie != "" {
		enc, err := s.vault.Encrypt(cookie)
		if err != nil {
			return nil, err
		}
		if err := s.store.SaveCookie(ctx, botUserID, userID, enc); err != nil {
			return nil, err
		}
		acc.HasCookie = true
	}

	if err := s.store.SaveAccount(ctx, acc); err != nil {
		return nil, err
	}
	s.event(ctx, botUserID, "link", map[string]any{"userId": userID, "hasCookie": acc.HasCookie})
	s.log.Info("account linked", zap.String("bot_user_id", botUserID), zap.Int64("user_id", userID))
	return &acc, nil
}

// Unlink removes a linked account and its cookie.
func (s *AccountService) Unlink(ctx context.Context, botUserID string, userID int64) error {
	if err := s.store.DeleteAccount(ctx, botUserID, userID); err != nil {
		return err
	}
	s.event(ctx, botUserID, "unlink", map[string]any{"userId": userID})
	return nil
}

// Accounts lists the accounts of a bot user.
func (s *AccountService) Accounts(ctx context.Context, botUserID string) ([]model.LinkedAccount, error) {
	return s.store.ListAccounts(ctx, botUserID)
}

// EncryptedCookie returns the stored ciphertext, or "" when none is stored.
func (s *AccountService) EncryptedCookie(ctx context.Context, botUserID string, userID int64) (string, error) {
	enc, err := s.store.GetCookie(ctx, botUserID, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return "", nil
	}
	return enc, err
}

// Cookie returns the decrypted cookie. A cookie that no longer decrypts is
// deleted and reported as ErrAuthRequired.
func (s *AccountService) Cookie(ctx context.Context, botUserID string, userID int64) (string, error) {
	enc, err := s.EncryptedCookie(ctx, botUserID, userID)
	if err != nil {
		return "", err
	}
	if enc == "" {
		return "", ErrAuthRequired
	}

	cookie, err := s.vault.Decrypt(enc)
	if err != nil || cookie == "" {
		s.log.Warn("stored cookie unreadable, dropping", zap.String("bot_user_id", botUserID), zap.Int64("user_id", userID))
		s.ForgetCookie(ctx, botUserID, userID)
		return "", ErrAuthRequired
	}
	return cookie, nil
}

// ForgetCookie deletes the stored cookie and clears the account flag.
func (s *AccountService) ForgetCookie(ctx context.Context, botUserID string, userID int64) {
	if err := s.store.DeleteCookie(ctx, botUserID, userID); err != nil {
		s.log.Warn("cookie delete failed", zap.Error(err))
	}
	if acc, err := s.store.GetAccount(ctx, botUserID, userID); err == nil && acc.HasCookie {
		acc.HasCookie = false
		if err := s.store.SaveAccount(ctx, *acc); err != nil {
			s.log.Warn("account update failed", zap.Error(err))
		}
	}
	s.event(ctx, botUserID, "cookie_dropped", map[string]any{"userId": userID})
}

// Events returns the most recent events of a bot user.
func (s *AccountService) Events(ctx context.Context, botUserID string, limit int) ([]model.Event, error) {
	return s.store.ListEvents(ctx, botUserID, limit)
}

// RecordEvent appends an event; failures are logged only.
func (s *AccountService) RecordEvent(ctx context.Context, botUserID, kind string, payload any) {
	s.event(ctx, botUserID, kind, payload)
}

func (s *AccountService) event(ctx context.Context, botUserID, kind string, payload any) {
	if _, err := s.store.AppendEvent(ctx, botUserID, kind, payload); err != nil {
		s.log.Warn("event append failed", zap.String("kind", kind), zap.Error(err))
	}
}
