package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"rbx-valuation-api/internal/model"
)

const (
	bucketAccounts = "account:"
	bucketCookies  = "cookie:"
	bucketEvents   = "event:"
)

// AccountStore keeps linked accounts, encrypted session cookies and an
// append-only event log per bot user on top of a KV.
type AccountStore struct {
	kv  KV
	now func() time.Time
}

// NewAccountStore creates an account store.
func NewAccountStore(kv KV) *AccountStore {
	return &AccountStore{kv: kv, now: time.Now}
}

// KV returns the underlying store.
func (s *AccountStore) KV() KV {
	return s.kv
}

func userKey(userID int64) string {
	return strconv.FormatInt(userID, 10)
}

// SaveAccount inserts or replaces a linked account.
func (s *AccountStore) SaveAccount(ctx context.Context, acc model.LinkedAccount) error {
	data, err := json.Marshal(acc)
	if err != nil {
		return fmt.Errorf("failed to encode account: %w", err)
	}
	return s.kv.Put(ctx, bucketAccounts+acc.BotUserID, userKey(acc.UserID), data)
}

// GetAccount returns one linked account, or ErrNotFound.
func (s *AccountStore) GetAccount(ctx context.Context, botUserID string, userID int64) (*model.LinkedAccount, error) {
	data, err := s.kv.Get(ctx, bucketAccounts+botUserID, userKey(userID))
	if err != nil {
		return nil, err
	}
	var acc model.LinkedAccount
	if err := json.Unmarshal(data, &acc); err != nil {
		return nil, fmt.Errorf("failed to decode account: %w", err)
	}
	return &acc, nil
}

// ListAccounts returns the accounts linked by a bot user, oldest link first.
func (s *AccountStore) ListAccounts(ctx context.Context, botUserID string) ([]model.LinkedAccount, error) {
	entries, err := s.kv.List(ctx, bucketAccounts+botUserID, "")
	if err != nil {
		return nil, err
	}

	out := make([]model.LinkedAccount, 0, len(entries))
	for _, e := range entries {
		var acc model.LinkedAccount
		if err := json.Unmarshal(e.Value, &acc); err != nil {
			continue
		}
		out = append(out, acc)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].LinkedAt.Before(out[j].LinkedAt) })
	return out, nil
}

// DeleteAccount removes a linked account and its cookie.
func (s *AccountStore) DeleteAccount(ctx context.Context, botUserID string, userID int64) error {
	if _, err := s.GetAccount(ctx, botUserID, userID); err != nil {
		return err
	}
	if err := s.kv.Delete(ctx, bucketCookies+botUserID, userKey(userID)); err != nil {
		return err
	}
	return s.kv.Delete(ctx, bucketAccounts+botUserID, userKey(userID))
}

// SaveCookie stores an encrypted session cookie.
func (s *AccountStore) SaveCookie(ctx context.Context, botUserID string, userID int64, encrypted string) error {
	return s.kv.Put(ctx, bucketCookies+botUserID, userKey(userID), []byte(encrypted))
}

// GetCookie returns the encrypted session cookie, or ErrNotFound.
func (s *AccountStore) GetCookie(ctx context.Context, botUserID string, userID int64) (string, error) {
	data, err := s.kv.Get(ctx, bucketCookies+botUserID, userKey(userID))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// DeleteCookie removes the stored cookie.
func (s *AccountStore) DeleteCookie(ctx context.Context, botUserID string, userID int64) error {
	return s.kv.Delete(ctx, bucketCookies+botUserID, userKey(userID))
}

// AppendEvent records an opaque event. Ids are UUIDv7 so key order is time order.
func (s *AccountStore) AppendEvent(ctx context.Context, botUserID, kind string, payload any) (*model.Event, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate event id: %w", err)
	}

	ev := model.Event{
		ID:        id.String(),
		BotUserID: botUserID,
		Kind:      kind,
		CreatedAt: s.now().UTC(),
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode event payload: %w", err)
		}
		ev.Payload = raw
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("failed to encode event: %w", err)
	}
	if err := s.kv.Put(ctx, bucketEvents+botUserID, ev.ID, data); err != nil {
		return nil, err
	}
	return &ev, nil
}

// ListEvents returns up to limit events, newest first. limit <= 0 returns all.
func (s *AccountStore) ListEvents(ctx context.Context, botUserID string, limit int) ([]model.Event, error) {
	entries, err := s.kv.List(ctx, bucketEvents+botUserID, "")
	if err != nil {
		return nil, err
	}

	out := make([]model.Event, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		var ev model.Event
		if err := json.Unmarshal(entries[i].Value, &ev); err != nil {
			continue
		}
		out = append(out, ev)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// IsNotFound reports whether err is ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
