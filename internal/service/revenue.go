package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"rbx-valuation-api/internal/model"
	"rbx-valuation-api/internal/roblox"
)

var perPageSteps = []int{10, 25, 50, 100}

// QuantizePerPage rounds n up to the nearest supported page size.
func QuantizePerPage(n int) int {
	for _, step := range perPageSteps {
		if n <= step {
			return step
		}
	}
	return perPageSteps[len(perPageSteps)-1]
}

func cursorKey(userID int64, perPage int) string {
	return fmt.Sprintf("rev:cursor:%d:pp%d", userID, perPage)
}

// GetRevenue returns one page of the user's sales. encCookie is the stored,
// encrypted session cookie. Missing or rejected credentials are reported in
// RevenuePage.Error rather than as an error.
//
// Page start cursors are kept in a stack under rev:cursor:{uid}:pp{pp}:
// entry i is the cursor that starts page i+1, entry 0 is nil.
func (s *ValuationService) GetRevenue(ctx context.Context, userID int64, encCookie string, page, perPage int) (*model.RevenuePage, error) {
	pp := QuantizePerPage(perPage)
	if page < 1 {
		page = 1
	}
	out := &model.RevenuePage{
		UserID:       userID,
		Page:         page,
		PerPage:      pp,
		Transactions: []model.Transaction{},
	}

	cookie, err := s.vault.Decrypt(encCookie)
	if err != nil || cookie == "" {
		out.Error = AuthRequired
		return out, nil
	}

	key := cursorKey(userID, pp)
	unlock, err := s.locks.Lock(ctx, key)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var stack []*string
	if !s.cachedJSON(ctx, key, &stack) || len(stack) == 0 {
		stack = []*string{nil}
	}

	save := func() {
		if err := s.cache.SetJSON(ctx, key, stack, s.cfg.CursorTTL); err != nil {
			s.log.Warn("cursor stack write failed", zap.Int64("user_id", userID), zap.Error(err))
		}
	}

	fetch := func(p int) (*roblox.TransactionPage, error) {
		cursor := ""
		if c := stack[p-1]; c != nil {
			cursor = *c
		}
		return s.upstream.FetchTransactions(ctx, userID, cookie, pp, cursor)
	}

	// Walk forward until the start cursor of the requested page is known.
	for len(stack) < page {
		known := len(stack)
		tp, err := fetch(known)
		if err != nil {
			save()
			return s.revenueError(out, err)
		}
		if tp.NextCursor == nil {
			save()
			return out, nil
		}
		stack = append(stack, tp.NextCursor)
	}

	tp, err := fetch(page)
	if err != nil {
		save()
		return s.revenueError(out, err)
	}
	if tp.NextCursor != nil && len(stack) == page {
		stack = append(stack, tp.NextCursor)
	}
	save()

	out.Transactions = tp.Transactions
	out.HasNext = tp.NextCursor != nil
	for _, t := range tp.Transactions {
		out.PageTotal += t.Amount
	}
	return out, nil
}

func (s *ValuationService) revenueError(out *model.RevenuePage, err error) (*model.RevenuePage, error) {
	if errors.Is(err, roblox.ErrAuthRequired) {
		out.Error = AuthRequired
		return out, nil
	}
	return nil, err
}
