package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"tallybook.io/internal/obs"
)

// smoke drives a running API through login, session verify and an expense
// booking, then checks the ledger row it produced.
type smoke struct {
	base    string
	http    *http.Client
	session []*http.Cookie
}

func main() {
	_ = godotenv.Load()
	log := obs.Log()

	s := &smoke{
		base: strings.TrimRight(env("TALLYBOOK_URL", "http://localhost:8080"), "/"),
		http: &http.Client{Timeout: 10 * time.Second},
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.run(ctx); err != nil {
		log.WithError(err).Fatal("smoke test failed")
	}
	log.WithField("url", s.base).Info("smoke test passed")
}

func (s *smoke) run(ctx context.Context) error {
	if _, err := s.call(ctx, http.MethodGet, "/healthz", nil, http.StatusOK); err != nil {
		return err
	}

	login, err := s.call(ctx, http.MethodPost, "/auth/login", map[string]string{
		"email":    os.Getenv("SMOKE_EMAIL"),
		"password": os.Getenv("SMOKE_PASSWORD"),
	}, http.StatusOK)
	if err != nil {
		return err
	}
	var who struct {
		Role   string `json:"role"`
		Unique string `json:"unique"`
	}
	if err := json.Unmarshal(login, &who); err != nil {
		return fmt.Errorf("decode login: %w", err)
	}
	obs.Log().WithFields(logrus.Fields{"user": who.Unique, "role": who.Role}).Info("logged in")

	if _, err := s.call(ctx, http.MethodPost, "/auth/verify", nil, http.StatusOK); err != nil {
		return err
	}

	amount, rate := decimal.RequireFromString("12.34"), decimal.RequireFromString("1.5")
	raw, err := s.call(ctx, http.MethodPost, "/transactions/expense", map[string]any{
		"description":   fmt.Sprintf("smoke-%d", time.Now().Unix()),
		"currency_id":   os.Getenv("SMOKE_CURRENCY_ID"),
		"account_id":    os.Getenv("SMOKE_ACCOUNT_ID"),
		"amount":        amount.String(),
		"exchange_rate": rate.String(),
	}, http.StatusCreated)
	if err != nil {
		return err
	}
	var booked struct {
		Transaction struct {
			ID     string          `json:"id"`
			Debit  decimal.Decimal `json:"debit"`
			Credit decimal.Decimal `json:"credit"`
		} `json:"transaction"`
	}
	if err := json.Unmarshal(raw, &booked); err != nil {
		return fmt.Errorf("decode expense: %w", err)
	}
	want := amount.Mul(rate).Round(2)
	if !booked.Transaction.Debit.Equal(want) || !booked.Transaction.Credit.IsZero() {
		return fmt.Errorf("expense booked debit=%s credit=%s, want debit=%s",
			booked.Transaction.Debit, booked.Transaction.Credit, want)
	}

	raw, err = s.call(ctx, http.MethodGet, "/transactions", nil, http.StatusOK)
	if err != nil {
		return err
	}
	var ledger []struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &ledger); err != nil {
		return fmt.Errorf("decode transactions: %w", err)
	}
	for _, row := range ledger {
		if row.ID == booked.Transaction.ID {
			return nil
		}
	}
	return fmt.Errorf("transaction %s missing from ledger listing", booked.Transaction.ID)
}

// call sends body as JSON with the current session cookies and checks the
// status. Session cookies in the response replace the stored ones.
func (s *smoke) call(ctx context.Context, method, path string, body any, want int) ([]byte, error) {
	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		rd = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.base+path, rd)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range s.session {
		req.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != want {
		return nil, fmt.Errorf("%s %s: status %d, want %d: %s", method, path, resp.StatusCode, want, raw)
	}
	s.keep(resp.Cookies())
	return raw, nil
}

func (s *smoke) keep(cookies []*http.Cookie) {
	for _, c := range cookies {
		replaced := false
		for i, old := range s.session {
			if old.Name == c.Name {
				s.session[i] = c
				replaced = true
			}
		}
		if !replaced {
			s.session = append(s.session, c)
		}
	}
}

func env(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
