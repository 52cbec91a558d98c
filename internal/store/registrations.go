package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kidzoona/kiosk/internal/domain"
)

const registrationColumns = `id, ticket_number, registered_at, checkout_at, child_count, adult_count,
	children, guardians, playtime_rate, kids_socks, adult_socks, socks_total,
	grand_total, amount_paid, payment_session, status`

// timeLayout is fixed width so stored timestamps sort as text
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Create stores reg as a new active registration and assigns it the next
// ticket number (highest existing + 1, starting at 1). ID, TicketNumber,
// RegisteredAt and Status are filled in on reg.
func (s *Store) Create(ctx context.Context, reg *domain.Registration) error {
	children, err := json.Marshal(nonNil(reg.Children))
	if err != nil {
		return fmt.Errorf("encode children: %w", err)
	}
	guardians, err := json.Marshal(nonNil(reg.Guardians))
	if err != nil {
		return fmt.Errorf("encode guardians: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var ticket int
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(ticket_number), 0) + 1 FROM registrations`).Scan(&ticket); err != nil {
		return fmt.Errorf("next ticket: %w", err)
	}

	id := uuid.NewString()
	registeredAt := s.now().UTC()
	_, err = tx.ExecContext(ctx, `
	INSERT INTO registrations (`+registrationColumns+`)
	VALUES (?, ?, ?, NULL, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, ticket, registeredAt.Format(timeLayout),
		reg.ChildCount, reg.AdultCount, string(children), string(guardians),
		reg.PlaytimeRate, reg.Socks.KidsQty, reg.Socks.AdultsQty, reg.Socks.TotalPrice,
		reg.GrandTotal, reg.AmountPaid, reg.PaymentSession, string(domain.RegistrationActive),
	)
	if err != nil {
		return fmt.Errorf("insert registration: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	reg.ID = id
	reg.TicketNumber = ticket
	reg.RegisteredAt = registeredAt
	reg.CheckoutAt = nil
	reg.Status = domain.RegistrationActive
	return nil
}

// Get retrieves one registration
func (s *Store) Get(ctx context.Context, id string) (*domain.Registration, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+registrationColumns+` FROM registrations WHERE id = ?`, id)
	reg, err := scanRegistration(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return reg, err
}

// List returns all registrations, newest first
func (s *Store) List(ctx context.Context) ([]domain.Registration, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+registrationColumns+` FROM registrations ORDER BY registered_at DESC, ticket_number DESC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	regs := []domain.Registration{}
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, err
		}
		regs = append(regs, *reg)
	}
	return regs, rows.Err()
}

// Checkout marks a registration completed and stamps the checkout time
func (s *Store) Checkout(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE registrations SET status = ?, checkout_at = ? WHERE id = ?`,
		string(domain.RegistrationCompleted), s.now().UTC().Format(timeLayout), id)
	if err != nil {
		return err
	}
	return affectedOne(res)
}

// Delete removes a registration
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM registrations WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return affectedOne(res)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRegistration(sc scanner) (*domain.Registration, error) {
	var (
		reg                 domain.Registration
		registeredAt        string
		checkoutAt          sql.NullString
		children, guardians string
		status              string
	)
	err := sc.Scan(&reg.ID, &reg.TicketNumber, &registeredAt, &checkoutAt,
		&reg.ChildCount, &reg.AdultCount, &children, &guardians,
		&reg.PlaytimeRate, &reg.Socks.KidsQty, &reg.Socks.AdultsQty, &reg.Socks.TotalPrice,
		&reg.GrandTotal, &reg.AmountPaid, &reg.PaymentSession, &status)
	if err != nil {
		return nil, err
	}

	if reg.RegisteredAt, err = time.Parse(time.RFC3339Nano, registeredAt); err != nil {
		return nil, fmt.Errorf("parse registered_at: %w", err)
	}
	if checkoutAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, checkoutAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse checkout_at: %w", err)
		}
		reg.CheckoutAt = &t
	}
	if err := json.Unmarshal([]byte(children), &reg.Children); err != nil {
		return nil, fmt.Errorf("decode children: %w", err)
	}
	if err := json.Unmarshal([]byte(guardians), &reg.Guardians); err != nil {
		return nil, fmt.Errorf("decode guardians: %w", err)
	}
	reg.Status = domain.RegistrationStatus(status)
	return &reg, nil
}

func affectedOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
