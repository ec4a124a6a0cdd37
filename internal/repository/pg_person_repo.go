package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/notifyhub/notification-pipeline/internal/domain"
)

type pgPersonRepository struct {
	pool *pgxpool.Pool
}

// NewPgPersonRepository returns a PersonRepository backed by PostgreSQL.
func NewPgPersonRepository(pool *pgxpool.Pool) PersonRepository {
	return &pgPersonRepository{pool: pool}
}

func (r *pgPersonRepository) GetContactAddress(ctx context.Context, personID string, ch domain.Channel) (domain.ContactAddress, error) {
	var email, phone, device *string
	err := r.pool.QueryRow(ctx,
		`SELECT email, phone, device_endpoint FROM people WHERE id = $1`, personID,
	).Scan(&email, &phone, &device)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ContactAddress{}, fmt.Errorf("person %s: %w", personID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.ContactAddress{}, fmt.Errorf("get person %s: %w", personID, err)
	}

	return pickAddress(personID, ch, email, phone, device)
}

func pickAddress(personID string, ch domain.Channel, email, phone, device *string) (domain.ContactAddress, error) {
	var addr *string
	switch ch {
	case domain.ChannelEmail:
		addr = email
	case domain.ChannelWhatsApp:
		addr = phone
	case domain.ChannelApp:
		addr = device
	default:
		return domain.ContactAddress{}, fmt.Errorf("%w: %s", domain.ErrUnsupportedChannel, ch)
	}

	if addr == nil || strings.TrimSpace(*addr) == "" {
		return domain.ContactAddress{}, fmt.Errorf("person %s has no %s address: %w", personID, ch, domain.ErrNotFound)
	}
	return domain.ContactAddress{Address: strings.TrimSpace(*addr), Kind: domain.AddressKindFor(ch)}, nil
}
