package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/guestsync/pkg/models"
)

// Property/listing registry surface. Reads are lookups by id and external
// listing id; the only write is persisting a listing<->transport binding once
// discovery has matched a remote listing, so later passes skip the heuristic.

// PropertiesByHost returns a host's listings in creation order.
func (s *Store) PropertiesByHost(ctx context.Context, hostID int64) ([]*models.Property, error) {
	query := `
	SELECT id, host_id, name, external_listing_id, pms_enabled, automation_enabled
	FROM properties
	WHERE host_id = $1
	ORDER BY id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, hostID)
	if err != nil {
		return nil, fmt.Errorf("failed to list properties: %w", err)
	}
	defer rows.Close()

	var properties []*models.Property
	for rows.Next() {
		prop, err := scanProperty(rows)
		if err != nil {
			return nil, err
		}
		properties = append(properties, prop)
	}
	return properties, rows.Err()
}

// PropertyByID retrieves a single property.
func (s *Store) PropertyByID(ctx context.Context, id int64) (*models.Property, error) {
	query := `
	SELECT id, host_id, name, external_listing_id, pms_enabled, automation_enabled
	FROM properties
	WHERE id = $1
	`
	prop, err := scanProperty(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("property not found: %d", id)
	}
	return prop, err
}

// PropertyByExternalListingID looks a property up by its remote listing id.
func (s *Store) PropertyByExternalListingID(ctx context.Context, externalID string) (*models.Property, error) {
	query := `
	SELECT id, host_id, name, external_listing_id, pms_enabled, automation_enabled
	FROM properties
	WHERE external_listing_id = $1
	`
	prop, err := scanProperty(s.db.QueryRowContext(ctx, query, externalID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return prop, err
}

// SaveListingBinding persists the discovered external listing id for a local
// property. Bindings are only ever created or improved, never destroyed.
func (s *Store) SaveListingBinding(ctx context.Context, listingID int64, externalListingID string) error {
	query := `
	UPDATE properties
	SET external_listing_id = $2, updated_at = NOW()
	WHERE id = $1
	`
	if _, err := s.db.ExecContext(ctx, query, listingID, externalListingID); err != nil {
		return fmt.Errorf("failed to save listing binding: %w", err)
	}
	log.Info().
		Int64("listing_id", listingID).
		Str("external_listing_id", externalListingID).
		Msg("listing binding persisted")
	return nil
}

// LatestBookingForListing returns the most recent booking for a listing, or
// nil when none is known. The delivery router uses it to decide whether the
// PMS channel is eligible.
func (s *Store) LatestBookingForListing(ctx context.Context, listingID int64) (*models.Booking, error) {
	query := `
	SELECT id, listing_id, guest_name, check_in, check_out
	FROM bookings
	WHERE listing_id = $1
	ORDER BY check_in DESC NULLS LAST
	LIMIT 1
	`
	var booking models.Booking
	var checkIn, checkOut sql.NullTime
	err := s.db.QueryRowContext(ctx, query, listingID).Scan(
		&booking.ID, &booking.ListingID, &booking.GuestName, &checkIn, &checkOut,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	if checkIn.Valid {
		booking.CheckIn = checkIn.Time
	}
	if checkOut.Valid {
		booking.CheckOut = checkOut.Time
	}
	return &booking, nil
}

func scanProperty(row rowScanner) (*models.Property, error) {
	var prop models.Property
	var externalID sql.NullString
	err := row.Scan(&prop.ID, &prop.HostID, &prop.Name, &externalID, &prop.PMSEnabled, &prop.AutomationEnabled)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan property: %w", err)
	}
	if externalID.Valid {
		prop.ExternalListingID = &externalID.String
	}
	return &prop, nil
}
