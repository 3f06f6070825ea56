// Package resolver decides, per listing, which transport is authoritative
// for a host's conversations, discovering remote listing bindings when none
// are stored yet.
package resolver

import (
	"context"
	"strings"
	"unicode"

	"github.com/rs/zerolog/log"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/guestsync/internal/logging"
	"github.com/guestsync/internal/platform"
	"github.com/guestsync/internal/store"
	"github.com/guestsync/internal/syncerrors"
	"github.com/guestsync/pkg/models"
)

// Resolver maps a host's local properties onto remote listings and
// transports.
type Resolver struct {
	store        *store.Store
	pmsAvailable bool
}

// New creates a resolver. pmsAvailable reflects whether a credentialed PMS
// integration is configured at all; per-listing PMS eligibility still
// depends on the property record.
func New(st *store.Store, pmsAvailable bool) *Resolver {
	return &Resolver{store: st, pmsAvailable: pmsAvailable}
}

// Resolve returns the set of listings to synchronize for a host.
//
// A stored external listing id is authoritative. Properties without a
// binding fall back to enumerating the listings visible to the automated
// session and matching them by normalized-name containment; a successful
// match persists the binding so future passes skip the heuristic. Direct
// host<->guest conversations (outside any listing) always get a work item
// anchored to the host's first listing.
func (r *Resolver) Resolve(ctx context.Context, hostID int64, client *platform.Client, passLog *logging.SyncLogger) ([]models.ResolvedListing, error) {
	properties, err := r.store.PropertiesByHost(ctx, hostID)
	if err != nil {
		return nil, err
	}
	if len(properties) == 0 {
		passLog.Log("host %d has no properties, nothing to resolve", hostID)
		return nil, nil
	}

	var resolved []models.ResolvedListing
	var unbound []*models.Property

	for _, prop := range properties {
		if prop.ExternalListingID != nil && *prop.ExternalListingID != "" {
			resolved = append(resolved, models.ResolvedListing{
				ListingID:         prop.ID,
				ExternalListingID: *prop.ExternalListingID,
				Transport:         r.transportFor(prop),
			})
			continue
		}
		unbound = append(unbound, prop)
	}

	if len(unbound) > 0 && client != nil {
		discovered, err := r.discoverBindings(ctx, unbound, client, passLog)
		if err != nil {
			if syncerrors.IsSessionExpired(err) {
				return resolved, err
			}
			// Enumeration failure yields zero discovered listings for this
			// pass; already-bound listings still sync.
			passLog.LogError("listing enumeration", err)
		}
		resolved = append(resolved, discovered...)
	}

	// Direct conversations have no listing context of their own; the host's
	// first listing serves as the default anchor.
	if client != nil {
		resolved = append(resolved, models.ResolvedListing{
			ListingID:    properties[0].ID,
			Transport:    models.TransportBrowserAutomation,
			DirectThread: true,
		})
	}

	return resolved, nil
}

func (r *Resolver) transportFor(prop *models.Property) models.TransportType {
	if r.pmsAvailable && prop.PMSEnabled {
		return models.TransportPMSAPI
	}
	return models.TransportBrowserAutomation
}

// discoverBindings enumerates remote listings and matches them to unbound
// local properties by name.
func (r *Resolver) discoverBindings(ctx context.Context, unbound []*models.Property, client *platform.Client, passLog *logging.SyncLogger) ([]models.ResolvedListing, error) {
	remote, err := client.FetchListings(ctx)
	if err != nil {
		return nil, err
	}
	passLog.Log("enumerated %d remote listings for %d unbound properties", len(remote), len(unbound))

	var resolved []models.ResolvedListing
	for _, prop := range unbound {
		match := matchListing(prop.Name, remote)
		if match == nil {
			passLog.Log("no remote listing matched property %d (%s)", prop.ID, prop.Name)
			continue
		}

		if err := r.store.SaveListingBinding(ctx, prop.ID, match.ID); err != nil {
			// The match still drives this pass; only the speedup for future
			// passes is lost.
			log.Warn().Err(err).Int64("listing_id", prop.ID).Msg("binding persistence failed")
		}

		resolved = append(resolved, models.ResolvedListing{
			ListingID:         prop.ID,
			ExternalListingID: match.ID,
			Transport:         r.transportFor(prop),
		})
	}
	return resolved, nil
}

// matchListing finds a remote listing whose normalized name contains, or is
// contained by, the property's normalized name.
func matchListing(propertyName string, remote []platform.RawListing) *platform.RawListing {
	want := NormalizeName(propertyName)
	if want == "" {
		return nil
	}
	for i := range remote {
		got := NormalizeName(remote[i].Name)
		if got == "" {
			continue
		}
		if strings.Contains(got, want) || strings.Contains(want, got) {
			return &remote[i]
		}
	}
	return nil
}

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// NormalizeName case-folds, strips diacritics and drops everything that is
// not a letter or digit, so "Côte d'Azur – Loft #2" and "cote dazur loft 2"
// compare equal under containment.
func NormalizeName(name string) string {
	stripped, _, err := transform.String(stripMarks, name)
	if err != nil {
		stripped = name
	}

	var b strings.Builder
	for _, r := range strings.ToLower(stripped) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
