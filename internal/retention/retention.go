package retention

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Retention policy shared by the ingest, archive and query paths. These
// values are a regulatory contract: the hot tier stays queryable for 90
// days, the cold tier keeps an immutable copy for 7 years.
const (
	HotTTL             = 90 * 24 * time.Hour
	ColdRetentionYears = 7
)

// GenesisSignature is the prev_signature of an organization's first-ever
// entry. Part of the signing wire contract, never change it.
const GenesisSignature = "0000000000000000000000000000000000000000000000000000000000000000"

// ExpiresAt returns the hot-tier expiry instant for an entry written at t.
func ExpiresAt(writtenAt time.Time) time.Time {
	return writtenAt.Add(HotTTL)
}

// ColdRetainUntil returns the earliest instant a cold object archived at
// t may be deleted.
func ColdRetainUntil(archivedAt time.Time) time.Time {
	return archivedAt.AddDate(ColdRetentionYears, 0, 0)
}

// ArchiveKey derives the cold-storage object key from the entry's event
// timestamp, not the archive time, so the location is reproducible no
// matter when archival actually ran.
func ArchiveKey(orgID string, eventTime time.Time, logID uuid.UUID) string {
	t := eventTime.UTC()
	return fmt.Sprintf("%s/%04d/%02d/%02d/%s.json", orgID, t.Year(), t.Month(), t.Day(), logID)
}
