package clientdata

import "time"

// TTL constants for different data types.
// These are added to time.Now() when storing to calculate expires_at.
const (
	// Stable reference data (rarely changes)
	TTLSector = 30 * 24 * time.Hour // 30 days - Sector classification rarely changes

	// Quarterly financial data (updates with filings)
	TTLAnnualRevenue = 45 * 24 * time.Hour // 45 days - Annual revenue from quarterly filings

	// Daily data
	TTLDailyBars = 24 * time.Hour // 1 day - Daily bar history for volatility estimates

	// Short-lived data (changes frequently)
	TTLCurrentPrice = 10 * time.Minute // 10 minutes - Current price cache for batch operations
)
