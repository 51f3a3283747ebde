package repository

import (
	"context"
	"errors"
	"time"

	"github.com/newsmint/kiosk/internal/customer/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

var conflictKey = []clause.Column{{Name: "tenant_id"}, {Name: "msisdn"}}

func (r *repo) Upsert(ctx context.Context, db *gorm.DB, input domain.UpsertInput, heavyUserThreshold int, now time.Time) error {
	row := &domain.Customer{
		TenantID:         input.TenantID,
		MSISDN:           input.MSISDN,
		Status:           input.Status,
		FirstLandingPage: input.LandingPage,
		LastLandingPage:  input.LandingPage,
		Carrier:          input.Carrier,
		Country:          input.Country,
		TopCampaign:      input.Campaign,
		TopSource:        input.Source,
		TotalVisits:      1,
		HeavyUser:        heavyUserThreshold <= 1,
		FirstSeenAt:      now,
		LastSeenAt:       now,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if input.Status == domain.StatusIdentified {
		row.IdentifiedAt = &now
	}

	assignments := map[string]any{
		"total_visits":       gorm.Expr("customers.total_visits + 1"),
		"heavy_user":         gorm.Expr("CASE WHEN customers.total_visits + 1 >= ? THEN ? ELSE customers.heavy_user END", heavyUserThreshold, true),
		"last_landing_page":  gorm.Expr("CASE WHEN excluded.last_landing_page <> '' THEN excluded.last_landing_page ELSE customers.last_landing_page END"),
		"first_landing_page": gorm.Expr("CASE WHEN customers.first_landing_page = '' THEN excluded.first_landing_page ELSE customers.first_landing_page END"),
		"top_campaign":       gorm.Expr("CASE WHEN customers.top_campaign = '' THEN excluded.top_campaign ELSE customers.top_campaign END"),
		"top_source":         gorm.Expr("CASE WHEN customers.top_source = '' THEN excluded.top_source ELSE customers.top_source END"),
		"carrier":            gorm.Expr("CASE WHEN customers.carrier = '' THEN excluded.carrier ELSE customers.carrier END"),
		"country":            gorm.Expr("CASE WHEN customers.country = '' THEN excluded.country ELSE customers.country END"),
		"last_seen_at":       now,
		"updated_at":         now,
	}
	if input.Status == domain.StatusIdentified {
		// Forward-only: a visitor row upgrades, anything higher stays.
		assignments["status"] = gorm.Expr("CASE WHEN customers.status = 'visitor' THEN 'identified' ELSE customers.status END")
		assignments["identified_at"] = gorm.Expr("COALESCE(customers.identified_at, ?)", now)
	}

	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   conflictKey,
		DoUpdates: clause.Assignments(assignments),
	}).Create(row).Error
}

func (r *repo) ApplyPurchase(ctx context.Context, db *gorm.DB, input domain.PurchaseInput, now time.Time) error {
	row := &domain.Customer{
		TenantID:           input.TenantID,
		MSISDN:             input.MSISDN,
		Status:             domain.StatusCustomer,
		IdentifiedAt:       &now,
		ConvertedAt:        &now,
		FirstPurchaseAt:    &now,
		LastPurchaseAt:     &now,
		TotalPurchases:     1,
		TotalBillingAmount: input.Amount,
		AvgPurchaseValue:   input.Amount,
		FirstSeenAt:        now,
		LastSeenAt:         now,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	// One statement keeps the derived columns consistent with the sums
	// under concurrent purchases: integer average recomputed from the
	// post-increment totals, repurchase count trailing by one.
	assignments := map[string]any{
		"status":               domain.StatusCustomer,
		"identified_at":        gorm.Expr("COALESCE(customers.identified_at, ?)", now),
		"converted_at":         gorm.Expr("COALESCE(customers.converted_at, ?)", now),
		"first_purchase_at":    gorm.Expr("COALESCE(customers.first_purchase_at, ?)", now),
		"last_purchase_at":     now,
		"total_purchases":      gorm.Expr("customers.total_purchases + 1"),
		"total_billing_amount": gorm.Expr("customers.total_billing_amount + ?", input.Amount),
		"avg_purchase_value":   gorm.Expr("(customers.total_billing_amount + ?) / (customers.total_purchases + 1)", input.Amount),
		"repurchase_count":     gorm.Expr("customers.total_purchases"),
		"last_seen_at":         now,
		"updated_at":           now,
	}

	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   conflictKey,
		DoUpdates: clause.Assignments(assignments),
	}).Create(row).Error
}

func (r *repo) MergeActivity(ctx context.Context, db *gorm.DB, tenantID int64, msisdn, landingPage, sessionID string, ringCap int, now time.Time) error {
	if ringCap <= 0 {
		ringCap = 100
	}
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var c domain.Customer
		err := tx.Where("tenant_id = ? AND msisdn = ?", tenantID, msisdn).First(&c).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}

		if landingPage != "" && !containsString(c.LandingPages, landingPage) {
			c.LandingPages = append(c.LandingPages, landingPage)
		}
		if sessionID != "" {
			last := len(c.RecentSessions) - 1
			if last < 0 || c.RecentSessions[last] != sessionID {
				c.RecentSessions = trimRing(append(c.RecentSessions, sessionID), ringCap)
			}
		}
		c.RecentVisits = trimRing(append(c.RecentVisits, now.Unix()), ringCap)

		return tx.Model(&domain.Customer{}).
			Where("tenant_id = ? AND msisdn = ?", tenantID, msisdn).
			Updates(map[string]any{
				"landing_pages":   c.LandingPages,
				"recent_sessions": c.RecentSessions,
				"recent_visits":   c.RecentVisits,
				"updated_at":      now,
			}).Error
	})
}

func (r *repo) FindByMSISDN(ctx context.Context, db *gorm.DB, tenantID int64, msisdn string) (*domain.Customer, error) {
	var c domain.Customer
	err := db.WithContext(ctx).
		Where("tenant_id = ? AND msisdn = ?", tenantID, msisdn).
		First(&c).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

func (r *repo) LandingPageStats(ctx context.Context, db *gorm.DB, tenantID int64, slug string) (*domain.LandingPageStats, error) {
	var agg struct {
		Visitors     int64
		Identified   int64
		Customers    int64
		Revenue      int64
		Purchases    int64
		Repurchasers int64
	}

	// Membership in the visited set is matched on the serialized JSON
	// array; slugs contain no quote characters.
	err := db.WithContext(ctx).
		Model(&domain.Customer{}).
		Select(`count(*) as visitors,
			coalesce(sum(CASE WHEN status IN ('identified', 'customer') THEN 1 ELSE 0 END), 0) as identified,
			coalesce(sum(CASE WHEN status = 'customer' THEN 1 ELSE 0 END), 0) as customers,
			coalesce(sum(total_billing_amount), 0) as revenue,
			coalesce(sum(total_purchases), 0) as purchases,
			coalesce(sum(CASE WHEN repurchase_count > 0 THEN 1 ELSE 0 END), 0) as repurchasers`).
		Where("tenant_id = ?", tenantID).
		Where("first_landing_page = ? OR last_landing_page = ? OR landing_pages LIKE ?",
			slug, slug, `%"`+slug+`"%`).
		Scan(&agg).Error
	if err != nil {
		return nil, err
	}

	stats := &domain.LandingPageStats{
		Slug:           slug,
		Visitors:       agg.Visitors,
		Identified:     agg.Identified,
		Customers:      agg.Customers,
		Revenue:        agg.Revenue,
		TotalPurchases: agg.Purchases,
	}
	if agg.Visitors > 0 {
		stats.ConversionRate = float64(agg.Customers) / float64(agg.Visitors)
	}
	if agg.Customers > 0 {
		stats.RepurchaseRate = float64(agg.Repurchasers) / float64(agg.Customers)
	}
	if agg.Purchases > 0 {
		stats.AverageOrderValue = agg.Revenue / agg.Purchases
	}
	return stats, nil
}

func containsString(list []string, want string) bool {
	for _, v := range list {
		if v == want {
			return true
		}
	}
	return false
}

func trimRing[T any](ring []T, limit int) []T {
	if len(ring) <= limit {
		return ring
	}
	return ring[len(ring)-limit:]
}
