package service

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"github.com/stockflow/stockflow-backend/internal/catalog/events"
	"github.com/stockflow/stockflow-backend/internal/catalog/repository"
	"github.com/stockflow/stockflow-backend/pkg/database"
	"github.com/stockflow/stockflow-backend/pkg/logger"
	"github.com/stockflow/stockflow-backend/pkg/tenant"

	"github.com/shopspring/decimal"
)

// SourceRecord is one product row from an external source listing
type SourceRecord struct {
	SKU          string              `json:"sku"`
	Name         string              `json:"name"`
	Description  *string             `json:"description,omitempty"`
	Category     *string             `json:"category,omitempty"`
	Unit         *string             `json:"unit,omitempty"`
	UnitPrice    decimal.NullDecimal `json:"unit_price,omitempty"`
	UnitCost     decimal.NullDecimal `json:"unit_cost,omitempty"`
	MinQuantity  int                 `json:"min_quantity"`
	MaxQuantity  *int                `json:"max_quantity,omitempty"`
	ReorderPoint *int                `json:"reorder_point,omitempty"`
	SupplierID   *string             `json:"preferred_supplier_id,omitempty"`
	BatchTracked bool                `json:"batch_tracked"`
	Active       bool                `json:"active"`
}

// FieldConflict records a field where the two sources disagreed.
// The primary source's value is kept.
type FieldConflict struct {
	SKU       string `json:"sku"`
	Field     string `json:"field"`
	Kept      string `json:"kept"`
	Discarded string `json:"discarded"`
}

// SkippedRecord is a source row that could not be merged
type SkippedRecord struct {
	Source string `json:"source"`
	SKU    string `json:"sku"`
	Reason string `json:"reason"`
}

// MergeResult is the outcome of merging two source listings
type MergeResult struct {
	Products  []SourceRecord  `json:"products"`
	Conflicts []FieldConflict `json:"conflicts"`
	Skipped   []SkippedRecord `json:"skipped"`

	// MergedBoth counts SKUs present in both sources
	MergedBoth int `json:"merged_both"`
	// ImportedFromSecondary counts SKUs present only in the secondary source
	ImportedFromSecondary int `json:"imported_from_secondary"`
}

// NormalizeSKU canonicalizes a SKU for matching across sources
func NormalizeSKU(sku string) string {
	return strings.ToUpper(strings.TrimSpace(sku))
}

func validateRecord(source string, rec SourceRecord) *SkippedRecord {
	if NormalizeSKU(rec.SKU) == "" {
		return &SkippedRecord{Source: source, SKU: rec.SKU, Reason: "empty sku"}
	}
	if strings.TrimSpace(rec.Name) == "" {
		return &SkippedRecord{Source: source, SKU: rec.SKU, Reason: "empty name"}
	}
	if rec.MinQuantity < 0 {
		return &SkippedRecord{Source: source, SKU: rec.SKU, Reason: "negative min quantity"}
	}
	if rec.MaxQuantity != nil && *rec.MaxQuantity < rec.MinQuantity {
		return &SkippedRecord{Source: source, SKU: rec.SKU, Reason: "max quantity below min quantity"}
	}
	return nil
}

// indexSource validates and keys a source listing by normalized SKU.
// The first occurrence of a duplicate SKU wins; later ones are skipped.
func indexSource(source string, records []SourceRecord, skipped *[]SkippedRecord) map[string]SourceRecord {
	out := make(map[string]SourceRecord, len(records))
	for _, rec := range records {
		if s := validateRecord(source, rec); s != nil {
			*skipped = append(*skipped, *s)
			continue
		}
		key := NormalizeSKU(rec.SKU)
		if _, exists := out[key]; exists {
			*skipped = append(*skipped, SkippedRecord{Source: source, SKU: rec.SKU, Reason: "duplicate sku within source"})
			continue
		}
		rec.SKU = key
		out[key] = rec
	}
	return out
}

func strOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func intOrZero(n *int) int {
	if n == nil {
		return 0
	}
	return *n
}

func decOrEmpty(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return d.Decimal.String()
}

// mergePair combines the primary and secondary rows for one SKU.
// The primary's values win on every populated field; fields the primary
// leaves empty are filled from the secondary without a conflict.
func mergePair(a, b SourceRecord, conflicts *[]FieldConflict) SourceRecord {
	merged := a

	if strings.TrimSpace(a.Name) != strings.TrimSpace(b.Name) {
		*conflicts = append(*conflicts, FieldConflict{SKU: a.SKU, Field: "name", Kept: a.Name, Discarded: b.Name})
	}

	if a.Description == nil {
		merged.Description = b.Description
	} else if b.Description != nil && strOrEmpty(a.Description) != strOrEmpty(b.Description) {
		*conflicts = append(*conflicts, FieldConflict{SKU: a.SKU, Field: "description", Kept: strOrEmpty(a.Description), Discarded: strOrEmpty(b.Description)})
	}

	if a.Category == nil {
		merged.Category = b.Category
	} else if b.Category != nil && strOrEmpty(a.Category) != strOrEmpty(b.Category) {
		*conflicts = append(*conflicts, FieldConflict{SKU: a.SKU, Field: "category", Kept: strOrEmpty(a.Category), Discarded: strOrEmpty(b.Category)})
	}

	if a.Unit == nil {
		merged.Unit = b.Unit
	} else if b.Unit != nil && strOrEmpty(a.Unit) != strOrEmpty(b.Unit) {
		*conflicts = append(*conflicts, FieldConflict{SKU: a.SKU, Field: "unit", Kept: strOrEmpty(a.Unit), Discarded: strOrEmpty(b.Unit)})
	}

	if !a.UnitPrice.Valid {
		merged.UnitPrice = b.UnitPrice
	} else if b.UnitPrice.Valid && !a.UnitPrice.Decimal.Equal(b.UnitPrice.Decimal) {
		*conflicts = append(*conflicts, FieldConflict{SKU: a.SKU, Field: "unit_price", Kept: decOrEmpty(a.UnitPrice), Discarded: decOrEmpty(b.UnitPrice)})
	}

	if !a.UnitCost.Valid {
		merged.UnitCost = b.UnitCost
	} else if b.UnitCost.Valid && !a.UnitCost.Decimal.Equal(b.UnitCost.Decimal) {
		*conflicts = append(*conflicts, FieldConflict{SKU: a.SKU, Field: "unit_cost", Kept: decOrEmpty(a.UnitCost), Discarded: decOrEmpty(b.UnitCost)})
	}

	// Threshold and supplier fields fall back to the secondary source
	// without conflict reporting; they are operational tuning, not identity.
	if a.MaxQuantity == nil {
		merged.MaxQuantity = b.MaxQuantity
	}
	if a.ReorderPoint == nil {
		merged.ReorderPoint = b.ReorderPoint
	}
	if a.SupplierID == nil {
		merged.SupplierID = b.SupplierID
	}

	// A record inactive in either source stays inactive
	merged.Active = a.Active && b.Active

	return merged
}

// MergeCatalogs merges two source listings into one canonical catalog.
// SKUs are matched case-insensitively. Where both sources carry a SKU the
// primary source wins on conflicting fields and each disagreement is
// reported. SKUs only the secondary source carries are imported as-is.
// The result is ordered by SKU so repeated runs are comparable.
func MergeCatalogs(primary, secondary []SourceRecord) *MergeResult {
	result := &MergeResult{
		Conflicts: make([]FieldConflict, 0),
		Skipped:   make([]SkippedRecord, 0),
	}

	primaryByKey := indexSource("primary", primary, &result.Skipped)
	secondaryByKey := indexSource("secondary", secondary, &result.Skipped)

	keys := make([]string, 0, len(primaryByKey)+len(secondaryByKey))
	for k := range primaryByKey {
		keys = append(keys, k)
	}
	for k := range secondaryByKey {
		if _, inPrimary := primaryByKey[k]; !inPrimary {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	result.Products = make([]SourceRecord, 0, len(keys))
	for _, k := range keys {
		a, inPrimary := primaryByKey[k]
		b, inSecondary := secondaryByKey[k]

		switch {
		case inPrimary && inSecondary:
			result.Products = append(result.Products, mergePair(a, b, &result.Conflicts))
			result.MergedBoth++
		case inPrimary:
			result.Products = append(result.Products, a)
		default:
			result.Products = append(result.Products, b)
			result.ImportedFromSecondary++
		}
	}

	return result
}

// ReconcileReport is the outcome of a full reconciliation run
type ReconcileReport struct {
	RunID           string          `json:"run_id"`
	Merged          int             `json:"merged"`
	Imported        int             `json:"imported"`
	Deactivated     int             `json:"deactivated"`
	DeactivatedSKUs []string        `json:"deactivated_skus,omitempty"`
	Conflicts       []FieldConflict `json:"conflicts"`
	Skipped         []SkippedRecord `json:"skipped"`
}

// Reconciler merges external source listings into the stored catalog
type Reconciler struct {
	db        *database.DB
	repo      *repository.ProductRepository
	publisher *events.CatalogEventPublisher
	logger    *logger.Logger
}

// NewReconciler creates a new catalog reconciler
func NewReconciler(db *database.DB, repo *repository.ProductRepository, publisher *events.CatalogEventPublisher, log *logger.Logger) *Reconciler {
	return &Reconciler{
		db:        db,
		repo:      repo,
		publisher: publisher,
		logger:    log,
	}
}

// Reconcile merges the two listings and syncs the result into the catalog.
// Stored products whose SKU no longer appears in either source are flagged
// inactive, never deleted; their batches and movement history stay intact.
func (s *Reconciler) Reconcile(ctx context.Context, primary, secondary []SourceRecord) (*ReconcileReport, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, err
	}

	merge := MergeCatalogs(primary, secondary)

	type deactivated struct {
		id  string
		sku string
	}
	var flagged []deactivated

	run := &repository.ReconcileRun{
		Merged:      merge.MergedBoth,
		Imported:    merge.ImportedFromSecondary,
		Deactivated: 0,
	}

	err = s.db.WithTenantRLS(ctx, tenantID, func(txCtx context.Context) error {
		existing, err := s.repo.ListAll(txCtx)
		if err != nil {
			return err
		}

		mergedSet := make(map[string]struct{}, len(merge.Products))
		for _, rec := range merge.Products {
			mergedSet[rec.SKU] = struct{}{}

			p := &repository.Product{
				SKU:                 rec.SKU,
				Name:                rec.Name,
				Description:         rec.Description,
				Category:            rec.Category,
				Unit:                rec.Unit,
				UnitPrice:           rec.UnitPrice,
				UnitCost:            rec.UnitCost,
				MinQuantity:         rec.MinQuantity,
				MaxQuantity:         rec.MaxQuantity,
				ReorderPoint:        intOrZero(rec.ReorderPoint),
				PreferredSupplierID: rec.SupplierID,
				BatchTracked:        rec.BatchTracked,
				IsActive:            rec.Active,
			}
			if err := s.repo.UpsertBySKU(txCtx, p); err != nil {
				return err
			}
		}

		for _, p := range existing {
			if _, present := mergedSet[NormalizeSKU(p.SKU)]; present || !p.IsActive {
				continue
			}
			if err := s.repo.Deactivate(txCtx, p.ID); err != nil {
				return err
			}
			flagged = append(flagged, deactivated{id: p.ID, sku: p.SKU})
		}
		run.Deactivated = len(flagged)

		conflictsJSON, err := json.Marshal(merge.Conflicts)
		if err != nil {
			return err
		}
		run.Conflicts = conflictsJSON

		return s.repo.SaveReconcileRun(txCtx, run)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("run_id", run.ID).
		Int("merged", run.Merged).
		Int("imported", run.Imported).
		Int("deactivated", run.Deactivated).
		Int("conflicts", len(merge.Conflicts)).
		Msg("catalog reconciled")

	for _, d := range flagged {
		s.publisher.PublishProductDeactivated(ctx, d.id, d.sku, "absent from all source listings")
	}
	s.publisher.PublishReconciled(ctx, run.ID, run.Merged, run.Imported, run.Deactivated, len(merge.Conflicts))

	report := &ReconcileReport{
		RunID:       run.ID,
		Merged:      run.Merged,
		Imported:    run.Imported,
		Deactivated: run.Deactivated,
		Conflicts:   merge.Conflicts,
		Skipped:     merge.Skipped,
	}
	for _, d := range flagged {
		report.DeactivatedSKUs = append(report.DeactivatedSKUs, d.sku)
	}
	return report, nil
}
