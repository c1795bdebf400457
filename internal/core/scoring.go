package core

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Fixed aggregate thresholds, in percent. Vendor tolerances only drive line notes and the
// auto-approval threshold; severity bands are the same for every vendor.
var (
	hundred = decimal.NewFromInt(100)

	criticalPricePct = decimal.NewFromInt(10)
	criticalQtyPct   = decimal.NewFromInt(20)
	warningPricePct  = decimal.NewFromInt(5)
	warningQtyPct    = decimal.NewFromInt(10)

	// A variance record is written for a dimension once any line passes these.
	recordPricePct = decimal.NewFromInt(3)
	recordQtyPct   = decimal.NewFromInt(5)

	highConfidenceShare   = decimal.NewFromFloat(0.8)
	mediumConfidenceShare = decimal.NewFromFloat(0.5)
)

// pctPlaces is the precision percentages are reported and stored at. Threshold checks
// always use the unrounded values.
const pctPlaces = 4

// RoundPct rounds a percentage for output or storage.
func RoundPct(d decimal.Decimal) decimal.Decimal {
	return d.Round(pctPlaces)
}

// ScoreMatch computes quantity to receive and price/quantity variances for a matched pair
// and annotates variances that exceed the vendor's tolerance. Percentages are unrounded;
// see MatchResult.Rounded.
func ScoreMatch(line InvoiceLine, item POItem, tol VendorTolerance, confidence Confidence) MatchResult {
	poItemID := item.ID
	res := MatchResult{
		InvoiceLineID: line.ID,
		LineNumber:    line.LineNumber,
		Description:   line.Description,
		POItemID:      &poItemID,
		ItemID:        item.ItemID,
		UnitCost:      line.UnitCost,
		Confidence:    confidence,
	}
	if res.ItemID == nil {
		res.ItemID = line.ItemID
	}

	res.QuantityToReceive = decimal.Min(line.Quantity, item.RemainingQuantity)

	if item.UnitPrice.IsZero() {
		res.PriceVariancePct = decimal.Zero
		res.Notes = append(res.Notes, "PO item has zero unit price; price variance not computed")
	} else {
		res.PriceVariancePct = line.UnitCost.Sub(item.UnitPrice).
			Div(item.UnitPrice).Mul(hundred)
	}

	denom := decimal.Max(decimal.NewFromInt(1), item.RemainingQuantity)
	res.QuantityVariancePct = line.Quantity.Sub(item.RemainingQuantity).
		Div(denom).Mul(hundred)

	if res.PriceVariancePct.Abs().GreaterThan(tol.PriceTolerancePct) {
		res.Notes = append(res.Notes,
			fmt.Sprintf("Price variance %s%% exceeds tolerance", res.PriceVariancePct.StringFixed(2)))
	}
	if res.QuantityVariancePct.Abs().GreaterThan(tol.QuantityTolerancePct) {
		res.Notes = append(res.Notes,
			fmt.Sprintf("Qty variance %s%% exceeds tolerance", res.QuantityVariancePct.StringFixed(2)))
	}
	return res
}

// UnmappedResult describes a line the matcher could not pair.
func UnmappedResult(line InvoiceLine) MatchResult {
	return MatchResult{
		InvoiceLineID: line.ID,
		LineNumber:    line.LineNumber,
		Description:   line.Description,
		ItemID:        line.ItemID,
		UnitCost:      line.UnitCost,
		Confidence:    ConfidenceUnmapped,
	}
}

func isCritical(r MatchResult) bool {
	return r.PriceVariancePct.Abs().GreaterThan(criticalPricePct) ||
		r.QuantityVariancePct.Abs().GreaterThan(criticalQtyPct)
}

// isWarning is evaluated independently of isCritical; a critical line is also a warning line.
func isWarning(r MatchResult) bool {
	return r.PriceVariancePct.Abs().GreaterThan(warningPricePct) ||
		r.QuantityVariancePct.Abs().GreaterThan(warningQtyPct)
}

// Aggregate rolls per-line results into the invoice-level match percentage, confidence
// and severity.
func Aggregate(results []MatchResult, invoiceTotal decimal.Decimal) VarianceSummary {
	var (
		matchedAmount decimal.Decimal
		matched       int
		high          int
		critical      int
		warning       int
	)
	for _, r := range results {
		if !r.Matched() {
			continue
		}
		matched++
		matchedAmount = matchedAmount.Add(r.QuantityToReceive.Mul(r.UnitCost))
		if r.Confidence == ConfidenceHigh {
			high++
		}
		if isCritical(r) {
			critical++
		}
		if isWarning(r) {
			warning++
		}
	}

	matchPct := decimal.Zero
	if invoiceTotal.IsPositive() {
		matchPct = matchedAmount.Div(invoiceTotal).Mul(hundred)
	}

	return VarianceSummary{
		MatchedAmount:     matchedAmount,
		MatchPct:          matchPct,
		TotalVariancePct:  hundred.Sub(matchPct),
		OverallConfidence: overallConfidence(high, matched),
		Severity:          classifySeverity(critical, warning),
		CriticalVariances: critical,
		WarningVariances:  warning,
	}
}

func overallConfidence(high, matched int) Confidence {
	if matched == 0 {
		return ConfidenceLow
	}
	share := decimal.NewFromInt(int64(high)).Div(decimal.NewFromInt(int64(matched)))
	switch {
	case share.GreaterThan(highConfidenceShare):
		return ConfidenceHigh
	case share.GreaterThan(mediumConfidenceShare):
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

func classifySeverity(critical, warning int) Severity {
	switch {
	case critical > 0:
		return SeverityCritical
	case warning > 2:
		return SeverityWarning
	case warning > 0:
		return SeverityMinor
	default:
		return SeverityNone
	}
}

// DecideAutoApproval is the sole automatic-approval rule: the invoice must be matched to
// at least the vendor's threshold and carry no critical variance.
func DecideAutoApproval(summary VarianceSummary, tol VendorTolerance) bool {
	return summary.MatchPct.GreaterThanOrEqual(tol.AutoApprovalThresholdPct) &&
		summary.Severity != SeverityCritical
}

// BuildVarianceRecords returns the price and quantity summaries to record for an invoice.
// Nothing is recorded when severity is none.
func BuildVarianceRecords(invoiceID int, results []MatchResult, severity Severity) []InvoiceVariance {
	if severity == SeverityNone {
		return nil
	}

	var (
		priceLines, qtyLines       int
		priceCritical, qtyCritical bool
		maxPrice, maxQty           decimal.Decimal
	)
	for _, r := range results {
		if !r.Matched() {
			continue
		}
		p, q := r.PriceVariancePct.Abs(), r.QuantityVariancePct.Abs()
		if p.GreaterThan(recordPricePct) {
			priceLines++
			maxPrice = decimal.Max(maxPrice, p)
			if p.GreaterThan(criticalPricePct) {
				priceCritical = true
			}
		}
		if q.GreaterThan(recordQtyPct) {
			qtyLines++
			maxQty = decimal.Max(maxQty, q)
			if q.GreaterThan(criticalQtyPct) {
				qtyCritical = true
			}
		}
	}

	var records []InvoiceVariance
	if priceLines > 0 {
		records = append(records, InvoiceVariance{
			InvoiceID:     invoiceID,
			Type:          VarianceTypePrice,
			Severity:      severityFor(priceCritical),
			AffectedLines: priceLines,
			Description: fmt.Sprintf("%d line(s) with price variance above %s%% (max %s%%)",
				priceLines, recordPricePct.String(), maxPrice.StringFixed(2)),
		})
	}
	if qtyLines > 0 {
		records = append(records, InvoiceVariance{
			InvoiceID:     invoiceID,
			Type:          VarianceTypeQuantity,
			Severity:      severityFor(qtyCritical),
			AffectedLines: qtyLines,
			Description: fmt.Sprintf("%d line(s) with quantity variance above %s%% (max %s%%)",
				qtyLines, recordQtyPct.String(), maxQty.StringFixed(2)),
		})
	}
	return records
}

func severityFor(critical bool) Severity {
	if critical {
		return SeverityCritical
	}
	return SeverityWarning
}
