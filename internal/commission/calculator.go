// Package commission computes acquisition and recurring commission plus
// clawback for a single financial deal. The calculation is a pure projection
// of the deal: no I/O, no persistence, no errors for valid inputs.
package commission

import (
	"fmt"
	"math"
	"time"

	"github.com/agency-crm/automation-core/internal/domain/entity"
)

// Commission rule constants.
const (
	// heikef: one-time scope commission on a new insurance policy
	heikefFactor = 9.6
	// nifraim: ongoing monthly commission on an active insurance policy
	nifraimRate = 0.20
	// niud: one-time portability commission on transferred pension/finance
	// products, proportional to annual salary
	niudRate = 0.08
	// tzvira: accumulation commission per whole million of accumulated funds
	tzviraThreshold = 1_000_000.0
	tzviraUnitFee   = 3_000.0

	daysPerMonth = 30
)

var financeProducts = map[string]bool{
	entity.ProductPension:          true,
	entity.ProductManagerInsurance: true,
	entity.ProductInvestment:       true,
	entity.ProductFinance:          true,
}

// Calculate computes the commission result for one deal. Every contributing
// branch appends a human-readable note describing the arithmetic performed;
// the notes feed audit trails and are never used for computation.
func Calculate(deal *entity.Deal) *entity.CommissionResult {
	result := &entity.CommissionResult{Notes: []string{}}

	switch {
	case deal.ProductType == entity.ProductLife || deal.ProductType == entity.ProductHealth:
		applyInsurance(deal, result)
	case financeProducts[deal.ProductType]:
		applyFinance(deal, result)
	default:
		result.Notes = append(result.Notes,
			fmt.Sprintf("unknown product type %q: no commission rules applied", deal.ProductType))
		return result
	}

	applyClawback(deal, result)
	return result
}

// applyInsurance handles the life/health branch: heikef on the monthly premium
// plus nifraim for as long as the policy is active.
func applyInsurance(deal *entity.Deal, result *entity.CommissionResult) {
	if deal.MonthlyPremium == nil {
		return
	}
	premium := *deal.MonthlyPremium

	result.OneTimeCommission += premium * heikefFactor
	result.Notes = append(result.Notes,
		fmt.Sprintf("heikef: %.2f x %.1f = %.2f", premium, heikefFactor, premium*heikefFactor))

	result.MonthlyCommission += premium * nifraimRate
	result.Notes = append(result.Notes,
		fmt.Sprintf("nifraim: %.2f x %.2f = %.2f monthly while active", premium, nifraimRate, premium*nifraimRate))
}

// applyFinance handles pension/manager_insurance/investment/finance: niud on
// the annual salary and tzvira on accumulated funds. The two additions are
// independent and may both apply to the same deal.
func applyFinance(deal *entity.Deal, result *entity.CommissionResult) {
	if deal.Salary != nil {
		salary := *deal.Salary
		niud := salary * 12 * niudRate
		result.OneTimeCommission += niud
		result.Notes = append(result.Notes,
			fmt.Sprintf("niud: %.2f x 12 x %.2f = %.2f", salary, niudRate, niud))
	}

	if deal.AccumulatedAmount != nil {
		accumulated := *deal.AccumulatedAmount
		if accumulated >= tzviraThreshold {
			millions := math.Floor(accumulated / tzviraThreshold)
			tzvira := millions * tzviraUnitFee
			result.OneTimeCommission += tzvira
			result.Notes = append(result.Notes,
				fmt.Sprintf("tzvira: floor(%.2f / 1000000) x %.0f = %.2f", accumulated, tzviraUnitFee, tzvira))
		} else {
			result.Notes = append(result.Notes,
				fmt.Sprintf("tzvira: accumulated %.2f below 1000000 threshold, no fee", accumulated))
		}
	}
}

// applyClawback charges back a percentage of the one-time commission (never
// the recurring commission) when the deal was cancelled inside the clawback
// window for its product.
func applyClawback(deal *entity.Deal, result *entity.CommissionResult) {
	if deal.Status != entity.DealStatusCancelled || deal.CancellationDate == nil {
		return
	}
	if result.OneTimeCommission == 0 {
		return
	}

	months := monthsActive(deal.StartDate, *deal.CancellationDate)
	pct := clawbackPercent(deal.ProductType, months)
	if pct == 0 {
		result.Notes = append(result.Notes,
			fmt.Sprintf("clawback: cancelled after %d months, outside clawback window", months))
		return
	}

	result.ClawbackAmount = result.OneTimeCommission * pct
	result.Notes = append(result.Notes,
		fmt.Sprintf("clawback: %.2f x %.0f%% after %d active months = %.2f",
			result.OneTimeCommission, pct*100, months, result.ClawbackAmount))
}

// monthsActive counts 30-day months between start and cancellation, rounded up.
func monthsActive(start, cancelled time.Time) int {
	days := cancelled.Sub(start).Hours() / 24
	return int(math.Ceil(days / daysPerMonth))
}

// clawbackPercent returns the clawback fraction for the product and the number
// of months the deal was active before cancellation.
func clawbackPercent(productType string, months int) float64 {
	switch productType {
	case entity.ProductLife:
		switch {
		case months <= 12:
			return 1.0
		case months <= 24:
			return 0.6
		case months <= 36:
			return 0.4
		default:
			return 0
		}
	default:
		// health and all finance products: full clawback in the first year only
		if months <= 12 {
			return 1.0
		}
		return 0
	}
}
