package entity

import "time"

// Product type constants
const (
	ProductLife             = "life"
	ProductHealth           = "health"
	ProductPension          = "pension"
	ProductManagerInsurance = "manager_insurance"
	ProductInvestment       = "investment"
	ProductFinance          = "finance"
)

// Deal status constants
const (
	DealStatusActive    = "active"
	DealStatusCancelled = "cancelled"
)

// Deal is one financial deal as handed to the commission calculator.
// Optional amounts are pointers: a missing field is not the same as zero.
type Deal struct {
	ID                string     `json:"id"`
	ProductType       string     `json:"product_type"`
	Company           string     `json:"company,omitempty"`
	MonthlyPremium    *float64   `json:"monthly_premium,omitempty"`
	Salary            *float64   `json:"salary,omitempty"`
	AccumulatedAmount *float64   `json:"accumulated_amount,omitempty"`
	StartDate         time.Time  `json:"start_date"`
	Status            string     `json:"status"`
	CancellationDate  *time.Time `json:"cancellation_date,omitempty"`
}

// CommissionResult is a pure, stateless projection of a Deal. It is never
// persisted by the automation core.
type CommissionResult struct {
	OneTimeCommission float64  `json:"one_time_commission"`
	MonthlyCommission float64  `json:"monthly_commission"`
	ClawbackAmount    float64  `json:"clawback_amount"`
	Notes             []string `json:"notes"`
}
