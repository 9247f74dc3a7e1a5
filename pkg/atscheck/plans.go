package atscheck

import "fmt"

// PlanOffer describes a purchasable plan as shown in the upgrade dialog
type PlanOffer struct {
	Plan     Plan
	Amount   float64 // 0 means free
	Currency string
	Price    string // display price, e.g. "$9.99/month"
	Uploads  int    // uploads per month
	Features []string
	Popular  bool
}

// Free reports whether the plan can be acquired without payment
func (o PlanOffer) Free() bool {
	return o.Amount == 0
}

// Catalog is the ordered list of offers
type Catalog []PlanOffer

// DefaultCatalog returns the standard Basic/Premium/Pro offers
func DefaultCatalog() Catalog {
	return Catalog{
		{
			Plan:     PlanBasic,
			Amount:   0,
			Currency: "USD",
			Price:    "Free",
			Uploads:  3,
			Features: []string{
				"3 resume uploads per month",
				"Basic ATS analysis",
				"Standard support",
			},
		},
		{
			Plan:     PlanPremium,
			Amount:   9.99,
			Currency: "USD",
			Price:    "$9.99/month",
			Uploads:  10,
			Features: []string{
				"10 resume uploads per month",
				"Detailed ATS analysis",
				"Job description matching",
				"Priority support",
				"Resume optimization tips",
			},
			Popular: true,
		},
		{
			Plan:     PlanPro,
			Amount:   19.99,
			Currency: "USD",
			Price:    "$19.99/month",
			Uploads:  100,
			Features: []string{
				"100 resume uploads per month",
				"Advanced AI analysis",
				"Custom job matching",
				"Resume builder access",
				"Direct recruiter insights",
				"24/7 premium support",
			},
		},
	}
}

// Lookup finds the offer for a plan name (case-insensitive)
func (c Catalog) Lookup(name string) (PlanOffer, error) {
	plan, err := ParsePlan(name)
	if err != nil {
		return PlanOffer{}, err
	}
	for _, o := range c {
		if o.Plan == plan {
			return o, nil
		}
	}
	return PlanOffer{}, fmt.Errorf("%w: %q not offered", ErrInvalidPlan, name)
}

// Validate checks that every offer is well formed
func (c Catalog) Validate() error {
	if len(c) == 0 {
		return fmt.Errorf("catalog is empty")
	}
	seen := make(map[Plan]bool, len(c))
	for _, o := range c {
		if _, err := ParsePlan(string(o.Plan)); err != nil {
			return err
		}
		if seen[o.Plan] {
			return fmt.Errorf("duplicate plan %q", o.Plan)
		}
		seen[o.Plan] = true
		if o.Amount < 0 {
			return fmt.Errorf("%w: plan %q", ErrInvalidAmount, o.Plan)
		}
		if o.Amount > 0 && o.Currency == "" {
			return fmt.Errorf("plan %q: currency is required for paid plans", o.Plan)
		}
	}
	return nil
}
