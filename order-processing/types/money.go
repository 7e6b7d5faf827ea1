package types

// Money is an exact amount in minor units (cents for USD)
type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Exponent int    `json:"exponent"`
}

// NewMoney builds a Money value
func NewMoney(amount int64, currency string, exponent int) Money {
	return Money{Amount: amount, Currency: currency, Exponent: exponent}
}

// Zero returns a zero amount in the same currency as m
func (m Money) Zero() Money {
	return Money{Currency: m.Currency, Exponent: m.Exponent}
}

func (m Money) sameCurrency(o Money) error {
	if m.Currency != o.Currency || m.Exponent != o.Exponent {
		return &CurrencyMismatchError{Left: m, Right: o}
	}
	return nil
}

// Add returns m + o
func (m Money) Add(o Money) (Money, error) {
	if err := m.sameCurrency(o); err != nil {
		return Money{}, err
	}
	return Money{Amount: m.Amount + o.Amount, Currency: m.Currency, Exponent: m.Exponent}, nil
}

// Subtract returns m - o
func (m Money) Subtract(o Money) (Money, error) {
	if err := m.sameCurrency(o); err != nil {
		return Money{}, err
	}
	return Money{Amount: m.Amount - o.Amount, Currency: m.Currency, Exponent: m.Exponent}, nil
}

// Equals reports whether both amounts are the same
func (m Money) Equals(o Money) (bool, error) {
	if err := m.sameCurrency(o); err != nil {
		return false, err
	}
	return m.Amount == o.Amount, nil
}

// GreaterThan reports whether m > o
func (m Money) GreaterThan(o Money) (bool, error) {
	if err := m.sameCurrency(o); err != nil {
		return false, err
	}
	return m.Amount > o.Amount, nil
}

// IsZero reports whether the amount is zero
func (m Money) IsZero() bool {
	return m.Amount == 0
}

// IsNegative reports whether the amount is below zero
func (m Money) IsNegative() bool {
	return m.Amount < 0
}

// SumLineItems adds up the line item amounts. The first item fixes the currency.
func SumLineItems(items []LineItem) (Money, error) {
	if len(items) == 0 {
		return Money{}, nil
	}
	total := items[0].Amount.Zero()
	for _, li := range items {
		var err error
		total, err = total.Add(li.Amount)
		if err != nil {
			return Money{}, err
		}
	}
	return total, nil
}
