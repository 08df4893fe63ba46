package webpay

import (
	"strings"

	"github.com/shopspring/decimal"
)

// PaymentTypeDebit is the payment type code of debit (Redcompra) sales.
const PaymentTypeDebit = "VD"

// ivaExemptBelow is the fee below which no IVA is charged when the
// merchant asks for the exemption.
var ivaExemptBelow = decimal.NewFromInt(180)

// Transaction is the input of a fee estimate.
type Transaction struct {
	Amount decimal.Decimal
	// PaymentTypeCode as returned in DetailOutput.
	PaymentTypeCode string
}

// Fees is a Webpay commission estimate, in whole pesos.
type Fees struct {
	Subtotal decimal.Decimal
	IVA      decimal.Decimal
	Total    decimal.Decimal
}

// FeeSchedule holds the commission rates.
type FeeSchedule struct {
	CreditPercent float64
	DebitPercent  float64
	IVAFactor     float64
}

// Calc estimates the commission on tx. Debit sales use DebitPercent, all
// others CreditPercent. Amounts are rounded half up to whole pesos. When
// noIVABelow180 is set, a subtotal under 180 pesos carries no IVA.
func (s FeeSchedule) Calc(tx Transaction, noIVABelow180 bool) Fees {
	percent := s.CreditPercent
	if strings.EqualFold(strings.TrimSpace(tx.PaymentTypeCode), PaymentTypeDebit) {
		percent = s.DebitPercent
	}

	subtotal := tx.Amount.Mul(decimal.NewFromFloat(percent)).Div(decimal.NewFromInt(100)).Round(0)

	iva := decimal.Zero
	if !noIVABelow180 || subtotal.GreaterThanOrEqual(ivaExemptBelow) {
		iva = subtotal.Mul(decimal.NewFromFloat(s.IVAFactor)).Round(0)
	}

	return Fees{
		Subtotal: subtotal,
		IVA:      iva,
		Total:    subtotal.Add(iva),
	}
}

// CalcFees estimates the commission on tx with the configured rates.
func (c *Client) CalcFees(tx Transaction, noIVABelow180 bool) Fees {
	return FeeSchedule{
		CreditPercent: c.cfg.CreditFeePercent,
		DebitPercent:  c.cfg.DebitFeePercent,
		IVAFactor:     c.cfg.IVAFactor,
	}.Calc(tx, noIVABelow180)
}
