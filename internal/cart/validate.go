package cart

import "fmt"

// Validate is the submission gate. It is pure, mutates nothing, and
// short-circuits on the first violated rule so the caller can surface
// one specific message: non-empty cart, then a reason on every line,
// then a positive refund total.
func Validate(c *Cart) error {
	if c.Len() == 0 {
		return &ValidationError{Code: ValidationEmptyCart, Message: "return cart is empty"}
	}
	for _, line := range c.Lines() {
		if line.ReturnReason == "" {
			return &ValidationError{
				Code:    ValidationMissingReason,
				Message: fmt.Sprintf("return reason missing for %s", line.Name),
			}
		}
	}
	if !c.TotalRefund().IsPositive() {
		return &ValidationError{Code: ValidationZeroRefund, Message: "total refund must be greater than zero"}
	}
	return nil
}
