package domain

// Outcome is the result of running the classification cascade over one
// normalized message.
type Outcome struct {
	Method      ClassificationMethod
	QuotationID *int64
	SupplierID  *int64
	Confidence  int
}

// Resolved reports whether the outcome carries enough links to attempt
// extraction and reconciliation.
func (o Outcome) Resolved() bool {
	return o.QuotationID != nil && o.SupplierID != nil
}

// QuotationOnly reports whether a quotation was matched without a
// supplier. Such messages stay in the manual queue with the quotation
// link pre-filled.
func (o Outcome) QuotationOnly() bool {
	return o.QuotationID != nil && o.SupplierID == nil
}

// Unresolved is the terminal outcome when no cascade stage succeeded.
func Unresolved() Outcome {
	return Outcome{Method: MethodNone}
}
