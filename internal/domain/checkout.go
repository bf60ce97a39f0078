package domain

type ShippingMethod string

const (
	ShippingStandard ShippingMethod = "standard"
	ShippingExpress  ShippingMethod = "express"
)

func (m ShippingMethod) IsValid() bool {
	return m == ShippingStandard || m == ShippingExpress
}

type PaymentMethod string

const (
	PaymentCard  PaymentMethod = "card"
	PaymentMpesa PaymentMethod = "mpesa"
)

func (m PaymentMethod) IsValid() bool {
	return m == PaymentCard || m == PaymentMpesa
}

const DefaultCountry = "Kenya"

type ShippingInfo struct {
	FullName       string         `json:"full_name"`
	Email          string         `json:"email"`
	Phone          string         `json:"phone"`
	Address        string         `json:"address"`
	City           string         `json:"city"`
	State          string         `json:"state"`
	PostalCode     string         `json:"postal_code"`
	Country        string         `json:"country"`
	ShippingMethod ShippingMethod `json:"shipping_method"`
}

// Normalized fills the optional fields with their defaults.
func (s ShippingInfo) Normalized() ShippingInfo {
	if s.Country == "" {
		s.Country = DefaultCountry
	}
	if s.ShippingMethod == "" {
		s.ShippingMethod = ShippingStandard
	}
	return s
}

// PaymentInfo holds the form values for the selected method. Only the fields of
// Method are validated; card details never leave the checkout session.
type PaymentInfo struct {
	Method     PaymentMethod `json:"method"`
	CardName   string        `json:"card_name,omitempty"`
	CardNumber string        `json:"card_number,omitempty"`
	ExpiryDate string        `json:"expiry_date,omitempty"`
	CVV        string        `json:"cvv,omitempty"`
	MpesaPhone string        `json:"mpesa_phone,omitempty"`
}

// Redacted returns a copy safe for display and logs.
func (p PaymentInfo) Redacted() PaymentInfo {
	out := PaymentInfo{Method: p.Method, CardName: p.CardName, MpesaPhone: p.MpesaPhone}
	if n := len(p.CardNumber); n >= 4 {
		out.CardNumber = "**** " + p.CardNumber[n-4:]
	}
	if p.ExpiryDate != "" {
		out.ExpiryDate = p.ExpiryDate
	}
	return out
}
