package validation

import (
	"fmt"
	"regexp"
	"strings"

	d "github.com/fjod/storefront/internal/domain"
)

// DefaultPhonePattern accepts Kenyan mobile numbers: +254 or 0, then 9 digits
// not starting with 0.
const DefaultPhonePattern = `^(?:\+254|0)[1-9][0-9]{8}$`

var (
	emailPattern  = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	cardPattern   = regexp.MustCompile(`^[0-9]{16}$`)
	expiryPattern = regexp.MustCompile(`^(0[1-9]|1[0-2])/([0-9]{2})$`)
	cvvPattern    = regexp.MustCompile(`^[0-9]{3,4}$`)
)

// Rules holds the locale-dependent patterns shared by every checkout step.
type Rules struct {
	phone *regexp.Regexp
}

func NewRules(phonePattern string) (*Rules, error) {
	if phonePattern == "" {
		phonePattern = DefaultPhonePattern
	}
	re, err := regexp.Compile(phonePattern)
	if err != nil {
		return nil, fmt.Errorf("invalid phone pattern: %w", err)
	}
	return &Rules{phone: re}, nil
}

// MustRules is NewRules for patterns known at compile time.
func MustRules(phonePattern string) *Rules {
	r, err := NewRules(phonePattern)
	if err != nil {
		panic(err)
	}
	return r
}

func (r *Rules) ValidPhone(phone string) bool {
	return r.phone.MatchString(stripSpaces(phone))
}

// Shipping checks the shipping form. Country and method are optional and
// default during normalization.
func (r *Rules) Shipping(info d.ShippingInfo) Result {
	var res Result
	required := []struct {
		field, value, label string
	}{
		{"full_name", info.FullName, "Full name"},
		{"email", info.Email, "Email"},
		{"phone", info.Phone, "Phone number"},
		{"address", info.Address, "Address"},
		{"city", info.City, "City"},
		{"state", info.State, "State"},
		{"postal_code", info.PostalCode, "Postal code"},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			res = res.add(f.field, f.label+" is required")
		}
	}

	// blank values already failed the required check
	if email := strings.TrimSpace(info.Email); email != "" && !emailPattern.MatchString(email) {
		res = res.add("email", "Invalid email address")
	}
	if strings.TrimSpace(info.Phone) != "" && !r.ValidPhone(info.Phone) {
		res = res.add("phone", "Invalid phone number, enter a valid Kenyan phone number")
	}
	if info.ShippingMethod != "" && !info.ShippingMethod.IsValid() {
		res = res.add("shipping_method", "Shipping method must be standard or express")
	}
	return res
}

// Payment checks only the fields of the selected method.
func (r *Rules) Payment(info d.PaymentInfo) Result {
	var res Result
	switch info.Method {
	case d.PaymentCard:
		if strings.TrimSpace(info.CardName) == "" {
			res = res.add("card_name", "Name on card is required")
		}
		if info.CardNumber == "" {
			res = res.add("card_number", "Card number is required")
		} else if !cardPattern.MatchString(stripSpaces(info.CardNumber)) {
			res = res.add("card_number", "Card number must be 16 digits")
		}
		if info.ExpiryDate == "" {
			res = res.add("expiry_date", "Expiry date is required")
		} else if !expiryPattern.MatchString(info.ExpiryDate) {
			res = res.add("expiry_date", "Expiry date must be in MM/YY format")
		}
		if info.CVV == "" {
			res = res.add("cvv", "CVV is required")
		} else if !cvvPattern.MatchString(info.CVV) {
			res = res.add("cvv", "CVV must be 3 or 4 digits")
		}
	case d.PaymentMpesa:
		if info.MpesaPhone == "" {
			res = res.add("mpesa_phone", "M-Pesa phone number is required")
		} else if !r.ValidPhone(info.MpesaPhone) {
			res = res.add("mpesa_phone", "Invalid M-Pesa phone number, enter a valid Kenyan phone number")
		}
	default:
		res = res.add("method", "Select a payment method")
	}
	return res
}

func Review(termsAccepted bool) Result {
	if !termsAccepted {
		return Result{{Field: "terms_accepted", Reason: "Please accept the terms and conditions"}}
	}
	return nil
}

func stripSpaces(s string) string {
	return strings.Join(strings.Fields(s), "")
}
