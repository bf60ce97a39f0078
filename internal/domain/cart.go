package domain

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

const (
	MinQuantity = 1
	MaxQuantity = 10
)

var ErrItemNotFound = errors.New("item not found in cart")

type Cart struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	Items     []LineItem `json:"items"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// LineItem is a product reference plus quantity. UnitPrice is captured when the
// product is added so later catalog changes do not move the cart total.
type LineItem struct {
	ProductID         int64           `json:"product_id"`
	ProductName       string          `json:"product_name"`
	UnitPrice         decimal.Decimal `json:"unit_price"`
	Quantity          int             `json:"quantity"`
	ReservationExpiry time.Time       `json:"reservation_expiry"`
	AddedAt           time.Time       `json:"added_at"`
}

// Subtotal returns unit price times quantity.
func (i LineItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// ClampQuantity bounds q to [MinQuantity, MaxQuantity].
func ClampQuantity(q int) int {
	if q < MinQuantity {
		return MinQuantity
	}
	if q > MaxQuantity {
		return MaxQuantity
	}
	return q
}

func NewCart(userID string, now time.Time) *Cart {
	return &Cart{
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// AddItem inserts the product or increments an existing line. The resulting
// quantity is always clamped to [1,10] and the reservation is refreshed.
func (c *Cart) AddItem(p Product, quantity int, now time.Time, reservationTTL time.Duration) {
	for i := range c.Items {
		if c.Items[i].ProductID == p.ID {
			c.Items[i].Quantity = ClampQuantity(c.Items[i].Quantity + quantity)
			c.Items[i].ReservationExpiry = now.Add(reservationTTL)
			c.UpdatedAt = now
			return
		}
	}

	c.Items = append(c.Items, LineItem{
		ProductID:         p.ID,
		ProductName:       p.Name,
		UnitPrice:         p.Price,
		Quantity:          ClampQuantity(quantity),
		ReservationExpiry: now.Add(reservationTTL),
		AddedAt:           now,
	})
	c.UpdatedAt = now
}

// UpdateQuantity sets the quantity of an existing line. Values below one are
// ignored, values above ten are stored as ten.
func (c *Cart) UpdateQuantity(productID int64, quantity int, now time.Time, reservationTTL time.Duration) error {
	idx := c.indexOf(productID)
	if idx < 0 {
		return ErrItemNotFound
	}
	if quantity < MinQuantity {
		return nil
	}

	c.Items[idx].Quantity = ClampQuantity(quantity)
	c.Items[idx].ReservationExpiry = now.Add(reservationTTL)
	c.UpdatedAt = now
	return nil
}

func (c *Cart) RemoveItem(productID int64, now time.Time) error {
	idx := c.indexOf(productID)
	if idx < 0 {
		return ErrItemNotFound
	}
	c.Items = append(c.Items[:idx], c.Items[idx+1:]...)
	c.UpdatedAt = now
	return nil
}

func (c *Cart) Clear(now time.Time) {
	c.Items = nil
	c.UpdatedAt = now
}

// Total is the sum of unitPrice*quantity over every line.
func (c *Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range c.Items {
		total = total.Add(item.Subtotal())
	}
	return total
}

// ItemCount is the number of units in the cart, as shown by the navigation badge.
func (c *Cart) ItemCount() int {
	count := 0
	for _, item := range c.Items {
		count += item.Quantity
	}
	return count
}

func (c *Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

func (c *Cart) Clone() *Cart {
	out := *c
	out.Items = append([]LineItem(nil), c.Items...)
	return &out
}

func (c *Cart) indexOf(productID int64) int {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			return i
		}
	}
	return -1
}
