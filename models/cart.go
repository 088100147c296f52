package models

type CartItem struct {
	ProductID int    `json:"producto_id"`
	Quantity  int    `json:"cantidad"`
	Notes     string `json:"notas,omitempty"`
}

type Cart struct {
	UserID int        `json:"user_id"`
	Items  []CartItem `json:"items"`
}

type AddToCartRequest struct {
	ProductID int    `json:"producto_id" binding:"required,gt=0"`
	Quantity  int    `json:"cantidad" binding:"required,min=1"`
	Notes     string `json:"notas"`
}

type UpdateCartRequest struct {
	ProductID int `json:"producto_id" binding:"required,gt=0"`
	Quantity  int `json:"cantidad"`
}

// Add merges quantities when the product is already in the cart.
func (c *Cart) Add(item CartItem) {
	for i := range c.Items {
		if c.Items[i].ProductID == item.ProductID {
			c.Items[i].Quantity += item.Quantity
			if item.Notes != "" {
				c.Items[i].Notes = item.Notes
			}
			return
		}
	}
	c.Items = append(c.Items, item)
}

// SetQuantity updates a line; a quantity of zero or less removes it.
func (c *Cart) SetQuantity(productID, quantity int) {
	if quantity <= 0 {
		c.Remove(productID)
		return
	}
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			c.Items[i].Quantity = quantity
			return
		}
	}
}

func (c *Cart) Remove(productID int) {
	items := c.Items[:0]
	for _, it := range c.Items {
		if it.ProductID != productID {
			items = append(items, it)
		}
	}
	c.Items = items
}

func (c *Cart) ItemCount() int {
	n := 0
	for _, it := range c.Items {
		n += it.Quantity
	}
	return n
}
