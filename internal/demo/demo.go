// Package demo carries the sample commerce domain the stratad server
// and stratactl CLI run on: users for authentication plus customers,
// orders, items, products, and tags, covering every navigation shape
// the mapper supports.
package demo

import (
	"time"

	"github.com/nexuscrm/strata/pkg/schema"
)

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

type Customer struct {
	ID     int64    `json:"id"`
	Name   string   `json:"name"`
	Email  string   `json:"email"`
	City   string   `json:"city"`
	Orders []*Order `json:"orders,omitempty"`
}

type Order struct {
	ID         int64        `json:"id"`
	CustomerID int64        `json:"customer_id"`
	Total      float64      `json:"total"`
	Status     string       `json:"status"`
	PlacedAt   time.Time    `json:"placed_at"`
	Customer   *Customer    `json:"customer,omitempty"`
	Items      []*OrderItem `json:"items,omitempty"`
	Tags       []*Tag       `json:"tags,omitempty"`
}

type OrderItem struct {
	ID        int64    `json:"id"`
	OrderID   int64    `json:"order_id"`
	ProductID int64    `json:"product_id"`
	Qty       int64    `json:"qty"`
	Price     float64  `json:"price"`
	Product   *Product `json:"product,omitempty"`
}

type Product struct {
	ID    int64   `json:"id"`
	Name  string  `json:"name"`
	SKU   string  `json:"sku"`
	Price float64 `json:"price"`
}

type Tag struct {
	ID    int64  `json:"id"`
	Label string `json:"label"`
}

// Registry builds and freezes the demo schema. Declaration errors are
// programming mistakes, so it panics rather than returning them.
func Registry() *schema.Registry {
	r := schema.NewRegistry()

	r.MustRegister(schema.NewTable[User]("User", "users").
		Column("ID", "id", func(u *User) any { return &u.ID }, schema.PrimaryKey()).
		Column("Email", "email", func(u *User) any { return &u.Email }, schema.Unique()).
		Column("Name", "name", func(u *User) any { return &u.Name }).
		Column("PasswordHash", "password_hash", func(u *User) any { return &u.PasswordHash }).
		Column("CreatedAt", "created_at", func(u *User) any { return &u.CreatedAt }).
		Build())

	r.MustRegister(schema.NewTable[Customer]("Customer", "customers").
		Column("ID", "id", func(c *Customer) any { return &c.ID }, schema.PrimaryKey(), schema.AutoIncrement()).
		Column("Name", "name", func(c *Customer) any { return &c.Name }).
		Column("Email", "email", func(c *Customer) any { return &c.Email }, schema.Unique()).
		Column("City", "city", func(c *Customer) any { return &c.City }).
		Index("idx_customers_city", false, "City").
		HasMany("Orders", "Order", "CustomerID", func(c *Customer, vs []any) {
			c.Orders = make([]*Order, len(vs))
			for i, v := range vs {
				c.Orders[i] = v.(*Order)
			}
		}).
		Build())

	r.MustRegister(schema.NewTable[Order]("Order", "orders").
		Column("ID", "id", func(o *Order) any { return &o.ID }, schema.PrimaryKey(), schema.AutoIncrement()).
		Column("CustomerID", "customer_id", func(o *Order) any { return &o.CustomerID }).
		Column("Total", "total", func(o *Order) any { return &o.Total }).
		Column("Status", "status", func(o *Order) any { return &o.Status }).
		Column("PlacedAt", "placed_at", func(o *Order) any { return &o.PlacedAt }).
		ForeignKey("CustomerID", "Customer", "ID").
		Index("idx_orders_customer", false, "CustomerID").
		Index("idx_orders_status", false, "Status").
		HasOne("Customer", "Customer", "CustomerID", func(o *Order, v any) {
			o.Customer = v.(*Customer)
		}).
		HasMany("Items", "OrderItem", "OrderID", func(o *Order, vs []any) {
			o.Items = make([]*OrderItem, len(vs))
			for i, v := range vs {
				o.Items[i] = v.(*OrderItem)
			}
		}).
		ManyToMany("Tags", "Tag", "order_tags", "order_id", "tag_id", func(o *Order, vs []any) {
			o.Tags = make([]*Tag, len(vs))
			for i, v := range vs {
				o.Tags[i] = v.(*Tag)
			}
		}).
		Build())

	r.MustRegister(schema.NewTable[OrderItem]("OrderItem", "order_items").
		Column("ID", "id", func(it *OrderItem) any { return &it.ID }, schema.PrimaryKey(), schema.AutoIncrement()).
		Column("OrderID", "order_id", func(it *OrderItem) any { return &it.OrderID }).
		Column("ProductID", "product_id", func(it *OrderItem) any { return &it.ProductID }).
		Column("Qty", "qty", func(it *OrderItem) any { return &it.Qty }).
		Column("Price", "price", func(it *OrderItem) any { return &it.Price }).
		ForeignKey("OrderID", "Order", "ID").
		ForeignKey("ProductID", "Product", "ID").
		HasOne("Product", "Product", "ProductID", func(it *OrderItem, v any) {
			it.Product = v.(*Product)
		}).
		Build())

	r.MustRegister(schema.NewTable[Product]("Product", "products").
		Column("ID", "id", func(p *Product) any { return &p.ID }, schema.PrimaryKey(), schema.AutoIncrement()).
		Column("Name", "name", func(p *Product) any { return &p.Name }).
		Column("SKU", "sku", func(p *Product) any { return &p.SKU }, schema.Unique()).
		Column("Price", "price", func(p *Product) any { return &p.Price }).
		Build())

	r.MustRegister(schema.NewTable[Tag]("Tag", "tags").
		Column("ID", "id", func(t *Tag) any { return &t.ID }, schema.PrimaryKey(), schema.AutoIncrement()).
		Column("Label", "label", func(t *Tag) any { return &t.Label }, schema.Unique()).
		Build())

	if err := r.Freeze(); err != nil {
		panic(err)
	}
	return r
}

// TableNames lists the SQL tables of every registered entity, in no
// particular order. The maintenance runner wants these.
func TableNames(r *schema.Registry) []string {
	entities := r.Entities()
	names := make([]string, len(entities))
	for i, e := range entities {
		names[i] = r.MustTable(e).Name
	}
	return names
}
