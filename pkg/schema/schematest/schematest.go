// Package schematest provides a small frozen commerce schema shared by
// tests across the query pipeline: customers with orders, order items
// with products, and tags attached to orders through a junction table.
package schematest

import (
	"time"

	"github.com/nexuscrm/strata/pkg/schema"
)

type Customer struct {
	ID     int64
	Name   string
	Email  string
	Age    int64
	Orders []*Order
}

type Order struct {
	ID         int64
	CustomerID int64
	Total      float64
	Status     string
	PlacedAt   time.Time
	Customer   *Customer
	Items      []*OrderItem
	Tags       []*Tag
}

type OrderItem struct {
	ID        int64
	OrderID   int64
	ProductID int64
	Qty       int64
	Price     float64
	Order     *Order
	Product   *Product
}

type Product struct {
	ID   int64
	Name string
	SKU  string
}

type Tag struct {
	ID    int64
	Label string
}

// Registry builds and freezes the fixture schema. It panics on any
// declaration error since the fixture is static.
func Registry() *schema.Registry {
	r := schema.NewRegistry()

	r.MustRegister(schema.NewTable[Customer]("Customer", "customers").
		Column("ID", "id", func(c *Customer) any { return &c.ID }, schema.PrimaryKey(), schema.AutoIncrement()).
		Column("Name", "name", func(c *Customer) any { return &c.Name }).
		Column("Email", "email", func(c *Customer) any { return &c.Email }, schema.Unique()).
		Column("Age", "age", func(c *Customer) any { return &c.Age }).
		Index("idx_customers_name", false, "Name").
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
		HasOne("Order", "Order", "OrderID", func(it *OrderItem, v any) {
			it.Order = v.(*Order)
		}).
		HasOne("Product", "Product", "ProductID", func(it *OrderItem, v any) {
			it.Product = v.(*Product)
		}).
		Build())

	r.MustRegister(schema.NewTable[Product]("Product", "products").
		Column("ID", "id", func(p *Product) any { return &p.ID }, schema.PrimaryKey(), schema.AutoIncrement()).
		Column("Name", "name", func(p *Product) any { return &p.Name }).
		Column("SKU", "sku", func(p *Product) any { return &p.SKU }, schema.Unique()).
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
