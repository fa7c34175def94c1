// Package examples holds the customers and orders sample the command line
// runs its join plans against.
package examples

import (
	"fmt"

	"payloadbuilder/pkg/catalog"
	"payloadbuilder/pkg/execution/scan"
)

const (
	CustomersOrdinal = 0
	OrdersOrdinal    = 1
)

var countries = []string{"SE", "NO", "DK", "FI", "DE"}

// Dataset is a customers table sorted by id and an orders table indexed on
// customer_id.
type Dataset struct {
	Customers   *scan.Table
	Orders      *scan.Table
	OrdersIndex catalog.Index
}

// NewDataset creates customers 1..customers. Customer i gets i modulo
// (maxOrders+1) orders, so every maxOrders+1:th customer has none. Amounts
// are deterministic.
func NewDataset(customers, maxOrders int) *Dataset {
	d := &Dataset{
		Customers: scan.NewTable("customers", CustomersOrdinal, "id", "name", "country"),
		Orders:    scan.NewTable("orders", OrdersOrdinal, "id", "customer_id", "amount"),
		OrdersIndex: catalog.Index{
			Table:   "orders",
			Columns: []string{"customer_id"},
		},
	}

	orderID := 1000
	for i := 1; i <= customers; i++ {
		d.Customers.MustInsert(i, fmt.Sprintf("customer-%03d", i), countries[i%len(countries)])
		for j := 0; j < i%(maxOrders+1); j++ {
			orderID++
			d.Orders.MustInsert(orderID, i, float64((orderID*37)%500)/10)
		}
	}
	return d
}

// Register adds the orders index to c.
func (d *Dataset) Register(c *catalog.Catalog) error {
	return c.Register(d.OrdersIndex)
}
