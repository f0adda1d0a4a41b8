// Package datamodel lists the gorm row structs that make up the schema.
package datamodel

import (
	"github.com/frahmantamala/smartwater-vending/internal/core/datamodel/meter"
	"github.com/frahmantamala/smartwater-vending/internal/core/datamodel/payment"
	"github.com/frahmantamala/smartwater-vending/internal/core/datamodel/vending"
)

// Models is the AutoMigrate set used for sqlite databases, where the goose
// migrations (written for postgres) are not applied.
func Models() []interface{} {
	return []interface{}{
		&payment.MpesaTransaction{},
		&vending.VendToken{},
		&meter.MeterAggregate{},
		&meter.Meter{},
	}
}
