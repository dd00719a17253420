package validation

import (
	"reflect"
	"strings"

	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/imrishuroy/laundry-payflow/internal/orders"
)

// New returns a configured validator with the custom tags and struct-level rules registered.
func New() *validatorv10.Validate {
	v := validatorv10.New()

	// report fields by their json names
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})

	_ = v.RegisterValidation("order_event", orderEvent)
	v.RegisterStructValidation(listBillsStructValidation, ListBillsQuery{})

	return v
}

// orderEvent accepts only the events a vendor may trigger.
func orderEvent(fl validatorv10.FieldLevel) bool {
	return orders.VendorEvents[orders.Event(fl.Field().String())]
}

func listBillsStructValidation(sl validatorv10.StructLevel) {
	q := sl.Current().Interface().(ListBillsQuery)
	if q.Month != 0 && q.Year == 0 {
		sl.ReportError(q.Year, "year", "Year", "required_with_month", "")
	}
}
