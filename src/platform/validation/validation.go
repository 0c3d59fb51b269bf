package validation

import (
	"chatify/src/util"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Instance is the process-wide validator used for config and option structs.
var Instance = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	for tag, fn := range map[string]validator.Func{
		"notblank":       util.ValidateNotBlank,
		"host_port_list": util.ValidateHostPortList,
	} {
		if err := v.RegisterValidation(tag, fn); err != nil {
			panic(fmt.Sprintf("failed to register '%s' validator: %v", tag, err))
		}
	}

	return v
}
