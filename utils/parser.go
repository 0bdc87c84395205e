package utils

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/vitwit/tiermint/types"
)

var validate *validator.Validate

func init() {
	validate = validator.New()

	// Register custom validators
	_ = validate.RegisterValidation("network", validateNetworkTag)
	_ = validate.RegisterValidation("amount", validateAmountTag)
	validate.RegisterStructValidation(validateConfigStruct, types.Config{})
}

// ParseConfig parses and validates a Config from JSON
func ParseConfig(data []byte) (*types.Config, error) {
	var cfg types.Config

	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, &types.MintError{
			Code:    types.ErrConfigError,
			Message: fmt.Sprintf("failed to parse config: %v", err),
			Err:     err,
		}
	}

	if err := ValidateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ValidateConfig checks the struct tags of cfg and the cross-field rules:
// the private key must decode and tier prices must not be negative.
func ValidateConfig(cfg *types.Config) error {
	if cfg == nil {
		return &types.MintError{Code: types.ErrConfigError, Message: "config is nil"}
	}
	if err := validate.Struct(cfg); err != nil {
		return &types.MintError{
			Code:    types.ErrConfigError,
			Message: fmt.Sprintf("validation failed: %v", err),
			Err:     err,
		}
	}
	return nil
}

// SerializeOutcome converts a MintOutcome to JSON, adding the error code and
// message the struct itself does not marshal.
func SerializeOutcome(outcome *types.MintOutcome) ([]byte, error) {
	type wire struct {
		*types.MintOutcome
		Error string `json:"error,omitempty"`
		Code  string `json:"code,omitempty"`
	}
	w := wire{MintOutcome: outcome}
	if outcome != nil && outcome.Err != nil {
		w.Error = outcome.Err.Error()
		w.Code = types.Code(outcome.Err)
	}
	return json.Marshal(w)
}

// NormalizeJSON formats JSON with consistent indentation
func NormalizeJSON(data interface{}) ([]byte, error) {
	return json.MarshalIndent(data, "", "  ")
}

// Custom validator functions
func validateNetworkTag(fl validator.FieldLevel) bool {
	return ValidateNetwork(fl.Field().String()) == nil
}

func validateAmountTag(fl validator.FieldLevel) bool {
	_, err := ValidateAmount(fl.Field().String())
	return err == nil
}

func validateConfigStruct(sl validator.StructLevel) {
	cfg := sl.Current().Interface().(types.Config)
	if cfg.PrivateKey != "" {
		if _, err := PrivateKeyFromHex(cfg.PrivateKey); err != nil {
			sl.ReportError(cfg.PrivateKey, "PrivateKey", "PrivateKey", "privkey", "")
		}
	}
}
