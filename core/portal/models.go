package portal

import (
	"encoding/json"
	"fmt"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/beet/core"
	"github.com/trezcool/beet/core/catalog"
	"github.com/trezcool/beet/core/progress"
)

var (
	progressKeyTag  = "progresskey"
	progressKeyText = "unknown progress key"
)

// UnknownKeyError is returned when a key is not part of the catalog.
type UnknownKeyError struct {
	Key        string
	Suggestion string // closest known key, if any
}

func (err *UnknownKeyError) Error() string {
	if err.Suggestion != "" {
		return fmt.Sprintf("unknown progress key %q, did you mean %q?", err.Key, err.Suggestion)
	}
	return fmt.Sprintf("unknown progress key %q", err.Key)
}

type (
	// UpdateProgress defines what information may be provided to overwrite a progress value.
	UpdateProgress struct {
		Key   string          `json:"key" param:"key" validate:"required,progresskey"`
		Value json.RawMessage `json:"value" validate:"required"`
	}

	CounterStatus struct {
		Key      string `json:"key"`
		Count    int    `json:"count"`
		Target   int    `json:"target"`
		Complete bool   `json:"complete"`
	}

	ChecklistStatus struct {
		Key      string   `json:"key"`
		Items    []string `json:"items"`
		Ticked   []string `json:"ticked"`
		Count    int      `json:"count"`
		Target   int      `json:"target"`
		Complete bool     `json:"complete"`
	}

	ModuleStatus struct {
		ID       string          `json:"id"`
		Title    string          `json:"title"`
		Requires []string        `json:"requires"`
		Unlocked bool            `json:"unlocked"`
		LockedBy []string        `json:"locked_by"` // prerequisites not completed yet
		Status   progress.Status `json:"status"`
	}
)

func (up *UpdateProgress) Validate(validate *validator.Validate) error {
	up.Key = core.CleanString(up.Key, true /* lower */)
	return validate.Struct(up)
}

// InitValidators registers the validators depending on the catalog.
func InitValidators(validate *validator.Validate, translator ut.Translator, cat *catalog.Catalog) {
	_ = validate.RegisterValidation(progressKeyTag, func(fl validator.FieldLevel) bool {
		_, ok := cat.Lookup(fl.Field().String())
		return ok
	})
	core.RegisterCustomTranslation(validate, translator, progressKeyTag, progressKeyText)
}
