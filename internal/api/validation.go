package api

import (
	stderrors "errors"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/portfolio-evaluator/internal/adapter"
	"github.com/portfolio-evaluator/internal/service"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// report json names rather than Go field names
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	v.RegisterValidation("posturl", func(fl validator.FieldLevel) bool {
		return adapter.ValidatePostURL(fl.Field().String()) == nil
	})
	return v
}

// postURLRequest is the body of run and fetch requests
type postURLRequest struct {
	URL string `json:"url" validate:"required,posturl"`
}

// purchaseRequest is one purchase of a submitted interpretation
type purchaseRequest struct {
	Name         string  `json:"name" validate:"required,max=100"`
	Abbreviation string  `json:"abbreviation" validate:"required,max=20"`
	Amount       float64 `json:"amount" validate:"gte=0"`
	Price        float64 `json:"price" validate:"gte=0"`
	Currency     string  `json:"currency" validate:"omitempty,len=3,alpha"`
}

// interpretationRequest is the body of a record purchases request
type interpretationRequest struct {
	IsPortfolio bool              `json:"isPortfolio"`
	Purchases   []purchaseRequest `json:"purchases" validate:"required_if=IsPortfolio true,dive"`
}

func (req *interpretationRequest) toInterpretation() *service.Interpretation {
	result := &service.Interpretation{
		IsPortfolio: req.IsPortfolio,
		Purchases:   make([]service.PurchaseRecord, 0, len(req.Purchases)),
	}
	for _, p := range req.Purchases {
		result.Purchases = append(result.Purchases, service.PurchaseRecord{
			Name:         p.Name,
			Abbreviation: p.Abbreviation,
			Amount:       p.Amount,
			Price:        p.Price,
			Currency:     p.Currency,
		})
	}
	return result
}

// backfillRequest is the optional body of a backfill request
type backfillRequest struct {
	Weeks int `json:"weeks" validate:"omitempty,min=1,max=520"`
}

// priceQuery holds the query parameters of a price listing
type priceQuery struct {
	Name  string `json:"name" validate:"required"`
	Year  int    `json:"year" validate:"omitempty,min=2009,max=9999"`
	Week  int    `json:"week" validate:"omitempty,min=1,max=53"`
	Limit int    `json:"limit" validate:"omitempty,min=1,max=1000"`
}

// decodeRequest parses and validates a JSON body, writing a 400 response on
// failure. An empty body is accepted when allowEmpty is set.
func decodeRequest(w http.ResponseWriter, r *http.Request, v interface{}, allowEmpty bool) bool {
	if err := parseJSONBody(r, v); err != nil && !(allowEmpty && stderrors.Is(err, io.EOF)) {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", nil)
		return false
	}
	return validateRequest(w, v)
}

// validateRequest runs struct validation, writing a 400 response on failure
func validateRequest(w http.ResponseWriter, v interface{}) bool {
	err := validate.Struct(v)
	if err == nil {
		return true
	}

	var fieldErrs validator.ValidationErrors
	if !stderrors.As(err, &fieldErrs) {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Validation failed", nil)
		return false
	}

	fields := make(map[string]interface{}, len(fieldErrs))
	for _, fe := range fieldErrs {
		fields[fieldPath(fe.Namespace())] = fe.Tag()
	}
	respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Validation failed", map[string]interface{}{
		"fields": fields,
	})
	return false
}

// fieldPath drops the struct name prefix from a validator namespace
func fieldPath(namespace string) string {
	if i := strings.Index(namespace, "."); i >= 0 {
		return namespace[i+1:]
	}
	return namespace
}
