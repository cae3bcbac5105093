package catalog

import (
	"errors"
	"reflect"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

type Product struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Code        string   `json:"code"`
	Price       float64  `json:"price"`
	Stock       int      `json:"stock"`
	Category    string   `json:"category"`
	Thumbnails  []string `json:"thumbnails"`
	Status      bool     `json:"status"`
}

func (p Product) clone() Product {
	p.Thumbnails = slices.Clone(p.Thumbnails)
	if p.Thumbnails == nil {
		p.Thumbnails = []string{}
	}
	return p
}

// Patch carries the fields of an update body. Nil fields are left alone.
// There is no ID field: ids never change.
type Patch struct {
	Title       *string   `json:"title"`
	Description *string   `json:"description"`
	Code        *string   `json:"code"`
	Price       *float64  `json:"price"`
	Stock       *int      `json:"stock"`
	Category    *string   `json:"category"`
	Thumbnails  *[]string `json:"thumbnails"`
	Status      *bool     `json:"status"`
}

func (pt Patch) apply(p Product) Product {
	if pt.Title != nil {
		p.Title = *pt.Title
	}
	if pt.Description != nil {
		p.Description = *pt.Description
	}
	if pt.Code != nil {
		p.Code = *pt.Code
	}
	if pt.Price != nil {
		p.Price = *pt.Price
	}
	if pt.Stock != nil {
		p.Stock = *pt.Stock
	}
	if pt.Category != nil {
		p.Category = *pt.Category
	}
	if pt.Thumbnails != nil {
		p.Thumbnails = *pt.Thumbnails
	}
	if pt.Status != nil {
		p.Status = *pt.Status
	}
	return p.clone()
}

// NewProduct is the create payload. Zero values count as missing, which is
// how "required" treats strings and numbers.
type NewProduct struct {
	Title       string   `json:"title" validate:"required"`
	Description string   `json:"description" validate:"required"`
	Code        string   `json:"code" validate:"required"`
	Price       float64  `json:"price" validate:"required"`
	Stock       int      `json:"stock" validate:"required"`
	Category    string   `json:"category" validate:"required"`
	Thumbnails  []string `json:"thumbnails"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// MissingFieldsError lists the json names of required fields that were empty.
type MissingFieldsError struct {
	Fields []string
}

func (e *MissingFieldsError) Error() string {
	return "missing required fields: " + strings.Join(e.Fields, ", ")
}

// Validate reports a *MissingFieldsError when a required field is empty.
func (n NewProduct) Validate() error {
	err := validate.Struct(n)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	missing := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		missing = append(missing, fe.Field())
	}
	return &MissingFieldsError{Fields: missing}
}

// Build mints a fresh id and applies creation defaults.
func (n NewProduct) Build() Product {
	p := Product{
		ID:          uuid.NewString(),
		Title:       n.Title,
		Description: n.Description,
		Code:        n.Code,
		Price:       n.Price,
		Stock:       n.Stock,
		Category:    n.Category,
		Thumbnails:  n.Thumbnails,
		Status:      true,
	}
	return p.clone()
}
