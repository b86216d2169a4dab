package models

import (
	"fmt"
	"strconv"
	"strings"
)

// FilterKey identifies a filter known to the remote filtering service.
type FilterKey string

const (
	FilterMeanBlur     FilterKey = "mean_blur"
	FilterGaussianBlur FilterKey = "gaussian_blur"
	FilterMedianBlur   FilterKey = "median_blur"
	FilterCanny        FilterKey = "canny"
	FilterSobel        FilterKey = "sobel"
)

// FilterSpec carries the metadata attached to a filter key.
type FilterSpec struct {
	Key            FilterKey
	Label          string // recorded in the history
	ButtonLabel    string // shown on the action button
	RequiresKernel bool
}

var filterCatalog = []FilterSpec{
	{Key: FilterMeanBlur, Label: "Blur (Média)", ButtonLabel: "Média (Blur)", RequiresKernel: true},
	{Key: FilterGaussianBlur, Label: "Blur Gaussiano", ButtonLabel: "Gaussiano", RequiresKernel: true},
	{Key: FilterMedianBlur, Label: "Blur Mediana", ButtonLabel: "Mediana", RequiresKernel: true},
	{Key: FilterCanny, Label: "Detecção de Bordas (Canny)", ButtonLabel: "Canny (Bordas)"},
	{Key: FilterSobel, Label: "Detecção de Bordas (Sobel)", ButtonLabel: "Sobel (Bordas)"},
}

// Filters returns the catalog in presentation order.
func Filters() []FilterSpec {
	out := make([]FilterSpec, len(filterCatalog))
	copy(out, filterCatalog)
	return out
}

// LookupFilter returns the metadata registered for key.
func LookupFilter(key FilterKey) (FilterSpec, bool) {
	for _, spec := range filterCatalog {
		if spec.Key == key {
			return spec, true
		}
	}
	return FilterSpec{}, false
}

// ParseFilterKey validates a textual filter identifier.
func ParseFilterKey(s string) (FilterKey, error) {
	key := FilterKey(strings.TrimSpace(s))
	if _, ok := LookupFilter(key); !ok {
		return "", NewValidationError("filter", s, ErrUnknownFilter)
	}
	return key, nil
}

func (k FilterKey) String() string {
	return string(k)
}

// KernelSize is the spatial extent parameter of the blur family.
type KernelSize int

const (
	DefaultKernelSize KernelSize = 5
	MinKernelSize     KernelSize = 3
)

// Validate rejects kernel sizes the service cannot use. Even sizes are
// accepted; the service rounds them up to the next odd value.
func (k KernelSize) Validate() error {
	if k < MinKernelSize {
		return NewValidationError("kernel_size", int(k), ErrInvalidKernel)
	}
	return nil
}

// Ptr returns a pointer to a copy of k, for optional parameters.
func (k KernelSize) Ptr() *KernelSize {
	return &k
}

// ParseKernelSize coerces user input into a kernel size.
func ParseKernelSize(s string) (KernelSize, error) {
	trimmed := strings.TrimSpace(s)
	n, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, NewValidationError("kernel_size", s, fmt.Errorf("%w: not an integer", ErrInvalidKernel))
	}
	k := KernelSize(n)
	if err := k.Validate(); err != nil {
		return 0, err
	}
	return k, nil
}
