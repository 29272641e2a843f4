package pagination

import (
	"math"
	"net/http"
	"strconv"

	apperrors "github.com/utafrali/catalogsearch/pkg/errors"
)

// Params is a normalized page request.
type Params struct {
	Page   int `json:"page"`
	Size   int `json:"size"`
	Offset int `json:"-"`
}

// Normalize clamps page to at least 1 and size to [1, maxSize], using
// defaultSize when size is not positive. An offset that would overflow
// saturates at math.MaxInt.
func Normalize(page, size, defaultSize, maxSize int) Params {
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = defaultSize
	}
	if maxSize > 0 && size > maxSize {
		size = maxSize
	}
	offset := math.MaxInt
	if size <= 0 || page-1 <= math.MaxInt/size {
		offset = (page - 1) * max(size, 0)
	}
	return Params{Page: page, Size: size, Offset: offset}
}

// WithinWindow reports whether the last result of p lies within the first
// window results. It never multiplies, so huge pages cannot overflow.
func (p Params) WithinWindow(window int) bool {
	if p.Size <= 0 {
		return true
	}
	if p.Size > window {
		return false
	}
	return p.Page-1 <= (window-p.Size)/p.Size
}

// FromRequest reads "page" and "size" from the query string. Non-numeric
// values are rejected; out-of-range ones are clamped.
func FromRequest(r *http.Request, defaultSize, maxSize int) (Params, error) {
	q := r.URL.Query()

	page, err := intParam(q.Get("page"), "page")
	if err != nil {
		return Params{}, err
	}
	size, err := intParam(q.Get("size"), "size")
	if err != nil {
		return Params{}, err
	}
	return Normalize(page, size, defaultSize, maxSize), nil
}

func intParam(raw, name string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperrors.InvalidInputf("%s must be an integer", name)
	}
	return v, nil
}

// TotalPages returns how many pages of size hold total items.
func TotalPages(total int64, size int) int {
	if size <= 0 || total <= 0 {
		return 0
	}
	pages := total / int64(size)
	if total%int64(size) > 0 {
		pages++
	}
	return int(pages)
}
