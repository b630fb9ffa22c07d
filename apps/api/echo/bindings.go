package echoapi

import (
	"fmt"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/educarcms/educar/core"
	filesvc "github.com/educarcms/educar/services/files"
)

var (
	orderingParam = "ordering"
	pageParam     = "page"
)

type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	data := ctx.QueryParams()
	if len(data) == 0 {
		return
	}
	val, ok := data[orderingParam]
	if !ok || len(val) == 0 || val[0] == "" {
		return
	}

	for _, field := range strings.Split(val[0], ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		if field == "" {
			continue
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

// First returns the first requested ordering, or def.
func (ord *Ordering) First(def core.DBOrdering) core.DBOrdering {
	if len(ord.Orderings) > 0 {
		return ord.Orderings[0]
	}
	return def
}

// bindPage reads the page number query param; malformed values mean the first page.
func bindPage(ctx echo.Context) int {
	page := core.ParseInt(ctx.QueryParam(pageParam), 1)
	if page < 1 {
		page = 1
	}
	return page
}

// bindInput binds the request body into v, then validates it with validate.
func bindInput(ctx echo.Context, v interface{}, validate func() error) error {
	if err := ctx.Bind(v); err != nil {
		return errors.Wrap(core.NewValidationError(errors.New("malformed request body")), err.Error())
	}
	return validate()
}

// bodyLimit allows uploads of maxUpload bytes plus room for the other form fields.
func bodyLimit(maxUpload int64) string {
	return fmt.Sprintf("%dK", maxUpload>>10+1024)
}

// saveUpload stores the file of the field form param under dir. It returns an empty path
// when the request carries no such file.
func saveUpload(ctx echo.Context, files *filesvc.LocalStorage, field, dir string) (string, error) {
	fh, err := ctx.FormFile(field)
	if err != nil {
		return "", nil
	}
	rel, err := files.Save(dir, fh)
	if errors.Cause(err) == filesvc.ErrTooLarge {
		return "", core.NewValidationError(nil, core.FieldError{Field: field, Error: err.Error()})
	}
	if err != nil {
		return "", errors.Wrap(err, "saving upload")
	}
	return rel, nil
}
