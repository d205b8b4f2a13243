package handler

import (
	"image"
	"net/http"
	"strconv"
	"strings"

	"github.com/docverify/docverify-backend/internal/docprocessing/service"
	"github.com/docverify/docverify-backend/pkg/errors"
	"github.com/docverify/docverify-backend/pkg/httputil"
)

type editForm struct {
	Rotation   float64 `form:"rotation" validate:"gte=-360,lte=360"`
	CropX      *int    `form:"crop_x" validate:"omitnil,gte=0"`
	CropY      *int    `form:"crop_y" validate:"omitnil,gte=0"`
	CropWidth  *int    `form:"crop_width" validate:"omitnil,gt=0"`
	CropHeight *int    `form:"crop_height" validate:"omitnil,gt=0"`
	AutoOrient bool    `form:"auto_orient"`
}

type extractForm struct {
	DocumentType string `form:"document_type" validate:"required,oneof=license passport"`
	Wait         bool   `form:"wait"`
	edit         editForm
}

type jobParams struct {
	JobID string `form:"jobId" validate:"required,uuid4"`
}

func (f editForm) edits() service.Edits {
	e := service.Edits{Rotation: f.Rotation, AutoOrient: f.AutoOrient}
	if f.CropWidth != nil && f.CropHeight != nil {
		x, y := 0, 0
		if f.CropX != nil {
			x = *f.CropX
		}
		if f.CropY != nil {
			y = *f.CropY
		}
		rect := image.Rect(x, y, x+*f.CropWidth, y+*f.CropHeight)
		e.Crop = &rect
	}
	return e
}

// formReader collects parse failures per field
type formReader struct {
	r       *http.Request
	details map[string]string
}

func (fr *formReader) value(name string) (string, bool) {
	v := strings.TrimSpace(fr.r.FormValue(name))
	return v, v != ""
}

func (fr *formReader) float(name string) float64 {
	v, ok := fr.value(name)
	if !ok {
		return 0
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		fr.details[name] = "must be a number"
	}
	return f
}

func (fr *formReader) int(name string) *int {
	v, ok := fr.value(name)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		fr.details[name] = "must be an integer"
		return nil
	}
	return &n
}

func (fr *formReader) bool(name string) bool {
	v, ok := fr.value(name)
	if !ok {
		return false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		fr.details[name] = "must be true or false"
	}
	return b
}

func (fr *formReader) err() error {
	if len(fr.details) > 0 {
		return errors.Validation(fr.details)
	}
	return nil
}

func readEditForm(fr *formReader) editForm {
	form := editForm{
		Rotation:   fr.float("rotation"),
		CropX:      fr.int("crop_x"),
		CropY:      fr.int("crop_y"),
		CropWidth:  fr.int("crop_width"),
		CropHeight: fr.int("crop_height"),
		AutoOrient: fr.bool("auto_orient"),
	}
	// a crop needs both dimensions; the origin defaults to 0,0
	if (form.CropWidth == nil) != (form.CropHeight == nil) {
		if form.CropWidth == nil {
			fr.details["crop_width"] = "must be set together with crop_height"
		} else {
			fr.details["crop_height"] = "must be set together with crop_width"
		}
	}
	return form
}

func parseEditForm(r *http.Request) (editForm, error) {
	fr := &formReader{r: r, details: make(map[string]string)}
	form := readEditForm(fr)
	if err := fr.err(); err != nil {
		return form, err
	}
	return form, httputil.Validate(form)
}

func parseExtractForm(r *http.Request) (extractForm, error) {
	fr := &formReader{r: r, details: make(map[string]string)}
	docType, _ := fr.value("document_type")
	form := extractForm{
		DocumentType: strings.ToLower(docType),
		Wait:         fr.bool("wait"),
		edit:         readEditForm(fr),
	}
	if err := fr.err(); err != nil {
		return form, err
	}
	if err := httputil.Validate(form); err != nil {
		return form, err
	}
	return form, httputil.Validate(form.edit)
}
