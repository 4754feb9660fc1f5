package handler

import (
	"errors"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/sakif/lunchbox/internal/apperror"
	"github.com/sakif/lunchbox/internal/filter"
	"github.com/sakif/lunchbox/internal/model"
	"github.com/sakif/lunchbox/internal/service"
)

// maxMultipartMemory is how much of a multipart body is buffered in memory;
// the rest spills to temp files.
const maxMultipartMemory = 8 << 20

// RestaurantHandler serves restaurants inside lists.
//
// Create and update accept either a JSON body or multipart/form-data. The
// multipart form carries the same field names as the JSON body, tags as a
// comma-separated string, and an optional "image" file part.
type RestaurantHandler struct {
	restaurants *service.RestaurantService
	maxImage    int64
	logger      *slog.Logger
}

func NewRestaurantHandler(restaurants *service.RestaurantService, maxImageBytes int64, logger *slog.Logger) *RestaurantHandler {
	if maxImageBytes <= 0 {
		maxImageBytes = service.DefaultMaxImageBytes
	}
	return &RestaurantHandler{restaurants: restaurants, maxImage: maxImageBytes, logger: logger}
}

// HandleListForList returns the restaurants of a list, filtered and sorted.
//
// HTTP: GET /api/lists/{id}/restaurants?tag=Mexican&q=taco&minRating=4&sort=rating
func (h *RestaurantHandler) HandleListForList(w http.ResponseWriter, r *http.Request) {
	opts, err := filter.ParseOptions(r.URL.Query())
	if err != nil {
		writeError(w, err)
		return
	}
	items, err := h.restaurants.ListForList(r.Context(), r.PathValue("id"), opts)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// HandleGet returns one restaurant.
//
// HTTP: GET /api/restaurants/{id}
func (h *RestaurantHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	rest, err := h.restaurants.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rest)
}

// HandleCreate adds a restaurant to a list. Only the list's owner may.
//
// HTTP: POST /api/lists/{id}/restaurants
func (h *RestaurantHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var (
		in  service.RestaurantInput
		img *service.ImageFile
	)
	if isMultipart(r) {
		form, file, err := h.parseMultipart(w, r)
		if err != nil {
			writeError(w, err)
			return
		}
		if file != nil {
			defer file.close()
			img = file.image
		}
		if in, err = inputFromForm(form); err != nil {
			writeError(w, err)
			return
		}
	} else if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}

	rest, err := h.restaurants.Create(r.Context(), viewerID(r), r.PathValue("id"), in, img)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rest)
}

// HandleUpdate patches a restaurant. Only the list's owner may.
//
// HTTP: PATCH /api/restaurants/{id}
func (h *RestaurantHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var (
		patch service.RestaurantPatch
		img   *service.ImageFile
	)
	if isMultipart(r) {
		form, file, err := h.parseMultipart(w, r)
		if err != nil {
			writeError(w, err)
			return
		}
		if file != nil {
			defer file.close()
			img = file.image
		}
		if patch, err = patchFromForm(form); err != nil {
			writeError(w, err)
			return
		}
	} else if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, err)
		return
	}

	rest, err := h.restaurants.Update(r.Context(), viewerID(r), r.PathValue("id"), patch, img)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rest)
}

// HandleDelete removes a restaurant. The list's owner or whoever added the
// restaurant may.
//
// HTTP: DELETE /api/restaurants/{id}
func (h *RestaurantHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.restaurants.Delete(r.Context(), viewerID(r), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// Multipart parsing
// =============================================================================

type uploadedFile struct {
	image *service.ImageFile
	file  multipart.File
}

func (f *uploadedFile) close() { _ = f.file.Close() }

func isMultipart(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mt == "multipart/form-data"
}

// parseMultipart reads the form. The whole body is capped a little above the
// image limit so an oversized upload fails fast; the exact image limit is
// enforced by the service.
func (h *RestaurantHandler) parseMultipart(w http.ResponseWriter, r *http.Request) (map[string][]string, *uploadedFile, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxImage+maxJSONBody)
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return nil, nil, apperror.ValidationFailed("image", "image must be "+strconv.FormatInt(h.maxImage, 10)+" bytes or smaller")
		}
		return nil, nil, apperror.ValidationFailed("body", "invalid multipart form: "+err.Error())
	}

	file, header, err := r.FormFile("image")
	switch {
	case errors.Is(err, http.ErrMissingFile):
		return r.MultipartForm.Value, nil, nil
	case err != nil:
		return nil, nil, apperror.ValidationFailed("image", "invalid image part: "+err.Error())
	}
	return r.MultipartForm.Value, &uploadedFile{
		file: file,
		image: &service.ImageFile{
			Filename:    header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Body:        file,
		},
	}, nil
}

func formValue(form map[string][]string, key string) (string, bool) {
	v, ok := form[key]
	if !ok || len(v) == 0 {
		return "", false
	}
	return v[0], true
}

func parseRating(raw string) (*float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, apperror.ValidationFailed("rating", "rating must be a number")
	}
	return &v, nil
}

func inputFromForm(form map[string][]string) (service.RestaurantInput, error) {
	get := func(k string) string {
		v, _ := formValue(form, k)
		return v
	}

	rating, err := parseRating(get("rating"))
	if err != nil {
		return service.RestaurantInput{}, err
	}
	return service.RestaurantInput{
		Name:        get("name"),
		Rating:      rating,
		Tags:        model.NormalizeTags(get("tags")),
		Address:     get("address"),
		Hours:       get("hours"),
		Description: get("description"),
		ImageURL:    get("imageUrl"),
		ImageAlt:    get("imageAlt"),
		Website:     get("website"),
		MapsLink:    get("mapsLink"),
	}, nil
}

// patchFromForm sets only the fields present in the form. A present but
// empty rating clears it.
func patchFromForm(form map[string][]string) (service.RestaurantPatch, error) {
	var p service.RestaurantPatch

	strs := map[string]**string{
		"name":        &p.Name,
		"address":     &p.Address,
		"hours":       &p.Hours,
		"description": &p.Description,
		"imageUrl":    &p.ImageURL,
		"imageAlt":    &p.ImageAlt,
		"website":     &p.Website,
		"mapsLink":    &p.MapsLink,
	}
	for key, dst := range strs {
		if v, ok := formValue(form, key); ok {
			*dst = &v
		}
	}

	if v, ok := formValue(form, "rating"); ok {
		rating, err := parseRating(v)
		if err != nil {
			return p, err
		}
		p.Rating = rating
		p.ClearRating = rating == nil
	}
	if v, ok := formValue(form, "tags"); ok {
		tags := model.NormalizeTags(v)
		p.Tags = &tags
	}
	if v, ok := formValue(form, "removeImage"); ok {
		p.RemoveImage, _ = strconv.ParseBool(v)
	}
	return p, nil
}
