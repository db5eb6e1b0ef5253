package api

import (
	"mime/multipart"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/safar/storefront/internal/database"
	"github.com/safar/storefront/internal/media"
	"github.com/safar/storefront/internal/store"
)

func paramID(c *fiber.Ctx, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Params(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, database.NewValidationError(name, "must be a positive integer")
	}
	return id, nil
}

func pageRequest(c *fiber.Ctx) store.PageRequest {
	return store.NewPageRequest(c.QueryInt("page", 1), c.QueryInt("limit", store.DefaultPageLimit))
}

func productFilter(c *fiber.Ctx) (store.ProductFilter, error) {
	filter := store.ProductFilter{
		Search:       c.Query("search"),
		CategoryName: c.Query("category"),
	}

	if raw := c.Query("categoryId"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return filter, database.NewValidationError("categoryId", "must be an integer")
		}
		filter.CategoryID = id
	}

	for _, bound := range []struct {
		name string
		dst  **int64
	}{
		{"min", &filter.MinPrice},
		{"max", &filter.MaxPrice},
	} {
		raw := c.Query(bound.name)
		if raw == "" {
			continue
		}
		v, err := store.ParseAmount(bound.name, raw)
		if err != nil {
			return filter, err
		}
		*bound.dst = &v
	}

	return filter, nil
}

// formFile returns the named upload or nil when the request carries none.
func formFile(c *fiber.Ctx, field string) (*multipart.FileHeader, error) {
	if !strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		return nil, nil
	}
	form, err := c.MultipartForm()
	if err != nil {
		return nil, database.NewValidationError(field, "malformed multipart body")
	}
	if files := form.File[field]; len(files) > 0 {
		return files[0], nil
	}
	return nil, nil
}

// upload forwards a multipart file to the media host and returns its URL.
func (s *Server) upload(c *fiber.Ctx, folder string, fh *multipart.FileHeader) (string, error) {
	file := media.File{
		Name:        fh.Filename,
		ContentType: fh.Header.Get(fiber.HeaderContentType),
		Size:        fh.Size,
	}
	if err := media.ValidateImage(file); err != nil {
		return "", err
	}

	body, err := fh.Open()
	if err != nil {
		return "", err
	}
	defer body.Close()
	file.Body = body

	url, err := s.uploader.Upload(c.UserContext(), folder, file)
	if err != nil {
		return "", err
	}
	return url, nil
}
