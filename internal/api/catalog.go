package api

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/safar/storefront/internal/database"
	"github.com/safar/storefront/internal/store"
)

func (s *Server) ListCategories(c *fiber.Ctx) error {
	categories, err := s.store.ListCategories(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(categories)
}

func (s *Server) GetCategory(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	category, err := s.store.GetCategory(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(category)
}

func (s *Server) CreateCategory(c *fiber.Ctx) error {
	var req CreateCategoryRequest
	if err := c.BodyParser(&req); err != nil {
		return database.NewValidationError("body", "invalid request body")
	}

	category, err := s.store.CreateCategory(c.UserContext(), req.Name)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(category)
}

// ListProducts is the storefront listing; deactivated products never appear.
func (s *Server) ListProducts(c *fiber.Ctx) error {
	filter, err := productFilter(c)
	if err != nil {
		return err
	}
	filter.Status = store.ProductStatusActive

	page, err := s.store.ListProducts(c.UserContext(), filter, pageRequest(c))
	if err != nil {
		return err
	}
	return c.JSON(page)
}

func (s *Server) AdminListProducts(c *fiber.Ctx) error {
	filter, err := productFilter(c)
	if err != nil {
		return err
	}

	switch status := store.ProductStatus(strings.ToLower(c.Query("status"))); status {
	case store.ProductStatusAny, store.ProductStatusActive, store.ProductStatusInactive:
		filter.Status = status
	default:
		return database.NewValidationError("status", "must be active or inactive")
	}

	page, err := s.store.ListProducts(c.UserContext(), filter, pageRequest(c))
	if err != nil {
		return err
	}
	return c.JSON(page)
}

func (s *Server) GetProduct(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	product, err := s.store.GetActiveProduct(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(product)
}

func (s *Server) AdminGetProduct(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	product, err := s.store.GetProduct(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(product)
}

// CreateProduct accepts a multipart form; the image part is optional.
func (s *Server) CreateProduct(c *fiber.Ctx) error {
	price, err := store.ParseAmount("price", c.FormValue("price"))
	if err != nil {
		return err
	}
	stock, err := store.ParseQuantity("stock", c.FormValue("stock"))
	if err != nil {
		return err
	}
	categoryID, err := store.ParseAmount("categoryId", c.FormValue("categoryId"))
	if err != nil {
		return err
	}

	in := store.ProductInput{
		Name:        c.FormValue("name"),
		Description: c.FormValue("description"),
		Price:       price,
		Stock:       stock,
		CategoryID:  categoryID,
	}

	fh, err := formFile(c, "image")
	if err != nil {
		return err
	}
	if fh != nil {
		if in.ImageURL, err = s.upload(c, s.productFolder, fh); err != nil {
			return err
		}
	}

	product, err := s.store.CreateProduct(c.UserContext(), in)
	if err != nil {
		return err
	}

	s.logger.Info("Product created", "product_id", product.ID, "category_id", product.CategoryID)
	return c.Status(fiber.StatusCreated).JSON(product)
}

// UpdateProduct applies the form fields that are present. A new image is
// uploaded only when one is attached.
func (s *Server) UpdateProduct(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	var patch store.ProductPatch
	if v, ok := formValue(c, "name"); ok {
		patch.Name = &v
	}
	if v, ok := formValue(c, "description"); ok {
		patch.Description = &v
	}
	if v, ok := formValue(c, "price"); ok {
		price, err := store.ParseAmount("price", v)
		if err != nil {
			return err
		}
		patch.Price = &price
	}
	if v, ok := formValue(c, "stock"); ok {
		stock, err := store.ParseQuantity("stock", v)
		if err != nil {
			return err
		}
		patch.Stock = &stock
	}
	if v, ok := formValue(c, "categoryId"); ok {
		categoryID, err := store.ParseAmount("categoryId", v)
		if err != nil {
			return err
		}
		patch.CategoryID = &categoryID
	}

	fh, err := formFile(c, "image")
	if err != nil {
		return err
	}
	if fh != nil {
		url, err := s.upload(c, s.productFolder, fh)
		if err != nil {
			return err
		}
		patch.ImageURL = &url
	}

	product, err := s.store.UpdateProduct(c.UserContext(), id, patch)
	if err != nil {
		return err
	}
	return c.JSON(product)
}

func (s *Server) ToggleProduct(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	product, err := s.store.ToggleProductActive(c.UserContext(), id)
	if err != nil {
		return err
	}

	s.logger.Info("Product status toggled", "product_id", id, "active", product.Lifecycle.IsActive())
	return c.JSON(product)
}

// formValue distinguishes an absent form field from an empty one.
func formValue(c *fiber.Ctx, key string) (string, bool) {
	form, err := c.MultipartForm()
	if err != nil {
		v := c.FormValue(key)
		return v, v != ""
	}
	values, ok := form.Value[key]
	if !ok || len(values) == 0 {
		return "", false
	}
	return values[0], true
}
