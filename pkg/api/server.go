package api

import (
	"bytes"
	_ "embed"
	"fmt"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/gin-gonic/gin"
	"github.com/oapi-codegen/runtime"
	openapi_types "github.com/oapi-codegen/runtime/types"
)

//go:embed openapi.yaml
var specYAML []byte

// GetSwagger loads the embedded OpenAPI document
func GetSwagger() (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(bytes.Clone(specYAML))
	if err != nil {
		return nil, fmt.Errorf("error loading OpenAPI document: %w", err)
	}
	return doc, nil
}

// ServerInterface represents all server handlers.
type ServerInterface interface {
	// (GET /health)
	GetHealth(c *gin.Context)
	// (POST /api/v1/prescriptions)
	UploadPrescriptions(c *gin.Context)
	// (GET /api/v1/prescriptions)
	ListPrescriptions(c *gin.Context, params ListPrescriptionsParams)
	// (GET /api/v1/prescriptions/{id})
	GetPrescription(c *gin.Context, id openapi_types.UUID)
	// (DELETE /api/v1/prescriptions/{id})
	RemovePrescription(c *gin.Context, id openapi_types.UUID)
	// (GET /api/v1/prescriptions/{id}/image)
	GetPrescriptionImage(c *gin.Context, id openapi_types.UUID)
	// (GET /api/v1/prescriptions/{id}/report)
	GetPrescriptionReport(c *gin.Context, id openapi_types.UUID)
	// (POST /api/v1/prescriptions/{id}/medications/{index}/purchase)
	ResolvePurchase(c *gin.Context, id openapi_types.UUID, index int)
	// (GET /api/v1/cart)
	GetCart(c *gin.Context)
	// (POST /api/v1/cart/items)
	AddCartItem(c *gin.Context)
	// (PATCH /api/v1/cart/items/{id})
	UpdateCartItem(c *gin.Context, id openapi_types.UUID)
	// (DELETE /api/v1/cart/items/{id})
	RemoveCartItem(c *gin.Context, id openapi_types.UUID)
}

// ServerInterfaceWrapper converts gin contexts to parameters.
type ServerInterfaceWrapper struct {
	Handler      ServerInterface
	ErrorHandler func(*gin.Context, error, int)
}

func (siw *ServerInterfaceWrapper) bindID(c *gin.Context) (openapi_types.UUID, bool) {
	var id openapi_types.UUID
	err := runtime.BindStyledParameterWithOptions("simple", "id", c.Param("id"), &id, runtime.BindStyledParameterOptions{
		ParamLocation: runtime.ParamLocationPath,
		Explode:       false,
		Required:      true,
	})
	if err != nil {
		siw.ErrorHandler(c, fmt.Errorf("Invalid format for parameter id: %w", err), http.StatusBadRequest)
		return id, false
	}
	return id, true
}

// GetHealth operation middleware
func (siw *ServerInterfaceWrapper) GetHealth(c *gin.Context) {
	siw.Handler.GetHealth(c)
}

// UploadPrescriptions operation middleware
func (siw *ServerInterfaceWrapper) UploadPrescriptions(c *gin.Context) {
	siw.Handler.UploadPrescriptions(c)
}

// ListPrescriptions operation middleware
func (siw *ServerInterfaceWrapper) ListPrescriptions(c *gin.Context) {
	var params ListPrescriptionsParams

	err := runtime.BindQueryParameter("form", true, false, "status", c.Request.URL.Query(), &params.Status)
	if err != nil {
		siw.ErrorHandler(c, fmt.Errorf("Invalid format for parameter status: %w", err), http.StatusBadRequest)
		return
	}

	siw.Handler.ListPrescriptions(c, params)
}

// GetPrescription operation middleware
func (siw *ServerInterfaceWrapper) GetPrescription(c *gin.Context) {
	if id, ok := siw.bindID(c); ok {
		siw.Handler.GetPrescription(c, id)
	}
}

// RemovePrescription operation middleware
func (siw *ServerInterfaceWrapper) RemovePrescription(c *gin.Context) {
	if id, ok := siw.bindID(c); ok {
		siw.Handler.RemovePrescription(c, id)
	}
}

// GetPrescriptionImage operation middleware
func (siw *ServerInterfaceWrapper) GetPrescriptionImage(c *gin.Context) {
	if id, ok := siw.bindID(c); ok {
		siw.Handler.GetPrescriptionImage(c, id)
	}
}

// GetPrescriptionReport operation middleware
func (siw *ServerInterfaceWrapper) GetPrescriptionReport(c *gin.Context) {
	if id, ok := siw.bindID(c); ok {
		siw.Handler.GetPrescriptionReport(c, id)
	}
}

// ResolvePurchase operation middleware
func (siw *ServerInterfaceWrapper) ResolvePurchase(c *gin.Context) {
	id, ok := siw.bindID(c)
	if !ok {
		return
	}

	var index int
	err := runtime.BindStyledParameterWithOptions("simple", "index", c.Param("index"), &index, runtime.BindStyledParameterOptions{
		ParamLocation: runtime.ParamLocationPath,
		Explode:       false,
		Required:      true,
	})
	if err != nil {
		siw.ErrorHandler(c, fmt.Errorf("Invalid format for parameter index: %w", err), http.StatusBadRequest)
		return
	}

	siw.Handler.ResolvePurchase(c, id, index)
}

// GetCart operation middleware
func (siw *ServerInterfaceWrapper) GetCart(c *gin.Context) {
	siw.Handler.GetCart(c)
}

// AddCartItem operation middleware
func (siw *ServerInterfaceWrapper) AddCartItem(c *gin.Context) {
	siw.Handler.AddCartItem(c)
}

// UpdateCartItem operation middleware
func (siw *ServerInterfaceWrapper) UpdateCartItem(c *gin.Context) {
	if id, ok := siw.bindID(c); ok {
		siw.Handler.UpdateCartItem(c, id)
	}
}

// RemoveCartItem operation middleware
func (siw *ServerInterfaceWrapper) RemoveCartItem(c *gin.Context) {
	if id, ok := siw.bindID(c); ok {
		siw.Handler.RemoveCartItem(c, id)
	}
}

// GinServerOptions provides options for the Gin server.
type GinServerOptions struct {
	BaseURL      string
	ErrorHandler func(*gin.Context, error, int)
}

// RegisterHandlers creates http.Handler with routing matching OpenAPI spec.
func RegisterHandlers(router gin.IRouter, si ServerInterface) {
	RegisterHandlersWithOptions(router, si, GinServerOptions{})
}

// RegisterHandlersWithOptions creates http.Handler with additional options
func RegisterHandlersWithOptions(router gin.IRouter, si ServerInterface, options GinServerOptions) {
	errorHandler := options.ErrorHandler
	if errorHandler == nil {
		errorHandler = func(c *gin.Context, err error, statusCode int) {
			details := err.Error()
			c.JSON(statusCode, ErrorResponse{
				Code:    "VALIDATION_ERROR",
				Message: "Invalid request parameter",
				Details: &details,
			})
		}
	}

	wrapper := ServerInterfaceWrapper{
		Handler:      si,
		ErrorHandler: errorHandler,
	}

	router.GET(options.BaseURL+"/health", wrapper.GetHealth)
	router.POST(options.BaseURL+"/api/v1/prescriptions", wrapper.UploadPrescriptions)
	router.GET(options.BaseURL+"/api/v1/prescriptions", wrapper.ListPrescriptions)
	router.GET(options.BaseURL+"/api/v1/prescriptions/:id", wrapper.GetPrescription)
	router.DELETE(options.BaseURL+"/api/v1/prescriptions/:id", wrapper.RemovePrescription)
	router.GET(options.BaseURL+"/api/v1/prescriptions/:id/image", wrapper.GetPrescriptionImage)
	router.GET(options.BaseURL+"/api/v1/prescriptions/:id/report", wrapper.GetPrescriptionReport)
	router.POST(options.BaseURL+"/api/v1/prescriptions/:id/medications/:index/purchase", wrapper.ResolvePurchase)
	router.GET(options.BaseURL+"/api/v1/cart", wrapper.GetCart)
	router.POST(options.BaseURL+"/api/v1/cart/items", wrapper.AddCartItem)
	router.PATCH(options.BaseURL+"/api/v1/cart/items/:id", wrapper.UpdateCartItem)
	router.DELETE(options.BaseURL+"/api/v1/cart/items/:id", wrapper.RemoveCartItem)
}
