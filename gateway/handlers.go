package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/example/storefront/pkg/admin"
	"github.com/example/storefront/pkg/auth"
	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/order"
	"github.com/example/storefront/pkg/payment"
	"github.com/example/storefront/pkg/repository"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type saveCartRequest struct {
	Cart []models.CartLine `json:"cart"`
}

type gatewayOrderRequest struct {
	Items []models.CartLine `json:"items"`
}

type gatewayKeysRequest struct {
	KeyID     string `json:"keyId"`
	KeySecret string `json:"keySecret"`
}

type uploadRequest struct {
	Filename string `json:"filename"`
	Image    string `json:"image"`
}

type orderStatusRequest struct {
	Status string `json:"status"`
}

func (g *Gateway) signup(c *gin.Context) {
	var req auth.SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithMessage(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	session, err := g.services.Auth.Signup(c.Request.Context(), req)
	switch {
	case errors.Is(err, auth.ErrMissingFields):
		abortWithMessage(c, http.StatusBadRequest, "Missing fields")
		return
	case errors.Is(err, auth.ErrEmailTaken):
		abortWithMessage(c, http.StatusBadRequest, "User already exists")
		return
	case err != nil:
		g.internalError(c, "Signup failed", err)
		return
	}
	respondSession(c, session)
}

func (g *Gateway) login(c *gin.Context) {
	var req auth.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithMessage(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	session, err := g.services.Auth.Login(c.Request.Context(), req)
	switch {
	case errors.Is(err, auth.ErrMissingFields), errors.Is(err, auth.ErrInvalidCredentials):
		abortWithMessage(c, http.StatusUnauthorized, "Invalid credentials")
		return
	case err != nil:
		g.internalError(c, "Login failed", err)
		return
	}
	respondSession(c, session)
}

func respondSession(c *gin.Context, session *auth.Session) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"token":   session.Token,
		"isAdmin": session.IsAdmin,
		"user":    session.User,
	})
}

func (g *Gateway) listProducts(c *gin.Context) {
	products, err := g.services.Catalog.ListProducts(c.Request.Context())
	if err != nil {
		g.internalError(c, "Failed to load products", err)
		return
	}
	if products == nil {
		products = []models.Product{}
	}
	c.JSON(http.StatusOK, products)
}

func (g *Gateway) replaceProducts(c *gin.Context) {
	var products []models.Product
	if err := c.ShouldBindJSON(&products); err != nil {
		abortWithMessage(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	err := g.services.Admin.ReplaceProducts(c.Request.Context(), products)
	if errors.Is(err, admin.ErrInvalidCatalog) {
		abortWithMessage(c, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		g.internalError(c, "Failed to save products", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (g *Gateway) upload(c *gin.Context) {
	if limit := g.config.Gateway.MaxUploadBytes; limit > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
	}

	var req uploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			abortWithMessage(c, http.StatusRequestEntityTooLarge, "Upload too large")
			return
		}
		abortWithMessage(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	filepath, err := g.services.Admin.SaveUpload(c.Request.Context(), req.Filename, req.Image)
	if errors.Is(err, admin.ErrInvalidUpload) {
		abortWithMessage(c, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		g.internalError(c, "Failed to store upload", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"filepath": filepath})
}

// updateProfile changes only the fields present in the body. Today that is
// the avatar; a JSON null removes it.
func (g *Gateway) updateProfile(c *gin.Context) {
	var fields map[string]json.RawMessage
	if err := c.ShouldBindJSON(&fields); err != nil {
		abortWithMessage(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	userID := claimsFrom(c).UserID

	raw, ok := fields["avatar"]
	if !ok {
		profile, err := g.services.Accounts.Profile(c.Request.Context(), userID)
		if err != nil {
			g.userError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "user": profile})
		return
	}

	var avatar *string
	if err := json.Unmarshal(raw, &avatar); err != nil {
		abortWithMessage(c, http.StatusBadRequest, "avatar must be a string or null")
		return
	}
	profile, err := g.services.Accounts.UpdateAvatar(c.Request.Context(), userID, avatar)
	if err != nil {
		g.userError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "user": profile})
}

func (g *Gateway) saveCart(c *gin.Context) {
	var req saveCartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithMessage(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := g.services.Accounts.SaveCart(c.Request.Context(), claimsFrom(c).UserID, req.Cart); err != nil {
		g.userError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (g *Gateway) clearCart(c *gin.Context) {
	if err := g.services.Accounts.ClearCart(c.Request.Context(), claimsFrom(c).UserID); err != nil {
		g.userError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (g *Gateway) userOrders(c *gin.Context) {
	orders, err := g.services.Accounts.Orders(c.Request.Context(), claimsFrom(c).UserID)
	if err != nil {
		g.userError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "orders": orders})
}

// createGatewayOrder opens a payment gateway order for the server-side
// price of the cart. The client pays against it and then calls placeOrder
// with the gateway's signature.
func (g *Gateway) createGatewayOrder(c *gin.Context) {
	var req gatewayOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithMessage(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	ctx := c.Request.Context()
	_, total, err := g.services.Pipeline.Quote(ctx, req.Items)
	if err != nil {
		if order.KindOf(err) == order.KindValidation {
			abortWithMessage(c, http.StatusBadRequest, err.Error())
			return
		}
		g.internalError(c, "Failed to price order", err)
		return
	}

	creds, ok, err := g.services.Credentials.GetCredentials(ctx)
	if err != nil {
		g.internalError(c, "Failed to read payment configuration", err)
		return
	}
	if !ok {
		abortWithMessage(c, http.StatusServiceUnavailable, "Online payment is not available")
		return
	}

	gwOrder, err := g.services.Payments.CreateOrder(ctx, creds, total)
	if err != nil {
		var apiErr *payment.APIError
		switch {
		case errors.Is(err, payment.ErrNotConfigured):
			abortWithMessage(c, http.StatusServiceUnavailable, "Online payment is not available")
		case errors.As(err, &apiErr):
			g.logger.Warn("Payment gateway rejected order",
				zap.Int("status", apiErr.StatusCode),
				zap.String("code", apiErr.Code),
				zap.String("description", apiErr.Description))
			abortWithMessage(c, http.StatusBadGateway, apiErr.Description)
		default:
			g.logger.Error("Payment gateway request failed", zap.Error(err))
			abortWithMessage(c, http.StatusBadGateway, "Payment gateway unreachable")
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"orderId":  gwOrder.ID,
		"keyId":    creds.KeyID,
		"amount":   gwOrder.Amount,
		"currency": gwOrder.Currency,
	})
}

func (g *Gateway) placeOrder(c *gin.Context) {
	var req order.PlaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithMessage(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	placed, err := g.services.Pipeline.Place(c.Request.Context(), claimsFrom(c).OrderOwner(), req)
	if err != nil {
		switch order.KindOf(err) {
		case order.KindValidation:
			abortWithMessage(c, http.StatusBadRequest, err.Error())
		case order.KindAuthentication:
			abortWithMessage(c, http.StatusPaymentRequired, "Payment verification failed")
		case order.KindConfiguration:
			abortWithMessage(c, http.StatusServiceUnavailable, "Online payment is not available")
		default:
			g.internalError(c, "Failed to place order", err)
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "orderId": placed.ID})
}

func (g *Gateway) paymentAvailability(c *gin.Context) {
	ok, err := g.services.Admin.PaymentConfigured(c.Request.Context())
	if err != nil {
		g.logger.Error("Failed to read payment configuration", zap.Error(err))
		ok = false
	}
	c.JSON(http.StatusOK, gin.H{"available": ok})
}

func (g *Gateway) saveGatewayKeys(c *gin.Context) {
	var req gatewayKeysRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithMessage(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	err := g.services.Admin.SaveCredentials(c.Request.Context(), req.KeyID, req.KeySecret)
	if errors.Is(err, admin.ErrMissingKeys) {
		abortWithMessage(c, http.StatusBadRequest, "Missing keys")
		return
	}
	if err != nil {
		g.internalError(c, "Failed to save keys", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (g *Gateway) gatewayKeysStatus(c *gin.Context) {
	ok, err := g.services.Admin.PaymentConfigured(c.Request.Context())
	if err != nil {
		g.internalError(c, "Failed to read payment configuration", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"configured": ok})
}

func (g *Gateway) adminData(c *gin.Context) {
	data, err := g.services.Admin.Dataset(c.Request.Context(), c.Param("dataset"))
	if errors.Is(err, admin.ErrUnknownDataset) {
		abortWithMessage(c, http.StatusNotFound, "Unknown dataset")
		return
	}
	if err != nil {
		g.internalError(c, "Failed to load data", err)
		return
	}
	c.JSON(http.StatusOK, data)
}

func (g *Gateway) updateOrderStatus(c *gin.Context) {
	var req orderStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithMessage(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	err := g.services.Admin.UpdateOrderStatus(c.Request.Context(), c.Param("id"), req.Status)
	switch {
	case errors.Is(err, admin.ErrInvalidStatus):
		abortWithMessage(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, repository.ErrOrderNotFound):
		abortWithMessage(c, http.StatusNotFound, "Order not found")
	case err != nil:
		g.internalError(c, "Failed to update order", err)
	default:
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

func (g *Gateway) userError(c *gin.Context, err error) {
	if errors.Is(err, repository.ErrUserNotFound) {
		abortWithMessage(c, http.StatusNotFound, "User not found")
		return
	}
	g.internalError(c, "Request failed", err)
}

// internalError logs the cause and hides it from the client.
func (g *Gateway) internalError(c *gin.Context, message string, err error) {
	g.logger.Error(message,
		zap.String("path", c.FullPath()),
		zap.String("request_id", c.GetString(requestIDKey)),
		zap.Error(err))
	abortWithMessage(c, http.StatusInternalServerError, message)
}
