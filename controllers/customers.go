package controllers

import (
	"MedicChat/models"
	"MedicChat/pkg/store"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// ListCustomers handles GET / (oldest first) and GET /customers (newest
// first), the two listings the admin screens use.
func ListCustomers(dir *store.CustomerStore, newestFirst bool, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		customers, err := dir.List(c.Request.Context(), newestFirst)
		if err != nil {
			log.Error().Err(err).Msg("fetch customers failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch customers"})
			return
		}
		c.JSON(http.StatusOK, customers)
	}
}

// GetCustomer handles GET /customer/:id.
func GetCustomer(dir *store.CustomerStore, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := models.ParseCustomerID(c.Param("id"))
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid customer id"})
			return
		}
		customer, err := dir.Get(c.Request.Context(), id)
		if errors.Is(err, store.ErrCustomerNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Customer not found"})
			return
		}
		if err != nil {
			log.Error().Err(err).Uint("customer_id", id).Msg("fetch customer failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch customer"})
			return
		}
		c.JSON(http.StatusOK, customer)
	}
}
