package controllers

import (
	"MedicChat/models"
	svc "MedicChat/pkg/services"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// GetMessages handles GET /messages/:customer_id. A conversation nobody has
// written to yet is an empty list, not a 404.
func GetMessages(chat *svc.ChatService, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		customerID, ok := models.ParseCustomerID(c.Param("customer_id"))
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid customer id"})
			return
		}

		msgs, err := chat.History(c.Request.Context(), customerID)
		if err != nil {
			log.Error().Err(err).Uint("customer_id", customerID).Msg("fetch messages failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch messages"})
			return
		}
		c.JSON(http.StatusOK, msgs)
	}
}

// SendMessage handles POST /messages: persist, broadcast, echo the stored row.
func SendMessage(chat *svc.ChatService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body models.MessageInput
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Missing message data"})
			return
		}

		msg, err := chat.Send(c.Request.Context(), body)
		if err != nil {
			status, text, fields := classifySendError(err)
			resp := gin.H{"error": text}
			if len(fields) > 0 {
				resp["fields"] = fields
			}
			c.JSON(status, resp)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"message": "Message sent successfully",
			"data":    msg,
		})
	}
}

// classifySendError maps a send failure to a status, a client facing text
// and, for validation failures, the offending fields.
func classifySendError(err error) (int, string, []string) {
	var verr *models.ValidationError
	if errors.As(err, &verr) {
		return http.StatusBadRequest, "Missing message data", verr.Fields
	}
	return http.StatusInternalServerError, "Failed to send message", nil
}
