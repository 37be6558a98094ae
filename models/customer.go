package models

import (
	"strings"
	"time"
)

// Customer is a row of the hospital's customer table. This service only
// reads it: the admin screens label a conversation with the customer's name.
type Customer struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	FirstName     string     `gorm:"size:100;not null" json:"first_name"`
	MiddleName    *string    `gorm:"size:100" json:"middle_name"`
	LastName      string     `gorm:"size:100;not null" json:"last_name"`
	DateOfBirth   *time.Time `gorm:"type:date" json:"date_of_birth"`
	PhoneNumber   *string    `gorm:"size:30" json:"phone_number"`
	Email         *string    `gorm:"column:email_email;size:150;uniqueIndex" json:"email_email"`
	AccountNumber string     `gorm:"size:50;not null;uniqueIndex" json:"account_number"`
}

func (Customer) TableName() string { return "customer" }

// DisplayName is "First Last", used as the receiver label of a conversation.
func (c Customer) DisplayName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}
